// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearSettingsEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvMSRDevice, EnvCPUIDDevice, EnvPCIRoot, EnvCPUOnline, EnvReloadDelay, EnvNice} {
		// t.Setenv restores the original value when the test ends
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestSettingsFromEnv_Defaults(t *testing.T) {
	clearSettingsEnv(t)
	settings, err := SettingsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestSettingsFromEnv_Overrides(t *testing.T) {
	clearSettingsEnv(t)
	t.Setenv(EnvMSRDevice, "/tmp/msr%d")
	t.Setenv(EnvPCIRoot, "/tmp/pci")
	t.Setenv(EnvReloadDelay, "5ms")
	t.Setenv(EnvNice, "-5")
	settings, err := SettingsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/msr%d", settings.MSRDevice)
	assert.Equal(t, "/tmp/pci", settings.PCIRoot)
	assert.Equal(t, 5*time.Millisecond, settings.ReloadDelay)
	assert.Equal(t, -5, settings.Nice)
	assert.Equal(t, DefaultSettings().CPUIDDevice, settings.CPUIDDevice)
}

func TestSettingsFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad delay", EnvReloadDelay, "soon"},
		{"negative delay", EnvReloadDelay, "-1ms"},
		{"bad nice", EnvNice, "high"},
		{"nice out of range", EnvNice, "-40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSettingsEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := SettingsFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadSettings_EnvFile(t *testing.T) {
	clearSettingsEnv(t)
	path := filepath.Join(t.TempDir(), "tweaker.env")
	content := EnvCPUIDDevice + "=/tmp/cpuid\n" + EnvReloadDelay + "=2ms\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	// godotenv.Load sets process variables, register them for cleanup
	t.Setenv(EnvCPUIDDevice, "")
	t.Setenv(EnvReloadDelay, "")
	require.NoError(t, os.Unsetenv(EnvCPUIDDevice))
	require.NoError(t, os.Unsetenv(EnvReloadDelay))

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cpuid", settings.CPUIDDevice)
	assert.Equal(t, 2*time.Millisecond, settings.ReloadDelay)
}

func TestLoadSettings_MissingEnvFile(t *testing.T) {
	clearSettingsEnv(t)
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestGetAppContext(t *testing.T) {
	_, err := GetAppContext(context.Background())
	assert.Error(t, err)

	ctx := context.WithValue(context.Background(), AppContext{}, AppContext{Version: "1.0.0"})
	appContext, err := GetAppContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", appContext.Version)
}
