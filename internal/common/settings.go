package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"amdmsrtweaker/internal/util"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by LoadSettings.
const EnvPrefix = "AMDMSRTWEAKER_"

const (
	EnvMSRDevice   = EnvPrefix + "MSR_DEVICE"
	EnvCPUIDDevice = EnvPrefix + "CPUID_DEVICE"
	EnvPCIRoot     = EnvPrefix + "PCI_ROOT"
	EnvCPUOnline   = EnvPrefix + "CPU_ONLINE"
	EnvReloadDelay = EnvPrefix + "RELOAD_DELAY"
	EnvNice        = EnvPrefix + "NICE"
)

// Settings describe where the privileged interfaces live and how the apply
// sequence is paced.
type Settings struct {
	MSRDevice   string        // MSR device path, %d is replaced by the CPU number
	CPUIDDevice string        // CPUID device path
	PCIRoot     string        // sysfs directory holding PCI devices
	CPUOnline   string        // kernel list of online CPUs
	ReloadDelay time.Duration // time spent in the temporary P-state when forcing a reload
	Nice        int           // nice value held while registers are programmed
}

func DefaultSettings() Settings {
	return Settings{
		MSRDevice:   "/dev/cpu/%d/msr",
		CPUIDDevice: "/dev/cpu/0/cpuid",
		PCIRoot:     "/sys/bus/pci/devices",
		CPUOnline:   "/sys/devices/system/cpu/online",
		ReloadDelay: time.Millisecond,
		Nice:        -20,
	}
}

// DefaultEnvFile is the env file picked up from the executable's directory
// when no file is given explicitly.
func DefaultEnvFile() string {
	return filepath.Join(util.GetAppDir(), AppName+".env")
}

// LoadSettings loads envFile, if given, into the environment and builds the
// settings from it. Variables already present in the environment win over the
// file. With an empty envFile the default env file is used when it exists.
func LoadSettings(envFile string) (Settings, error) {
	if envFile != "" {
		path, err := util.AbsPath(envFile)
		if err != nil {
			return Settings{}, err
		}
		if err := godotenv.Load(path); err != nil {
			return Settings{}, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		slog.Info("loaded env file", slog.String("path", path))
	} else if exists, _ := util.FileExists(DefaultEnvFile()); exists {
		if err := godotenv.Load(DefaultEnvFile()); err != nil {
			return Settings{}, fmt.Errorf("failed to load env file %s: %w", DefaultEnvFile(), err)
		}
		slog.Info("loaded env file", slog.String("path", DefaultEnvFile()))
	}
	return SettingsFromEnv()
}

// SettingsFromEnv overlays the AMDMSRTWEAKER_* environment variables on the
// default settings.
func SettingsFromEnv() (Settings, error) {
	settings := DefaultSettings()
	if v := os.Getenv(EnvMSRDevice); v != "" {
		settings.MSRDevice = v
	}
	if v := os.Getenv(EnvCPUIDDevice); v != "" {
		settings.CPUIDDevice = v
	}
	if v := os.Getenv(EnvPCIRoot); v != "" {
		settings.PCIRoot = v
	}
	if v := os.Getenv(EnvCPUOnline); v != "" {
		settings.CPUOnline = v
	}
	if v := os.Getenv(EnvReloadDelay); v != "" {
		delay, err := time.ParseDuration(v)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s: %w", EnvReloadDelay, err)
		}
		if delay < 0 {
			return Settings{}, fmt.Errorf("invalid %s: negative duration %s", EnvReloadDelay, v)
		}
		settings.ReloadDelay = delay
	}
	if v := os.Getenv(EnvNice); v != "" {
		nice, err := strconv.Atoi(v)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s: %w", EnvNice, err)
		}
		if nice < -20 || nice > 19 {
			return Settings{}, fmt.Errorf("invalid %s: %d not in [-20, 19]", EnvNice, nice)
		}
		settings.Nice = nice
	}
	return settings, nil
}
