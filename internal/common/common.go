// Package common defines data structures and functions that are used by multiple
// application commands, e.g., info and apply.
package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

var AppName = filepath.Base(os.Args[0])

// AppContext represents the application context that can be accessed from all commands.
type AppContext struct {
	Timestamp   string   // Timestamp is the application start time.
	LogFilePath string   // LogFilePath is the path to the log file, empty when logging elsewhere.
	Version     string   // Version is the version of the application.
	Debug       bool     // Debug is set when debug logging is enabled.
	Settings    Settings // Settings are the environment settings in effect.
}

// GetAppContext retrieves the AppContext stored by the root command.
func GetAppContext(ctx context.Context) (AppContext, error) {
	if ctx == nil {
		return AppContext{}, fmt.Errorf("no command context")
	}
	appContext, ok := ctx.Value(AppContext{}).(AppContext)
	if !ok {
		return AppContext{}, fmt.Errorf("application context not initialized")
	}
	return appContext, nil
}
