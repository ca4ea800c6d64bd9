package apply

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ValidationFunc func(cmd *cobra.Command) bool

// flagDefinition is a struct that defines a command line flag.
type flagDefinition struct {
	pflag                 *pflag.Flag
	validationFunc        ValidationFunc
	validationDescription string
}

// GetName returns the name of the flag.
func (f *flagDefinition) GetName() string {
	return f.pflag.Name
}

// GetType returns the type of the flag.
func (f *flagDefinition) GetType() string {
	return f.pflag.Value.Type()
}

// GetValueAsString returns the value of the flag as a string.
func (f *flagDefinition) GetValueAsString() string {
	return f.pflag.Value.String()
}

// newBoolFlag creates a new boolean flag and adds it to the command.
func newBoolFlag(cmd *cobra.Command, name string, defaultValue bool, help string) flagDefinition {
	cmd.Flags().Bool(name, defaultValue, help)
	return flagDefinition{pflag: cmd.Flags().Lookup(name)}
}

// newStringFlag creates a new string flag and adds it to the command.
func newStringFlag(cmd *cobra.Command, name string, defaultValue string, help string, validationDescription string, validationFunc ValidationFunc) flagDefinition {
	cmd.Flags().String(name, defaultValue, help)
	return flagDefinition{
		pflag:                 cmd.Flags().Lookup(name),
		validationFunc:        validationFunc,
		validationDescription: validationDescription,
	}
}

// newDurationFlag creates a new duration flag and adds it to the command.
func newDurationFlag(cmd *cobra.Command, name string, defaultValue time.Duration, help string, validationDescription string, validationFunc ValidationFunc) flagDefinition {
	cmd.Flags().Duration(name, defaultValue, help)
	return flagDefinition{
		pflag:                 cmd.Flags().Lookup(name),
		validationFunc:        validationFunc,
		validationDescription: validationDescription,
	}
}
