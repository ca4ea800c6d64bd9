package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"strings"

	"amdmsrtweaker/internal/driver"
	"amdmsrtweaker/internal/pstate"

	"github.com/shirou/gopsutil/v3/cpu"
)

// DriverConfig maps the settings to the driver's device locations.
func (s Settings) DriverConfig() driver.Config {
	return driver.Config{
		MSRDevice:   s.MSRDevice,
		CPUIDDevice: s.CPUIDDevice,
		PCIRoot:     s.PCIRoot,
		CPUOnline:   s.CPUOnline,
	}
}

// OpenProcessor opens the driver and probes the processor. The caller must
// Close the returned driver.
func OpenProcessor(settings Settings) (*driver.Linux, *pstate.Processor, error) {
	dev, err := driver.Open(settings.DriverConfig())
	if err != nil {
		return nil, nil, err
	}
	// probe on the first online CPU
	cpus, err := dev.LogicalCPUs()
	if err == nil && len(cpus) > 0 {
		err = dev.PinToCPU(cpus[0])
	}
	if err != nil {
		_ = dev.Close()
		return nil, nil, err
	}
	proc, err := pstate.Probe(dev)
	if err != nil {
		_ = dev.Close()
		return nil, nil, err
	}
	return dev, proc, nil
}

// ModelName returns the processor brand string, or an empty string when it
// cannot be read.
func ModelName() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		if err != nil {
			slog.Warn("failed to read CPU model name", slog.String("error", err.Error()))
		}
		return ""
	}
	return strings.TrimSpace(infos[0].ModelName)
}
