// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package driver provides access to the privileged processor interfaces used to
// program P-states: model specific registers, PCI configuration space of the
// northbridge, CPUID, CPU affinity and scheduling priority.
package driver

import (
	"github.com/pkg/errors"
)

// ErrRegisterAccess is wrapped by every error caused by a failed register or
// device access.
var ErrRegisterAccess = errors.New("register access failed")

// NorthbridgeDevice is the PCI device number (bus 0) of the processor's
// northbridge functions.
const NorthbridgeDevice = 0x18

// CPUIDRegs holds the result of one CPUID leaf.
type CPUIDRegs struct {
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
}

// Device is the set of privileged primitives the P-state code consumes.
// MSR accesses apply to the logical CPU the caller is pinned to.
type Device interface {
	Cpuid(leaf uint32) (CPUIDRegs, error)
	ReadMSR(index uint32) (uint64, error)
	WriteMSR(index uint32, value uint64) error
	ReadPCIConfig(device, function uint8, offset uint32) (uint32, error)
	WritePCIConfig(device, function uint8, offset uint32, value uint32) error
	// PinToCPU restricts the calling thread to the given logical CPU.
	PinToCPU(cpu int) error
	// LogicalCPUs lists the online logical CPUs.
	LogicalCPUs() ([]int, error)
	// Priority returns the nice value of the calling thread.
	Priority() (int, error)
	SetPriority(nice int) error
}

// Config locates the device nodes. MSRDevice is a format string taking the
// CPU number.
type Config struct {
	MSRDevice   string
	CPUIDDevice string
	PCIRoot     string
	CPUOnline   string
}
