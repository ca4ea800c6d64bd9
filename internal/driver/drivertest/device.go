// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package drivertest provides an in-memory driver.Device for tests. Every
// logical CPU has its own MSR bank; PCI configuration space and CPUID are
// shared. All accesses are recorded in order.
package drivertest

import (
	"fmt"

	"amdmsrtweaker/internal/driver"
)

// Operations recorded in Call.Op
const (
	OpCpuid       = "cpuid"
	OpReadMSR     = "rdmsr"
	OpWriteMSR    = "wrmsr"
	OpReadPCI     = "rdpci"
	OpWritePCI    = "wrpci"
	OpPin         = "pin"
	OpSetPriority = "setpriority"
)

// Call is one recorded access. Register holds the MSR index, the PCI offset
// or the CPUID leaf.
type Call struct {
	Op       string
	CPU      int
	Function uint8
	Register uint32
	Value    uint64
}

type pciAddr struct {
	function uint8
	offset   uint32
}

// Device is a fake processor. The zero value is not usable, call New.
type Device struct {
	CPUID map[uint32]driver.CPUIDRegs
	Nice  int
	Calls []Call
	// Fail, when set, is consulted before every access; a non-nil result is
	// returned wrapped in driver.ErrRegisterAccess.
	Fail func(c Call) error

	msrs []map[uint32]uint64
	pci  map[pciAddr]uint32
	cpu  int
}

// New returns a fake with the given number of logical CPUs.
func New(cpus int) *Device {
	d := &Device{
		CPUID: make(map[uint32]driver.CPUIDRegs),
		pci:   make(map[pciAddr]uint32),
		msrs:  make([]map[uint32]uint64, cpus),
	}
	for i := range d.msrs {
		d.msrs[i] = make(map[uint32]uint64)
	}
	return d
}

// SetMSR seeds an MSR on every CPU.
func (d *Device) SetMSR(index uint32, value uint64) {
	for i := range d.msrs {
		d.msrs[i][index] = value
	}
}

// SetCPUMSR seeds an MSR on one CPU.
func (d *Device) SetCPUMSR(cpu int, index uint32, value uint64) {
	d.msrs[cpu][index] = value
}

// MSR returns the value of an MSR on a CPU without recording an access.
func (d *Device) MSR(cpu int, index uint32) uint64 {
	return d.msrs[cpu][index]
}

// SetPCI seeds a northbridge PCI configuration register.
func (d *Device) SetPCI(function uint8, offset uint32, value uint32) {
	d.pci[pciAddr{function, offset}] = value
}

// PCI returns a northbridge PCI configuration register without recording an
// access.
func (d *Device) PCI(function uint8, offset uint32) uint32 {
	return d.pci[pciAddr{function, offset}]
}

// CurrentCPU is the CPU the fake is pinned to.
func (d *Device) CurrentCPU() int {
	return d.cpu
}

// CallsOf filters the recorded calls by operation.
func (d *Device) CallsOf(op string) []Call {
	var calls []Call
	for _, c := range d.Calls {
		if c.Op == op {
			calls = append(calls, c)
		}
	}
	return calls
}

// Reset forgets the recorded calls.
func (d *Device) Reset() {
	d.Calls = nil
}

func (d *Device) record(c Call) error {
	d.Calls = append(d.Calls, c)
	if d.Fail != nil {
		if err := d.Fail(c); err != nil {
			return fmt.Errorf("%w: %s %#x on CPU %d: %w", driver.ErrRegisterAccess, c.Op, c.Register, c.CPU, err)
		}
	}
	return nil
}

func (d *Device) Cpuid(leaf uint32) (driver.CPUIDRegs, error) {
	if err := d.record(Call{Op: OpCpuid, CPU: d.cpu, Register: leaf}); err != nil {
		return driver.CPUIDRegs{}, err
	}
	return d.CPUID[leaf], nil
}

func (d *Device) ReadMSR(index uint32) (uint64, error) {
	if err := d.record(Call{Op: OpReadMSR, CPU: d.cpu, Register: index}); err != nil {
		return 0, err
	}
	return d.msrs[d.cpu][index], nil
}

func (d *Device) WriteMSR(index uint32, value uint64) error {
	if err := d.record(Call{Op: OpWriteMSR, CPU: d.cpu, Register: index, Value: value}); err != nil {
		return err
	}
	d.msrs[d.cpu][index] = value
	return nil
}

func (d *Device) ReadPCIConfig(device, function uint8, offset uint32) (uint32, error) {
	if device != driver.NorthbridgeDevice {
		return 0, fmt.Errorf("%w: no PCI device %#x", driver.ErrRegisterAccess, device)
	}
	if err := d.record(Call{Op: OpReadPCI, CPU: d.cpu, Function: function, Register: offset}); err != nil {
		return 0, err
	}
	return d.pci[pciAddr{function, offset}], nil
}

func (d *Device) WritePCIConfig(device, function uint8, offset uint32, value uint32) error {
	if device != driver.NorthbridgeDevice {
		return fmt.Errorf("%w: no PCI device %#x", driver.ErrRegisterAccess, device)
	}
	if err := d.record(Call{Op: OpWritePCI, CPU: d.cpu, Function: function, Register: offset, Value: uint64(value)}); err != nil {
		return err
	}
	d.pci[pciAddr{function, offset}] = value
	return nil
}

func (d *Device) PinToCPU(cpu int) error {
	if cpu < 0 || cpu >= len(d.msrs) {
		return fmt.Errorf("%w: no CPU %d", driver.ErrRegisterAccess, cpu)
	}
	if err := d.record(Call{Op: OpPin, CPU: cpu}); err != nil {
		return err
	}
	d.cpu = cpu
	return nil
}

func (d *Device) LogicalCPUs() ([]int, error) {
	cpus := make([]int, len(d.msrs))
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

func (d *Device) Priority() (int, error) {
	return d.Nice, nil
}

func (d *Device) SetPriority(nice int) error {
	if err := d.record(Call{Op: OpSetPriority, CPU: d.cpu, Value: uint64(int64(nice))}); err != nil {
		return err
	}
	d.Nice = nice
	return nil
}
