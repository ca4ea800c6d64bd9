// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"amdmsrtweaker/internal/util"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sys/unix"
)

// Linux accesses the processor through the msr and cpuid kernel modules and
// the PCI configuration files in sysfs. The handle locks the calling goroutine
// to its OS thread until Close so that affinity changes stick.
type Linux struct {
	config    Config
	cpu       int
	msrFiles  map[int]*os.File
	cpuidFile *os.File
}

// Open acquires the driver handle. It fails when the msr or cpuid device
// nodes are missing.
func Open(config Config) (*Linux, error) {
	msrDevice := fmt.Sprintf(config.MSRDevice, 0)
	if !util.DeviceExists(msrDevice) {
		return nil, errors.Wrapf(ErrRegisterAccess, "MSR device %s not found, load the msr module with 'modprobe msr'", msrDevice)
	}
	if !util.DeviceExists(config.CPUIDDevice) {
		return nil, errors.Wrapf(ErrRegisterAccess, "CPUID device %s not found, load the cpuid module with 'modprobe cpuid'", config.CPUIDDevice)
	}
	cpuidFile, err := os.Open(config.CPUIDDevice)
	if err != nil {
		return nil, errors.Wrapf(ErrRegisterAccess, "open %s: %v", config.CPUIDDevice, err)
	}
	runtime.LockOSThread()
	slog.Debug("driver opened", slog.String("msr", config.MSRDevice), slog.String("cpuid", config.CPUIDDevice), slog.String("pci", config.PCIRoot))
	return &Linux{
		config:    config,
		msrFiles:  make(map[int]*os.File),
		cpuidFile: cpuidFile,
	}, nil
}

// Close releases the device files and unlocks the OS thread.
func (d *Linux) Close() error {
	var firstErr error
	for cpu, f := range d.msrFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close MSR device of CPU %d", cpu)
		}
	}
	d.msrFiles = map[int]*os.File{}
	if d.cpuidFile != nil {
		if err := d.cpuidFile.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "close CPUID device")
		}
		d.cpuidFile = nil
	}
	runtime.UnlockOSThread()
	slog.Debug("driver closed")
	return firstErr
}

func (d *Linux) Cpuid(leaf uint32) (CPUIDRegs, error) {
	if d.cpuidFile == nil {
		return CPUIDRegs{}, errors.Wrap(ErrRegisterAccess, "CPUID device not open")
	}
	buf := make([]byte, 16)
	if err := preadFull(d.cpuidFile, buf, int64(leaf)); err != nil {
		return CPUIDRegs{}, errors.Wrapf(ErrRegisterAccess, "CPUID leaf %#x: %v", leaf, err)
	}
	return CPUIDRegs{
		EAX: binary.LittleEndian.Uint32(buf[0:4]),
		EBX: binary.LittleEndian.Uint32(buf[4:8]),
		ECX: binary.LittleEndian.Uint32(buf[8:12]),
		EDX: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

func (d *Linux) msrFile(cpu int) (*os.File, error) {
	if f, ok := d.msrFiles[cpu]; ok {
		return f, nil
	}
	path := fmt.Sprintf(d.config.MSRDevice, cpu)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(ErrRegisterAccess, "open %s: %v", path, err)
	}
	d.msrFiles[cpu] = f
	return f, nil
}

func (d *Linux) ReadMSR(index uint32) (uint64, error) {
	f, err := d.msrFile(d.cpu)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 8)
	if err := preadFull(f, buf, int64(index)); err != nil {
		return 0, errors.Wrapf(ErrRegisterAccess, "read MSR %#x on CPU %d: %v", index, d.cpu, err)
	}
	value := binary.LittleEndian.Uint64(buf)
	slog.Debug("read MSR", slog.Int("cpu", d.cpu), slog.String("msr", fmt.Sprintf("%#x", index)), slog.String("value", fmt.Sprintf("%#x", value)))
	return value, nil
}

func (d *Linux) WriteMSR(index uint32, value uint64) error {
	f, err := d.msrFile(d.cpu)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	if err := pwriteFull(f, buf, int64(index)); err != nil {
		return errors.Wrapf(ErrRegisterAccess, "write MSR %#x on CPU %d: %v", index, d.cpu, err)
	}
	slog.Debug("wrote MSR", slog.Int("cpu", d.cpu), slog.String("msr", fmt.Sprintf("%#x", index)), slog.String("value", fmt.Sprintf("%#x", value)))
	return nil
}

func (d *Linux) pciConfigPath(device, function uint8) string {
	return filepath.Join(d.config.PCIRoot, fmt.Sprintf("0000:00:%02x.%d", device, function), "config")
}

func (d *Linux) ReadPCIConfig(device, function uint8, offset uint32) (uint32, error) {
	path := d.pciConfigPath(device, function)
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(ErrRegisterAccess, "open %s: %v", path, err)
	}
	defer f.Close()
	buf := make([]byte, 4)
	if err := preadFull(f, buf, int64(offset)); err != nil {
		return 0, errors.Wrapf(ErrRegisterAccess, "read PCI config D%xF%dx%X: %v", device, function, offset, err)
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (d *Linux) WritePCIConfig(device, function uint8, offset uint32, value uint32) error {
	path := d.pciConfigPath(device, function)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(ErrRegisterAccess, "open %s: %v", path, err)
	}
	defer f.Close()
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	if err := pwriteFull(f, buf, int64(offset)); err != nil {
		return errors.Wrapf(ErrRegisterAccess, "write PCI config D%xF%dx%X: %v", device, function, offset, err)
	}
	slog.Debug("wrote PCI config", slog.String("register", fmt.Sprintf("D%xF%dx%X", device, function, offset)), slog.String("value", fmt.Sprintf("%#x", value)))
	return nil
}

func (d *Linux) PinToCPU(cpu int) error {
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrapf(ErrRegisterAccess, "set affinity to CPU %d: %v", cpu, err)
	}
	d.cpu = cpu
	return nil
}

func (d *Linux) LogicalCPUs() ([]int, error) {
	content, err := os.ReadFile(d.config.CPUOnline)
	if err == nil {
		var cpus []int
		cpus, err = util.SelectiveIntRangeToIntList(string(content))
		if err == nil {
			return cpus, nil
		}
	}
	slog.Warn("failed to read online CPU list, falling back to logical CPU count", slog.String("path", d.config.CPUOnline), slog.String("error", err.Error()))
	count, err := cpu.Counts(true)
	if err != nil {
		return nil, errors.Wrap(err, "count logical CPUs")
	}
	cpus := make([]int, count)
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

// Priority returns the nice value of the calling thread. The raw getpriority
// system call reports 20 - nice.
func (d *Linux) Priority() (int, error) {
	prio, err := unix.Getpriority(unix.PRIO_PROCESS, 0)
	if err != nil {
		return 0, errors.Wrap(err, "get priority")
	}
	return 20 - prio, nil
}

func (d *Linux) SetPriority(nice int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, nice); err != nil {
		return errors.Wrapf(err, "set priority to %d", nice)
	}
	return nil
}

func preadFull(f *os.File, buf []byte, offset int64) error {
	n, err := unix.Pread(int(f.Fd()), buf, offset)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("wrong byte count %d", n)
	}
	return nil
}

func pwriteFull(f *os.File, buf []byte, offset int64) error {
	n, err := unix.Pwrite(int(f.Fd()), buf, offset)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("wrong byte count %d", n)
	}
	return nil
}
