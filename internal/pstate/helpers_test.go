// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package pstate

import (
	"amdmsrtweaker/internal/cpus"
	"amdmsrtweaker/internal/driver"
	"amdmsrtweaker/internal/driver/drivertest"
)

// cpuSignature builds CPUID 80000001h EAX for a family and model.
func cpuSignature(family, model int) uint32 {
	baseFamily := min(family, 0xf)
	extFamily := family - baseFamily
	return uint32(baseFamily<<8 | extFamily<<20 | (model&0xf)<<4 | (model>>4)<<16)
}

// newFakeAMD returns a two CPU fake identifying as the given AMD processor
// with four cores and numPStates enabled P-states.
func newFakeAMD(family, model, numPStates int) *drivertest.Device {
	dev := drivertest.New(2)
	dev.CPUID[cpuidExtendedMax] = driver.CPUIDRegs{EAX: 0x8000001b, EBX: 0x68747541, ECX: amdVendorECX, EDX: 0x69746e65}
	dev.CPUID[cpuidExtendedFeatures] = driver.CPUIDRegs{EAX: cpuSignature(family, model)}
	dev.CPUID[cpuidAddressSizes] = driver.CPUIDRegs{ECX: 3}
	dev.SetPCI(pciFuncMisc, pciClockPowerTimingCtl2, uint32(numPStates-1)<<8)
	return dev
}

// testVariant returns the variant of a family/model without probing.
func testVariant(family, model, numPStates int) Variant {
	cpu, err := cpus.GetCPU(family, model)
	if err != nil {
		panic(err)
	}
	return Variant{
		Family:            family,
		Model:             model,
		MicroArchitecture: cpu.MicroArchitecture,
		NumCores:          4,
		VIDStep:           cpu.VIDStep,
		MultiScaleFactor:  cpu.MultiScaleFactor,
		SVI2:              cpu.SVI2,
		PStateSlots:       cpu.PStateSlots,
		NumPStates:        numPStates,
		NumNBPStates:      2,
		BoostSupported:    true,
	}
}
