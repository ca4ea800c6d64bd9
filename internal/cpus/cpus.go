// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package cpus provides the AMD processor definitions supported by the tweaker
// and a lookup from CPUID family and model to their P-state characteristics.
package cpus

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
)

const AMDVendor = "AuthenticAMD"

// Family numbers as reported by CPUID (base + extended family)
const (
	Family10h = 0x10
	Family12h = 0x12
	Family14h = 0x14
	Family15h = 0x15
)

var SupportedFamilies = []int{Family10h, Family12h, Family14h, Family15h}

// Microarchitecture constants
const (
	UarchK10       = "K10"
	UarchLlano     = "Llano"
	UarchBobcat    = "Bobcat"
	UarchBulldozer = "Bulldozer/Piledriver"
	UarchTrinity   = "Trinity/Richland"
	UarchKaveri    = "Kaveri"
	UarchFamily15h = "Family 15h"
)

// CPUCharacteristics holds the per-variant constants used to encode and
// decode P-state registers.
type CPUCharacteristics struct {
	MicroArchitecture string
	Family            int
	VIDStep           float64 // volts per VID code
	MultiScaleFactor  float64 // internal multiplier = external multiplier * MultiScaleFactor
	SVI2              bool    // 8-bit VID field
	PStateSlots       int     // P-state MSRs provided by the hardware
}

type CPUIdentifier struct {
	Family string // decimal family
	Model  string // decimal model -- regex match
}

// cpuCharacteristicsMap maps microarchitecture name to CPU characteristics
var cpuCharacteristicsMap = map[string]CPUCharacteristics{
	UarchK10:       {MicroArchitecture: UarchK10, Family: Family10h, VIDStep: 0.0125, MultiScaleFactor: 2, PStateSlots: 5},
	UarchLlano:     {MicroArchitecture: UarchLlano, Family: Family12h, VIDStep: 0.0125, MultiScaleFactor: 1, PStateSlots: 8},
	UarchBobcat:    {MicroArchitecture: UarchBobcat, Family: Family14h, VIDStep: 0.0125, MultiScaleFactor: 1, PStateSlots: 8},
	UarchBulldozer: {MicroArchitecture: UarchBulldozer, Family: Family15h, VIDStep: 0.0125, MultiScaleFactor: 2, PStateSlots: 8},
	UarchTrinity:   {MicroArchitecture: UarchTrinity, Family: Family15h, VIDStep: 0.00625, MultiScaleFactor: 1, SVI2: true, PStateSlots: 8},
	UarchKaveri:    {MicroArchitecture: UarchKaveri, Family: Family15h, VIDStep: 0.00625, MultiScaleFactor: 1, SVI2: true, PStateSlots: 8},
	UarchFamily15h: {MicroArchitecture: UarchFamily15h, Family: Family15h, VIDStep: 0.0125, MultiScaleFactor: 1, PStateSlots: 8},
}

// cpuIdentifiers maps CPU identification to microarchitecture names, first match wins
var cpuIdentifiers = []struct {
	Identifier        CPUIdentifier
	MicroArchitecture string
}{
	{CPUIdentifier{Family: "16", Model: ".*"}, UarchK10},                        // family 10h
	{CPUIdentifier{Family: "18", Model: ".*"}, UarchLlano},                      // family 12h
	{CPUIdentifier{Family: "20", Model: ".*"}, UarchBobcat},                     // family 14h
	{CPUIdentifier{Family: "21", Model: "(1[0-5]|[0-9])"}, UarchBulldozer},      // family 15h, model 00h-0Fh
	{CPUIdentifier{Family: "21", Model: "(1[6-9]|2[0-9]|3[01])"}, UarchTrinity}, // family 15h, model 10h-1Fh
	{CPUIdentifier{Family: "21", Model: "(4[89]|5[0-9]|6[0-3])"}, UarchKaveri},  // family 15h, model 30h-3Fh
	{CPUIdentifier{Family: "21", Model: ".*"}, UarchFamily15h},                  // remaining family 15h models
}

// GetCPU retrieves the characteristics of the CPU with the given CPUID family
// and model.
func GetCPU(family, model int) (cpu CPUCharacteristics, err error) {
	familyStr := strconv.Itoa(family)
	modelStr := strconv.Itoa(model)
	for _, entry := range cpuIdentifiers {
		id := entry.Identifier
		if id.Family != familyStr {
			continue
		}
		var reModel *regexp.Regexp
		reModel, err = regexp.Compile(id.Model)
		if err != nil {
			return
		}
		if reModel.FindString(modelStr) != modelStr {
			continue
		}
		var ok bool
		cpu, ok = cpuCharacteristicsMap[entry.MicroArchitecture]
		if !ok {
			err = fmt.Errorf("CPU characteristics not found for microarchitecture %s", entry.MicroArchitecture)
		}
		return
	}
	err = fmt.Errorf("CPU match not found for family %#x, model %#x", family, model)
	return
}

// GetCPUByMicroArchitecture returns the characteristics registered for uarch.
func GetCPUByMicroArchitecture(uarch string) (cpu CPUCharacteristics, err error) {
	cpu, ok := cpuCharacteristicsMap[uarch]
	if !ok {
		err = fmt.Errorf("CPU characteristics not found for microarchitecture %s", uarch)
	}
	return
}

// IsSupportedFamily reports whether family is one of the families the tweaker
// knows how to program.
func IsSupportedFamily(family int) bool {
	return slices.Contains(SupportedFamilies, family)
}
