// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package pstate

import (
	"fmt"
	"log/slog"

	"amdmsrtweaker/internal/cpus"
	"amdmsrtweaker/internal/driver"
	"amdmsrtweaker/internal/util"
)

// CPUID leaves
const (
	cpuidExtendedMax      = 0x80000000
	cpuidExtendedFeatures = 0x80000001
	cpuidPowerManagement  = 0x80000007
	cpuidAddressSizes     = 0x80000008
	// ECX of leaf 80000000h on AMD processors, "cAMD"
	amdVendorECX = 0x444d4163
	cpbBit       = 9
)

// Probe identifies the processor behind dev and reads its P-state limits.
func Probe(dev driver.Device) (*Processor, error) {
	variant, err := probeVariant(dev)
	if err != nil {
		return nil, err
	}
	p := &Processor{dev: dev, Variant: variant}
	if err := p.probeLimits(); err != nil {
		return nil, err
	}
	if variant.BoostSupported {
		if err := p.probeBoost(); err != nil {
			return nil, err
		}
	}
	slog.Info("processor probed",
		slog.String("uarch", variant.MicroArchitecture),
		slog.String("family", fmt.Sprintf("%#x", variant.Family)),
		slog.String("model", fmt.Sprintf("%#x", variant.Model)),
		slog.Int("cores", variant.NumCores),
		slog.Int("pstates", variant.NumPStates),
		slog.Bool("boost", variant.BoostSupported),
		slog.Float64("maxMulti", p.Limits.MaxMulti))
	return p, nil
}

func probeVariant(dev driver.Device) (Variant, error) {
	regs, err := dev.Cpuid(cpuidExtendedMax)
	if err != nil {
		return Variant{}, fmt.Errorf("failed to read CPU vendor: %w", err)
	}
	if regs.ECX != amdVendorECX {
		return Variant{}, fmt.Errorf("%w: not an %s processor", ErrUnsupportedCPU, cpus.AMDVendor)
	}
	regs, err = dev.Cpuid(cpuidExtendedFeatures)
	if err != nil {
		return Variant{}, fmt.Errorf("failed to read CPU signature: %w", err)
	}
	eax := uint64(regs.EAX)
	family := int(util.GetBits(eax, 8, 4) + util.GetBits(eax, 20, 8))
	model := int(util.GetBits(eax, 4, 4) + util.GetBits(eax, 16, 4)<<4)
	if !cpus.IsSupportedFamily(family) {
		return Variant{}, fmt.Errorf("%w: family %#x", ErrUnsupportedCPU, family)
	}
	cpu, err := cpus.GetCPU(family, model)
	if err != nil {
		return Variant{}, fmt.Errorf("%w: %w", ErrUnsupportedCPU, err)
	}
	variant := Variant{
		Family:            family,
		Model:             model,
		MicroArchitecture: cpu.MicroArchitecture,
		VIDStep:           cpu.VIDStep,
		MultiScaleFactor:  cpu.MultiScaleFactor,
		SVI2:              cpu.SVI2,
		PStateSlots:       cpu.PStateSlots,
	}

	regs, err = dev.Cpuid(cpuidAddressSizes)
	if err != nil {
		return Variant{}, fmt.Errorf("failed to read core count: %w", err)
	}
	variant.NumCores = int(util.GetBits(uint64(regs.ECX), 0, 8)) + 1

	value, err := dev.ReadPCIConfig(driver.NorthbridgeDevice, pciFuncMisc, pciClockPowerTimingCtl2)
	if err != nil {
		return Variant{}, fmt.Errorf("failed to read P-state count: %w", err)
	}
	variant.NumPStates = min(int(util.GetBits(uint64(value), 8, 3))+1, variant.PStateSlots)

	if family == cpus.Family15h {
		value, err = dev.ReadPCIConfig(driver.NorthbridgeDevice, pciFuncExtended, pciNBPStateControl)
		if err != nil {
			return Variant{}, fmt.Errorf("failed to read NB P-state count: %w", err)
		}
		variant.NumNBPStates = int(value&3) + 1
	}

	regs, err = dev.Cpuid(cpuidPowerManagement)
	if err != nil {
		return Variant{}, fmt.Errorf("failed to read power management features: %w", err)
	}
	variant.BoostSupported, _ = util.IsUint64BitSet(uint64(regs.EDX), cpbBit)
	return variant, nil
}

func (p *Processor) probeLimits() error {
	msr, err := p.dev.ReadMSR(msrCOFVIDStatus)
	if err != nil {
		return fmt.Errorf("failed to read COFVID status: %w", err)
	}
	maxMulti := int(util.GetBits(msr, cofvidMaxMultiOff, 6))
	minVID := int(util.GetBits(msr, cofvidMinVIDOff, 7))
	maxVID := int(util.GetBits(msr, cofvidMaxVIDOff, 7))

	family := p.Variant.Family
	limits := Limits{MinMulti: 1.0}
	switch {
	case maxMulti == 0 && family == cpus.Family14h:
		// unknown, family 14h multipliers cannot be encoded
		limits.MaxMulti = 0
	case maxMulti == 0 && family == cpus.Family12h:
		limits.MaxMulti = fidOffset + maxFIDLlano
	case maxMulti == 0:
		limits.MaxMulti = fidOffset + maxFIDK10
	case family == cpus.Family12h || family == cpus.Family14h:
		limits.MaxMulti = float64(maxMulti + fidOffset)
	default:
		limits.MaxMulti = float64(maxMulti)
	}
	if family == cpus.Family14h {
		limits.MinMulti = 0
		if limits.MaxMulti > 0 {
			limits.MinMulti = limits.MaxMulti / bobcatMaxDiv
		}
	}
	limits.MaxSoftwareMulti = limits.MaxMulti

	codec := p.Codec()
	if minVID == 0 {
		limits.MinVolt = 0
	} else {
		limits.MinVolt = codec.DecodeVID(minVID)
	}
	if maxVID == 0 {
		limits.MaxVolt = MaxVoltage
	} else {
		limits.MaxVolt = codec.DecodeVID(maxVID)
	}
	p.Limits = limits
	return nil
}

func (p *Processor) probeBoost() error {
	family := p.Variant.Family
	hwcr, err := p.dev.ReadMSR(msrHWCR)
	if err != nil {
		return fmt.Errorf("failed to read HWCR: %w", err)
	}
	cpbDis, _ := util.IsUint64BitSet(hwcr, hwcrCpbDisBit)

	value, err := p.dev.ReadPCIConfig(driver.NorthbridgeDevice, pciFuncLink, pciCPBControl)
	if err != nil {
		return fmt.Errorf("failed to read CPB control: %w", err)
	}
	reg := uint64(value)
	p.Limits.BoostLocked = family == cpus.Family12h || util.GetBits(reg, 31, 1) == 1
	if family == cpus.Family10h {
		p.Limits.NumBoostStates = int(util.GetBits(reg, 2, 1))
	} else {
		p.Limits.NumBoostStates = int(util.GetBits(reg, 2, 3))
	}
	sourceEnabled := util.GetBits(reg, 0, 2) == p.boostSourceEnabledValue()
	p.Limits.BoostEnabled = sourceEnabled && !cpbDis
	if p.HasAPM() {
		p.Limits.APMEnabled = util.GetBits(reg, 7, 1) == 1
	}

	var maxSoftware uint64
	switch family {
	case cpus.Family10h:
		value, err = p.dev.ReadPCIConfig(driver.NorthbridgeDevice, pciFuncMisc, pciProductInfo)
		if err != nil {
			return fmt.Errorf("failed to read product information: %w", err)
		}
		maxSoftware = util.GetBits(uint64(value), 20, 6)
	case cpus.Family15h:
		value, err = p.dev.ReadPCIConfig(driver.NorthbridgeDevice, pciFuncMisc, pciClockPowerTimingCtl0)
		if err != nil {
			return fmt.Errorf("failed to read clock power timing control: %w", err)
		}
		maxSoftware = util.GetBits(uint64(value), 0, 6)
	default:
		return nil
	}
	if maxSoftware == 0 {
		maxSoftware = 63
	}
	p.Limits.MaxSoftwareMulti = float64(maxSoftware)
	return nil
}
