// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package pstate reads and programs the P-state registers of AMD family 10h,
// 12h, 14h and 15h processors.
//
// Multipliers are kept in internal units of a 100 MHz reference clock for core
// P-states and 200 MHz for northbridge P-states. Voltages travel as raw VID
// codes and are converted with the processor's Codec.
package pstate

import (
	"fmt"
	"log/slog"

	"amdmsrtweaker/internal/cpus"
	"amdmsrtweaker/internal/driver"
	"amdmsrtweaker/internal/util"
)

// MSRs
const (
	msrHWCR           = 0xC0010015
	msrPStateControl  = 0xC0010062
	msrPStateBase     = 0xC0010064
	msrCOFVIDStatus   = 0xC0010071
	hwcrCpbDisBit     = 25
	nbPStateLinkBit   = 22
	nbVIDOffset10h    = 25
	curPStateOffset   = 16
	pstateCmdWidth    = 3
	cofvidMaxMultiOff = 49
	cofvidMinVIDOff   = 42
	cofvidMaxVIDOff   = 35
)

// Northbridge PCI functions and registers (bus 0, device 18h)
const (
	pciFuncMisc     = 3
	pciFuncLink     = 4
	pciFuncExtended = 5

	pciClockPowerTimingCtl0 = 0xd4  // D18F3xD4
	pciClockPowerTimingCtl2 = 0xdc  // D18F3xDC
	pciProductInfo          = 0x1f0 // D18F3x1F0
	pciCPBControl           = 0x15c // D18F4x15C
	pciNBPStateBase         = 0x160 // D18F5x160
	pciNBPStateControl      = 0x170 // D18F5x170
)

// NumNBPStateSlots is the number of northbridge P-states that can be
// programmed.
const NumNBPStateSlots = 2

// Variant describes the processor model. It is derived once by Probe.
type Variant struct {
	Family            int
	Model             int
	MicroArchitecture string
	NumCores          int
	VIDStep           float64
	MultiScaleFactor  float64 // internal multiplier per external multiplier
	SVI2              bool
	PStateSlots       int // P-state MSRs in hardware
	NumPStates        int // enabled P-states
	NumNBPStates      int // enabled northbridge P-states, family 15h only
	BoostSupported    bool
}

// Limits are the multiplier and voltage bounds reported by the processor.
type Limits struct {
	MinMulti         float64
	MaxMulti         float64
	MaxSoftwareMulti float64
	MinVolt          float64
	MaxVolt          float64
	BoostLocked      bool
	BoostEnabled     bool
	NumBoostStates   int
	APMEnabled       bool
}

// PState is one core P-state. Absent fields are left untouched on write.
type PState struct {
	Index    int
	Multi    Opt[float64]
	VID      Opt[int]
	NBPState Opt[int]
	NBVID    Opt[int]
}

func (p PState) HasChanges() bool {
	return p.Multi.IsSet() || p.VID.IsSet() || p.NBPState.IsSet() || p.NBVID.IsSet()
}

// NBPState is one northbridge P-state.
type NBPState struct {
	Index int
	Multi Opt[float64]
	VID   Opt[int]
}

func (p NBPState) HasChanges() bool {
	return p.Multi.IsSet() || p.VID.IsSet()
}

// Processor gives typed access to the P-state registers of the processor
// behind dev.
type Processor struct {
	dev     driver.Device
	Variant Variant
	Limits  Limits
}

// NewProcessor binds an already known variant and limits to a device.
func NewProcessor(dev driver.Device, variant Variant, limits Limits) *Processor {
	return &Processor{dev: dev, Variant: variant, Limits: limits}
}

func (p *Processor) Device() driver.Device {
	return p.dev
}

func (p *Processor) Codec() Codec {
	return Codec{Family: p.Variant.Family, VIDStep: p.Variant.VIDStep, MaxMulti: p.Limits.MaxMulti}
}

// HasNBPStateLink reports whether core P-states select a northbridge P-state.
func (p *Processor) HasNBPStateLink() bool {
	return p.Variant.Family != cpus.Family12h && p.Variant.Family != cpus.Family14h
}

// HasNBVID reports whether core P-states carry their own northbridge VID.
func (p *Processor) HasNBVID() bool {
	return p.Variant.Family == cpus.Family10h
}

// HasNBPStates reports whether northbridge P-states are programmable.
func (p *Processor) HasNBPStates() bool {
	return p.Variant.Family == cpus.Family15h
}

func (p *Processor) HasAPM() bool {
	return p.Variant.Family == cpus.Family15h
}

func (p *Processor) vidWidth() int {
	if p.Variant.SVI2 {
		return 8
	}
	return 7
}

// fid and did field layout of the core P-state MSRs
func (p *Processor) fidDidLayout() (fidOffset, fidWidth, didOffset, didWidth int) {
	if p.Variant.Family == cpus.Family12h || p.Variant.Family == cpus.Family14h {
		return 4, 5, 0, 4
	}
	return 0, 6, 6, 3
}

func (p *Processor) checkPStateIndex(index int) error {
	if index < 0 || index >= p.Variant.NumPStates {
		return fmt.Errorf("%w: P-state %d not in [0, %d)", ErrInvalidParameterRange, index, p.Variant.NumPStates)
	}
	return nil
}

func (p *Processor) checkVID(vid int) error {
	if maxVID := p.Codec().MaxVIDCode(); vid < 0 || vid > maxVID {
		return fmt.Errorf("%w: VID %d not in [0, %d]", ErrInvalidParameterRange, vid, maxVID)
	}
	return nil
}

// ReadPState decodes core P-state index on the current CPU.
func (p *Processor) ReadPState(index int) (PState, error) {
	if err := p.checkPStateIndex(index); err != nil {
		return PState{}, err
	}
	msr, err := p.dev.ReadMSR(msrPStateBase + uint32(index))
	if err != nil {
		return PState{}, fmt.Errorf("failed to read P-state %d: %w", index, err)
	}
	fidOff, fidWidth, didOff, didWidth := p.fidDidLayout()
	fid := int(util.GetBits(msr, fidOff, fidWidth))
	did := int(util.GetBits(msr, didOff, didWidth))
	ps := PState{
		Index: index,
		Multi: Some(p.Codec().DecodeMulti(fid, did)),
		VID:   Some(int(util.GetBits(msr, 9, p.vidWidth()))),
	}
	if p.HasNBPStateLink() {
		ps.NBPState = Some(int(util.GetBits(msr, nbPStateLinkBit, 1)))
	}
	if p.HasNBVID() {
		ps.NBVID = Some(int(util.GetBits(msr, nbVIDOffset10h, 7)))
	}
	return ps, nil
}

// WritePState writes the set fields of ps to its MSR on the current CPU,
// preserving every other bit. Northbridge fields the family does not have are
// ignored.
func (p *Processor) WritePState(ps PState) error {
	if err := p.checkPStateIndex(ps.Index); err != nil {
		return err
	}
	if !ps.HasChanges() {
		return nil
	}
	index := msrPStateBase + uint32(ps.Index)
	msr, err := p.dev.ReadMSR(index)
	if err != nil {
		return fmt.Errorf("failed to read P-state %d: %w", ps.Index, err)
	}
	if multi, ok := ps.Multi.Get(); ok {
		fid, did, err := p.Codec().EncodeMulti(multi)
		if err != nil {
			return fmt.Errorf("P-state %d: %w", ps.Index, err)
		}
		fidOff, fidWidth, didOff, didWidth := p.fidDidLayout()
		msr = util.SetBits(msr, uint64(fid), fidOff, fidWidth)
		msr = util.SetBits(msr, uint64(did), didOff, didWidth)
	}
	if vid, ok := ps.VID.Get(); ok {
		if err := p.checkVID(vid); err != nil {
			return fmt.Errorf("P-state %d: %w", ps.Index, err)
		}
		msr = util.SetBits(msr, uint64(vid), 9, p.vidWidth())
	}
	if nb, ok := ps.NBPState.Get(); ok {
		if p.HasNBPStateLink() {
			msr = util.SetBits(msr, uint64(max(0, min(1, nb))), nbPStateLinkBit, 1)
		} else {
			slog.Debug("ignoring NB P-state link", slog.Int("pstate", ps.Index), slog.Int("family", p.Variant.Family))
		}
	}
	if nbVID, ok := ps.NBVID.Get(); ok {
		if p.HasNBVID() {
			if nbVID < 0 || nbVID > 0x7f {
				return fmt.Errorf("%w: P-state %d NB VID %d", ErrInvalidParameterRange, ps.Index, nbVID)
			}
			msr = util.SetBits(msr, uint64(nbVID), nbVIDOffset10h, 7)
		} else {
			slog.Debug("ignoring NB VID", slog.Int("pstate", ps.Index), slog.Int("family", p.Variant.Family))
		}
	}
	if err := p.dev.WriteMSR(index, msr); err != nil {
		return fmt.Errorf("failed to write P-state %d: %w", ps.Index, err)
	}
	return nil
}

func (p *Processor) checkNBPState(index int) error {
	if !p.HasNBPStates() {
		return fmt.Errorf("%w: northbridge P-states require family 15h", ErrUnsupportedFeature)
	}
	if index < 0 || index >= NumNBPStateSlots {
		return fmt.Errorf("%w: NB P-state %d not in [0, %d)", ErrInvalidParameterRange, index, NumNBPStateSlots)
	}
	return nil
}

// ReadNBPState decodes northbridge P-state index.
func (p *Processor) ReadNBPState(index int) (NBPState, error) {
	if err := p.checkNBPState(index); err != nil {
		return NBPState{}, err
	}
	offset := pciNBPStateBase + uint32(index)*4
	value, err := p.dev.ReadPCIConfig(driver.NorthbridgeDevice, pciFuncExtended, offset)
	if err != nil {
		return NBPState{}, fmt.Errorf("failed to read NB P-state %d: %w", index, err)
	}
	reg := uint64(value)
	fid := int(util.GetBits(reg, 1, 5))
	did := int(util.GetBits(reg, 7, 1))
	vid := int(util.GetBits(reg, 10, 7))
	if p.Variant.SVI2 {
		vid |= int(util.GetBits(reg, 21, 1)) << 7
	}
	return NBPState{
		Index: index,
		Multi: Some(DecodeNBMulti(fid, did)),
		VID:   Some(vid),
	}, nil
}

// WriteNBPState writes the set fields of nb, preserving every other bit.
func (p *Processor) WriteNBPState(nb NBPState) error {
	if err := p.checkNBPState(nb.Index); err != nil {
		return err
	}
	if !nb.HasChanges() {
		return nil
	}
	offset := pciNBPStateBase + uint32(nb.Index)*4
	value, err := p.dev.ReadPCIConfig(driver.NorthbridgeDevice, pciFuncExtended, offset)
	if err != nil {
		return fmt.Errorf("failed to read NB P-state %d: %w", nb.Index, err)
	}
	reg := uint64(value)
	if multi, ok := nb.Multi.Get(); ok {
		fid, did := EncodeNBMulti(multi)
		reg = util.SetBits(reg, uint64(fid), 1, 5)
		reg = util.SetBits(reg, uint64(did), 7, 1)
	}
	if vid, ok := nb.VID.Get(); ok {
		if err := p.checkVID(vid); err != nil {
			return fmt.Errorf("NB P-state %d: %w", nb.Index, err)
		}
		reg = util.SetBits(reg, uint64(vid), 10, 7)
		if p.Variant.SVI2 {
			reg = util.SetBits(reg, uint64(vid>>7), 21, 1)
		}
	}
	if err := p.dev.WritePCIConfig(driver.NorthbridgeDevice, pciFuncExtended, offset, uint32(reg)); err != nil {
		return fmt.Errorf("failed to write NB P-state %d: %w", nb.Index, err)
	}
	return nil
}

// SetCPB enables or disables core performance boost on the current CPU.
func (p *Processor) SetCPB(enabled bool) error {
	if !p.Variant.BoostSupported {
		return fmt.Errorf("%w: core performance boost", ErrUnsupportedFeature)
	}
	hwcr, err := p.dev.ReadMSR(msrHWCR)
	if err != nil {
		return fmt.Errorf("failed to read HWCR: %w", err)
	}
	var cpbDis uint64
	if !enabled {
		cpbDis = 1
	}
	hwcr = util.SetBits(hwcr, cpbDis, hwcrCpbDisBit, 1)
	if err := p.dev.WriteMSR(msrHWCR, hwcr); err != nil {
		return fmt.Errorf("failed to write HWCR: %w", err)
	}
	return nil
}

func (p *Processor) boostSourceEnabledValue() uint64 {
	if p.Variant.Family == cpus.Family10h {
		return 3
	}
	return 1
}

// SetBoostSource selects or deselects the hardware boost source. The setting
// is global to the package.
func (p *Processor) SetBoostSource(enabled bool) error {
	if !p.Variant.BoostSupported {
		return fmt.Errorf("%w: core performance boost", ErrUnsupportedFeature)
	}
	var source uint64
	if enabled {
		source = p.boostSourceEnabledValue()
	}
	return p.updateCPBControl(func(reg uint64) uint64 {
		return util.SetBits(reg, source, 0, 2)
	})
}

// SetAPM enables or disables application power management (family 15h).
func (p *Processor) SetAPM(enabled bool) error {
	if !p.HasAPM() {
		return fmt.Errorf("%w: application power management requires family 15h", ErrUnsupportedFeature)
	}
	var bit uint64
	if enabled {
		bit = 1
	}
	return p.updateCPBControl(func(reg uint64) uint64 {
		return util.SetBits(reg, bit, 7, 1)
	})
}

func (p *Processor) updateCPBControl(update func(uint64) uint64) error {
	value, err := p.dev.ReadPCIConfig(driver.NorthbridgeDevice, pciFuncLink, pciCPBControl)
	if err != nil {
		return fmt.Errorf("failed to read CPB control: %w", err)
	}
	if err := p.dev.WritePCIConfig(driver.NorthbridgeDevice, pciFuncLink, pciCPBControl, uint32(update(uint64(value)))); err != nil {
		return fmt.Errorf("failed to write CPB control: %w", err)
	}
	return nil
}

// CurrentPState returns the active P-state of the current CPU.
func (p *Processor) CurrentPState() (int, error) {
	msr, err := p.dev.ReadMSR(msrCOFVIDStatus)
	if err != nil {
		return 0, fmt.Errorf("failed to read COFVID status: %w", err)
	}
	return int(util.GetBits(msr, curPStateOffset, pstateCmdWidth)), nil
}

// SetCurrentPState requests a switch of the current CPU to P-state index.
// Boost P-states are not software selectable, so the request is made relative
// to the first non-boost P-state.
func (p *Processor) SetCurrentPState(index int) error {
	if err := p.checkPStateIndex(index); err != nil {
		return err
	}
	index = max(0, index-p.Limits.NumBoostStates)
	msr, err := p.dev.ReadMSR(msrPStateControl)
	if err != nil {
		return fmt.Errorf("failed to read P-state control: %w", err)
	}
	msr = util.SetBits(msr, uint64(index), 0, pstateCmdWidth)
	if err := p.dev.WriteMSR(msrPStateControl, msr); err != nil {
		return fmt.Errorf("failed to write P-state control: %w", err)
	}
	return nil
}
