// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package apply

import (
	"errors"
	"testing"
	"time"

	"amdmsrtweaker/internal/changeset"
	"amdmsrtweaker/internal/cpus"
	"amdmsrtweaker/internal/driver/drivertest"
	"amdmsrtweaker/internal/pstate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	msrHWCR          = 0xC0010015
	msrPStateControl = 0xC0010062
	msrPStateBase    = 0xC0010064
	msrCOFVIDStatus  = 0xC0010071
	pciFuncLink      = 4
	pciFuncExtended  = 5
	pciCPBControl    = 0x15c
	pciNBPState0     = 0x160
	pciNBPState1     = 0x164
)

type fixture struct {
	dev    *drivertest.Device
	proc   *pstate.Processor
	engine *Engine
	sleeps []time.Duration
}

func newFixture(t *testing.T, family, model, numPStates int) *fixture {
	t.Helper()
	cpu, err := cpus.GetCPU(family, model)
	require.NoError(t, err)
	dev := drivertest.New(2)
	dev.Nice = 5
	variant := pstate.Variant{
		Family:            family,
		Model:             model,
		MicroArchitecture: cpu.MicroArchitecture,
		NumCores:          2,
		VIDStep:           cpu.VIDStep,
		MultiScaleFactor:  cpu.MultiScaleFactor,
		SVI2:              cpu.SVI2,
		PStateSlots:       cpu.PStateSlots,
		NumPStates:        numPStates,
		BoostSupported:    true,
	}
	proc := pstate.NewProcessor(dev, variant, pstate.Limits{MinMulti: 1, MaxMulti: 32, MaxSoftwareMulti: 32})
	f := &fixture{dev: dev, proc: proc}
	f.engine = New(proc, dev, Options{Nice: DefaultNice, ReloadDelay: 5 * time.Millisecond})
	f.engine.sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }
	return f
}

func (f *fixture) setCurrent(index int) {
	f.dev.SetMSR(msrCOFVIDStatus, uint64(index)<<16)
}

// stateCommands returns the P-state indexes written to the control MSR.
func (f *fixture) stateCommands() []int {
	var commands []int
	for _, c := range f.dev.CallsOf(drivertest.OpWriteMSR) {
		if c.Register == msrPStateControl {
			commands = append(commands, int(c.Value&7))
		}
	}
	return commands
}

func (f *fixture) writesTo(register uint32) []drivertest.Call {
	var calls []drivertest.Call
	for _, c := range f.dev.Calls {
		if (c.Op == drivertest.OpWriteMSR || c.Op == drivertest.OpWritePCI) && c.Register == register {
			calls = append(calls, c)
		}
	}
	return calls
}

func TestApply_BareTargetOnCurrentStateWritesNothing(t *testing.T) {
	f := newFixture(t, cpus.Family10h, 0x0a, 3)
	f.setCurrent(0)
	cs, err := changeset.Parse([]string{"P0"}, f.proc)
	require.NoError(t, err)

	result, err := f.engine.Apply(cs)
	require.NoError(t, err)
	assert.Empty(t, f.dev.CallsOf(drivertest.OpWriteMSR))
	assert.Empty(t, f.dev.CallsOf(drivertest.OpWritePCI))
	assert.Equal(t, 0, result.StateSwitches)
	assert.Equal(t, 0, result.PStateWrites)
	assert.Equal(t, 2, result.CPUs)
}

func TestApply_TargetSwitch(t *testing.T) {
	f := newFixture(t, cpus.Family10h, 0x0a, 3)
	f.setCurrent(0)
	cs, err := changeset.Parse([]string{"P2"}, f.proc)
	require.NoError(t, err)

	result, err := f.engine.Apply(cs)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, f.stateCommands())
	assert.Equal(t, 2, result.StateSwitches)
	assert.Empty(t, f.sleeps)
}

func TestApply_ForcedReload(t *testing.T) {
	tests := []struct {
		name         string
		numPStates   int
		current      int
		tokens       []string
		wantCommands []int
	}{
		{"current P0 changed", 3, 0, []string{"P0=@1.3"}, []int{2, 0, 2, 0}},
		{"current P1 changed", 3, 1, []string{"P1=@1.2"}, []int{0, 1, 0, 1}},
		{"current untouched", 3, 1, []string{"P0=@1.3"}, nil},
		{"target equals current", 3, 1, []string{"P1=@1.2", "P1"}, []int{0, 1, 0, 1}},
		{"single P-state", 1, 0, []string{"P0=@1.3"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, cpus.Family10h, 0x0a, tt.numPStates)
			f.setCurrent(tt.current)
			cs, err := changeset.Parse(tt.tokens, f.proc)
			require.NoError(t, err)

			result, err := f.engine.Apply(cs)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCommands, f.stateCommands())
			assert.Equal(t, len(tt.wantCommands), result.StateSwitches)
			assert.Len(t, f.sleeps, len(tt.wantCommands)/2)
			for _, d := range f.sleeps {
				assert.Equal(t, 5*time.Millisecond, d)
			}
		})
	}
}

func TestApply_PStateWritesOnEveryCPU(t *testing.T) {
	f := newFixture(t, cpus.Family10h, 0x0a, 3)
	f.setCurrent(2)
	f.dev.SetMSR(msrPStateBase+1, 0xffff_0000_0000_0000)
	cs, err := changeset.Parse([]string{"P1=@1.2"}, f.proc)
	require.NoError(t, err)

	result, err := f.engine.Apply(cs)
	require.NoError(t, err)
	writes := f.writesTo(msrPStateBase + 1)
	require.Len(t, writes, 2)
	assert.Equal(t, 0, writes[0].CPU)
	assert.Equal(t, 1, writes[1].CPU)
	for cpu := range 2 {
		msr := f.dev.MSR(cpu, msrPStateBase+1)
		assert.Equal(t, uint64(28), msr>>9&0x7f, "CPU %d VID", cpu)
		assert.Equal(t, uint64(0xffff_0000_0000_0000), msr&0xffff_0000_0000_0000, "other bits kept")
	}
	assert.Empty(t, f.writesTo(msrPStateBase))
	assert.Equal(t, 2, result.PStateWrites)
	assert.True(t, result.ChangedPStates.Contains(1))
	assert.Equal(t, 1, result.ChangedPStates.Cardinality())
}

func TestApply_TurboOff(t *testing.T) {
	f := newFixture(t, cpus.Family10h, 0x0a, 3)
	f.dev.SetPCI(pciFuncLink, pciCPBControl, 1<<31|1<<2|3)
	cs, err := changeset.Parse([]string{"Turbo=0"}, f.proc)
	require.NoError(t, err)

	_, err = f.engine.Apply(cs)
	require.NoError(t, err)

	sourceWrites := f.writesTo(pciCPBControl)
	require.Len(t, sourceWrites, 1, "boost source is package wide")
	assert.Equal(t, uint32(1<<31|1<<2), f.dev.PCI(pciFuncLink, pciCPBControl))

	hwcrWrites := f.writesTo(msrHWCR)
	require.Len(t, hwcrWrites, 2)
	for cpu := range 2 {
		assert.Equal(t, cpu, hwcrWrites[cpu].CPU)
		assert.Equal(t, uint64(1)<<25, f.dev.MSR(cpu, msrHWCR))
	}

	// the shared bit precedes every per-core bit
	var sourceAt, firstHWCRAt int
	for i, c := range f.dev.Calls {
		if c.Op == drivertest.OpWritePCI && c.Register == pciCPBControl {
			sourceAt = i
		}
		if c.Op == drivertest.OpWriteMSR && c.Register == msrHWCR && firstHWCRAt == 0 {
			firstHWCRAt = i
		}
	}
	assert.Less(t, sourceAt, firstHWCRAt)
}

func TestApply_TurboUnsupported(t *testing.T) {
	f := newFixture(t, cpus.Family10h, 0x0a, 3)
	f.proc.Variant.BoostSupported = false
	cs, err := changeset.Parse([]string{"Turbo=1"}, f.proc)
	require.NoError(t, err)
	_, err = f.engine.Apply(cs)
	require.NoError(t, err)
	assert.Empty(t, f.dev.CallsOf(drivertest.OpWritePCI))
	assert.Empty(t, f.writesTo(msrHWCR))
}

func TestApply_APM(t *testing.T) {
	f := newFixture(t, cpus.Family15h, 0x02, 3)
	cs, err := changeset.Parse([]string{"APM=1"}, f.proc)
	require.NoError(t, err)
	_, err = f.engine.Apply(cs)
	require.NoError(t, err)
	assert.Len(t, f.writesTo(pciCPBControl), 1)
	assert.Equal(t, uint32(1<<7), f.dev.PCI(pciFuncLink, pciCPBControl))

	f = newFixture(t, cpus.Family10h, 0x0a, 3)
	cs, err = changeset.Parse([]string{"APM=1"}, f.proc)
	require.NoError(t, err)
	_, err = f.engine.Apply(cs)
	require.NoError(t, err)
	assert.Empty(t, f.dev.CallsOf(drivertest.OpWritePCI))
}

func TestApply_NBVIDPropagation(t *testing.T) {
	f := newFixture(t, cpus.Family10h, 0x0a, 3)
	f.setCurrent(2)
	// P1 links to NB P-state 1 in hardware, P0 and P2 to NB P-state 0
	f.dev.SetMSR(msrPStateBase+1, 1<<22)
	cs, err := changeset.Parse([]string{"NB_P1=@1.0"}, f.proc)
	require.NoError(t, err)

	result, err := f.engine.Apply(cs)
	require.NoError(t, err)
	assert.False(t, cs.PStates[0].NBVID.IsSet())
	assert.Equal(t, pstate.Some(44), cs.PStates[1].NBVID)
	assert.False(t, cs.PStates[2].NBVID.IsSet())
	for cpu := range 2 {
		assert.Equal(t, uint64(44), f.dev.MSR(cpu, msrPStateBase+1)>>25&0x7f)
	}
	assert.Empty(t, f.writesTo(msrPStateBase))
	assert.Empty(t, f.writesTo(msrPStateBase+2))
	assert.Empty(t, f.dev.CallsOf(drivertest.OpWritePCI))
	assert.Equal(t, 0, result.NBPStateWrites)
	assert.True(t, result.ChangedPStates.Contains(1))
}

func TestApply_NBVIDPropagationUsesOverrideLink(t *testing.T) {
	f := newFixture(t, cpus.Family10h, 0x0a, 3)
	f.setCurrent(2)
	f.dev.SetMSR(msrPStateBase+1, 1<<22)
	cs, err := changeset.Parse([]string{"NB_P0=@1.1", "NB_low=2"}, f.proc)
	require.NoError(t, err)

	_, err = f.engine.Apply(cs)
	require.NoError(t, err)
	assert.Equal(t, pstate.Some(36), cs.PStates[0].NBVID)
	assert.Equal(t, pstate.Some(36), cs.PStates[1].NBVID)
	assert.False(t, cs.PStates[2].NBVID.IsSet(), "P2 links to NB P-state 1 which has no VID")
	assert.Equal(t, uint64(0), f.dev.MSR(0, msrPStateBase+1)>>22&1)
}

func TestApply_NoPropagationWithoutNBVID(t *testing.T) {
	f := newFixture(t, cpus.Family10h, 0x0a, 3)
	cs, err := changeset.Parse([]string{"NB_P0=8"}, f.proc)
	require.NoError(t, err)
	_, err = f.engine.Apply(cs)
	require.NoError(t, err)
	for _, ps := range cs.PStates {
		assert.False(t, ps.NBVID.IsSet())
	}
	assert.Empty(t, f.dev.CallsOf(drivertest.OpWriteMSR))
	assert.Empty(t, f.dev.CallsOf(drivertest.OpWritePCI))
}

func TestApply_NorthbridgeFamily15h(t *testing.T) {
	f := newFixture(t, cpus.Family15h, 0x13, 3)
	cs, err := changeset.Parse([]string{"NB_P0=8@1.1", "NB_P1=@0.95"}, f.proc)
	require.NoError(t, err)

	result, err := f.engine.Apply(cs)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NBPStateWrites)
	assert.Len(t, f.writesTo(pciNBPState0), 1)
	assert.Len(t, f.writesTo(pciNBPState1), 1)
	for _, ps := range cs.PStates {
		assert.False(t, ps.NBVID.IsSet())
	}
	assert.Empty(t, f.dev.CallsOf(drivertest.OpWriteMSR))

	nb1 := f.dev.PCI(pciFuncExtended, pciNBPState1)
	assert.Equal(t, uint32(96&0x7f), nb1>>10&0x7f)
	assert.Equal(t, uint32(0), nb1>>21&1)
}

func TestApply_PriorityRestored(t *testing.T) {
	f := newFixture(t, cpus.Family10h, 0x0a, 3)
	cs, err := changeset.Parse([]string{"P0=@1.3"}, f.proc)
	require.NoError(t, err)
	_, err = f.engine.Apply(cs)
	require.NoError(t, err)

	calls := f.dev.CallsOf(drivertest.OpSetPriority)
	require.Len(t, calls, 2)
	assert.Equal(t, int64(DefaultNice), int64(calls[0].Value))
	assert.Equal(t, int64(5), int64(calls[1].Value))
	assert.Equal(t, 5, f.dev.Nice)
}

func TestApply_AbortsOnRegisterFailure(t *testing.T) {
	f := newFixture(t, cpus.Family10h, 0x0a, 3)
	f.dev.Fail = func(c drivertest.Call) error {
		if c.Op == drivertest.OpWriteMSR && c.CPU == 1 {
			return errors.New("EIO")
		}
		return nil
	}
	cs, err := changeset.Parse([]string{"P0=@1.3"}, f.proc)
	require.NoError(t, err)

	result, err := f.engine.Apply(cs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pstate.ErrRegisterAccess))
	assert.Equal(t, 1, result.CPUs)
	assert.Equal(t, uint64(20), f.dev.MSR(0, msrPStateBase)>>9&0x7f, "CPU 0 keeps its new value")
	assert.Empty(t, f.stateCommands(), "no activation after a failure")
	assert.Equal(t, 5, f.dev.Nice, "priority restored on failure")
}
