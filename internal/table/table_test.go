// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package table

import (
	"testing"

	"amdmsrtweaker/internal/cpus"
	"amdmsrtweaker/internal/driver/drivertest"
	"amdmsrtweaker/internal/pstate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	msrPStateBase   = 0xC0010064
	msrCOFVIDStatus = 0xC0010071
)

func newProcessor(t *testing.T, family, model, numPStates int) (*pstate.Processor, *drivertest.Device) {
	t.Helper()
	cpu, err := cpus.GetCPU(family, model)
	require.NoError(t, err)
	dev := drivertest.New(1)
	variant := pstate.Variant{
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
	limits := pstate.Limits{MinMulti: 1, MaxMulti: 36, MaxSoftwareMulti: 32, MinVolt: 0.8, MaxVolt: 1.4, NumBoostStates: 1, BoostEnabled: true}
	return pstate.NewProcessor(dev, variant, limits), dev
}

func TestProcessTables_Phenom(t *testing.T) {
	proc, dev := newProcessor(t, cpus.Family10h, 0x0a, 2)
	dev.SetMSR(msrPStateBase, 16|20<<9)
	dev.SetMSR(msrPStateBase+1, 8|28<<9|1<<22|40<<25)
	dev.SetMSR(msrCOFVIDStatus, 1<<16)

	snapshot, err := TakeSnapshot(proc, "AMD Phenom(tm) II X6 1090T Processor")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Current)
	assert.Empty(t, snapshot.NBPStates)

	tables := ProcessTables(Tables, snapshot)
	var names []string
	for _, tv := range tables {
		names = append(names, tv.Name)
	}
	assert.Equal(t, []string{ProcessorTableName, LimitsTableName, BoostTableName, PStatesTableName}, names)

	processor := tables[0]
	idx, err := GetFieldIndex("P-States", processor)
	require.NoError(t, err)
	assert.Equal(t, "2 of 5 enabled", processor.Fields[idx].Values[0])
	idx, err = GetFieldIndex("Family", processor)
	require.NoError(t, err)
	assert.Equal(t, "10h", processor.Fields[idx].Values[0])

	limits := tables[1]
	idx, err = GetFieldIndex("Multiplier Range", limits)
	require.NoError(t, err)
	assert.Equal(t, "0.5 - 18", limits.Fields[idx].Values[0])
	idx, err = GetFieldIndex("Frequency Range", limits)
	require.NoError(t, err)
	assert.Equal(t, "100 MHz - 3,600 MHz", limits.Fields[idx].Values[0])
	idx, err = GetFieldIndex("VID Range", limits)
	require.NoError(t, err)
	assert.Equal(t, "12 - 60", limits.Fields[idx].Values[0])

	boost := tables[2]
	idx, err = GetFieldIndex("Boost P-States", boost)
	require.NoError(t, err)
	assert.Equal(t, "P0", boost.Fields[idx].Values[0])
	idx, err = GetFieldIndex("APM", boost)
	require.NoError(t, err)
	assert.Equal(t, "n/a", boost.Fields[idx].Values[0])

	pstates := tables[3]
	want := map[string][]string{
		"P-State":    {"P0", "P1"},
		"Multiplier": {"16", "12"},
		"Frequency":  {"3,200 MHz", "2,400 MHz"},
		"VID":        {"20", "28"},
		"Voltage":    {"1.3000 V", "1.2000 V"},
		"NB P-State": {"0", "1"},
		"NB VID":     {"0", "40"},
		"Boost":      {"Yes", "No"},
		"Active":     {"", "*"},
	}
	for name, values := range want {
		idx, err := GetFieldIndex(name, pstates)
		require.NoError(t, err, name)
		assert.Equal(t, values, pstates.Fields[idx].Values, name)
	}
}

func TestProcessTables_Northbridge(t *testing.T) {
	proc, dev := newProcessor(t, cpus.Family15h, 0x13, 1)
	// NB P-state 0: fid 12, did 0, vid 72
	dev.SetPCI(5, 0x160, 12<<1|72<<10)
	snapshot, err := TakeSnapshot(proc, "")
	require.NoError(t, err)
	require.Len(t, snapshot.NBPStates, 2)

	tables := ProcessTables(Tables, snapshot)
	require.Len(t, tables, 5)
	nb := tables[4]
	assert.Equal(t, NBPStatesTableName, nb.Name)
	idx, err := GetFieldIndex("Frequency", nb)
	require.NoError(t, err)
	assert.Equal(t, "3,200 MHz", nb.Fields[idx].Values[0])
	idx, err = GetFieldIndex("Voltage", nb)
	require.NoError(t, err)
	assert.Equal(t, "1.1000 V", nb.Fields[idx].Values[0])

	idx, err = GetFieldIndex("APM", tables[2])
	require.NoError(t, err)
	assert.Equal(t, "No", tables[2].Fields[idx].Values[0])
}

func TestGetValuesForTable_InvalidFields(t *testing.T) {
	def := TableDefinition{
		Name: "Broken",
		FieldsFunc: func(*Snapshot) []Field {
			return []Field{{Name: "A", Values: []string{"1"}}, {Name: "B"}}
		},
	}
	tv := GetValuesForTable(def, &Snapshot{})
	assert.Empty(t, tv.Fields)
	_, err := GetFieldIndex("A", tv)
	assert.Error(t, err)
}

func TestIsTableForFamily(t *testing.T) {
	assert.True(t, IsTableForFamily(TableDefinition{}, cpus.Family12h))
	assert.True(t, IsTableForFamily(TableDefinition{Families: []int{cpus.Family15h}}, cpus.Family15h))
	assert.False(t, IsTableForFamily(TableDefinition{Families: []int{cpus.Family15h}}, cpus.Family14h))
}
