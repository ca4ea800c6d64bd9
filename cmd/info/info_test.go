package info

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"amdmsrtweaker/internal/pstate"
	"amdmsrtweaker/internal/report"
	"amdmsrtweaker/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *table.Snapshot {
	return &table.Snapshot{
		ModelName: "AMD A10-5800K APU with Radeon(tm) HD Graphics",
		Variant:   pstate.Variant{Family: 0x15, Model: 0x10, MicroArchitecture: "Trinity/Richland", NumCores: 4, VIDStep: 0.00625, MultiScaleFactor: 1, SVI2: true, PStateSlots: 8, NumPStates: 1, NumNBPStates: 1},
		Codec:     pstate.Codec{Family: 0x15, VIDStep: 0.00625},
		PStates:   []pstate.PState{{Index: 0, Multi: pstate.Some(38.0), VID: pstate.Some(32), NBPState: pstate.Some(0)}},
		NBPStates: []pstate.NBPState{{Index: 0, Multi: pstate.Some(9.0), VID: pstate.Some(80)}},
	}
}

func TestWriteReport_Stdout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, testSnapshot(), report.FormatTxt, ""))
	out := buf.String()
	assert.Contains(t, out, "AMD A10-5800K")
	assert.Contains(t, out, "3,800 MHz")
	assert.Contains(t, out, "NB_P0")
}

func TestWriteReport_File(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "pstates.json")
	require.NoError(t, writeReport(&buf, testSnapshot(), report.FormatJson, path))
	assert.Contains(t, buf.String(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string][]map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded[table.PStatesTableName], 1)
	assert.Equal(t, "38", decoded[table.PStatesTableName][0]["Multiplier"])
}

func TestValidateFlags(t *testing.T) {
	defer func() { flagFormat, flagOutput = report.FormatTxt, "" }()

	flagFormat, flagOutput = "html", ""
	assert.Error(t, validateFlags(Cmd, nil))
	flagFormat, flagOutput = report.FormatXlsx, ""
	assert.Error(t, validateFlags(Cmd, nil))
	flagFormat, flagOutput = report.FormatXlsx, "out.xlsx"
	assert.NoError(t, validateFlags(Cmd, nil))
	flagFormat, flagOutput = report.FormatYaml, ""
	assert.NoError(t, validateFlags(Cmd, nil))
}
