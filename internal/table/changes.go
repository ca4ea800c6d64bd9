package table

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strings"

	"amdmsrtweaker/internal/changeset"
	"amdmsrtweaker/internal/pstate"
)

const ChangesTableName = "Requested Changes"

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// ChangesTable lists the overrides held by cs, one row per setting, with
// multipliers in external units.
func ChangesTable(cs *changeset.ChangeSet, variant pstate.Variant, codec pstate.Codec) TableValues {
	scale := variant.MultiScaleFactor
	if scale == 0 {
		scale = 1
	}
	var settings, values []string
	add := func(setting string, parts []string) {
		if len(parts) == 0 {
			return
		}
		settings = append(settings, setting)
		values = append(values, strings.Join(parts, ", "))
	}
	for _, ps := range cs.PStates {
		var parts []string
		if m, ok := ps.Multi.Get(); ok {
			parts = append(parts, "multiplier "+multiplier(m/scale))
		}
		if vid, ok := ps.VID.Get(); ok {
			parts = append(parts, fmt.Sprintf("VID %d (%s)", vid, voltage(codec, vid)))
		}
		if nb, ok := ps.NBPState.Get(); ok {
			parts = append(parts, fmt.Sprintf("NB_P%d", nb))
		}
		if vid, ok := ps.NBVID.Get(); ok {
			parts = append(parts, fmt.Sprintf("NB VID %d (%s)", vid, voltage(codec, vid)))
		}
		add(fmt.Sprintf("P%d", ps.Index), parts)
	}
	for _, nb := range cs.NBPStates {
		var parts []string
		if m, ok := nb.Multi.Get(); ok {
			parts = append(parts, "multiplier "+multiplier(m))
		}
		if vid, ok := nb.VID.Get(); ok {
			parts = append(parts, fmt.Sprintf("VID %d (%s)", vid, voltage(codec, vid)))
		}
		add(fmt.Sprintf("NB_P%d", nb.Index), parts)
	}
	if v, ok := cs.Turbo.Get(); ok {
		add("Turbo", []string{onOff(v)})
	}
	if v, ok := cs.APM.Get(); ok {
		add("APM", []string{onOff(v)})
	}
	if v, ok := cs.Target.Get(); ok {
		add("Switch To", []string{fmt.Sprintf("P%d", v)})
	}
	return TableValues{
		TableDefinition: TableDefinition{
			Name:        ChangesTableName,
			HasRows:     true,
			NoDataFound: "No changes requested.",
		},
		Fields: []Field{
			{Name: "Setting", Values: settings},
			{Name: "Value", Values: values},
		},
	}
}
