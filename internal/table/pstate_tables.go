// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"amdmsrtweaker/internal/cpus"
	"amdmsrtweaker/internal/pstate"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// table names
const (
	ProcessorTableName = "Processor"
	LimitsTableName    = "Limits"
	BoostTableName     = "Boost"
	PStatesTableName   = "P-States"
	NBPStatesTableName = "NB P-States"
)

// reference clocks in MHz
const (
	coreRefClock = 100
	nbRefClock   = 200
)

// Tables lists the report tables in display order.
var Tables = []TableDefinition{
	{
		Name:       ProcessorTableName,
		FieldsFunc: processorTableValues,
	},
	{
		Name:       LimitsTableName,
		FieldsFunc: limitsTableValues,
	},
	{
		Name:       BoostTableName,
		FieldsFunc: boostTableValues,
	},
	{
		Name:        PStatesTableName,
		HasRows:     true,
		FieldsFunc:  pstatesTableValues,
		NoDataFound: "No P-states enabled.",
	},
	{
		Name:        NBPStatesTableName,
		Families:    []int{cpus.Family15h},
		HasRows:     true,
		FieldsFunc:  nbPStatesTableValues,
		NoDataFound: "No NB P-states enabled.",
	},
}

// use printer to get commas at thousands, e.g., 3,200 MHz
var printer = message.NewPrinter(language.English)

func frequency(multi float64, refClock int) string {
	if multi <= 0 {
		return ""
	}
	return printer.Sprintf("%d MHz", int(math.Round(multi*float64(refClock))))
}

func multiplier(multi float64) string {
	return strconv.FormatFloat(multi, 'f', -1, 64)
}

func voltage(codec pstate.Codec, vid int) string {
	return fmt.Sprintf("%.4f V", codec.DecodeVID(vid))
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func optInt(o pstate.Opt[int]) string {
	if v, ok := o.Get(); ok {
		return strconv.Itoa(v)
	}
	return ""
}

func processorTableValues(s *Snapshot) []Field {
	nbPStates := "n/a"
	if s.Variant.Family == cpus.Family15h {
		nbPStates = fmt.Sprintf("%d of %d enabled", s.Variant.NumNBPStates, pstate.NumNBPStateSlots)
	}
	return []Field{
		{Name: "Model Name", Values: []string{s.ModelName}},
		{Name: "Microarchitecture", Values: []string{s.Variant.MicroArchitecture}},
		{Name: "Family", Values: []string{fmt.Sprintf("%02Xh", s.Variant.Family)}},
		{Name: "Model", Values: []string{fmt.Sprintf("%02Xh", s.Variant.Model)}},
		{Name: "Cores", Values: []string{strconv.Itoa(s.Variant.NumCores)}},
		{Name: "VID Step", Values: []string{fmt.Sprintf("%g V", s.Variant.VIDStep)}},
		{Name: "P-States", Values: []string{fmt.Sprintf("%d of %d enabled", s.Variant.NumPStates, s.Variant.PStateSlots)}},
		{Name: "NB P-States", Values: []string{nbPStates}},
		{Name: "Active P-State", Values: []string{fmt.Sprintf("P%d", s.Current)}},
	}
}

func limitsTableValues(s *Snapshot) []Field {
	l := s.Limits
	return []Field{
		{Name: "Multiplier Range", Values: []string{fmt.Sprintf("%s - %s", multiplier(s.ExternalMulti(l.MinMulti)), multiplier(s.ExternalMulti(l.MaxMulti)))}},
		{Name: "Software Maximum", Values: []string{multiplier(s.ExternalMulti(l.MaxSoftwareMulti))}},
		{Name: "Frequency Range", Values: []string{fmt.Sprintf("%s - %s", frequency(l.MinMulti, coreRefClock), frequency(l.MaxMulti, coreRefClock))}},
		{Name: "Voltage Range", Values: []string{fmt.Sprintf("%.4f - %.4f V", l.MinVolt, l.MaxVolt)}},
		{Name: "VID Range", Values: []string{fmt.Sprintf("%d - %d", s.Codec.EncodeVID(l.MaxVolt), s.Codec.EncodeVID(l.MinVolt))}},
	}
}

func boostTableValues(s *Snapshot) []Field {
	l := s.Limits
	var boostStates []string
	for i := range l.NumBoostStates {
		boostStates = append(boostStates, fmt.Sprintf("P%d", i))
	}
	apm := "n/a"
	if s.Variant.Family == cpus.Family15h {
		apm = yesNo(l.APMEnabled)
	}
	boostMax := ""
	if s.Variant.BoostSupported && l.MaxMulti > 0 {
		boostMax = fmt.Sprintf("%s (%s)", multiplier(s.ExternalMulti(l.MaxMulti)), frequency(l.MaxMulti, coreRefClock))
	}
	return []Field{
		{Name: "Supported", Values: []string{yesNo(s.Variant.BoostSupported)}},
		{Name: "Enabled", Values: []string{yesNo(l.BoostEnabled)}},
		{Name: "Locked", Values: []string{yesNo(l.BoostLocked)}},
		{Name: "Boost P-States", Values: []string{strings.Join(boostStates, ", ")}},
		{Name: "Boost Maximum", Values: []string{boostMax}},
		{Name: "APM", Values: []string{apm}},
	}
}

func pstatesTableValues(s *Snapshot) []Field {
	fields := []Field{
		{Name: "P-State"},
		{Name: "Multiplier"},
		{Name: "Frequency"},
		{Name: "VID"},
		{Name: "Voltage"},
		{Name: "NB P-State"},
		{Name: "NB VID"},
		{Name: "Boost"},
		{Name: "Active"},
	}
	for _, ps := range s.PStates {
		multi := ps.Multi.OrElse(0)
		vid, hasVID := ps.VID.Get()
		volts := ""
		if hasVID {
			volts = voltage(s.Codec, vid)
		}
		active := ""
		if ps.Index == s.Current {
			active = "*"
		}
		fields[0].Values = append(fields[0].Values, fmt.Sprintf("P%d", ps.Index))
		fields[1].Values = append(fields[1].Values, multiplier(s.ExternalMulti(multi)))
		fields[2].Values = append(fields[2].Values, frequency(multi, coreRefClock))
		fields[3].Values = append(fields[3].Values, optInt(ps.VID))
		fields[4].Values = append(fields[4].Values, volts)
		fields[5].Values = append(fields[5].Values, optInt(ps.NBPState))
		fields[6].Values = append(fields[6].Values, optInt(ps.NBVID))
		fields[7].Values = append(fields[7].Values, yesNo(ps.Index < s.Limits.NumBoostStates))
		fields[8].Values = append(fields[8].Values, active)
	}
	return fields
}

func nbPStatesTableValues(s *Snapshot) []Field {
	fields := []Field{
		{Name: "NB P-State"},
		{Name: "Multiplier"},
		{Name: "Frequency"},
		{Name: "VID"},
		{Name: "Voltage"},
	}
	for _, nb := range s.NBPStates {
		multi := nb.Multi.OrElse(0)
		vid := nb.VID.OrElse(0)
		fields[0].Values = append(fields[0].Values, fmt.Sprintf("NB_P%d", nb.Index))
		fields[1].Values = append(fields[1].Values, multiplier(multi))
		fields[2].Values = append(fields[2].Values, frequency(multi, nbRefClock))
		fields[3].Values = append(fields[3].Values, strconv.Itoa(vid))
		fields[4].Values = append(fields[4].Values, voltage(s.Codec, vid))
	}
	return fields
}
