// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package changeset

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"amdmsrtweaker/internal/pstate"

	mapset "github.com/deckarep/golang-set/v2"
)

// ErrInvalidToken is returned for tokens that do not follow the syntax.
var ErrInvalidToken = errors.New("invalid token")

const (
	keyPState   = "p"
	keyNBPState = "nb_p"
	keyNBLow    = "nb_low"
	keyTurbo    = "turbo"
	keyAPM      = "apm"
)

// northbridge multiplier bounds, numerator 4..35 over divisor 1 or 2
const (
	minNBMulti = 2.0
	maxNBMulti = 35.0
)

// Parse builds a change set from tokens for the given processor. Keys are
// case-insensitive:
//
//	P<i>=<multi>@<volts>     core P-state, either side may be omitted
//	NB_P<i>=<multi>@<volts>  northbridge P-state 0 or 1
//	NB_low=<n>               P-states below n use NB P-state 0, the rest NB P-state 1
//	Turbo=<0|1>
//	APM=<0|1>
//	P<i>                     switch to P-state i after committing
//
// Core multipliers are given in external units and scaled to internal units.
// A single bad token rejects the whole set.
func Parse(tokens []string, proc *pstate.Processor) (*ChangeSet, error) {
	cs := New(proc.Variant.NumPStates)
	seen := mapset.NewSet[string]()
	for _, token := range tokens {
		key, value, hasValue := strings.Cut(strings.TrimSpace(token), "=")
		key = strings.ToLower(key)
		if seen.Contains(key) {
			slog.Warn("token overrides an earlier one", slog.String("token", token))
		}
		seen.Add(key)
		var err error
		switch {
		case !hasValue:
			err = parseTarget(cs, proc, key)
		case key == keyNBLow:
			err = parseNBLow(cs, proc, value)
		case key == keyTurbo:
			cs.Turbo, err = parseSwitch(value)
		case key == keyAPM:
			cs.APM, err = parseSwitch(value)
			if err == nil && !proc.HasAPM() {
				slog.Warn("APM is only available on family 15h, ignoring", slog.String("token", token))
			}
		case strings.HasPrefix(key, keyNBPState):
			err = parseNBPState(cs, proc, key, value)
		case strings.HasPrefix(key, keyPState):
			err = parsePState(cs, proc, key, value)
		default:
			err = fmt.Errorf("%w: unknown key", ErrInvalidToken)
		}
		if err != nil {
			return nil, fmt.Errorf("%q: %w", token, err)
		}
	}
	return cs, nil
}

func parseIndex(key, prefix string, count int) (int, error) {
	index, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
	if err != nil {
		return 0, fmt.Errorf("%w: bad index", ErrInvalidToken)
	}
	if index < 0 || index >= count {
		return 0, fmt.Errorf("%w: index %d not in [0, %d)", pstate.ErrInvalidParameterRange, index, count)
	}
	return index, nil
}

func parseTarget(cs *ChangeSet, proc *pstate.Processor, key string) error {
	if !strings.HasPrefix(key, keyPState) {
		return fmt.Errorf("%w: expected P<index> or <key>=<value>", ErrInvalidToken)
	}
	index, err := parseIndex(key, keyPState, proc.Variant.NumPStates)
	if err != nil {
		return err
	}
	cs.Target = pstate.Some(index)
	return nil
}

func parseSwitch(value string) (pstate.Opt[bool], error) {
	switch value {
	case "0":
		return pstate.Some(false), nil
	case "1":
		return pstate.Some(true), nil
	}
	return pstate.None[bool](), fmt.Errorf("%w: expected 0 or 1", ErrInvalidToken)
}

// parseSetting splits "<multi>@<volts>".
func parseSetting(value string) (multi, volts pstate.Opt[float64], err error) {
	multiStr, voltsStr, _ := strings.Cut(value, "@")
	if multiStr == "" && voltsStr == "" {
		return multi, volts, fmt.Errorf("%w: expected <multi>@<volts>", ErrInvalidToken)
	}
	if multiStr != "" {
		m, err := strconv.ParseFloat(multiStr, 64)
		if err != nil || math.IsNaN(m) || math.IsInf(m, 0) {
			return multi, volts, fmt.Errorf("%w: bad multiplier %q", ErrInvalidToken, multiStr)
		}
		if m <= 0 {
			return multi, volts, fmt.Errorf("%w: multiplier %g", pstate.ErrInvalidParameterRange, m)
		}
		multi = pstate.Some(m)
	}
	if voltsStr != "" {
		v, err := strconv.ParseFloat(voltsStr, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return multi, volts, fmt.Errorf("%w: bad voltage %q", ErrInvalidToken, voltsStr)
		}
		if v < 0 || v > pstate.MaxVoltage {
			return multi, volts, fmt.Errorf("%w: voltage %g not in [0, %g]", pstate.ErrInvalidParameterRange, v, pstate.MaxVoltage)
		}
		volts = pstate.Some(v)
	}
	return multi, volts, nil
}

func parsePState(cs *ChangeSet, proc *pstate.Processor, key, value string) error {
	index, err := parseIndex(key, keyPState, proc.Variant.NumPStates)
	if err != nil {
		return err
	}
	multi, volts, err := parseSetting(value)
	if err != nil {
		return err
	}
	ps := &cs.PStates[index]
	codec := proc.Codec()
	if m, ok := multi.Get(); ok {
		internal := m * proc.Variant.MultiScaleFactor
		if err := checkMulti(proc, index, internal); err != nil {
			return err
		}
		if _, _, err := codec.EncodeMulti(internal); err != nil {
			return err
		}
		ps.Multi = pstate.Some(internal)
	}
	if v, ok := volts.Get(); ok {
		ps.VID = pstate.Some(codec.EncodeVID(v))
	}
	return nil
}

// checkMulti enforces the processor's multiplier range when it is known. Boost
// P-states may run up to the hardware maximum.
func checkMulti(proc *pstate.Processor, index int, internal float64) error {
	limits := proc.Limits
	if limits.MaxSoftwareMulti <= 0 {
		return nil
	}
	upper := limits.MaxSoftwareMulti
	if index < limits.NumBoostStates {
		upper = max(upper, limits.MaxMulti)
	}
	if internal < limits.MinMulti || internal > upper {
		scale := proc.Variant.MultiScaleFactor
		return fmt.Errorf("%w: multiplier %g not in [%g, %g]", pstate.ErrInvalidParameterRange, internal/scale, limits.MinMulti/scale, upper/scale)
	}
	return nil
}

func parseNBPState(cs *ChangeSet, proc *pstate.Processor, key, value string) error {
	index, err := parseIndex(key, keyNBPState, pstate.NumNBPStateSlots)
	if err != nil {
		return err
	}
	multi, volts, err := parseSetting(value)
	if err != nil {
		return err
	}
	nb := &cs.NBPStates[index]
	if m, ok := multi.Get(); ok {
		if m < minNBMulti || m > maxNBMulti {
			return fmt.Errorf("%w: NB multiplier %g not in [%g, %g]", pstate.ErrInvalidParameterRange, m, minNBMulti, maxNBMulti)
		}
		if !proc.HasNBPStates() {
			slog.Warn("NB P-state multipliers are only programmable on family 15h, ignoring", slog.String("key", key))
		}
		nb.Multi = pstate.Some(m)
	}
	if v, ok := volts.Get(); ok {
		if !proc.HasNBPStates() && !proc.HasNBVID() {
			slog.Warn("NB voltages are not programmable on this processor, ignoring", slog.String("key", key))
		}
		nb.VID = pstate.Some(proc.Codec().EncodeVID(v))
	}
	return nil
}

func parseNBLow(cs *ChangeSet, proc *pstate.Processor, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: expected a P-state count", ErrInvalidToken)
	}
	if n < 0 {
		return fmt.Errorf("%w: NB_low %d", pstate.ErrInvalidParameterRange, n)
	}
	if !proc.HasNBPStateLink() {
		slog.Warn("P-states are not linked to NB P-states on this processor, ignoring NB_low")
	}
	for i := range cs.PStates {
		if i < n {
			cs.PStates[i].NBPState = pstate.Some(0)
		} else {
			cs.PStates[i].NBPState = pstate.Some(1)
		}
	}
	return nil
}
