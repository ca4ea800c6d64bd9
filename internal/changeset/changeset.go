// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package changeset holds the pending register changes requested by the user
// and parses them from command line tokens.
package changeset

import (
	"slices"

	"amdmsrtweaker/internal/pstate"

	mapset "github.com/deckarep/golang-set/v2"
)

// ChangeSet is the set of overrides to commit. Absent fields keep the value
// currently programmed in hardware.
type ChangeSet struct {
	PStates   []pstate.PState   // one entry per enabled P-state, Index == position
	NBPStates []pstate.NBPState // northbridge P-states 0 and 1
	Turbo     pstate.Opt[bool]
	APM       pstate.Opt[bool]
	Target    pstate.Opt[int] // P-state to switch to after committing
}

// New returns an empty change set for numPStates enabled P-states.
func New(numPStates int) *ChangeSet {
	cs := &ChangeSet{
		PStates:   make([]pstate.PState, numPStates),
		NBPStates: make([]pstate.NBPState, pstate.NumNBPStateSlots),
	}
	for i := range cs.PStates {
		cs.PStates[i].Index = i
	}
	for i := range cs.NBPStates {
		cs.NBPStates[i].Index = i
	}
	return cs
}

// ChangedPStates returns the indexes of P-states with at least one override.
func (cs *ChangeSet) ChangedPStates() mapset.Set[int] {
	changed := mapset.NewSet[int]()
	for _, ps := range cs.PStates {
		if ps.HasChanges() {
			changed.Add(ps.Index)
		}
	}
	return changed
}

// ChangedNBPStates returns the indexes of northbridge P-states with at least
// one override.
func (cs *ChangeSet) ChangedNBPStates() mapset.Set[int] {
	changed := mapset.NewSet[int]()
	for _, nb := range cs.NBPStates {
		if nb.HasChanges() {
			changed.Add(nb.Index)
		}
	}
	return changed
}

// HasNBVIDOverride reports whether any northbridge P-state carries a VID.
func (cs *ChangeSet) HasNBVIDOverride() bool {
	return slices.ContainsFunc(cs.NBPStates, func(nb pstate.NBPState) bool {
		return nb.VID.IsSet()
	})
}

// IsEmpty reports whether committing the change set would do nothing.
func (cs *ChangeSet) IsEmpty() bool {
	return cs.ChangedPStates().Cardinality() == 0 &&
		cs.ChangedNBPStates().Cardinality() == 0 &&
		!cs.Turbo.IsSet() && !cs.APM.IsSet() && !cs.Target.IsSet()
}
