// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package table

import (
	"amdmsrtweaker/internal/pstate"
)

// Snapshot is the decoded register state the tables are built from.
type Snapshot struct {
	ModelName string // brand string, may be empty
	Variant   pstate.Variant
	Limits    pstate.Limits
	Codec     pstate.Codec
	PStates   []pstate.PState
	NBPStates []pstate.NBPState // family 15h only
	Current   int               // active P-state of the reading CPU
}

// TakeSnapshot reads every enabled P-state on the CPU the device is pinned to.
func TakeSnapshot(proc *pstate.Processor, modelName string) (*Snapshot, error) {
	s := &Snapshot{
		ModelName: modelName,
		Variant:   proc.Variant,
		Limits:    proc.Limits,
		Codec:     proc.Codec(),
	}
	for i := range proc.Variant.NumPStates {
		ps, err := proc.ReadPState(i)
		if err != nil {
			return nil, err
		}
		s.PStates = append(s.PStates, ps)
	}
	if proc.HasNBPStates() {
		for i := range min(pstate.NumNBPStateSlots, max(proc.Variant.NumNBPStates, 1)) {
			nb, err := proc.ReadNBPState(i)
			if err != nil {
				return nil, err
			}
			s.NBPStates = append(s.NBPStates, nb)
		}
	}
	current, err := proc.CurrentPState()
	if err != nil {
		return nil, err
	}
	s.Current = current
	return s, nil
}

// ExternalMulti converts an internal multiplier to the unit the user types.
func (s *Snapshot) ExternalMulti(internal float64) float64 {
	if s.Variant.MultiScaleFactor == 0 {
		return internal
	}
	return internal / s.Variant.MultiScaleFactor
}
