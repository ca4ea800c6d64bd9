// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package apply commits a change set to every logical CPU of the processor and
// activates the result.
package apply

import (
	"fmt"
	"log/slog"
	"time"

	"amdmsrtweaker/internal/changeset"
	"amdmsrtweaker/internal/driver"
	"amdmsrtweaker/internal/pstate"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	DefaultReloadDelay = time.Millisecond
	DefaultNice        = -20
)

// Options tune the commit sequence.
type Options struct {
	ReloadDelay time.Duration // time spent in the temporary P-state during a reload
	Nice        int           // scheduling priority held during the commit
}

// Result summarizes a commit.
type Result struct {
	CPUs           int
	PStateWrites   int
	NBPStateWrites int
	StateSwitches  int
	ChangedPStates mapset.Set[int]
}

// Engine applies change sets to a processor.
type Engine struct {
	proc  *pstate.Processor
	dev   driver.Device
	opts  Options
	sleep func(time.Duration)
}

func New(proc *pstate.Processor, dev driver.Device, opts Options) *Engine {
	if opts.ReloadDelay <= 0 {
		opts.ReloadDelay = DefaultReloadDelay
	}
	return &Engine{proc: proc, dev: dev, opts: opts, sleep: time.Sleep}
}

// Apply commits cs in four phases: northbridge propagation, global toggles,
// per-CPU P-state writes and per-CPU activation. A failure aborts the
// sequence; CPUs already written keep their new values.
func (e *Engine) Apply(cs *changeset.ChangeSet) (Result, error) {
	result := Result{ChangedPStates: cs.ChangedPStates()}
	cpus, err := e.dev.LogicalCPUs()
	if err != nil {
		return result, fmt.Errorf("failed to list logical CPUs: %w", err)
	}
	restore := e.raisePriority()
	defer restore()

	if err := e.propagate(cs, &result); err != nil {
		return result, err
	}
	// propagation may have added NB VIDs
	result.ChangedPStates = cs.ChangedPStates()
	if err := e.toggles(cs); err != nil {
		return result, err
	}
	for _, cpu := range cpus {
		if err := e.commit(cpu, cs, &result); err != nil {
			return result, err
		}
		result.CPUs++
	}
	for _, cpu := range cpus {
		if err := e.activate(cpu, cs, result.ChangedPStates, &result); err != nil {
			return result, err
		}
	}
	slog.Info("change set applied",
		slog.Int("cpus", result.CPUs),
		slog.Int("pstateWrites", result.PStateWrites),
		slog.Int("nbWrites", result.NBPStateWrites),
		slog.Int("switches", result.StateSwitches))
	return result, nil
}

// raisePriority sets the elevated nice value and returns a func restoring the
// previous one. Failures are logged only.
func (e *Engine) raisePriority() func() {
	previous, err := e.dev.Priority()
	if err != nil {
		slog.Warn("failed to read scheduling priority", slog.String("error", err.Error()))
		return func() {}
	}
	if err := e.dev.SetPriority(e.opts.Nice); err != nil {
		slog.Warn("failed to raise scheduling priority", slog.Int("nice", e.opts.Nice), slog.String("error", err.Error()))
		return func() {}
	}
	return func() {
		if err := e.dev.SetPriority(previous); err != nil {
			slog.Warn("failed to restore scheduling priority", slog.Int("nice", previous), slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) propagate(cs *changeset.ChangeSet, result *Result) error {
	switch {
	case e.proc.HasNBPStates():
		for _, nb := range cs.NBPStates {
			if !nb.HasChanges() {
				continue
			}
			if err := e.proc.WriteNBPState(nb); err != nil {
				return err
			}
			result.NBPStateWrites++
		}
	case e.proc.HasNBVID() && cs.HasNBVIDOverride():
		for i := range cs.PStates {
			ps := &cs.PStates[i]
			link, ok := ps.NBPState.Get()
			if !ok {
				current, err := e.proc.ReadPState(ps.Index)
				if err != nil {
					return err
				}
				link = current.NBPState.OrElse(0)
			}
			if link < 0 || link >= len(cs.NBPStates) {
				continue
			}
			if vid, ok := cs.NBPStates[link].VID.Get(); ok {
				ps.NBVID = pstate.Some(vid)
				slog.Debug("propagated NB VID", slog.Int("pstate", ps.Index), slog.Int("nbPState", link), slog.Int("vid", vid))
			}
		}
	}
	return nil
}

func (e *Engine) toggles(cs *changeset.ChangeSet) error {
	if turbo, ok := cs.Turbo.Get(); ok {
		if e.proc.Variant.BoostSupported {
			if err := e.proc.SetBoostSource(turbo); err != nil {
				return err
			}
		} else {
			slog.Warn("core performance boost is not supported, ignoring Turbo")
		}
	}
	if apm, ok := cs.APM.Get(); ok {
		if e.proc.HasAPM() {
			if err := e.proc.SetAPM(apm); err != nil {
				return err
			}
		} else {
			slog.Warn("APM is not supported, ignoring")
		}
	}
	return nil
}

func (e *Engine) commit(cpu int, cs *changeset.ChangeSet, result *Result) error {
	if err := e.dev.PinToCPU(cpu); err != nil {
		return err
	}
	for _, ps := range cs.PStates {
		if !ps.HasChanges() {
			continue
		}
		if err := e.proc.WritePState(ps); err != nil {
			return fmt.Errorf("CPU %d: %w", cpu, err)
		}
		result.PStateWrites++
	}
	if turbo, ok := cs.Turbo.Get(); ok && e.proc.Variant.BoostSupported {
		if err := e.proc.SetCPB(turbo); err != nil {
			return fmt.Errorf("CPU %d: %w", cpu, err)
		}
	}
	slog.Debug("committed P-states", slog.Int("cpu", cpu))
	return nil
}

func (e *Engine) activate(cpu int, cs *changeset.ChangeSet, changed mapset.Set[int], result *Result) error {
	if err := e.dev.PinToCPU(cpu); err != nil {
		return err
	}
	current, err := e.proc.CurrentPState()
	if err != nil {
		return fmt.Errorf("CPU %d: %w", cpu, err)
	}
	if target, ok := cs.Target.Get(); ok && target != current {
		if err := e.switchTo(cpu, target, result); err != nil {
			return err
		}
		return nil
	}
	if !changed.Contains(current) || e.proc.Variant.NumPStates < 2 {
		return nil
	}
	// a running P-state only latches new values on a transition
	temp := 0
	if current == 0 {
		temp = e.proc.Variant.NumPStates - 1
	}
	if err := e.switchTo(cpu, temp, result); err != nil {
		return err
	}
	e.sleep(e.opts.ReloadDelay)
	return e.switchTo(cpu, current, result)
}

func (e *Engine) switchTo(cpu, index int, result *Result) error {
	if err := e.proc.SetCurrentPState(index); err != nil {
		return fmt.Errorf("CPU %d: %w", cpu, err)
	}
	result.StateSwitches++
	slog.Debug("switched P-state", slog.Int("cpu", cpu), slog.Int("pstate", index))
	return nil
}
