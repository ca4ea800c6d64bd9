// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package metrics exports the P-state table and apply results in the
// Prometheus text format, for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"amdmsrtweaker/internal/apply"
	"amdmsrtweaker/internal/table"

	"github.com/prometheus/client_golang/prometheus"
)

const promMetricPrefix = "amdmsrtweaker_"

// Exporter holds the gauges in a private registry.
type Exporter struct {
	registry *prometheus.Registry

	pstateMulti     *prometheus.GaugeVec
	pstateFrequency *prometheus.GaugeVec
	pstateVoltage   *prometheus.GaugeVec
	nbFrequency     *prometheus.GaugeVec
	nbVoltage       *prometheus.GaugeVec
	processor       *prometheus.GaugeVec
	boostEnabled    prometheus.Gauge
	boostLocked     prometheus.Gauge
	apmEnabled      prometheus.Gauge
	currentPState   prometheus.Gauge
	applyCounts     *prometheus.GaugeVec
	applyTimestamp  prometheus.Gauge
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: promMetricPrefix + name, Help: help})
}

func newGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: promMetricPrefix + name, Help: help}, labels)
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry:        prometheus.NewRegistry(),
		pstateMulti:     newGaugeVec("pstate_multiplier", "Core P-state multiplier", "pstate"),
		pstateFrequency: newGaugeVec("pstate_frequency_mhz", "Core P-state frequency in MHz", "pstate"),
		pstateVoltage:   newGaugeVec("pstate_voltage_volts", "Core P-state voltage", "pstate"),
		nbFrequency:     newGaugeVec("nb_pstate_frequency_mhz", "Northbridge P-state frequency in MHz", "nb_pstate"),
		nbVoltage:       newGaugeVec("nb_pstate_voltage_volts", "Northbridge P-state voltage", "nb_pstate"),
		processor:       newGaugeVec("processor_info", "Processor identification", "uarch", "family", "model"),
		boostEnabled:    newGauge("boost_enabled", "Core performance boost enabled"),
		boostLocked:     newGauge("boost_locked", "Core performance boost settings locked"),
		apmEnabled:      newGauge("apm_enabled", "Application power management enabled"),
		currentPState:   newGauge("current_pstate", "Active P-state of the reading CPU"),
		applyCounts:     newGaugeVec("apply_operations", "Operations performed by the last apply", "operation"),
		applyTimestamp:  newGauge("apply_timestamp_seconds", "Unix time of the last apply"),
	}
	e.registry.MustRegister(
		e.pstateMulti, e.pstateFrequency, e.pstateVoltage,
		e.nbFrequency, e.nbVoltage, e.processor,
		e.boostEnabled, e.boostLocked, e.apmEnabled, e.currentPState,
		e.applyCounts, e.applyTimestamp,
	)
	return e
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ObserveSnapshot sets the gauges from the decoded register state.
func (e *Exporter) ObserveSnapshot(s *table.Snapshot) {
	e.processor.WithLabelValues(s.Variant.MicroArchitecture, fmt.Sprintf("%#x", s.Variant.Family), fmt.Sprintf("%#x", s.Variant.Model)).Set(1)
	for _, ps := range s.PStates {
		label := strconv.Itoa(ps.Index)
		if multi, ok := ps.Multi.Get(); ok {
			e.pstateMulti.WithLabelValues(label).Set(s.ExternalMulti(multi))
			e.pstateFrequency.WithLabelValues(label).Set(multi * 100)
		}
		if vid, ok := ps.VID.Get(); ok {
			e.pstateVoltage.WithLabelValues(label).Set(s.Codec.DecodeVID(vid))
		}
	}
	for _, nb := range s.NBPStates {
		label := strconv.Itoa(nb.Index)
		if multi, ok := nb.Multi.Get(); ok {
			e.nbFrequency.WithLabelValues(label).Set(multi * 200)
		}
		if vid, ok := nb.VID.Get(); ok {
			e.nbVoltage.WithLabelValues(label).Set(s.Codec.DecodeVID(vid))
		}
	}
	e.boostEnabled.Set(boolToFloat(s.Limits.BoostEnabled))
	e.boostLocked.Set(boolToFloat(s.Limits.BoostLocked))
	e.apmEnabled.Set(boolToFloat(s.Limits.APMEnabled))
	e.currentPState.Set(float64(s.Current))
}

// ObserveApply records the counts of an apply run.
func (e *Exporter) ObserveApply(result apply.Result, at time.Time) {
	e.applyCounts.WithLabelValues("cpus").Set(float64(result.CPUs))
	e.applyCounts.WithLabelValues("pstate_writes").Set(float64(result.PStateWrites))
	e.applyCounts.WithLabelValues("nb_pstate_writes").Set(float64(result.NBPStateWrites))
	e.applyCounts.WithLabelValues("state_switches").Set(float64(result.StateSwitches))
	e.applyTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile atomically writes the registry to path.
func (e *Exporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	slog.Info("wrote metrics", slog.String("path", path))
	return nil
}
