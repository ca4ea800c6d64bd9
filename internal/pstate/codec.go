// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package pstate

import (
	"fmt"
	"math"

	"amdmsrtweaker/internal/cpus"
)

// MaxVoltage is the voltage of VID code 0.
const MaxVoltage = 1.55

var (
	// 10h and 15h core divisor IDs
	divisorsK10 = []float64{1, 2, 4, 8, 16}
	// 12h core divisor IDs
	divisorsLlano = []float64{1, 1.5, 2, 3, 4, 6, 8, 12, 16}
	// northbridge divisor IDs
	divisorsNB = []float64{1, 2}
)

const (
	fidOffset    = 16 // core multiplier = (FID + 16) / divisor
	nbFIDOffset  = 4  // northbridge multiplier = (FID + 4) / divisor
	maxFIDK10    = 47
	maxFIDLlano  = 31
	maxNBFID     = 31
	bobcatMinDiv = 1.0
	bobcatMaxDiv = 26.5
)

// Codec converts between physical multipliers and voltages and the raw
// register fields of one processor. Multipliers are in internal units (100 MHz
// reference clock).
type Codec struct {
	Family  int
	VIDStep float64
	// MaxMulti is the family 14h main PLL multiplier that all core
	// multipliers divide. Unused elsewhere.
	MaxMulti float64
}

// DecodeMulti returns the multiplier selected by a core FID/DID pair, or 0 for
// reserved divisor IDs.
func (c Codec) DecodeMulti(fid, did int) float64 {
	switch c.Family {
	case cpus.Family14h:
		divisor := float64(fid + 1)
		if divisor >= 16 {
			// only half-step divisors above 16
			did &^= 1
		}
		divisor += float64(did) * 0.25
		return c.MaxMulti / divisor
	case cpus.Family12h:
		if did < 0 || did >= len(divisorsLlano) {
			return 0
		}
		return float64(fid+fidOffset) / divisorsLlano[did]
	default:
		if did < 0 || did >= len(divisorsK10) {
			return 0
		}
		return float64(fid+fidOffset) / divisorsK10[did]
	}
}

// EncodeMulti returns the FID/DID pair of the largest multiplier that does not
// exceed multi. Family 14h rounds the divisor up to the next quarter step
// instead.
func (c Codec) EncodeMulti(multi float64) (fid, did int, err error) {
	switch c.Family {
	case cpus.Family14h:
		return c.encodeBobcat(multi)
	case cpus.Family12h:
		n, i := FindFraction(multi, divisorsLlano, fidOffset, fidOffset+maxFIDLlano)
		return n - fidOffset, i, nil
	default:
		n, i := FindFraction(multi, divisorsK10, fidOffset, fidOffset+maxFIDK10)
		return n - fidOffset, i, nil
	}
}

func (c Codec) encodeBobcat(multi float64) (fid, did int, err error) {
	if c.MaxMulti == 0 {
		return 0, 0, fmt.Errorf("%w: family 14h maximum multiplier unknown", ErrEncodingUnavailable)
	}
	if multi <= 0 {
		return 0, 0, fmt.Errorf("%w: multiplier %g", ErrInvalidParameterRange, multi)
	}
	exact := math.Max(bobcatMinDiv, math.Min(bobcatMaxDiv, c.MaxMulti/multi))
	integer, fraction := math.Modf(exact)
	fid = int(integer) - 1
	did = int(math.Ceil(fraction/0.25 - fractionTolerance))
	if integer >= 16 {
		// only half steps
		switch did {
		case 1:
			did = 2
		case 3:
			did = 4
		}
	}
	if did == 4 {
		fid++
		did = 0
	}
	return fid, did, nil
}

// MaxVIDCode is the VID of 0 V.
func (c Codec) MaxVIDCode() int {
	return int(math.Round(MaxVoltage / c.VIDStep))
}

// DecodeVID returns the voltage of a VID code.
func (c Codec) DecodeVID(vid int) float64 {
	return MaxVoltage - float64(vid)*c.VIDStep
}

// EncodeVID returns the VID code nearest to volts, clamped to [0, 1.55] V.
func (c Codec) EncodeVID(volts float64) int {
	volts = math.Max(0, math.Min(MaxVoltage, volts))
	steps := int(math.Floor(volts/c.VIDStep + 0.5))
	return c.MaxVIDCode() - steps
}

// DecodeNBMulti returns the northbridge multiplier (200 MHz reference clock)
// of a FID/DID pair.
func DecodeNBMulti(fid, did int) float64 {
	if did < 0 || did >= len(divisorsNB) {
		return 0
	}
	return float64(fid+nbFIDOffset) / divisorsNB[did]
}

// EncodeNBMulti returns the northbridge FID/DID pair of the largest multiplier
// not exceeding multi.
func EncodeNBMulti(multi float64) (fid, did int) {
	n, i := FindFraction(multi, divisorsNB, nbFIDOffset, nbFIDOffset+maxNBFID)
	return n - nbFIDOffset, i
}
