// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package pstate

import "math"

// fractionTolerance absorbs binary rounding of products such as 31.333*1.5.
const fractionTolerance = 1e-9

// FindFraction returns the numerator and divisor index of the greatest
// fraction numerator/divisors[i] that does not exceed value, with the
// numerator limited to [minNumerator, maxNumerator]. Divisors must be non-empty
// and ascending. value is first clamped to the representable range.
func FindFraction(value float64, divisors []float64, minNumerator, maxNumerator int) (numerator, divisorIndex int) {
	lowest := float64(minNumerator) / divisors[len(divisors)-1]
	highest := float64(maxNumerator) / divisors[0]
	value = math.Max(lowest, math.Min(highest, value))

	best := math.Inf(-1)
	for i, divisor := range divisors {
		n := int(math.Floor(value*divisor + fractionTolerance))
		n = max(minNumerator, min(maxNumerator, n))
		candidate := float64(n) / divisor
		if candidate > value+fractionTolerance || candidate <= best {
			continue
		}
		best = candidate
		numerator = n
		divisorIndex = i
		if math.Abs(candidate-value) <= fractionTolerance {
			break
		}
	}
	return
}
