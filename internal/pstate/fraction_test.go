// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package pstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindFraction(t *testing.T) {
	tests := []struct {
		name          string
		value         float64
		divisors      []float64
		minNumerator  int
		maxNumerator  int
		wantNumerator int
		wantIndex     int
	}{
		{"half step", 23.6, divisorsK10, 16, 63, 47, 1},
		{"floor to integer", 21.333, divisorsK10, 16, 63, 21, 0},
		{"exact integer", 20, divisorsK10, 16, 63, 20, 0},
		{"quarter step", 10.25, divisorsK10, 16, 63, 41, 2},
		{"clamped low", 0.5, divisorsK10, 16, 63, 16, 4},
		{"clamped high", 100, divisorsK10, 16, 63, 63, 0},
		{"one and a half divisor", 31 + 1.0/3, divisorsLlano, 16, 47, 47, 1},
		{"northbridge half", 9.5, divisorsNB, 4, 35, 19, 1},
		{"northbridge clamped", 40, divisorsNB, 4, 35, 35, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, i := FindFraction(tt.value, tt.divisors, tt.minNumerator, tt.maxNumerator)
			assert.Equal(t, tt.wantNumerator, n)
			assert.Equal(t, tt.wantIndex, i)
		})
	}
}

// TestFindFraction_GreatestNotAbove checks the result against every
// representable fraction.
func TestFindFraction_GreatestNotAbove(t *testing.T) {
	for _, divisors := range [][]float64{divisorsK10, divisorsLlano} {
		for value := 1.0; value <= 63; value += 0.07 {
			n, i := FindFraction(value, divisors, 16, 47)
			got := float64(n) / divisors[i]
			assert.GreaterOrEqual(t, n, 16)
			assert.LessOrEqual(t, n, 47)

			clamped := min(value, 47.0)
			if clamped >= 16/divisors[len(divisors)-1] {
				assert.LessOrEqual(t, got, clamped+fractionTolerance, "value %g", value)
			}
			for _, d := range divisors {
				for m := 16; m <= 47; m++ {
					candidate := float64(m) / d
					if candidate <= clamped+fractionTolerance {
						assert.LessOrEqual(t, candidate, got+fractionTolerance, "value %g: %d/%g beats %d/%g", value, m, d, n, divisors[i])
					}
				}
			}
		}
	}
}
