// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package pstate

import (
	"errors"

	"amdmsrtweaker/internal/driver"
)

var (
	// ErrUnsupportedCPU is returned by Probe for non-AMD processors and for
	// families other than 10h, 12h, 14h and 15h.
	ErrUnsupportedCPU = errors.New("unsupported CPU")
	// ErrInvalidParameterRange is returned for P-state indexes, multipliers or
	// voltage IDs outside the range the processor accepts.
	ErrInvalidParameterRange = errors.New("parameter out of range")
	// ErrEncodingUnavailable is returned when a multiplier cannot be encoded
	// because the processor does not report the required limit.
	ErrEncodingUnavailable = errors.New("multiplier encoding unavailable")
	// ErrUnsupportedFeature is returned when a register is not present on the
	// processor, e.g. northbridge P-states outside family 15h.
	ErrUnsupportedFeature = errors.New("feature not supported by this processor")
	// ErrRegisterAccess wraps driver failures.
	ErrRegisterAccess = driver.ErrRegisterAccess
)
