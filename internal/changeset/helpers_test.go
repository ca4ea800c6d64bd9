// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package changeset

import mapset "github.com/deckarep/golang-set/v2"

func mapsetOf(values ...int) mapset.Set[int] {
	return mapset.NewSet(values...)
}
