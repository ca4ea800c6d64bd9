// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package pstate

import "fmt"

// Opt holds a value that may be absent. The zero value is absent.
type Opt[T any] struct {
	value T
	set   bool
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, set: true}
}

func None[T any]() Opt[T] {
	return Opt[T]{}
}

func (o Opt[T]) Get() (T, bool) {
	return o.value, o.set
}

func (o Opt[T]) IsSet() bool {
	return o.set
}

// OrElse returns the value, or def when absent.
func (o Opt[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

func (o Opt[T]) String() string {
	if !o.set {
		return "-"
	}
	return fmt.Sprint(o.value)
}
