// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"os"
	"runtime/pprof"

	"amdmsrtweaker/cmd"
)

func main() {
	// CPU profile of a single run, e.g., to time the commit sequence
	if path := os.Getenv("AMDMSRTWEAKER_PROFILE"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
		defer fmt.Fprintf(os.Stderr, "CPU profile written to %s, analyze with: go tool pprof %s\n", path, path)
	}
	cmd.Execute()
}
