// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Speedlink - speed-driven DG-LAB controller
//
// A CLI tool that turns a stream of speed readings into strength and
// pulse commands for a DG-LAB device reached through a WebSocket relay.

package main

import (
	"os"

	"github.com/Thermoquad/speedlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
