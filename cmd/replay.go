// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/speedlink/pkg/dglab"
	"github.com/Thermoquad/speedlink/pkg/trace"
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace>",
	Short: "Print a recorded session trace",
	Long: `Decode and print a CBOR trace written by run or monitor with --trace.

Each record is shown with its offset from the session start. Recorded
commands and responses are decoded the same way the link decodes them.

To drive the device from a trace instead, use:
  speedlink run --replay <trace> [--speedup 2]`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	r, err := trace.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header
	fmt.Printf("Speedlink - Trace Replay\n")
	fmt.Printf("Session: %s\n", h.SessionID)
	fmt.Printf("Started: %s\n", h.Started().Format("2006-01-02 15:04:05.000"))
	if h.URL != "" {
		fmt.Printf("Relay: %s (%s)\n", h.URL, h.Format)
	}
	fmt.Println()

	counts := map[trace.Kind]int{}
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		counts[rec.Kind]++
		fmt.Println(formatRecord(rec))
	}

	fmt.Printf("\n--- Trace statistics ---\n")
	fmt.Printf("%d samples, %d commands, %d responses\n",
		counts[trace.KindSample], counts[trace.KindCommand], counts[trace.KindResponse])
	return nil
}

// formatRecord renders one trace record on a single line.
func formatRecord(rec trace.Record) string {
	prefix := fmt.Sprintf("[+%9.3fs] ", rec.Offset().Seconds())
	switch rec.Kind {
	case trace.KindSample:
		return prefix + fmt.Sprintf("SAMPLE speed=%.1f smoothed=%.1f intensity=%d frequency=%dHz",
			rec.Speed, rec.Smoothed, rec.Intensity, rec.Frequency)
	case trace.KindCommand, trace.KindResponse:
		arrow := "->"
		if rec.Kind == trace.KindResponse {
			arrow = "<-"
		}
		return prefix + arrow + " " + formatRaw(rec.Raw)
	default:
		return prefix + fmt.Sprintf("%s %x", rec.Kind, rec.Raw)
	}
}

func formatRaw(raw []byte) string {
	if dglab.IsLegacy(raw) {
		cmd, err := dglab.DecodeLegacy(string(raw))
		if err != nil {
			return fmt.Sprintf("[ERROR] %v", err)
		}
		return dglab.FormatCommand(cmd)
	}
	msg, err := dglab.Decode(raw)
	if err != nil {
		return fmt.Sprintf("[ERROR] %v", err)
	}
	return dglab.FormatMessage(msg)
}
