// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/speedlink/pkg/dglab"
)

var (
	probeTimeout int
	probeCount   int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the relay by sending heartbeats",
	Long: `Send heartbeat messages to the relay and wait for any response.

This is useful for verifying:
  - The WebSocket connection is established
  - HTTP Basic authentication works
  - The relay is answering messages

Exit codes:
  0 - Every heartbeat was answered
  1 - One or more heartbeats failed or timed out
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 5, "Timeout in seconds for each heartbeat")
	probeCmd.Flags().IntVar(&probeCount, "count", 3, "Number of heartbeats to send")
}

func runProbe(cmd *cobra.Command, args []string) error {
	if probeCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	m, connInfo, err := openLink(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer m.Close()

	events, unsubscribe := m.Subscribe(64)
	defer unsubscribe()

	fmt.Printf("Speedlink - Relay Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per heartbeat\n", probeTimeout)
	fmt.Printf("Count: %d heartbeats\n\n", probeCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= probeCount; i++ {
		fmt.Printf("Heartbeat %d/%d: ", i, probeCount)

		startTime := time.Now()
		if err := m.Send(dglab.NewHeartbeat(startTime.UnixMilli())); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		ev, err := awaitResponse(events, time.Duration(probeTimeout)*time.Second)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			rtt := time.Since(startTime)
			fmt.Printf("%s, rtt=%v\n", dglab.FormatMessageType(ev.MessageType), rtt.Round(time.Millisecond))
			successCount++
		}

		if i < probeCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	stats := m.Stats()
	fmt.Printf("\n--- Probe statistics ---\n")
	fmt.Printf("%d heartbeats sent, %d responses received, %.0f%% loss\n",
		probeCount, successCount, float64(failCount)/float64(probeCount)*100)
	fmt.Printf("Connected for %s\n", formatUptime(uint64(stats.Uptime().Milliseconds())))

	if failCount > 0 {
		m.Close()
		os.Exit(1)
	}
	return nil
}
