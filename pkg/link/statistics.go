// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"time"
)

// Statistics tracks link traffic and error counts
type Statistics struct {
	StartTime   time.Time
	ConnectedAt time.Time // zero while not connected
	SnapshotAt  time.Time

	// Counters
	CommandsSent      uint64
	Heartbeats        uint64
	ResponsesReceived uint64
	DecodeErrors      uint64
	Anomalies         uint64
	SendFailures      uint64
	TransportErrors   uint64
	Connects          uint64
	Reconnects        uint64
	DroppedEvents     uint64
}

// Uptime returns how long the current connection has been open.
func (s Statistics) Uptime() time.Duration {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	return s.SnapshotAt.Sub(s.ConnectedAt)
}

// CommandRate returns commands sent per second since the manager started.
func (s Statistics) CommandRate() float64 {
	elapsed := s.SnapshotAt.Sub(s.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.CommandsSent) / elapsed
}

// ErrorCount sums every error counter.
func (s Statistics) ErrorCount() uint64 {
	return s.DecodeErrors + s.SendFailures + s.TransportErrors
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	elapsed := s.SnapshotAt.Sub(s.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Commands Sent:   %8d\n", s.CommandsSent)
	result += fmt.Sprintf("Heartbeats:      %8d\n", s.Heartbeats)
	result += fmt.Sprintf("Responses:       %8d\n", s.ResponsesReceived)

	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
	}
	if s.SendFailures > 0 {
		result += fmt.Sprintf("Send Failures:   %8d\n", s.SendFailures)
	}
	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errors:%8d\n", s.TransportErrors)
	}
	if s.DroppedEvents > 0 {
		result += fmt.Sprintf("Dropped Events:  %8d\n", s.DroppedEvents)
	}

	result += fmt.Sprintf("Connects:        %8d\n", s.Connects)
	result += fmt.Sprintf("Reconnects:      %8d\n", s.Reconnects)
	result += fmt.Sprintf("Uptime:          %8s\n", s.Uptime().Truncate(time.Second))
	result += fmt.Sprintf("Command Rate:    %8.1f cmds/sec\n", s.CommandRate())
	result += "================================\n"

	return result
}
