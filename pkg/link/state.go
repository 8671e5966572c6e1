// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link manages the websocket session to the DG-LAB relay: dialing,
// heartbeat, bounded reconnection, outbound commands and inbound responses.
// Everything the link observes is published as a typed Event.
package link

// State is the lifecycle state of the link.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}
