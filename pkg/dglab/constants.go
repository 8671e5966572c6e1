// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dglab implements the DG-LAB socket command formats used by speedlink.
//
// Two wire formats coexist on the same connection: a structured JSON command
// ({"type": ..., "data": ...}) and a legacy comma-separated ASCII command
// terminated by ';' and carrying an additive checksum. This package builds
// both, decodes inbound structured responses and legacy lines, validates
// decoded values and formats them for display.
package dglab

// Structured message types
const (
	TypeStrength  = "strength"
	TypePulse     = "pulse"
	TypeQRBind    = "qrCode"
	TypeHeartbeat = "heartbeat"
	TypeError     = "error"
)

// Legacy command framing
const (
	PrefixB0  = "B0"
	PrefixBF  = "BF"
	Separator = ","
	EndMarker = ";"
)

// Parameter bounds
const (
	IntensityMin = 0
	IntensityMax = 200
	FrequencyMin = 10 // Hz
	FrequencyMax = 240
)

// Channel identifies one of the two independent outputs on the device.
type Channel string

// Channel values
const (
	ChannelA Channel = "A"
	ChannelB Channel = "B"
)

// Channels lists every device channel in order.
var Channels = []Channel{ChannelA, ChannelB}

// Valid reports whether c names a device channel.
func (c Channel) Valid() bool {
	return c == ChannelA || c == ChannelB
}

// ParseChannel parses "A" or "B" (case-insensitive).
func ParseChannel(s string) (Channel, bool) {
	switch s {
	case "A", "a":
		return ChannelA, true
	case "B", "b":
		return ChannelB, true
	}
	return "", false
}

// ClampIntensity limits v to [IntensityMin, IntensityMax].
func ClampIntensity(v int) int {
	return clamp(v, IntensityMin, IntensityMax)
}

// ClampFrequency limits v to [FrequencyMin, FrequencyMax].
func ClampFrequency(v int) int {
	return clamp(v, FrequencyMin, FrequencyMax)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
