// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dglab

import (
	"fmt"
	"strings"
)

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType string) string {
	switch msgType {
	case TypeStrength:
		return "STRENGTH"
	case TypePulse:
		return "PULSE"
	case TypeQRBind:
		return "QR_CODE"
	case TypeHeartbeat:
		return "HEARTBEAT"
	case TypeError:
		return "ERROR"
	case PrefixB0:
		return "LEGACY_B0"
	case PrefixBF:
		return "LEGACY_BF"
	default:
		return "UNKNOWN"
	}
}

// FormatMessage formats an inbound message into a single readable line
func FormatMessage(m Message) string {
	var b strings.Builder
	b.WriteString(FormatMessageType(m.Type))
	if FormatMessageType(m.Type) == "UNKNOWN" {
		fmt.Fprintf(&b, " (%s)", m.Type)
	}

	switch m.Type {
	case TypeStrength, TypePulse:
		if ch, ok := m.GetString("channel"); ok {
			fmt.Fprintf(&b, " channel=%s", ch)
		}
		if f, ok := m.GetInt("frequency"); ok {
			fmt.Fprintf(&b, " frequency=%dHz", f)
		}
		if i, ok := m.GetInt("intensity"); ok {
			fmt.Fprintf(&b, " intensity=%d", i)
		}
	case TypeQRBind:
		if s, ok := m.DataString(); ok {
			fmt.Fprintf(&b, " code=%q", s)
		}
	default:
		if len(m.Data) > 0 {
			fmt.Fprintf(&b, " data=%s", m.Data)
		}
	}

	if m.Timestamp != 0 {
		fmt.Fprintf(&b, " ts=%d", m.Timestamp)
	}
	if m.ErrorText != "" {
		fmt.Fprintf(&b, " error=%q", m.ErrorText)
	}
	return b.String()
}

// FormatCommand formats an outbound command into a single readable line
func FormatCommand(c Command) string {
	name := FormatMessageType(c.Type())
	switch v := c.(type) {
	case Strength:
		return fmt.Sprintf("%s channel=%s intensity=%d", name, v.Channel, v.Intensity)
	case Pulse:
		return fmt.Sprintf("%s channel=%s frequency=%dHz intensity=%d", name, v.Channel, v.Frequency, v.Intensity)
	case QRBind:
		return fmt.Sprintf("%s code=%q", name, v.Code)
	case Heartbeat:
		return fmt.Sprintf("%s ts=%d", name, v.Timestamp)
	case LegacyB0:
		return fmt.Sprintf("%s %s", name, EncodeLegacyB0(v.Channel, v.Intensity))
	case LegacyBF:
		return fmt.Sprintf("%s %s", name, EncodeLegacyBF(v.Channel, v.Frequency, v.Intensity))
	default:
		return name
	}
}
