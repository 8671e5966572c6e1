// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dglab

import (
	"encoding/json"

	"github.com/Thermoquad/speedlink/pkg/errors"
)

// Command is anything that can be written to the device link.
type Command interface {
	// Type returns the command's type tag (e.g. "strength" or "B0").
	Type() string
	// Marshal returns the exact bytes sent on the wire.
	Marshal() ([]byte, error)
}

// Command builder functions clamp their numeric arguments to the protocol
// bounds so the encoded command is always in range.

// Strength sets the intensity of one channel.
type Strength struct {
	Channel   Channel
	Intensity int
}

// NewStrength creates a strength command with intensity clamped to [0, 200].
func NewStrength(ch Channel, intensity int) Strength {
	return Strength{Channel: ch, Intensity: ClampIntensity(intensity)}
}

// Type returns "strength".
func (Strength) Type() string { return TypeStrength }

// Marshal encodes {"type":"strength","data":{"channel":..,"intensity":..}}.
func (s Strength) Marshal() ([]byte, error) {
	if !s.Channel.Valid() {
		return nil, invalidChannel(s.Channel)
	}
	return marshal(envelope{
		Type: TypeStrength,
		Data: strengthData{Channel: s.Channel, Intensity: ClampIntensity(s.Intensity)},
	})
}

// Pulse sets frequency and intensity of one channel.
type Pulse struct {
	Channel   Channel
	Frequency int
	Intensity int
}

// NewPulse creates a pulse command with both values clamped to their bounds.
func NewPulse(ch Channel, frequency, intensity int) Pulse {
	return Pulse{
		Channel:   ch,
		Frequency: ClampFrequency(frequency),
		Intensity: ClampIntensity(intensity),
	}
}

// Type returns "pulse".
func (Pulse) Type() string { return TypePulse }

// Marshal encodes {"type":"pulse","data":{"channel":..,"frequency":..,"intensity":..}}.
func (p Pulse) Marshal() ([]byte, error) {
	if !p.Channel.Valid() {
		return nil, invalidChannel(p.Channel)
	}
	return marshal(envelope{
		Type: TypePulse,
		Data: pulseData{
			Channel:   p.Channel,
			Frequency: ClampFrequency(p.Frequency),
			Intensity: ClampIntensity(p.Intensity),
		},
	})
}

// QRBind binds the session to the code scanned from the device app.
type QRBind struct {
	Code string
}

// NewQRBind creates a QR bind command carrying the raw scanned string.
func NewQRBind(code string) QRBind {
	return QRBind{Code: code}
}

// Type returns "qrCode".
func (QRBind) Type() string { return TypeQRBind }

// Marshal encodes {"type":"qrCode","data":"<code>"}.
func (q QRBind) Marshal() ([]byte, error) {
	return marshal(envelope{Type: TypeQRBind, Data: q.Code})
}

// Heartbeat keeps the session alive.
type Heartbeat struct {
	Timestamp int64 // epoch milliseconds
}

// NewHeartbeat creates a heartbeat stamped with nowMillis.
func NewHeartbeat(nowMillis int64) Heartbeat {
	return Heartbeat{Timestamp: nowMillis}
}

// Type returns "heartbeat".
func (Heartbeat) Type() string { return TypeHeartbeat }

// Marshal encodes {"type":"heartbeat","timestamp":<ms>}.
func (h Heartbeat) Marshal() ([]byte, error) {
	return marshal(heartbeatEnvelope{Type: TypeHeartbeat, Timestamp: h.Timestamp})
}

// EncodeStrength builds and marshals a strength command.
func EncodeStrength(ch Channel, intensity int) ([]byte, error) {
	return NewStrength(ch, intensity).Marshal()
}

// EncodePulse builds and marshals a pulse command.
func EncodePulse(ch Channel, frequency, intensity int) ([]byte, error) {
	return NewPulse(ch, frequency, intensity).Marshal()
}

// EncodeQRBind builds and marshals a QR bind command.
func EncodeQRBind(code string) ([]byte, error) {
	return NewQRBind(code).Marshal()
}

// EncodeHeartbeat builds and marshals a heartbeat command.
func EncodeHeartbeat(nowMillis int64) ([]byte, error) {
	return NewHeartbeat(nowMillis).Marshal()
}

// Wire shapes. Field order is the encoding order.

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type heartbeatEnvelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type strengthData struct {
	Channel   Channel `json:"channel"`
	Intensity int     `json:"intensity"`
}

type pulseData struct {
	Channel   Channel `json:"channel"`
	Frequency int     `json:"frequency"`
	Intensity int     `json:"intensity"`
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(errors.EncodeFailure, err, "failed to encode command")
	}
	return data, nil
}

func invalidChannel(ch Channel) error {
	return &errors.Error{
		Kind:          errors.EncodeFailure,
		Message:       "invalid channel",
		PropertyName:  "channel",
		PropertyValue: string(ch),
	}
}
