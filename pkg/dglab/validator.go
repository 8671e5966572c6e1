// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dglab

import "fmt"

// AnomalyType represents different types of message anomalies
type AnomalyType int

const (
	AnomalyUnknownType AnomalyType = iota
	AnomalyMissingField
	AnomalyInvalidChannel
	AnomalyInvalidIntensity
	AnomalyInvalidFrequency
	AnomalyServerError
)

// ValidationError represents a message validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]any
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Validate checks a decoded message for out-of-range values and unknown
// types. It returns an empty slice when the message is valid.
func Validate(m Message) []ValidationError {
	errs := []ValidationError{}

	if m.ErrorText != "" {
		errs = append(errs, ValidationError{
			Type:    AnomalyServerError,
			Message: fmt.Sprintf("Server reported error: %s", m.ErrorText),
			Details: map[string]any{"error": m.ErrorText},
		})
	}

	switch m.Type {
	case TypeStrength:
		errs = append(errs, validateChannel(m)...)
		errs = append(errs, validateRange(m, "intensity", IntensityMin, IntensityMax, AnomalyInvalidIntensity)...)
	case TypePulse:
		errs = append(errs, validateChannel(m)...)
		errs = append(errs, validateRange(m, "frequency", FrequencyMin, FrequencyMax, AnomalyInvalidFrequency)...)
		errs = append(errs, validateRange(m, "intensity", IntensityMin, IntensityMax, AnomalyInvalidIntensity)...)
	case TypeQRBind:
		if _, ok := m.DataString(); !ok {
			errs = append(errs, ValidationError{
				Type:    AnomalyMissingField,
				Message: "qrCode data must be a string",
			})
		}
	case TypeHeartbeat, TypeError:
	default:
		errs = append(errs, ValidationError{
			Type:    AnomalyUnknownType,
			Message: fmt.Sprintf("Unknown message type %q", m.Type),
			Details: map[string]any{"type": m.Type},
		})
	}

	return errs
}

func validateChannel(m Message) []ValidationError {
	ch, ok := m.GetString("channel")
	if !ok {
		return []ValidationError{{
			Type:    AnomalyMissingField,
			Message: fmt.Sprintf("%s missing channel", m.Type),
			Details: map[string]any{"field": "channel"},
		}}
	}
	if !Channel(ch).Valid() {
		return []ValidationError{{
			Type:    AnomalyInvalidChannel,
			Message: fmt.Sprintf("Invalid channel %q", ch),
			Details: map[string]any{"channel": ch},
		}}
	}
	return nil
}

func validateRange(m Message, field string, lo, hi int, anomaly AnomalyType) []ValidationError {
	v, ok := m.GetInt(field)
	if !ok {
		return []ValidationError{{
			Type:    AnomalyMissingField,
			Message: fmt.Sprintf("%s missing %s", m.Type, field),
			Details: map[string]any{"field": field},
		}}
	}
	if v < lo || v > hi {
		return []ValidationError{{
			Type:    anomaly,
			Message: fmt.Sprintf("Invalid %s=%d (range %d-%d)", field, v, lo, hi),
			Details: map[string]any{field: v, "min": lo, "max": hi},
		}}
	}
	return nil
}
