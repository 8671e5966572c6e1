// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package errors defines the structured error kinds shared by the speedlink
// packages. Every failure that crosses a package boundary is an *Error so
// callers can branch on Kind instead of matching message text.
package errors

import (
	e "errors"
	"fmt"
	"log/slog"
)

type (
	// Error represents a structured speedlink error.
	Error struct {
		Message string
		Kind    Kind

		NestedError error

		// Optional context for logging.
		PropertyName  string
		PropertyValue any
	}

	// Kind defines the category of an error.
	Kind int
)

// The following are the defined error kinds.
const (
	// InvalidInput covers negative or non-finite speeds and malformed URLs.
	InvalidInput Kind = iota
	// EncodeFailure is an unexpected serialization error; fatal to that call only.
	EncodeFailure
	// DecodeFailure is a malformed inbound message; the connection stays open.
	DecodeFailure
	// NotConnected is a send attempted while the link is not connected.
	NotConnected
	// TransportError is a socket-level failure; it triggers the reconnect policy.
	TransportError
	// ReconnectExhausted is terminal until an explicit reconnect.
	ReconnectExhausted
)

var kindNames = map[Kind]string{
	InvalidInput:       "invalid_input",
	EncodeFailure:      "encode_failure",
	DecodeFailure:      "decode_failure",
	NotConnected:       "not_connected",
	TransportError:     "transport_error",
	ReconnectExhausted: "reconnect_exhausted",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error returns the error as a string.
func (e *Error) Error() string {
	if e.NestedError != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.NestedError)
	}
	return e.Message
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	return e.NestedError
}

// Attrs exposes the error fields to structured logging.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 3)
	a = append(a, slog.String("kind", e.Kind.String()))
	if e.NestedError != nil {
		a = append(a, slog.Any("nested_error", e.NestedError))
	}
	if e.PropertyName != "" {
		a = append(a, slog.Any(e.PropertyName, e.PropertyValue))
	}
	return a
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a nested cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:        kind,
		Message:     fmt.Sprintf(format, args...),
		NestedError: err,
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if e.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
