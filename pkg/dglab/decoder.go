// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dglab

import (
	"bytes"
	"encoding/json"

	"github.com/Thermoquad/speedlink/pkg/errors"
)

// Message is a decoded inbound structured message.
type Message struct {
	Type      string
	Data      json.RawMessage // nil when absent
	Timestamp int64           // 0 when absent or not an integer
	ErrorText string          // server "error" field, when it is a string
	Raw       []byte
}

// HasError reports whether the server attached an error to the message.
func (m Message) HasError() bool {
	return m.ErrorText != "" || m.Type == TypeError
}

// DataObject returns Data as a field map, or nil if Data is not an object.
func (m Message) DataObject() map[string]json.RawMessage {
	if len(m.Data) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(m.Data, &obj); err != nil {
		return nil
	}
	return obj
}

// DataString returns Data as a string when it is a JSON string.
func (m Message) DataString() (string, bool) {
	var s string
	if len(m.Data) == 0 || json.Unmarshal(m.Data, &s) != nil {
		return "", false
	}
	return s, true
}

// GetInt extracts an integer field from an object payload.
func (m Message) GetInt(key string) (int, bool) {
	raw, ok := m.DataObject()[key]
	if !ok {
		return 0, false
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

// GetString extracts a string field from an object payload.
func (m Message) GetString(key string) (string, bool) {
	raw, ok := m.DataObject()[key]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

type inbound struct {
	Type      json.RawMessage `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp json.RawMessage `json:"timestamp"`
	Error     json.RawMessage `json:"error"`
}

// Decode parses an inbound JSON document. Malformed JSON, a non-object
// document or a missing or non-string "type" yields a DecodeFailure error;
// Decode never panics on untrusted input.
func Decode(raw []byte) (Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{Raw: raw}, decodeErr("message is not a JSON object")
	}

	var in inbound
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return Message{Raw: raw}, errors.Wrap(errors.DecodeFailure, err, "malformed JSON")
	}

	msg := Message{Raw: raw}
	if len(in.Type) == 0 {
		return msg, decodeErr("missing type field")
	}
	if err := json.Unmarshal(in.Type, &msg.Type); err != nil || msg.Type == "" {
		return msg, decodeErr("type field is not a non-empty string")
	}

	if len(in.Data) > 0 && !bytes.Equal(in.Data, []byte("null")) {
		msg.Data = in.Data
	}
	if len(in.Timestamp) > 0 {
		var ts int64
		if json.Unmarshal(in.Timestamp, &ts) == nil {
			msg.Timestamp = ts
		}
	}
	if len(in.Error) > 0 {
		var text string
		if json.Unmarshal(in.Error, &text) == nil {
			msg.ErrorText = text
		} else if !bytes.Equal(in.Error, []byte("null")) {
			msg.ErrorText = string(in.Error)
		}
	}

	return msg, nil
}
