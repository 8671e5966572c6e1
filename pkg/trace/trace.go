// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package trace records a session as a stream of CBOR items: one header
// followed by one record per processed sample, sent command or received
// response. Recordings can be replayed as a speed source.
package trace

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/speed"
)

// Version is the trace format version written in every header.
const Version = 1

// Kind identifies a record.
type Kind uint8

const (
	KindSample Kind = iota + 1
	KindCommand
	KindResponse
)

// String returns the record kind name.
func (k Kind) String() string {
	switch k {
	case KindSample:
		return "sample"
	case KindCommand:
		return "command"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Header opens every trace.
type Header struct {
	Version   int    `cbor:"0,keyasint"`
	SessionID string `cbor:"1,keyasint"`
	StartedMs int64  `cbor:"2,keyasint"` // unix milliseconds
	URL       string `cbor:"3,keyasint,omitempty"`
	Format    string `cbor:"4,keyasint,omitempty"`
}

// Started returns the session start time.
func (h Header) Started() time.Time {
	return time.UnixMilli(h.StartedMs)
}

// Record is one traced observation. Offsets are relative to the header start.
type Record struct {
	Kind      Kind    `cbor:"0,keyasint"`
	OffsetMs  int64   `cbor:"1,keyasint"`
	Speed     float64 `cbor:"2,keyasint,omitempty"`
	Smoothed  float64 `cbor:"3,keyasint,omitempty"`
	Intensity int     `cbor:"4,keyasint,omitempty"`
	Frequency int     `cbor:"5,keyasint,omitempty"`
	Type      string  `cbor:"6,keyasint,omitempty"`
	Raw       []byte  `cbor:"7,keyasint,omitempty"`
}

// Offset returns the record offset as a duration.
func (r Record) Offset() time.Duration {
	return time.Duration(r.OffsetMs) * time.Millisecond
}

// Writer appends records to a trace. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	header Header
}

// NewWriter writes h to w and returns a writer for the records that follow.
// A missing session id or start time is filled in.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	h.Version = Version
	if h.SessionID == "" {
		h.SessionID = uuid.NewString()
	}
	if h.StartedMs == 0 {
		h.StartedMs = time.Now().UnixMilli()
	}

	enc := cbor.NewEncoder(w)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("failed to write trace header: %w", err)
	}
	tw := &Writer{enc: enc, header: h}
	if c, ok := w.(io.Closer); ok {
		tw.closer = c
	}
	return tw, nil
}

// Create writes a new trace file at path.
func Create(path string, h Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace %s: %w", path, err)
	}
	w, err := NewWriter(f, h)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Header returns the header written at the start of the trace.
func (w *Writer) Header() Header {
	return w.header
}

// Write appends one record.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write trace record: %w", err)
	}
	return nil
}

// WriteSample records one processed sample.
func (w *Writer) WriteSample(t time.Time, raw, smoothed float64, p speed.Params) error {
	return w.Write(Record{
		Kind:      KindSample,
		OffsetMs:  w.offset(t),
		Speed:     raw,
		Smoothed:  smoothed,
		Intensity: p.Intensity,
		Frequency: p.Frequency,
	})
}

// WriteEvent records sent commands and received responses. Other events are
// ignored.
func (w *Writer) WriteEvent(ev link.Event) error {
	var kind Kind
	switch ev.Type {
	case link.EventCommandSent:
		kind = KindCommand
	case link.EventResponseReceived:
		kind = KindResponse
	default:
		return nil
	}
	return w.Write(Record{
		Kind:     kind,
		OffsetMs: w.offset(ev.Time),
		Type:     ev.MessageType,
		Raw:      ev.Raw,
	})
}

func (w *Writer) offset(t time.Time) int64 {
	return t.UnixMilli() - w.header.StartedMs
}

// Close closes the underlying file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// Reader reads a trace written by Writer.
type Reader struct {
	dec    *cbor.Decoder
	closer io.Closer
	Header Header
}

// NewReader reads and checks the trace header.
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)
	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to read trace header: %w", err)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("unsupported trace version %d (want %d)", h.Version, Version)
	}
	tr := &Reader{dec: dec, Header: h}
	if c, ok := r.(io.Closer); ok {
		tr.closer = c
	}
	return tr, nil
}

// Open opens a trace file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Next returns the next record, or io.EOF at the end of the trace.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read trace record: %w", err)
	}
	return rec, nil
}

// Samples reads the remaining records and returns the samples among them.
func (r *Reader) Samples() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if rec.Kind == KindSample {
			out = append(out, rec)
		}
	}
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
