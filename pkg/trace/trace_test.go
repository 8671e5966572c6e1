// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package trace

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/speed"
)

func TestWriterReader(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	var buf bytes.Buffer

	w, err := NewWriter(&buf, Header{StartedMs: start.UnixMilli(), URL: "wss://relay.example", Format: "json"})
	require.NoError(t, err)
	_, err = uuid.Parse(w.Header().SessionID)
	require.NoError(t, err, "session id should be a uuid")

	require.NoError(t, w.WriteSample(start.Add(250*time.Millisecond), 42.5, 40, speed.Params{Intensity: 67, Frequency: 40}))
	require.NoError(t, w.WriteEvent(link.Event{
		Type:        link.EventCommandSent,
		Time:        start.Add(260 * time.Millisecond),
		MessageType: "pulse",
		Raw:         []byte(`{"type":"pulse"}`),
	}))
	require.NoError(t, w.WriteEvent(link.Event{Type: link.EventOpened, Time: start}))
	require.NoError(t, w.WriteEvent(link.Event{
		Type:        link.EventResponseReceived,
		Time:        start.Add(300 * time.Millisecond),
		MessageType: "heartbeat",
		Raw:         []byte(`{"type":"heartbeat"}`),
	}))
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, w.Header(), r.Header)
	assert.Equal(t, start, r.Header.Started())

	var got []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
	}

	want := []Record{
		{Kind: KindSample, OffsetMs: 250, Speed: 42.5, Smoothed: 40, Intensity: 67, Frequency: 40},
		{Kind: KindCommand, OffsetMs: 260, Type: "pulse", Raw: []byte(`{"type":"pulse"}`)},
		{Kind: KindResponse, OffsetMs: 300, Type: "heartbeat", Raw: []byte(`{"type":"heartbeat"}`)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 250*time.Millisecond, got[0].Offset())
}

func TestCreateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.trace")

	w, err := Create(path, Header{})
	require.NoError(t, err)
	for i, s := range []float64{10, 20, 30} {
		require.NoError(t, w.Write(Record{Kind: KindSample, OffsetMs: int64(i * 100), Speed: s}))
		require.NoError(t, w.Write(Record{Kind: KindResponse, OffsetMs: int64(i*100 + 1), Type: "pulse"}))
	}
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	samples, err := r.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 30.0, samples[2].Speed)
	assert.Equal(t, Version, r.Header.Version)
	assert.NotZero(t, r.Header.StartedMs)
}

func TestNewReader_RejectsUnknownVersion(t *testing.T) {
	data, err := cbor.Marshal(Header{Version: 99, SessionID: "x"})
	require.NoError(t, err)

	_, err = NewReader(bytes.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported trace version 99")
}

func TestNewReader_Empty(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestReader_TruncatedRecord(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Header{})
	require.NoError(t, err)
	require.NoError(t, w.Write(Record{Kind: KindSample, Speed: 12}))

	data := buf.Bytes()[:buf.Len()-2]
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = r.Next()
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "sample", KindSample.String())
	assert.Equal(t, "command", KindCommand.String())
	assert.Equal(t, "response", KindResponse.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
