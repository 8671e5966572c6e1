// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package source

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/speedlink/internal/timeutil"
	"github.com/Thermoquad/speedlink/pkg/errors"
	"github.com/Thermoquad/speedlink/pkg/trace"
)

func TestParseNMEA(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    float64
		wantOK  bool
		wantErr bool
	}{
		{"RMC with fix", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A", 41.4848, true, false},
		{"RMC without checksum", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W", 41.4848, true, false},
		{"RMC no fix", "$GNRMC,123519,V,,,,,,,230394,,,N*4F", 0, false, false},
		{"VTG km/h field", "$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48", 10.2, true, false},
		{"VTG knots fallback", "$GPVTG,054.7,T,034.4,M,005.5,N,,K*65", 10.186, true, false},
		{"other sentence", "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47", 0, false, false},
		{"bad checksum", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*00", 0, false, true},
		{"no dollar", "GPRMC,123519,A", 0, false, true},
		{"short RMC", "$GPRMC,123519,A", 0, false, true},
		{"bad speed", "$GPRMC,123519,A,4807.038,N,01131.000,E,fast,084.4,230394,003.1,W", 0, false, true},
		{"bad address", "$RMC,1,2", 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseNMEA(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsKind(err, errors.DecodeFailure))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

type collector struct {
	mu     sync.Mutex
	speeds []float64
}

func (c *collector) sink(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speeds = append(c.speeds, v)
}

func (c *collector) values() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.speeds...)
}

func TestNMEA_Run(t *testing.T) {
	input := strings.Join([]string{
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
		"",
		"garbage",
		"$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48",
	}, "\r\n")

	src := NewNMEA(io.NopCloser(strings.NewReader(input)), "test", nil)
	c := &collector{}
	require.NoError(t, src.Run(context.Background(), c.sink))

	got := c.values()
	require.Len(t, got, 2)
	assert.InDelta(t, 41.4848, got[0], 1e-9)
	assert.InDelta(t, 10.2, got[1], 1e-9)
	assert.Equal(t, "test", src.Name())
}

func TestNMEA_RunStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := NewNMEA(pr, "pipe", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := &collector{}
	go func() { done <- src.Run(ctx, c.sink) }()

	_, err := pw.Write([]byte("$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.values()) == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	require.NoError(t, src.Close())
}

func TestManual(t *testing.T) {
	m := NewManual()
	assert.Equal(t, "manual", m.Name())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &collector{}
	go func() { _ = m.Run(ctx, c.sink) }()

	assert.True(t, m.Set(42))
	assert.True(t, m.Set(-3))
	require.Eventually(t, func() bool { return len(c.values()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []float64{42, -3}, c.values())
}

func TestManual_DropsWhenFull(t *testing.T) {
	m := NewManual()
	for i := 0; i < 8; i++ {
		require.True(t, m.Set(float64(i)))
	}
	assert.False(t, m.Set(99))
	assert.Equal(t, uint64(1), m.Dropped())
}

func TestManual_CloseEndsRun(t *testing.T) {
	m := NewManual()
	require.True(t, m.Set(10))
	require.True(t, m.Set(20))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.False(t, m.Set(30))

	c := &collector{}
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), c.sink) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, []float64{10, 20}, c.values())
	assert.Equal(t, uint64(1), m.Dropped())
}

// ============================================================
// Replay Tests
// ============================================================

func recordTrace(t *testing.T, offsets []int64, speeds []float64) *trace.Reader {
	t.Helper()
	var buf bytes.Buffer
	w, err := trace.NewWriter(&buf, trace.Header{StartedMs: 1_000})
	require.NoError(t, err)
	for i := range offsets {
		require.NoError(t, w.Write(trace.Record{Kind: trace.KindSample, OffsetMs: offsets[i], Speed: speeds[i]}))
		require.NoError(t, w.Write(trace.Record{Kind: trace.KindCommand, OffsetMs: offsets[i], Type: "pulse"}))
	}
	r, err := trace.NewReader(&buf)
	require.NoError(t, err)
	return r
}

func TestReplay_NoDelay(t *testing.T) {
	r, err := NewReplay(recordTrace(t, []int64{0, 500, 900}, []float64{10, 20, 30}), 0)
	require.NoError(t, err)
	require.Len(t, r.Samples, 3)

	c := &collector{}
	require.NoError(t, r.Run(context.Background(), c.sink))
	assert.Equal(t, []float64{10, 20, 30}, c.values())
}

func TestReplay_HonoursSpacing(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	r, err := NewReplay(recordTrace(t, []int64{0, 1000, 3000}, []float64{10, 20, 30}), 2)
	require.NoError(t, err)
	r.Clock = clock

	c := &collector{}
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), c.sink) }()

	require.Eventually(t, func() bool { return len(c.values()) == 1 && clock.PendingTimers() == 1 }, time.Second, time.Millisecond)

	// 1000 ms at 2x speed is 500 ms
	clock.Advance(499 * time.Millisecond)
	assert.Len(t, c.values(), 1)
	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(c.values()) == 2 && clock.PendingTimers() == 1 }, time.Second, time.Millisecond)

	clock.Advance(time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, []float64{10, 20, 30}, c.values())
}

func TestReplay_Cancel(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	r, err := NewReplay(recordTrace(t, []int64{0, 60_000}, []float64{10, 20}), 1)
	require.NoError(t, err)
	r.Clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := &collector{}
	go func() { done <- r.Run(ctx, c.sink) }()

	require.Eventually(t, func() bool { return clock.PendingTimers() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []float64{10}, c.values())
	assert.Zero(t, clock.PendingTimers())
}
