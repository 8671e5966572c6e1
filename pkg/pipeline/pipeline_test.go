// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/speedlink/internal/timeutil"
	"github.com/Thermoquad/speedlink/pkg/dglab"
	"github.com/Thermoquad/speedlink/pkg/errors"
	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/speed"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(cmd dglab.Command) error {
	return m.Called(cmd).Error(0)
}

func (m *mockSender) State() link.State {
	return m.Called().Get(0).(link.State)
}

// recordingSender accepts every command while connected.
type recordingSender struct {
	mu    sync.Mutex
	state link.State
	sent  []dglab.Command
}

func (r *recordingSender) Send(cmd dglab.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, cmd)
	return nil
}

func (r *recordingSender) State() link.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *recordingSender) commands() []dglab.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dglab.Command(nil), r.sent...)
}

func TestProcess_SendsPulsePerChannel(t *testing.T) {
	sender := new(mockSender)
	sender.On("State").Return(link.Connected)
	sender.On("Send", dglab.NewPulse(dglab.ChannelA, 10, 0)).Return(nil).Once()
	sender.On("Send", dglab.NewPulse(dglab.ChannelB, 10, 0)).Return(nil).Once()
	sender.On("Send", dglab.NewPulse(dglab.ChannelA, 20, 25)).Return(nil).Once()
	sender.On("Send", dglab.NewPulse(dglab.ChannelB, 20, 25)).Return(nil).Once()

	p := New(DefaultConfig(), sender)

	u, err := p.Process(0)
	require.NoError(t, err)
	assert.Equal(t, speed.Params{Intensity: 0, Frequency: 10}, u.Params)
	assert.Len(t, u.Commands, 2)

	u, err = p.Process(30)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, u.Smoothed, 1e-9)
	assert.Equal(t, speed.Params{Intensity: 25, Frequency: 20}, u.Params)

	sender.AssertExpectations(t)
	sender.AssertNumberOfCalls(t, "Send", 4)
}

func TestProcess_SkipsWhileDisconnected(t *testing.T) {
	sender := new(mockSender)
	sender.On("State").Return(link.Reconnecting)

	p := New(DefaultConfig(), sender)
	u, err := p.Process(50)
	require.NoError(t, err)
	assert.True(t, u.Skipped)
	assert.Empty(t, u.Commands)
	sender.AssertNotCalled(t, "Send", mock.Anything)

	// the window still advances so the output is warm on reconnect
	last, ok := p.LastUpdate()
	require.True(t, ok)
	assert.InDelta(t, 50.0, last.Smoothed, 1e-9)
}

func TestProcess_RejectsInvalidSample(t *testing.T) {
	sender := &recordingSender{state: link.Connected}
	p := New(DefaultConfig(), sender)

	_, err := p.Process(10)
	require.NoError(t, err)

	for _, bad := range []float64{-5, -0.001} {
		_, err = p.Process(bad)
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.InvalidInput))
	}

	u, err := p.Process(20)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, u.Smoothed, 1e-9, "rejected samples must not enter the window")
	assert.Equal(t, uint64(2), p.Rejected())
	assert.Len(t, sender.commands(), 4)
}

func TestProcess_ClampsAboveSpeedMax(t *testing.T) {
	sender := &recordingSender{state: link.Connected}
	p := New(DefaultConfig(), sender)

	u, err := p.Process(350)
	require.NoError(t, err)
	assert.Equal(t, speed.DefaultSpeedMax, u.Raw)
	assert.Equal(t, speed.Params{Intensity: 200, Frequency: 150}, u.Params)
}

func TestProcess_SmoothsOncePerSample(t *testing.T) {
	sender := &recordingSender{state: link.Connected}
	p := New(DefaultConfig(), sender)
	mapper := speed.NewMapper()

	samples := []float64{10, 20, 30, 40, 50, 60}
	want := []float64{10, 15, 20, 25, 30, 40}
	for i, s := range samples {
		u, err := p.Process(s)
		require.NoError(t, err)
		assert.InDelta(t, want[i], u.Smoothed, 1e-9)
		assert.Equal(t, mapper.Map(want[i]), u.Params)
	}

	cmds := sender.commands()
	require.Len(t, cmds, 2*len(samples))
	last := mapper.Map(40)
	assert.Equal(t, dglab.NewPulse(dglab.ChannelA, last.Frequency, last.Intensity), cmds[len(cmds)-2])
	assert.Equal(t, dglab.NewPulse(dglab.ChannelB, last.Frequency, last.Intensity), cmds[len(cmds)-1])
}

func TestProcess_LegacyFormat(t *testing.T) {
	sender := &recordingSender{state: link.Connected}
	cfg := DefaultConfig()
	cfg.Format = FormatLegacy
	cfg.Channels = []dglab.Channel{dglab.ChannelA}
	p := New(cfg, sender)

	_, err := p.Process(30)
	require.NoError(t, err)
	require.Equal(t, []dglab.Command{
		dglab.LegacyBF{Channel: dglab.ChannelA, Frequency: 30, Intensity: 50},
	}, sender.commands())

	raw, err := sender.commands()[0].Marshal()
	require.NoError(t, err)
	assert.Equal(t, "BF,A,30,50,145;", string(raw))
}

func TestProcess_ReportsSendFailure(t *testing.T) {
	sendErr := errors.New(errors.NotConnected, "link dropped")
	sender := new(mockSender)
	sender.On("State").Return(link.Connected)
	sender.On("Send", mock.MatchedBy(func(c dglab.Command) bool {
		return c.(dglab.Pulse).Channel == dglab.ChannelA
	})).Return(sendErr)
	sender.On("Send", mock.Anything).Return(nil)

	p := New(DefaultConfig(), sender)
	u, err := p.Process(80)
	require.NoError(t, err)
	assert.ErrorIs(t, u.Err, sendErr)
	require.Len(t, u.Commands, 1)
	assert.Equal(t, dglab.ChannelB, u.Commands[0].(dglab.Pulse).Channel)
}

func TestSubmit_DropsWhenFull(t *testing.T) {
	sender := &recordingSender{state: link.Connected}
	cfg := DefaultConfig()
	cfg.QueueSize = 2
	p := New(cfg, sender)

	assert.True(t, p.Submit(1))
	assert.True(t, p.Submit(2))
	assert.False(t, p.Submit(3))
	assert.Equal(t, uint64(1), p.Dropped())
	assert.Equal(t, 2, p.Pending())
}

func TestRun_ProcessesQueuedSamples(t *testing.T) {
	sender := &recordingSender{state: link.Connected}

	var mu sync.Mutex
	var seen []float64
	p := New(DefaultConfig(), sender, WithObserver(func(u Update) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, u.Raw)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for _, s := range []float64{10, 20, -1, 30} {
		require.True(t, p.Submit(s))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	assert.Equal(t, []float64{10, 20, 30}, seen)
	mu.Unlock()
	assert.Len(t, sender.commands(), 6)
	assert.Equal(t, uint64(1), p.Rejected())
}

func TestFresh(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	p := New(DefaultConfig(), &recordingSender{}, WithClock(clock))

	assert.False(t, p.Fresh(time.Second), "no sample yet")

	_, err := p.Process(42)
	require.NoError(t, err)
	clock.Advance(time.Second)
	assert.True(t, p.Fresh(2*time.Second))

	clock.Advance(2 * time.Second)
	assert.False(t, p.Fresh(2*time.Second))
}

func TestReset(t *testing.T) {
	p := New(DefaultConfig(), &recordingSender{})
	_, _ = p.Process(100)
	p.Reset()
	u, err := p.Process(20)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, u.Smoothed, 1e-9)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("legacy")
	require.NoError(t, err)
	assert.Equal(t, FormatLegacy, f)

	_, err = ParseFormat("xml")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.InvalidInput))
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "format", e.PropertyName)
}
