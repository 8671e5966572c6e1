// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package source provides vehicle speed inputs for the pipeline: NMEA GPS
// receivers on a serial port, manual injection and trace replay. Every source
// reports speed in km/h.
package source

import (
	"context"
	"sync"
	"sync/atomic"
)

// Sink receives one raw speed sample in km/h.
type Sink func(kmh float64)

// Source produces samples until its input ends or ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}

// Manual forwards speeds set by the user, for testing without a vehicle.
type Manual struct {
	ch        chan float64
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewManual creates a manual source buffering up to 8 pending values.
func NewManual() *Manual {
	return &Manual{ch: make(chan float64, 8), done: make(chan struct{})}
}

// Name returns "manual".
func (m *Manual) Name() string { return "manual" }

// Set injects a speed. It never blocks; it reports false if the value was
// dropped because Run is not keeping up.
func (m *Manual) Set(kmh float64) bool {
	select {
	case <-m.done:
		m.dropped.Add(1)
		return false
	default:
	}
	select {
	case m.ch <- kmh:
		return true
	default:
		m.dropped.Add(1)
		return false
	}
}

// Dropped returns how many injected values were discarded.
func (m *Manual) Dropped() uint64 {
	return m.dropped.Load()
}

// Close ends the input. Run forwards the values still pending and returns
// nil.
func (m *Manual) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

// Run forwards injected values to sink until ctx is done or Close is called.
func (m *Manual) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-m.ch:
			sink(v)
		case <-m.done:
			for {
				select {
				case v := <-m.ch:
					sink(v)
				default:
					return nil
				}
			}
		}
	}
}
