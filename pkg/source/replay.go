// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package source

import (
	"context"
	"time"

	"github.com/Thermoquad/speedlink/internal/timeutil"
	"github.com/Thermoquad/speedlink/pkg/trace"
)

// Replay re-emits the raw speeds of a recorded trace with their original
// spacing divided by Speedup. A Speedup of 0 emits without delay.
type Replay struct {
	Samples []trace.Record
	Speedup float64
	Clock   timeutil.Clock
}

// NewReplay reads every sample from r.
func NewReplay(r *trace.Reader, speedup float64) (*Replay, error) {
	samples, err := r.Samples()
	if err != nil {
		return nil, err
	}
	return &Replay{Samples: samples, Speedup: speedup, Clock: timeutil.RealClock{}}, nil
}

// Name returns "replay".
func (r *Replay) Name() string { return "replay" }

// Run emits every sample and returns nil when the trace is exhausted.
func (r *Replay) Run(ctx context.Context, sink Sink) error {
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	var prev time.Duration
	for i, rec := range r.Samples {
		if i > 0 && r.Speedup > 0 {
			gap := time.Duration(float64(rec.Offset()-prev) / r.Speedup)
			if err := sleep(ctx, clock, gap); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		prev = rec.Offset()
		sink(rec.Speed)
	}
	return nil
}

func sleep(ctx context.Context, clock timeutil.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	done := make(chan struct{})
	t := clock.AfterFunc(d, func() { close(done) })
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-done:
		return nil
	}
}
