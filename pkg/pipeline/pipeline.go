// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pipeline connects a speed source to the device link: every accepted
// sample is smoothed once, mapped to control parameters and sent as one pulse
// command per configured channel.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/speedlink/internal/log"
	"github.com/Thermoquad/speedlink/internal/timeutil"
	"github.com/Thermoquad/speedlink/pkg/dglab"
	"github.com/Thermoquad/speedlink/pkg/errors"
	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/speed"
)

// Format selects the command wire format.
type Format string

const (
	FormatJSON   Format = "json"
	FormatLegacy Format = "legacy"
)

// ParseFormat parses "json" or "legacy".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatLegacy:
		return Format(s), nil
	}
	return "", &errors.Error{
		Kind:          errors.InvalidInput,
		Message:       fmt.Sprintf("unknown command format %q (use json or legacy)", s),
		PropertyName:  "format",
		PropertyValue: s,
	}
}

// DefaultQueueSize bounds the number of samples waiting for Run.
const DefaultQueueSize = 32

// Config tunes the pipeline.
type Config struct {
	WindowSize int
	SpeedMax   float64
	Format     Format
	Channels   []dglab.Channel
	QueueSize  int
}

// DefaultConfig drives both channels with JSON pulse commands.
func DefaultConfig() Config {
	return Config{
		WindowSize: speed.DefaultWindowSize,
		SpeedMax:   speed.DefaultSpeedMax,
		Format:     FormatJSON,
		Channels:   []dglab.Channel{dglab.ChannelA, dglab.ChannelB},
		QueueSize:  DefaultQueueSize,
	}
}

// Sender is the part of the link the pipeline drives. *link.Manager
// satisfies it.
type Sender interface {
	Send(cmd dglab.Command) error
	State() link.State
}

// Update describes the outcome of one processed sample.
type Update struct {
	Time     time.Time
	Raw      float64 // after clamping
	Smoothed float64
	Params   speed.Params
	Commands []dglab.Command // commands sent successfully
	Skipped  bool            // link was not connected
	Err      error           // first send failure
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the clock used to stamp updates.
func WithClock(c timeutil.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log.Wrap(l).With("component", "pipeline") }
}

// WithObserver registers a callback invoked after every processed sample.
// Observers run on the processing goroutine and must not block.
func WithObserver(fn func(Update)) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, fn) }
}

// WithMapper replaces the default speed schedules.
func WithMapper(m *speed.Mapper) Option {
	return func(p *Pipeline) { p.mapper = m }
}

// Pipeline turns speed samples into device commands.
type Pipeline struct {
	cfg       Config
	sender    Sender
	clock     timeutil.Clock
	log       log.Logger
	mapper    *speed.Mapper
	observers []func(Update)

	queue    chan float64
	dropped  atomic.Uint64
	rejected atomic.Uint64

	mu       sync.Mutex // guards smoother and last
	smoother *speed.Smoother
	last     Update
	hasLast  bool
}

// New creates a pipeline sending through sender.
func New(cfg Config, sender Sender, opts ...Option) *Pipeline {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SpeedMax <= 0 {
		cfg.SpeedMax = speed.DefaultSpeedMax
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []dglab.Channel{dglab.ChannelA, dglab.ChannelB}
	}

	p := &Pipeline{
		cfg:      cfg,
		sender:   sender,
		clock:    timeutil.RealClock{},
		mapper:   speed.NewMapper(),
		smoother: speed.NewSmoother(cfg.WindowSize),
		queue:    make(chan float64, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit queues a raw sample for Run without blocking. It reports false and
// counts the sample as dropped when the queue is full.
func (p *Pipeline) Submit(sample float64) bool {
	select {
	case p.queue <- sample:
		return true
	default:
		p.dropped.Add(1)
		p.log.Warn("sample queue full, dropping sample", slog.Float64("speed", sample))
		return false
	}
}

// Run processes queued samples until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample := <-p.queue:
			// rejected samples are already logged and counted
			_, _ = p.Process(sample)
		}
	}
}

// Process handles one sample synchronously. Invalid samples return an
// InvalidInput error and leave the smoothing window untouched. Send failures
// are reported in the Update, not as the error.
func (p *Pipeline) Process(sample float64) (Update, error) {
	clean, err := speed.Sanitize(sample, p.cfg.SpeedMax)
	if err != nil {
		p.rejected.Add(1)
		p.log.Err(err)
		return Update{}, err
	}

	p.mu.Lock()
	smoothed := p.smoother.Smooth(clean)
	p.mu.Unlock()

	params := p.mapper.Map(smoothed)
	u := Update{
		Time:     p.clock.Now(),
		Raw:      clean,
		Smoothed: smoothed,
		Params:   params,
	}

	if p.sender.State() != link.Connected {
		u.Skipped = true
	} else {
		for _, ch := range p.cfg.Channels {
			cmd := p.command(ch, params)
			if err := p.sender.Send(cmd); err != nil {
				if u.Err == nil {
					u.Err = err
				}
				continue
			}
			u.Commands = append(u.Commands, cmd)
		}
	}

	p.log.Debug("sample processed",
		slog.Float64("raw", clean),
		slog.Float64("smoothed", smoothed),
		slog.Int("intensity", params.Intensity),
		slog.Int("frequency", params.Frequency),
		slog.Bool("skipped", u.Skipped))

	p.mu.Lock()
	p.last = u
	p.hasLast = true
	p.mu.Unlock()

	for _, fn := range p.observers {
		fn(u)
	}
	return u, nil
}

func (p *Pipeline) command(ch dglab.Channel, params speed.Params) dglab.Command {
	if p.cfg.Format == FormatLegacy {
		return dglab.LegacyBF{Channel: ch, Frequency: params.Frequency, Intensity: params.Intensity}
	}
	return dglab.NewPulse(ch, params.Frequency, params.Intensity)
}

// Reset clears the smoothing window.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.smoother.Reset()
}

// LastUpdate returns the most recent processed sample.
func (p *Pipeline) LastUpdate() (Update, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Fresh reports whether a sample was processed within maxAge.
func (p *Pipeline) Fresh(maxAge time.Duration) bool {
	last, ok := p.LastUpdate()
	return ok && p.clock.Now().Sub(last.Time) <= maxAge
}

// Dropped returns the number of samples discarded because the queue was full.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// Pending returns the number of queued samples not yet processed.
func (p *Pipeline) Pending() int {
	return len(p.queue)
}

// Rejected returns the number of invalid samples.
func (p *Pipeline) Rejected() uint64 {
	return p.rejected.Load()
}
