// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/speedlink/internal/config"
	"github.com/Thermoquad/speedlink/pkg/journal"
	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/pipeline"
	"github.com/Thermoquad/speedlink/pkg/source"
	"github.com/Thermoquad/speedlink/pkg/trace"
)

var (
	// Speed source flags
	sourceName    string
	serialPort    string
	baudRate      int
	replayPath    string
	replaySpeedup float64

	// Pipeline flags
	formatName   string
	channelNames []string
	windowSize   int

	// Recording flags
	journalPath string
	tracePath   string
)

// addPipelineFlags registers the flags shared by run and monitor.
func addPipelineFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&sourceName, "source", "", "Speed source: serial, manual or replay")
	f.StringVarP(&serialPort, "port", "p", "", "GPS serial port device (serial source)")
	f.IntVarP(&baudRate, "baud", "b", 4800, "GPS baud rate (serial source)")
	f.StringVar(&replayPath, "replay", "", "Trace file to replay (replay source)")
	f.Float64Var(&replaySpeedup, "speedup", 1, "Replay speed factor, 0 replays without delay")
	f.StringVar(&formatName, "format", "", "Command format: json or legacy")
	f.StringSliceVar(&channelNames, "channels", nil, "Channels to drive (A,B)")
	f.IntVar(&windowSize, "window", 0, "Smoothing window size in samples")
	f.StringVar(&journalPath, "journal", "", "Record events and samples to this SQLite file")
	f.StringVar(&tracePath, "trace", "", "Record a CBOR session trace to this file")
}

// applyPipelineFlags copies explicitly set pipeline flags over c.
func applyPipelineFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	changed := func(name string) bool {
		fl := f.Lookup(name)
		return fl != nil && fl.Changed
	}

	if changed("source") {
		c.Source = sourceName
	}
	if changed("port") {
		c.SerialPort = serialPort
		if !changed("source") {
			c.Source = config.SourceSerial
		}
	}
	if changed("baud") {
		c.Baud = baudRate
	}
	if changed("replay") {
		c.ReplayPath = replayPath
		if !changed("source") {
			c.Source = config.SourceReplay
		}
	}
	if changed("speedup") {
		c.ReplaySpeedup = replaySpeedup
	}
	if changed("format") {
		c.Format = formatName
	}
	if changed("channels") {
		c.Channels = channelNames
	}
	if changed("window") {
		c.WindowSize = windowSize
	}
	if changed("journal") {
		c.JournalPath = journalPath
	}
	if changed("trace") {
		c.TracePath = tracePath
	}
}

// session wires a speed source through the pipeline to the relay, recording
// to the journal and trace when configured.
type session struct {
	manager  *link.Manager
	pipeline *pipeline.Pipeline
	source   source.Source
	manual   *source.Manual // set for the manual source
	journal  *journal.Journal
	trace    *trace.Writer
	connInfo string

	closers []func() error
}

func newSession(observers ...func(pipeline.Update)) (*session, error) {
	m, connInfo, err := newManager()
	if err != nil {
		return nil, err
	}
	s := &session{manager: m, connInfo: connInfo}
	s.closers = append(s.closers, m.Close)

	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, j.Close)
		if _, err := j.StartSession(cfg.URL, cfg.Format, time.Now()); err != nil {
			s.close()
			return nil, err
		}
		s.journal = j
	}

	if cfg.TracePath != "" {
		w, err := trace.Create(cfg.TracePath, trace.Header{URL: cfg.URL, Format: cfg.Format})
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, w.Close)
		s.trace = w
	}

	if err := s.openSource(); err != nil {
		s.close()
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithObserver(s.recordUpdate)}
	for _, fn := range observers {
		opts = append(opts, pipeline.WithObserver(fn))
	}
	s.pipeline = pipeline.New(cfg.PipelineConfig(), m, opts...)
	return s, nil
}

func (s *session) openSource() error {
	switch cfg.Source {
	case config.SourceSerial:
		n, err := source.OpenSerial(cfg.SerialPort, cfg.Baud, logger)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, n.Close)
		s.source = n

	case config.SourceReplay:
		r, err := trace.Open(cfg.ReplayPath)
		if err != nil {
			return err
		}
		defer r.Close()
		replay, err := source.NewReplay(r, cfg.ReplaySpeedup)
		if err != nil {
			return err
		}
		s.source = replay

	default:
		s.manual = source.NewManual()
		s.source = s.manual
	}
	return nil
}

func (s *session) recordUpdate(u pipeline.Update) {
	if s.journal != nil {
		if err := s.journal.RecordSample(u.Time, u.Raw, u.Smoothed, u.Params, u.Skipped); err != nil {
			logger.Warn("journal write failed", slog.Any("error", err))
		}
	}
	if s.trace != nil {
		if err := s.trace.WriteSample(u.Time, u.Raw, u.Smoothed, u.Params); err != nil {
			logger.Warn("trace write failed", slog.Any("error", err))
		}
	}
}

func (s *session) recordEvent(ev link.Event) {
	if s.journal != nil {
		if err := s.journal.RecordEvent(ev); err != nil {
			logger.Warn("journal write failed", slog.Any("error", err))
		}
	}
	if s.trace != nil {
		if err := s.trace.WriteEvent(ev); err != nil {
			logger.Warn("trace write failed", slog.Any("error", err))
		}
	}
}

// run connects and drives samples until ctx is done or the source ends. Every
// link event is recorded and then passed to onEvent, if set.
func (s *session) run(ctx context.Context, onEvent func(link.Event)) error {
	events, unsubscribe := s.manager.Subscribe(256)
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			s.recordEvent(ev)
			if onEvent != nil {
				onEvent(ev)
			}
		}
	}()
	defer wg.Wait()

	// a failed first dial is handed to the reconnect policy
	if err := s.manager.Connect(ctx); err != nil {
		logger.Warn("initial connection failed", slog.Any("error", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pipeDone := make(chan error, 1)
	go func() { pipeDone <- s.pipeline.Run(runCtx) }()

	err := s.source.Run(runCtx, func(kmh float64) { s.pipeline.Submit(kmh) })
	if err == nil {
		s.drain(runCtx)
	}
	cancel()
	<-pipeDone
	if derr := s.manager.Disconnect(); derr != nil {
		logger.Debug("disconnect failed", slog.Any("error", derr))
	}
	unsubscribe()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", s.source.Name(), err)
	}
	return nil
}

// drain waits briefly for queued samples after the source is exhausted.
func (s *session) drain(ctx context.Context) {
	deadline := time.Now().Add(time.Second)
	for s.pipeline.Pending() > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// close releases everything in reverse order of opening.
func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Debug("close failed", slog.Any("error", err))
		}
	}
	s.closers = nil
}

// sourceInfo describes the configured speed source.
func sourceInfo() string {
	switch cfg.Source {
	case config.SourceSerial:
		return fmt.Sprintf("Serial GPS: %s @ %d baud", cfg.SerialPort, cfg.Baud)
	case config.SourceReplay:
		return fmt.Sprintf("Replay: %s (x%g)", cfg.ReplayPath, cfg.ReplaySpeedup)
	default:
		return "Manual"
	}
}
