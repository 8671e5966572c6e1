// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package log wraps an *slog.Logger so packages can log without checking for a
// nil logger at every call site.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

type (
	// Logger is a wrapper around an slog.Logger with nil checking.
	Logger struct{ logger *slog.Logger }

	// Attrs represents an object that exposes extra slog attributes to log.
	Attrs interface {
		Attrs() []slog.Attr
	}
)

// Wrap the slog logger. A nil logger discards everything.
func Wrap(logger *slog.Logger) Logger {
	return Logger{logger}
}

// New builds a console logger writing to w at the given level. Output is
// colored only when w is a terminal.
func New(w io.Writer, level slog.Level) *slog.Logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:   level,
		NoColor: !color,
	}))
}

// Enabled reports whether the level would be logged.
func (l Logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.logger != nil && l.logger.Enabled(ctx, level)
}

// Log writes a record if the level is enabled.
func (l Logger) Log(
	ctx context.Context,
	level slog.Level,
	msg string,
	attrs ...slog.Attr,
) {
	if !l.Enabled(ctx, level) {
		return
	}
	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

// Debug logs at debug level.
func (l Logger) Debug(msg string, attrs ...slog.Attr) {
	l.Log(context.Background(), slog.LevelDebug, msg, attrs...)
}

// Info logs at info level.
func (l Logger) Info(msg string, attrs ...slog.Attr) {
	l.Log(context.Background(), slog.LevelInfo, msg, attrs...)
}

// Warn logs at warn level.
func (l Logger) Warn(msg string, attrs ...slog.Attr) {
	l.Log(context.Background(), slog.LevelWarn, msg, attrs...)
}

// Err logs an error, pulling in its structured attributes when it has any.
func (l Logger) Err(err error, attrs ...slog.Attr) {
	if err == nil {
		return
	}
	if a, ok := err.(Attrs); ok {
		attrs = append(a.Attrs(), attrs...)
	}
	l.Log(context.Background(), slog.LevelError, err.Error(), attrs...)
}

// With returns a logger carrying the given attributes.
func (l Logger) With(args ...any) Logger {
	if l.logger == nil {
		return l
	}
	return Logger{l.logger.With(args...)}
}
