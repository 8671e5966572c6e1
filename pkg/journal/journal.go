// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package journal persists link events and processed samples to SQLite so a
// session can be inspected after the fact.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Thermoquad/speedlink/internal/log"
	speederrors "github.com/Thermoquad/speedlink/pkg/errors"
	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/speed"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal is an SQLite event store. It is safe for concurrent use.
type Journal struct {
	db  *sql.DB
	log log.Logger

	mu      sync.RWMutex
	session string
}

// Session is one recorded run.
type Session struct {
	ID      string
	URL     string
	Format  string
	Started time.Time
	Events  int
	Samples int
}

// Entry is one journaled link event.
type Entry struct {
	ID          int64
	Time        time.Time
	Type        string
	State       string
	MessageType string
	Raw         string
	ErrorKind   string
	ErrorText   string
}

// SampleRow is one journaled pipeline sample.
type SampleRow struct {
	Time      time.Time
	Speed     float64
	Smoothed  float64
	Intensity int
	Frequency int
	Skipped   bool
}

// Open opens (creating if needed) the journal at path and applies pending
// schema migrations.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	// a single connection keeps SQLite writes serialised
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, log: log.Wrap(logger).With("component", "journal")}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{log: j.log}
	return m, nil
}

// migrate.Migrate is never closed here: closing it closes the shared *sql.DB.
func (j *Journal) migrateUp() error {
	m, err := j.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("journal migration failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (j *Journal) SchemaVersion() (uint, bool, error) {
	m, err := j.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

type migrateLogger struct {
	log log.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf("migrate: "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// StartSession opens a new session row; subsequent records belong to it.
func (j *Journal) StartSession(url, format string, started time.Time) (string, error) {
	id := uuid.NewString()
	_, err := j.db.Exec(
		`INSERT INTO sessions (session_id, url, format, started_ms) VALUES (?, ?, ?, ?)`,
		id, url, format, started.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start journal session: %w", err)
	}
	j.mu.Lock()
	j.session = id
	j.mu.Unlock()
	j.log.Info("journal session started", slog.String("session", id))
	return id, nil
}

// SessionID returns the active session, or "" before StartSession.
func (j *Journal) SessionID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.session
}

// RecordEvent stores one link event.
func (j *Journal) RecordEvent(ev link.Event) error {
	session := j.SessionID()
	if session == "" {
		return errors.New("journal session not started")
	}

	var kind, text sql.NullString
	if ev.Err != nil {
		text = sql.NullString{String: ev.Err.Error(), Valid: true}
		if k, ok := speederrors.KindOf(ev.Err); ok {
			kind = sql.NullString{String: k.String(), Valid: true}
		}
	}
	_, err := j.db.Exec(
		`INSERT INTO events (session_id, time_ms, event_type, state, message_type, raw, error_kind, error_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session, ev.Time.UnixMilli(), ev.Type.String(), ev.State.String(),
		nullString(ev.MessageType), nullString(string(ev.Raw)), kind, text,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// RecordSample stores one processed sample.
func (j *Journal) RecordSample(t time.Time, raw, smoothed float64, p speed.Params, skipped bool) error {
	session := j.SessionID()
	if session == "" {
		return errors.New("journal session not started")
	}
	_, err := j.db.Exec(
		`INSERT INTO samples (session_id, time_ms, speed, smoothed, intensity, frequency, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session, t.UnixMilli(), raw, smoothed, p.Intensity, p.Frequency, skipped,
	)
	if err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}
	return nil
}

// Sessions lists the most recent sessions first.
func (j *Journal) Sessions(limit int) ([]Session, error) {
	rows, err := j.db.Query(`
		SELECT s.session_id, s.url, s.format, s.started_ms,
		       (SELECT COUNT(*) FROM events e WHERE e.session_id = s.session_id),
		       (SELECT COUNT(*) FROM samples p WHERE p.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.started_ms DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started int64
		if err := rows.Scan(&s.ID, &s.URL, &s.Format, &started, &s.Events, &s.Samples); err != nil {
			return nil, err
		}
		s.Started = time.UnixMilli(started)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Events returns up to limit events of a session in time order.
func (j *Journal) Events(session string, limit int) ([]Entry, error) {
	rows, err := j.db.Query(`
		SELECT event_id, time_ms, event_type, state,
		       COALESCE(message_type, ''), COALESCE(raw, ''),
		       COALESCE(error_kind, ''), COALESCE(error_text, '')
		FROM events
		WHERE session_id = ?
		ORDER BY time_ms, event_id
		LIMIT ?`, session, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &ms, &e.Type, &e.State, &e.MessageType, &e.Raw, &e.ErrorKind, &e.ErrorText); err != nil {
			return nil, err
		}
		e.Time = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Samples returns up to limit samples of a session in time order.
func (j *Journal) Samples(session string, limit int) ([]SampleRow, error) {
	rows, err := j.db.Query(`
		SELECT time_ms, speed, smoothed, intensity, frequency, skipped
		FROM samples
		WHERE session_id = ?
		ORDER BY time_ms, sample_id
		LIMIT ?`, session, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var out []SampleRow
	for rows.Next() {
		var s SampleRow
		var ms int64
		if err := rows.Scan(&ms, &s.Speed, &s.Smoothed, &s.Intensity, &s.Frequency, &s.Skipped); err != nil {
			return nil, err
		}
		s.Time = time.UnixMilli(ms)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
