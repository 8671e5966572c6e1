// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/speedlink/internal/log"
	"github.com/Thermoquad/speedlink/internal/timeutil"
	"github.com/Thermoquad/speedlink/pkg/dglab"
	"github.com/Thermoquad/speedlink/pkg/errors"
)

// Defaults
const (
	DefaultURL                  = "wss://ws.dg-lab.cn:8443"
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultDialTimeout          = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
)

// Config controls the link's timing and retry policy. Zero fields take the
// defaults; a negative MaxReconnectAttempts disables reconnection and a
// negative HeartbeatInterval disables the heartbeat.
type Config struct {
	URL                  string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int // consecutive unsolicited closes before giving up
	HeartbeatInterval    time.Duration
	DialTimeout          time.Duration
	WriteTimeout         time.Duration
	ReadTimeout          time.Duration // 0 disables the read deadline
}

// DefaultConfig returns the stock relay settings.
func DefaultConfig() Config {
	return Config{
		URL:                  DefaultURL,
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		DialTimeout:          DefaultDialTimeout,
		WriteTimeout:         DefaultWriteTimeout,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for timers and timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the structured logger. Without it the manager is silent.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = log.Wrap(l).With("component", "link") }
}

// Manager owns one logical session to the relay. All state transitions,
// socket writes and timer callbacks are serialised by mu.
type Manager struct {
	cfg    Config
	dialer Dialer
	clock  timeutil.Clock
	log    log.Logger
	bus    *bus

	mu             sync.Mutex
	state          State
	conn           Conn
	gen            uint64 // bumped whenever a connection ends or a dial starts
	attempts       int
	userStopped    bool
	reconnectTimer timeutil.Timer
	heartbeat      timeutil.Ticker
	heartbeatStop  chan struct{}
	stats          Statistics
}

// NewManager validates cfg and returns a disconnected manager.
func NewManager(cfg Config, dialer Dialer, opts ...Option) (*Manager, error) {
	if err := ValidateURL(cfg.URL); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, errors.New(errors.InvalidInput, "dialer is required")
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	switch {
	case cfg.MaxReconnectAttempts == 0:
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	case cfg.MaxReconnectAttempts < 0:
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		clock:  timeutil.RealClock{},
		bus:    newBus(),
		state:  Disconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.stats.StartTime = m.clock.Now()
	return m, nil
}

// URL returns the relay endpoint.
func (m *Manager) URL() string {
	return m.cfg.URL
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectAttempts returns how many reconnects have been scheduled since the
// last successful open.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Stats returns a snapshot of the link counters.
func (m *Manager) Stats() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.DroppedEvents = m.bus.dropped.Load()
	s.SnapshotAt = m.clock.Now()
	return s
}

// Connect opens the link. It is a no-op while connected or connecting. A
// failed dial is reported as an error event and handed to the reconnect
// policy like any other close.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Connected || m.state == Connecting {
		return nil
	}
	m.userStopped = false
	m.stopReconnectTimerLocked()
	return m.dialLocked(ctx)
}

// Disconnect closes the link and suppresses automatic reconnection until the
// next Connect.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.userStopped = true
	m.stopReconnectTimerLocked()
	if m.state == Disconnected {
		return nil
	}

	wasOpen := m.state == Connected
	m.state = Closing
	m.gen++
	m.stopHeartbeatLocked()

	var err error
	if m.conn != nil {
		_ = m.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = m.conn.Close()
		m.conn = nil
	}
	m.stats.ConnectedAt = time.Time{}
	m.state = Disconnected
	m.log.Info("disconnected")
	if wasOpen {
		m.emitLocked(Event{Type: EventClosed})
	}
	if err != nil {
		return errors.Wrap(errors.TransportError, err, "failed to close connection")
	}
	return nil
}

// Close disconnects and closes every subscription.
func (m *Manager) Close() error {
	err := m.Disconnect()
	m.bus.close()
	return err
}

// Send writes one command. It fails with NotConnected without touching the
// socket unless the link is connected.
func (m *Manager) Send(cmd dglab.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendLocked(cmd)
}

// SendLegacy writes a raw B0/BF line as a text frame.
func (m *Manager) SendLegacy(line string) error {
	return m.Send(legacyLine(line))
}

type legacyLine string

func (l legacyLine) Type() string {
	if i := strings.Index(string(l), dglab.Separator); i > 0 {
		return string(l[:i])
	}
	return "legacy"
}

func (l legacyLine) Marshal() ([]byte, error) {
	if !strings.HasSuffix(string(l), dglab.EndMarker) {
		return nil, errors.New(errors.EncodeFailure, "legacy line must end with %q", dglab.EndMarker)
	}
	return []byte(l), nil
}

func (m *Manager) sendLocked(cmd dglab.Command) error {
	if m.state != Connected || m.conn == nil {
		err := errors.New(errors.NotConnected, "cannot send %s: link is %s", cmd.Type(), m.state)
		m.stats.SendFailures++
		m.log.Warn("send rejected", slog.String("type", cmd.Type()), slog.String("state", m.state.String()))
		m.emitLocked(Event{Type: EventError, MessageType: cmd.Type(), Err: err})
		return err
	}

	raw, err := cmd.Marshal()
	if err != nil {
		m.stats.SendFailures++
		m.log.Err(err, slog.String("type", cmd.Type()))
		m.emitLocked(Event{Type: EventError, MessageType: cmd.Type(), Err: err})
		return err
	}

	if m.cfg.WriteTimeout > 0 {
		_ = m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		wrapped := errors.Wrap(errors.TransportError, err, "failed to send %s", cmd.Type())
		m.stats.SendFailures++
		m.stats.TransportErrors++
		m.log.Err(wrapped)
		m.emitLocked(Event{Type: EventError, MessageType: cmd.Type(), Raw: raw, Err: wrapped})
		return wrapped
	}

	m.stats.CommandsSent++
	m.log.Debug("command sent", slog.String("type", cmd.Type()), slog.String("raw", string(raw)))
	m.emitLocked(Event{Type: EventCommandSent, MessageType: cmd.Type(), Raw: raw})
	return nil
}

// dialLocked is called with mu held and returns with mu held; the lock is
// released for the duration of the dial.
func (m *Manager) dialLocked(ctx context.Context) error {
	m.state = Connecting
	m.gen++
	gen := m.gen

	m.log.Info("connecting", slog.String("url", m.cfg.URL), slog.Int("attempt", m.attempts))

	m.mu.Unlock()
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	conn, err := m.dialer.Dial(dialCtx, m.cfg.URL)
	cancel()
	m.mu.Lock()

	if gen != m.gen || m.state != Connecting {
		if conn != nil {
			_ = conn.Close()
		}
		return errors.New(errors.TransportError, "connection attempt to %s was cancelled", m.cfg.URL)
	}

	if err != nil {
		wrapped := err
		if !errors.IsKind(err, errors.TransportError) {
			wrapped = errors.Wrap(errors.TransportError, err, "failed to connect to %s", m.cfg.URL)
		}
		m.stats.TransportErrors++
		m.log.Err(wrapped)
		m.emitLocked(Event{Type: EventError, Err: wrapped})
		m.dropLocked()
		return wrapped
	}

	m.conn = conn
	m.state = Connected
	m.attempts = 0
	m.stats.Connects++
	m.stats.ConnectedAt = m.clock.Now()
	m.startHeartbeatLocked(gen)
	go m.readLoop(gen, conn)

	m.log.Info("connected", slog.String("url", m.cfg.URL))
	m.emitLocked(Event{Type: EventOpened})
	return nil
}

// dropLocked handles the end of a connection the user did not ask for.
func (m *Manager) dropLocked() {
	m.gen++
	m.stopHeartbeatLocked()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.stats.ConnectedAt = time.Time{}
	m.state = Disconnected
	m.emitLocked(Event{Type: EventClosed})

	if m.userStopped {
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		err := errors.New(errors.ReconnectExhausted, "giving up after %d reconnect attempts", m.attempts)
		m.log.Err(err)
		m.emitLocked(Event{Type: EventError, Err: err})
		return
	}

	m.attempts++
	m.stats.Reconnects++
	m.state = Reconnecting
	m.log.Info("scheduling reconnect",
		slog.Int("attempt", m.attempts),
		slog.Int("max", m.cfg.MaxReconnectAttempts),
		slog.Duration("delay", m.cfg.ReconnectInterval))
	m.reconnectTimer = m.clock.AfterFunc(m.cfg.ReconnectInterval, m.reconnect)
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Disconnect or Connect may have raced the timer.
	if m.state != Reconnecting || m.userStopped {
		return
	}
	m.reconnectTimer = nil
	_ = m.dialLocked(context.Background())
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.state == Reconnecting {
		m.state = Disconnected
	}
}

func (m *Manager) startHeartbeatLocked(gen uint64) {
	if m.cfg.HeartbeatInterval <= 0 {
		return
	}
	ticker := m.clock.NewTicker(m.cfg.HeartbeatInterval)
	stop := make(chan struct{})
	m.heartbeat = ticker
	m.heartbeatStop = stop
	go m.heartbeatLoop(gen, ticker, stop)
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeat == nil {
		return
	}
	m.heartbeat.Stop()
	close(m.heartbeatStop)
	m.heartbeat = nil
	m.heartbeatStop = nil
}

func (m *Manager) heartbeatLoop(gen uint64, ticker timeutil.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}

		m.mu.Lock()
		if gen != m.gen || m.state != Connected {
			m.mu.Unlock()
			return
		}
		if err := m.sendLocked(dglab.NewHeartbeat(m.clock.Now().UnixMilli())); err == nil {
			m.stats.Heartbeats++
		}
		m.mu.Unlock()
	}
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		if m.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()

		m.mu.Lock()
		if gen != m.gen || m.conn != conn {
			m.mu.Unlock()
			return
		}
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				wrapped := errors.Wrap(errors.TransportError, err, "connection lost")
				m.stats.TransportErrors++
				m.log.Err(wrapped)
				m.emitLocked(Event{Type: EventError, Err: wrapped})
			} else {
				m.log.Info("connection closed by peer")
			}
			m.dropLocked()
			m.mu.Unlock()
			return
		}
		m.handleInboundLocked(data)
		m.mu.Unlock()
	}
}

func (m *Manager) handleInboundLocked(data []byte) {
	if dglab.IsLegacy(data) {
		cmd, err := dglab.DecodeLegacy(string(data))
		if err != nil {
			m.decodeFailedLocked(data, err)
			return
		}
		m.stats.ResponsesReceived++
		m.emitLocked(Event{Type: EventResponseReceived, MessageType: cmd.Type(), Raw: data, Legacy: cmd})
		return
	}

	msg, err := dglab.Decode(data)
	if err != nil {
		m.decodeFailedLocked(data, err)
		return
	}

	m.stats.ResponsesReceived++
	if anomalies := dglab.Validate(msg); len(anomalies) > 0 {
		m.stats.Anomalies += uint64(len(anomalies))
		for _, a := range anomalies {
			m.log.Warn("response anomaly", slog.String("type", msg.Type), slog.String("detail", a.Message))
		}
	}
	m.log.Debug("response received", slog.String("type", msg.Type))
	m.emitLocked(Event{Type: EventResponseReceived, MessageType: msg.Type, Raw: data, Message: msg})
}

func (m *Manager) decodeFailedLocked(data []byte, err error) {
	m.stats.DecodeErrors++
	m.log.Err(err, slog.String("raw", string(data)))
	m.emitLocked(Event{Type: EventError, Raw: data, Err: err})
}

func (m *Manager) emitLocked(ev Event) {
	ev.Time = m.clock.Now()
	ev.State = m.state
	m.bus.publish(ev)
}
