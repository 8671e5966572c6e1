// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the speedlink JSON configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"github.com/Thermoquad/speedlink/pkg/dglab"
	"github.com/Thermoquad/speedlink/pkg/errors"
	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/pipeline"
	"github.com/Thermoquad/speedlink/pkg/speed"
)

// Speed sources
const (
	SourceSerial = "serial"
	SourceManual = "manual"
	SourceReplay = "replay"
)

// Duration is a time.Duration that reads either ISO 8601 ("PT5S") or Go
// ("5s") notation and writes Go notation.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// String returns the duration in Go notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText writes the duration in Go notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses ISO 8601 or Go duration notation.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(strings.ToUpper(s), "P") {
		parsed, err := duration.Parse(strings.ToUpper(s))
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed.ToTimeDuration())
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the on-disk configuration. Every field is optional.
type Config struct {
	// Relay
	URL                  string   `json:"url"`
	Username             string   `json:"username,omitempty"`
	NoSSLVerify          bool     `json:"no_ssl_verify,omitempty"`
	ReconnectInterval    Duration `json:"reconnect_interval"`
	MaxReconnectAttempts int      `json:"max_reconnect_attempts"`
	HeartbeatInterval    Duration `json:"heartbeat_interval"`
	DialTimeout          Duration `json:"dial_timeout"`
	WriteTimeout         Duration `json:"write_timeout"`
	ReadTimeout          Duration `json:"read_timeout,omitempty"`

	// Pipeline
	WindowSize int      `json:"window_size"`
	SpeedMax   float64  `json:"speed_max"`
	Format     string   `json:"format"`
	Channels   []string `json:"channels"`
	QueueSize  int      `json:"queue_size"`

	// Recording
	JournalPath string `json:"journal_path,omitempty"`
	TracePath   string `json:"trace_path,omitempty"`

	// Speed source
	Source        string  `json:"source"`
	SerialPort    string  `json:"serial_port,omitempty"`
	Baud          int     `json:"baud"`
	ReplayPath    string  `json:"replay_path,omitempty"`
	ReplaySpeedup float64 `json:"replay_speedup"`
}

// Default returns the stock configuration.
func Default() Config {
	lc := link.DefaultConfig()
	return Config{
		URL:                  lc.URL,
		ReconnectInterval:    Duration(lc.ReconnectInterval),
		MaxReconnectAttempts: lc.MaxReconnectAttempts,
		HeartbeatInterval:    Duration(lc.HeartbeatInterval),
		DialTimeout:          Duration(lc.DialTimeout),
		WriteTimeout:         Duration(lc.WriteTimeout),
		WindowSize:           speed.DefaultWindowSize,
		SpeedMax:             speed.DefaultSpeedMax,
		Format:               string(pipeline.FormatJSON),
		Channels:             []string{string(dglab.ChannelA), string(dglab.ChannelB)},
		QueueSize:            pipeline.DefaultQueueSize,
		Source:               SourceManual,
		Baud:                 4800,
		ReplaySpeedup:        1,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Parse decodes data over cfg. Unknown fields are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := link.ValidateURL(c.URL); err != nil {
		return err
	}
	if c.WindowSize < 1 {
		return invalid("window_size", c.WindowSize, "window_size must be at least 1")
	}
	if c.SpeedMax <= 0 {
		return invalid("speed_max", c.SpeedMax, "speed_max must be positive")
	}
	if c.ReconnectInterval <= 0 {
		return invalid("reconnect_interval", c.ReconnectInterval, "reconnect_interval must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return invalid("heartbeat_interval", c.HeartbeatInterval, "heartbeat_interval must be positive")
	}
	if c.DialTimeout <= 0 {
		return invalid("dial_timeout", c.DialTimeout, "dial_timeout must be positive")
	}
	if c.MaxReconnectAttempts < 0 {
		return invalid("max_reconnect_attempts", c.MaxReconnectAttempts, "max_reconnect_attempts must not be negative")
	}
	if c.ReadTimeout < 0 {
		return invalid("read_timeout", c.ReadTimeout, "read_timeout must not be negative")
	}
	if _, err := pipeline.ParseFormat(c.Format); err != nil {
		return err
	}
	if _, err := c.ChannelList(); err != nil {
		return err
	}
	if c.QueueSize < 1 {
		return invalid("queue_size", c.QueueSize, "queue_size must be at least 1")
	}
	switch c.Source {
	case SourceManual:
	case SourceReplay:
		if c.ReplayPath == "" {
			return invalid("replay_path", c.ReplayPath, "replay_path is required for the replay source")
		}
		if c.ReplaySpeedup < 0 {
			return invalid("replay_speedup", c.ReplaySpeedup, "replay_speedup must not be negative")
		}
	case SourceSerial:
		if c.SerialPort == "" {
			return invalid("serial_port", c.SerialPort, "serial_port is required for the serial source")
		}
		if c.Baud <= 0 {
			return invalid("baud", c.Baud, "baud must be positive")
		}
	default:
		return invalid("source", c.Source, "unknown source %q (use serial, manual or replay)", c.Source)
	}
	return nil
}

// ChannelList parses Channels.
func (c Config) ChannelList() ([]dglab.Channel, error) {
	if len(c.Channels) == 0 {
		return nil, invalid("channels", c.Channels, "at least one channel is required")
	}
	out := make([]dglab.Channel, 0, len(c.Channels))
	for _, s := range c.Channels {
		ch, ok := dglab.ParseChannel(s)
		if !ok {
			return nil, invalid("channels", s, "unknown channel %q", s)
		}
		out = append(out, ch)
	}
	return out, nil
}

// LinkConfig returns the connection settings. A max_reconnect_attempts of 0
// disables reconnection.
func (c Config) LinkConfig() link.Config {
	attempts := c.MaxReconnectAttempts
	if attempts == 0 {
		attempts = -1
	}
	return link.Config{
		URL:                  c.URL,
		ReconnectInterval:    c.ReconnectInterval.D(),
		MaxReconnectAttempts: attempts,
		HeartbeatInterval:    c.HeartbeatInterval.D(),
		DialTimeout:          c.DialTimeout.D(),
		WriteTimeout:         c.WriteTimeout.D(),
		ReadTimeout:          c.ReadTimeout.D(),
	}
}

// PipelineConfig returns the pipeline settings. Call Validate first.
func (c Config) PipelineConfig() pipeline.Config {
	format, _ := pipeline.ParseFormat(c.Format)
	channels, _ := c.ChannelList()
	return pipeline.Config{
		WindowSize: c.WindowSize,
		SpeedMax:   c.SpeedMax,
		Format:     format,
		Channels:   channels,
		QueueSize:  c.QueueSize,
	}
}

func invalid(name string, value any, format string, args ...any) error {
	err := errors.New(errors.InvalidInput, format, args...)
	err.PropertyName = name
	err.PropertyValue = value
	return err
}
