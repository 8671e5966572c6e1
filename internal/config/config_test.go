// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/speedlink/pkg/dglab"
	"github.com/Thermoquad/speedlink/pkg/errors"
	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/pipeline"
)

// ============================================================
// Duration Tests
// ============================================================

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"5s", 5 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"PT5S", 5 * time.Second, false},
		{"pt30s", 30 * time.Second, false},
		{"PT1M", time.Minute, false},
		{"PT0.5S", 500 * time.Millisecond, false},
		{"five", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Errorf("UnmarshalText(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("UnmarshalText(%q) error: %v", tt.in, err)
			}
			if d.D() != tt.want {
				t.Errorf("UnmarshalText(%q) = %v, want %v", tt.in, d.D(), tt.want)
			}
		})
	}
}

// ============================================================
// Load Tests
// ============================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, link.DefaultConfig(), cfg.LinkConfig())
	assert.Equal(t, pipeline.DefaultConfig(), cfg.PipelineConfig())
}

func TestLinkConfig_ZeroAttemptsDisablesReconnect(t *testing.T) {
	cfg := Default()
	cfg.MaxReconnectAttempts = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, -1, cfg.LinkConfig().MaxReconnectAttempts)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speedlink.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"url": "ws://127.0.0.1:9999/relay",
		"reconnect_interval": "PT2S",
		"heartbeat_interval": "10s",
		"format": "legacy",
		"channels": ["a"],
		"window_size": 3
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9999/relay", cfg.URL)
	assert.Equal(t, 2*time.Second, cfg.ReconnectInterval.D())
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval.D())
	assert.Equal(t, link.DefaultMaxReconnectAttempts, cfg.MaxReconnectAttempts)

	pc := cfg.PipelineConfig()
	assert.Equal(t, pipeline.FormatLegacy, pc.Format)
	assert.Equal(t, []dglab.Channel{dglab.ChannelA}, pc.Channels)
	assert.Equal(t, 3, pc.WindowSize)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"colour": "red"}`), 0o600))
	_, err = Load(unknown)
	assert.Error(t, err)

	badDuration := filepath.Join(dir, "duration.json")
	require.NoError(t, os.WriteFile(badDuration, []byte(`{"dial_timeout": "soon"}`), 0o600))
	_, err = Load(badDuration)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		property string
	}{
		{"window size", func(c *Config) { c.WindowSize = 0 }, "window_size"},
		{"speed max", func(c *Config) { c.SpeedMax = 0 }, "speed_max"},
		{"reconnect interval", func(c *Config) { c.ReconnectInterval = 0 }, "reconnect_interval"},
		{"heartbeat interval", func(c *Config) { c.HeartbeatInterval = -1 }, "heartbeat_interval"},
		{"dial timeout", func(c *Config) { c.DialTimeout = 0 }, "dial_timeout"},
		{"attempts", func(c *Config) { c.MaxReconnectAttempts = -1 }, "max_reconnect_attempts"},
		{"format", func(c *Config) { c.Format = "xml" }, "format"},
		{"channels empty", func(c *Config) { c.Channels = nil }, "channels"},
		{"channel unknown", func(c *Config) { c.Channels = []string{"C"} }, "channels"},
		{"queue", func(c *Config) { c.QueueSize = 0 }, "queue_size"},
		{"source", func(c *Config) { c.Source = "can" }, "source"},
		{"serial port", func(c *Config) { c.Source = SourceSerial }, "serial_port"},
		{"replay path", func(c *Config) { c.Source = SourceReplay }, "replay_path"},
		{"replay speedup", func(c *Config) { c.Source = SourceReplay; c.ReplayPath = "x.trace"; c.ReplaySpeedup = -1 }, "replay_speedup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.InvalidInput))
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.property, e.PropertyName)
		})
	}
}

func TestValidate_URLAndFormat(t *testing.T) {
	cfg := Default()
	cfg.URL = "http://relay.example"
	assert.True(t, errors.IsKind(cfg.Validate(), errors.InvalidInput))

	cfg = Default()
	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Source = SourceSerial
	cfg.SerialPort = "/dev/ttyUSB0"
	assert.NoError(t, cfg.Validate())
}
