// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/speedlink/internal/config"
	"github.com/Thermoquad/speedlink/internal/log"
)

var (
	configPath string
	verbose    bool

	// Relay connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Loaded by PersistentPreRunE, flags applied
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "speedlink",
	Short: "Vehicle speed to DG-LAB controller",
	Long: `Speedlink - turns a live vehicle speed signal into DG-LAB device commands.

Each speed sample is smoothed over a short moving window, mapped onto an
intensity and a pulse frequency, and sent to the DG-LAB relay as one pulse
command per channel. The relay connection is kept alive by a heartbeat and
reconnected automatically a bounded number of times.

Speed sources:
  Serial GPS: --source serial --port /dev/ttyUSB0 [--baud 4800]
  Manual:     --source manual (km/h values read from stdin or typed in the monitor)
  Replay:     --source replay --replay session.trace

For relay authentication, the password is read from the SPEEDLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "JSON configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Relay connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Relay URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadConfig reads --config and lets explicitly set flags override it.
func loadConfig(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger = log.New(os.Stderr, level)

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		loaded.URL = wsURL
	}
	if flags.Changed("username") {
		loaded.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		loaded.NoSSLVerify = wsNoSSLVerify
	}
	applyPipelineFlags(cmd, &loaded)

	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
