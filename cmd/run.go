// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/speedlink/pkg/dglab"
	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/pipeline"
	"github.com/Thermoquad/speedlink/pkg/source"
)

var runQuiet bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the device from a speed source",
	Long: `Connect to the relay and drive the device from a live speed source.

Every sample is smoothed, mapped to intensity and frequency, and sent as one
pulse command per channel. While the relay is unreachable samples are still
smoothed but no commands are sent.

With the manual source, speeds in km/h are read from stdin one per line.

Examples:
  # GPS receiver on a USB serial adapter
  speedlink run --port /dev/ttyUSB0 --journal drive.db

  # Type speeds by hand, legacy command format
  speedlink run --source manual --format legacy

  # Replay a recorded drive at double speed
  speedlink run --replay drive.trace --speedup 2`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addPipelineFlags(runCmd)
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print errors and state changes")
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := newSession(printUpdate)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Printf("Speedlink - Run\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Source: %s\n", sourceInfo())
	fmt.Printf("Format: %s, channels: %s\n", cfg.Format, strings.Join(cfg.Channels, ","))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.manual != nil {
		go readManualSpeeds(ctx, os.Stdin, s.manual)
	}

	err = s.run(ctx, printEvent)

	stats := s.manager.Stats()
	fmt.Printf("\n--- Session statistics ---\n")
	fmt.Print(stats.String())
	fmt.Printf("Samples dropped: %d, rejected: %d\n", s.pipeline.Dropped(), s.pipeline.Rejected())
	if s.journal != nil {
		fmt.Printf("Journal session: %s\n", s.journal.SessionID())
	}
	return err
}

// readManualSpeeds feeds km/h values typed on r into m and closes m when r
// ends.
func readManualSpeeds(ctx context.Context, r io.Reader, m *source.Manual) {
	defer m.Close()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		kmh, err := strconv.ParseFloat(line, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "not a speed: %q\n", line)
			continue
		}
		if !m.Set(kmh) {
			fmt.Fprintf(os.Stderr, "dropped %.1f km/h: input is ahead of the pipeline\n", kmh)
		}
	}
}

func printUpdate(u pipeline.Update) {
	if runQuiet {
		return
	}
	status := "sent"
	if u.Skipped {
		status = "skipped (not connected)"
	} else if u.Err != nil {
		status = fmt.Sprintf("failed: %v", u.Err)
	}
	fmt.Printf("[%s] speed=%.1f km/h smoothed=%.1f intensity=%d frequency=%dHz %s\n",
		u.Time.Format("15:04:05.000"), u.Raw, u.Smoothed, u.Params.Intensity, u.Params.Frequency, status)
}

func printEvent(ev link.Event) {
	ts := ev.Time.Format("15:04:05.000")
	switch ev.Type {
	case link.EventOpened, link.EventClosed:
		fmt.Printf("[%s] %s\n", ts, ev)
	case link.EventError:
		fmt.Printf("[%s] [ERROR] %v\n", ts, ev.Err)
	case link.EventResponseReceived:
		if runQuiet {
			return
		}
		if ev.Legacy != nil {
			fmt.Printf("[%s] <- %s\n", ts, dglab.FormatCommand(ev.Legacy))
		} else {
			fmt.Printf("[%s] <- %s\n", ts, dglab.FormatMessage(ev.Message))
		}
	}
}
