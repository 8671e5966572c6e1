// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/pipeline"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for driving and watching the link",
	Long: `Drive the device from a speed source inside an interactive terminal UI.

The monitor shows the link state, the latest speed and the control values
derived from it, link statistics and a log of recent events.

With the manual source, type a speed in km/h and press Enter to inject it.

Keys:
  enter   inject the typed speed (manual source)
  ctrl+r  reconnect after the retry limit was reached
  ctrl+d  disconnect
  q       quit (when the speed input is empty)
  ctrl+c  quit`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addPipelineFlags(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	var p *tea.Program
	s, err := newSession(func(u pipeline.Update) {
		p.Send(updateMsg(u))
	})
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p = tea.NewProgram(initialMonitorModel(ctx, s), tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		done <- s.run(ctx, func(ev link.Event) {
			p.Send(linkEventMsg(ev))
		})
	}()

	_, tuiErr := p.Run()
	cancel()
	runErr := <-done

	if tuiErr != nil {
		return fmt.Errorf("TUI error: %w", tuiErr)
	}
	return runErr
}
