// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/speedlink/pkg/journal"
)

var (
	journalFile  string
	journalLimit int
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect a recorded session journal",
	Long: `Inspect the SQLite journal written by run or monitor with --journal.

  speedlink journal list --file drive.db
  speedlink journal show <session-id> --file drive.db`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the events and samples of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd, journalShowCmd)
	journalCmd.PersistentFlags().StringVarP(&journalFile, "file", "f", "", "Journal file (defaults to journal_path from the config)")
	journalCmd.PersistentFlags().IntVarP(&journalLimit, "limit", "n", 50, "Maximum rows to print")
}

func openJournal() (*journal.Journal, error) {
	path := journalFile
	if path == "" {
		path = cfg.JournalPath
	}
	if path == "" {
		return nil, fmt.Errorf("no journal file: use --file or set journal_path in the config")
	}
	return journal.Open(path, logger)
}

func runJournalList(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	sessions, err := j.Sessions(journalLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}

	fmt.Printf("%-36s  %-19s  %-6s  %7s  %7s  %s\n", "SESSION", "STARTED", "FORMAT", "EVENTS", "SAMPLES", "URL")
	for _, s := range sessions {
		fmt.Printf("%-36s  %-19s  %-6s  %7d  %7d  %s\n",
			s.ID, s.Started.Format("2006-01-02 15:04:05"), s.Format, s.Events, s.Samples, s.URL)
	}
	return nil
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.Events(args[0], journalLimit)
	if err != nil {
		return err
	}
	samples, err := j.Samples(args[0], journalLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 && len(samples) == 0 {
		return fmt.Errorf("session %s has no records", args[0])
	}

	fmt.Printf("Session %s\n\n", args[0])
	fmt.Printf("Events (%d):\n", len(events))
	for _, e := range events {
		line := fmt.Sprintf("  [%s] %-18s %-12s", e.Time.Format("15:04:05.000"), e.Type, e.State)
		if e.MessageType != "" {
			line += " " + e.MessageType
		}
		if e.Raw != "" {
			line += " " + e.Raw
		}
		if e.ErrorText != "" {
			line += fmt.Sprintf(" [%s] %s", e.ErrorKind, e.ErrorText)
		}
		fmt.Println(line)
	}

	fmt.Printf("\nSamples (%d):\n", len(samples))
	for _, s := range samples {
		skipped := ""
		if s.Skipped {
			skipped = " (skipped)"
		}
		fmt.Printf("  [%s] speed=%.1f smoothed=%.1f intensity=%d frequency=%dHz%s\n",
			s.Time.Format("15:04:05.000"), s.Speed, s.Smoothed, s.Intensity, s.Frequency, skipped)
	}
	return nil
}
