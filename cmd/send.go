// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/speedlink/pkg/dglab"
)

var sendWait time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <strength|pulse|b0|bf> <channel> <values...>",
	Short: "Send a single command to the device",
	Long: `Connect to the relay, send one command and disconnect.

Commands:
  strength <channel> <intensity>              JSON strength command
  pulse    <channel> <frequency> <intensity>  JSON pulse command
  b0       <channel> <intensity>              legacy B0 line
  bf       <channel> <frequency> <intensity>  legacy BF line

JSON values are clamped to intensity 0-200 and frequency 10-240. Legacy lines
are sent exactly as given, with the checksum computed.

With --wait, the first response from the relay is printed.

Examples:
  speedlink send pulse A 30 50
  speedlink send bf B 120 80 --wait 2s`,
	Args: cobra.RangeArgs(3, 4),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendWait, "wait", 0, "Wait this long for a response")
}

// parseCommand builds a command from send arguments.
func parseCommand(args []string) (dglab.Command, error) {
	ch, ok := dglab.ParseChannel(args[1])
	if !ok {
		return nil, fmt.Errorf("unknown channel %q (use A or B)", args[1])
	}

	values := make([]int, 0, len(args)-2)
	for _, a := range args[2:] {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", a, err)
		}
		values = append(values, v)
	}

	want := func(n int) error {
		if len(values) != n {
			return fmt.Errorf("%s takes %d value(s), got %d", args[0], n, len(values))
		}
		return nil
	}

	switch args[0] {
	case "strength":
		if err := want(1); err != nil {
			return nil, err
		}
		return dglab.NewStrength(ch, values[0]), nil
	case "pulse":
		if err := want(2); err != nil {
			return nil, err
		}
		return dglab.NewPulse(ch, values[0], values[1]), nil
	case "b0":
		if err := want(1); err != nil {
			return nil, err
		}
		return dglab.LegacyB0{Channel: ch, Intensity: values[0]}, nil
	case "bf":
		if err := want(2); err != nil {
			return nil, err
		}
		return dglab.LegacyBF{Channel: ch, Frequency: values[0], Intensity: values[1]}, nil
	default:
		return nil, fmt.Errorf("unknown command %q (use strength, pulse, b0 or bf)", args[0])
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	command, err := parseCommand(args)
	if err != nil {
		return err
	}
	return sendOne(command, sendWait)
}

// sendOne connects, sends command and optionally prints the first response.
func sendOne(command dglab.Command, wait time.Duration) error {
	m, connInfo, err := openLink(context.Background())
	if err != nil {
		return err
	}
	defer m.Close()

	events, unsubscribe := m.Subscribe(16)
	defer unsubscribe()

	fmt.Printf("Connection: %s\n", connInfo)
	if err := m.Send(command); err != nil {
		return err
	}
	fmt.Printf("-> %s\n", dglab.FormatCommand(command))

	if wait <= 0 {
		return nil
	}
	ev, err := awaitResponse(events, wait)
	if err != nil {
		return err
	}
	if ev.Legacy != nil {
		fmt.Printf("<- %s\n", dglab.FormatCommand(ev.Legacy))
	} else {
		fmt.Printf("<- %s\n", dglab.FormatMessage(ev.Message))
	}
	return nil
}
