// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/speedlink/pkg/dglab"
)

var bindWait time.Duration

var bindCmd = &cobra.Command{
	Use:   "bind <code>",
	Short: "Bind the relay session to a device QR code",
	Long: `Send the content of a DG-LAB QR code to the relay to pair this session
with the app that displayed it.

The relay normally answers with a bind confirmation or an error message,
which is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runBind,
}

func init() {
	rootCmd.AddCommand(bindCmd)
	bindCmd.Flags().DurationVar(&bindWait, "wait", 5*time.Second, "Wait this long for the relay to answer")
}

func runBind(cmd *cobra.Command, args []string) error {
	code := strings.TrimSpace(args[0])
	if code == "" {
		return fmt.Errorf("QR code content is empty")
	}
	return sendOne(dglab.NewQRBind(code), bindWait)
}
