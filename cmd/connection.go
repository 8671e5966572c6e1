// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Thermoquad/speedlink/pkg/link"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("SPEEDLINK_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// newManager builds a link manager for the configured relay. It does not
// connect.
func newManager() (*link.Manager, string, error) {
	password := ""
	if cfg.Username != "" {
		var err error
		password, err = GetPassword()
		if err != nil {
			return nil, "", err
		}
	}

	dialer := &link.WebSocketDialer{
		Username:      cfg.Username,
		Password:      password,
		SkipSSLVerify: cfg.NoSSLVerify,
	}
	m, err := link.NewManager(cfg.LinkConfig(), dialer, link.WithLogger(logger))
	if err != nil {
		return nil, "", err
	}
	return m, fmt.Sprintf("Relay: %s", cfg.URL), nil
}

// openLink connects for the one-shot commands. The manager is closed when the
// first dial fails.
func openLink(ctx context.Context) (*link.Manager, string, error) {
	m, connInfo, err := newManager()
	if err != nil {
		return nil, "", err
	}
	if err := m.Connect(ctx); err != nil {
		m.Close()
		return nil, "", err
	}
	return m, connInfo, nil
}

// awaitResponse waits for the next inbound message on events.
func awaitResponse(events <-chan link.Event, timeout time.Duration) (link.Event, error) {
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return link.Event{}, fmt.Errorf("link closed")
			}
			switch ev.Type {
			case link.EventResponseReceived:
				return ev, nil
			case link.EventClosed:
				return ev, fmt.Errorf("connection closed while waiting for a response")
			}
		case <-deadline:
			return link.Event{}, fmt.Errorf("no response in %v", timeout)
		}
	}
}
