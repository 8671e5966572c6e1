// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/speedlink/pkg/errors"
)

// Conn is one established message-oriented connection. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens connections to the relay.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// DefaultHandshakeTimeout bounds the websocket upgrade handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// WebSocketDialer dials ws:// and wss:// endpoints with optional HTTP Basic
// auth.
type WebSocketDialer struct {
	Username         string
	Password         string
	SkipSSLVerify    bool
	HandshakeTimeout time.Duration
}

// ValidateURL checks that endpoint starts with ws:// or wss://. Anything
// else about the URL is left for the dialer to reject.
func ValidateURL(endpoint string) error {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return nil
	}
	return &errors.Error{
		Kind:          errors.InvalidInput,
		Message:       "URL must start with ws:// or wss://",
		PropertyName:  "url",
		PropertyValue: endpoint,
	}
}

// Dial performs the websocket handshake.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	if err := ValidateURL(endpoint); err != nil {
		return nil, err
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, errors.Wrap(errors.TransportError, err, "invalid relay URL")
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	if strings.HasPrefix(endpoint, "wss://") {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: d.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if d.Username != "" && d.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(d.Username + ":" + d.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrap(errors.TransportError, err, "websocket handshake failed (HTTP %d)", resp.StatusCode)
		}
		return nil, errors.Wrap(errors.TransportError, err, "websocket connection failed")
	}
	return conn, nil
}
