// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/edgetether/deviceconnect/internal/logging"
)

var l = logging.NewAdapter("transport")

// WebSocketConfig is the subset of lib/config.Config a WebSocketTransport
// needs to dial.
type WebSocketConfig struct {
	Host        string // e.g. "wss://connect.example" or "https://connect.example"
	Path        string // appended to Host, e.g. config.ConnectPath
	AuthToken   string
}

// WebSocketTransport is the reference transport: one WebSocket connection
// to a fixed server endpoint, authenticated with a bearer token (§6).
//
// Writes are serialized with a mutex because *websocket.Conn forbids
// concurrent writers — the same discipline the WSConn interface in the
// teleport web terminal reference enforces by construction.
type WebSocketTransport struct {
	cfg WebSocketConfig

	writeMut sync.Mutex
	conn     *websocket.Conn

	mut       sync.Mutex
	connected bool
}

// NewWebSocketTransport returns a transport that will dial cfg.Host+cfg.Path
// on Connect.
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	return &WebSocketTransport{cfg: cfg}
}

func (t *WebSocketTransport) dialURL() (string, error) {
	u, err := url.Parse(t.cfg.Host)
	if err != nil {
		return "", fmt.Errorf("parse host: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + t.cfg.Path
	return u.String(), nil
}

func (t *WebSocketTransport) Connect(ctx context.Context, h Handler) error {
	dialURL, err := t.dialURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	if t.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+t.cfg.AuthToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", dialURL, err)
	}

	t.writeMut.Lock()
	t.conn = conn
	t.writeMut.Unlock()

	t.mut.Lock()
	t.connected = true
	t.mut.Unlock()

	l.Infof("connected to %s", dialURL)
	h.Connected()

	go t.readLoop(conn, h)

	return nil
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn, h Handler) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.mut.Lock()
			wasConnected := t.connected
			t.connected = false
			t.mut.Unlock()
			if wasConnected {
				l.Warnf("read failed: %v", err)
				h.Error(err)
				h.Disconnected()
			}
			return
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		h.DataReceived(data)
	}
}

func (t *WebSocketTransport) Send(b []byte) error {
	t.writeMut.Lock()
	conn := t.conn
	t.writeMut.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		t.mut.Lock()
		t.connected = false
		t.mut.Unlock()
		return err
	}
	return nil
}

func (t *WebSocketTransport) Disconnect() error {
	t.writeMut.Lock()
	conn := t.conn
	t.conn = nil
	t.writeMut.Unlock()

	t.mut.Lock()
	t.connected = false
	t.mut.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *WebSocketTransport) Connected() bool {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.connected
}
