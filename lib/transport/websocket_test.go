// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func echoServer(t *testing.T, gotAuth *string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	})
	return httptest.NewServer(mux)
}

type testHandler struct {
	connected    chan struct{}
	disconnected chan struct{}
	received     chan []byte
}

func newTestHandler() *testHandler {
	return &testHandler{
		connected:    make(chan struct{}, 1),
		disconnected: make(chan struct{}, 1),
		received:     make(chan []byte, 8),
	}
}

func (h *testHandler) Connected()            { h.connected <- struct{}{} }
func (h *testHandler) Disconnected()         { h.disconnected <- struct{}{} }
func (h *testHandler) DataReceived(b []byte) { h.received <- b }
func (h *testHandler) Error(error)           {}

func TestWebSocketTransportEchoRoundTrip(t *testing.T) {
	var gotAuth string
	srv := echoServer(t, &gotAuth)
	defer srv.Close()

	tr := NewWebSocketTransport(WebSocketConfig{
		Host:      strings.Replace(srv.URL, "http://", "http://", 1),
		Path:      "/echo",
		AuthToken: "sekret",
	})

	h := newTestHandler()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Connect(ctx, h); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	select {
	case <-h.connected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Connected callback")
	}

	if gotAuth != "Bearer sekret" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer sekret")
	}

	if !tr.Connected() {
		t.Error("Connected() = false after successful dial")
	}

	if err := tr.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-h.received:
		if string(data) != "hello" {
			t.Errorf("echoed data = %q, want %q", data, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echo")
	}

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if tr.Connected() {
		t.Error("Connected() = true after Disconnect")
	}
	if err := tr.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send after disconnect = %v, want ErrNotConnected", err)
	}
}

func TestWebSocketTransportDialURL(t *testing.T) {
	cases := []struct {
		host, path, want string
	}{
		{"https://example.com", "/connect", "wss://example.com/connect"},
		{"http://example.com", "/connect", "ws://example.com/connect"},
		{"wss://example.com/", "/connect", "wss://example.com/connect"},
	}
	for _, c := range cases {
		tr := NewWebSocketTransport(WebSocketConfig{Host: c.host, Path: c.path})
		got, err := tr.dialURL()
		if err != nil {
			t.Errorf("dialURL(%q,%q): %v", c.host, c.path, err)
			continue
		}
		if got != c.want {
			t.Errorf("dialURL(%q,%q) = %q, want %q", c.host, c.path, got, c.want)
		}
	}
}

func TestWebSocketTransportRejectsUnknownScheme(t *testing.T) {
	tr := NewWebSocketTransport(WebSocketConfig{Host: "ftp://example.com", Path: "/x"})
	if _, err := tr.dialURL(); err == nil {
		t.Error("expected error for ftp scheme, got nil")
	}
}
