// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package transport defines the persistent bidirectional message stream
// the protocol engine runs on, and a gorilla/websocket implementation of
// it (§4.9, §6). Framing and semantics of the protocol itself are
// independent of the transport; anything satisfying Transport works.
package transport

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Send when the transport has no live
// connection.
var ErrNotConnected = errors.New("transport: not connected")

// Handler receives the four transport-level events described in §4.9.
// Connected and Disconnected are purely informational; DataReceived
// delivers one complete inbound frame (message boundaries preserved);
// Error reports a failure that should be treated as a disconnect.
type Handler interface {
	Connected()
	DataReceived(b []byte)
	Disconnected()
	Error(err error)
}

// Transport is the engine's view of the underlying stream. Implementors
// must preserve message boundaries on both Send and the DataReceived
// callback, and Send must be safe to call while a read loop is delivering
// callbacks concurrently.
type Transport interface {
	// Connect dials the transport and starts delivering events to h on
	// a goroutine owned by the implementation. It returns once the
	// connection is established (or dialing fails).
	Connect(ctx context.Context, h Handler) error

	// Send transmits one complete message. It is synchronous with
	// respect to the caller.
	Send(b []byte) error

	// Disconnect closes the transport. It is safe to call more than
	// once and safe to call when not connected.
	Disconnect() error

	// Connected reports whether the transport currently believes it has
	// a live connection.
	Connected() bool
}
