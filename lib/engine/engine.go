// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package engine ties the codec, the five protocol handlers and the
// transport together: one dispatcher fed by inbound frames, serialized
// with the liveness loop's ticks onto a single command channel so that
// no two handler invocations ever overlap (§5).
package engine

import (
	"context"

	"github.com/edgetether/deviceconnect/internal/logging"
	"github.com/edgetether/deviceconnect/lib/control"
	"github.com/edgetether/deviceconnect/lib/fileproto"
	"github.com/edgetether/deviceconnect/lib/portforward"
	"github.com/edgetether/deviceconnect/lib/shellproto"
	"github.com/edgetether/deviceconnect/lib/transport"
	"github.com/edgetether/deviceconnect/lib/updatetrigger"
)

var l = logging.NewAdapter("engine")

// commandQueueSize bounds how many pending commands (inbound frames,
// liveness ticks, device-originated emits) can be queued ahead of the
// single processing loop before a caller blocks.
const commandQueueSize = 256

// Deps bundles the collaborators Engine dispatches to. PortForward may
// be nil, in which case PORT_FORWARD envelopes are answered with an
// error per §4.2's "may be unavailable per build" clause.
type Deps struct {
	Transport     transport.Transport
	Shell         *shellproto.Handler
	File          *fileproto.Handler
	PortForward   *portforward.Handler
	UpdateTrigger *updatetrigger.Handler
	Control       *control.Handler
}

// Engine is the dispatcher and single-threaded command loop described in
// §4.2 and §5. All exported methods are safe to call from any goroutine;
// internally every handler touch happens on the one loop goroutine
// running inside Serve.
type Engine struct {
	transport transport.Transport
	shell     *shellproto.Handler
	file      *fileproto.Handler
	portfwd   *portforward.Handler
	update    *updatetrigger.Handler
	control   *control.Handler

	cmds chan func()
}

var _ transport.Handler = (*Engine)(nil)

// New constructs an Engine from its collaborators. It does not start the
// processing loop; call Serve (directly or via a suture supervisor).
func New(d Deps) *Engine {
	return &Engine{
		transport: d.Transport,
		shell:     d.Shell,
		file:      d.File,
		portfwd:   d.PortForward,
		update:    d.UpdateTrigger,
		control:   d.Control,
		cmds:      make(chan func(), commandQueueSize),
	}
}

// Serve runs the command loop until ctx is canceled, satisfying
// suture.Service.
func (e *Engine) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.cmds:
			cmd()
		}
	}
}

// Connected implements transport.Handler. Connection establishment
// carries no handler-state side effects, so it's logged directly
// without going through the command loop.
func (e *Engine) Connected() {
	l.Infof("transport connected")
}

// Disconnected implements transport.Handler.
func (e *Engine) Disconnected() {
	l.Warnf("transport disconnected")
}

// Error implements transport.Handler. The transport has already flipped
// to disconnected by the time this fires; recovery happens on the
// liveness loop's next tick.
func (e *Engine) Error(err error) {
	l.Warnf("transport error: %v", err)
}

// DataReceived implements transport.Handler: one complete inbound frame
// is queued for dispatch on the command loop.
func (e *Engine) DataReceived(b []byte) {
	e.cmds <- func() { e.dispatch(b) }
}

// run queues fn on the command loop and blocks until it has completed.
func (e *Engine) run(fn func()) {
	done := make(chan struct{})
	e.cmds <- func() {
		defer close(done)
		fn()
	}
	<-done
}
