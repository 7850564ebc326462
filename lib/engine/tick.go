// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import "context"

// NetworkAccess brackets a reconnect attempt with host-level radio/modem
// acquisition, per §4.8's "acquire network access via the host". Hosts
// with an always-on network can use NoopNetworkAccess.
type NetworkAccess interface {
	Acquire() error
	Release() error
}

// NoopNetworkAccess is the default NetworkAccess for hosts that have no
// concept of acquiring the network (e.g. anything already behind a
// wired or always-on interface).
type NoopNetworkAccess struct{}

func (NoopNetworkAccess) Acquire() error { return nil }
func (NoopNetworkAccess) Release() error { return nil }

// Tick runs one liveness step (§4.8), serialized onto the command loop
// like every other handler touch, and blocks until it completes:
//
//  1. If the transport isn't connected, acquire network access and dial.
//  2. If it is connected, run the shell handler's healthcheck.
//  3. If the healthcheck fails to run, or sending its ping fails, tear
//     the shell down and disconnect so the next tick retries from step 1.
func (e *Engine) Tick(ctx context.Context, network NetworkAccess, healthcheckTimeoutSeconds uint32) {
	if network == nil {
		network = NoopNetworkAccess{}
	}
	e.run(func() {
		if !e.transport.Connected() {
			if err := network.Acquire(); err != nil {
				l.Warnf("liveness: acquire network: %v", err)
				return
			}
			if err := e.transport.Connect(ctx, e); err != nil {
				l.Warnf("liveness: connect: %v", err)
				_ = network.Release()
			}
			return
		}

		resp, err := e.shell.Healthcheck(healthcheckTimeoutSeconds)
		if err == nil && resp != nil {
			err = e.send(*resp)
		}
		if err != nil {
			l.Warnf("liveness: healthcheck: %v", err)
			if stop := e.shell.Close(); stop != nil {
				_ = e.send(*stop)
			}
			_ = e.transport.Disconnect()
			_ = network.Release()
		}
	})
}
