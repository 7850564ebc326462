// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package liveness runs the periodic healthcheck tick described in
// §4.8, as a suture.Service wrapping a time.Ticker. Reconnect attempts
// are paced with golang.org/x/time/rate so a flapping transport can't
// busy-loop faster than one attempt per interval.
package liveness

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/edgetether/deviceconnect/internal/logging"
	"github.com/edgetether/deviceconnect/lib/engine"
)

var l = logging.NewAdapter("liveness")

// Ticker is the subset of *engine.Engine the loop needs.
type Ticker interface {
	Tick(ctx context.Context, network engine.NetworkAccess, healthcheckTimeoutSeconds uint32)
}

// Loop is a suture.Service driving Ticker.Tick every Interval. A
// non-positive Interval makes Serve return immediately (§4.8: "≤0
// disables it").
type Loop struct {
	Engine   Ticker
	Network  engine.NetworkAccess
	Interval time.Duration
}

// New returns a Loop ready to be added to a suture supervisor.
func New(e Ticker, network engine.NetworkAccess, interval time.Duration) *Loop {
	return &Loop{Engine: e, Network: network, Interval: interval}
}

// Serve runs the ticker until ctx is canceled, satisfying
// suture.Service. It returns immediately, successfully, if the loop is
// disabled by configuration.
func (lp *Loop) Serve(ctx context.Context) error {
	if lp.Interval <= 0 {
		l.Infof("healthcheck loop disabled (interval <= 0)")
		return nil
	}

	limiter := rate.NewLimiter(rate.Every(lp.Interval), 1)
	ticker := time.NewTicker(lp.Interval)
	defer ticker.Stop()

	timeout := uint32(2 * lp.Interval / time.Second)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !limiter.Allow() {
				continue
			}
			lp.Engine.Tick(ctx, lp.Network, timeout)
		}
	}
}
