// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package debugapi is a minimal operator-facing HTTP surface: Prometheus
// metrics and a liveness probe, served as a suture.Service alongside the
// engine. It carries none of a full GUI/REST config API's assets or
// config surface, since this device exposes neither.
package debugapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"
	"golang.org/x/sync/errgroup"

	"github.com/edgetether/deviceconnect/internal/logging"
)

var l = logging.NewAdapter("debugapi")

// ConnectionStatus reports whether the engine currently believes it has
// a live transport connection, for the /healthz probe.
type ConnectionStatus interface {
	Connected() bool
}

// Service serves /metrics and /healthz on Addr. It is a no-op (Serve
// returns nil immediately) when Addr is empty, mirroring
// config.Config.DebugListenAddr's "empty disables it" contract.
type Service struct {
	Addr   string
	Status ConnectionStatus
}

var _ suture.Service = (*Service)(nil)

// New returns a Service listening on addr. status may be nil, in which
// case /healthz always reports healthy.
func New(addr string, status ConnectionStatus) *Service {
	return &Service{Addr: addr, Status: status}
}

func (s *Service) Serve(ctx context.Context) error {
	if s.Addr == "" {
		l.Infof("debug API disabled (no listen address configured)")
		return nil
	}

	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	defer listener.Close()

	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	router.GET("/healthz", s.healthz)

	srv := &http.Server{
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(listener)
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.Close()
		return ctx.Err()
	})

	l.Infof("debug API listening on %s", listener.Addr())

	return g.Wait()
}

func (s *Service) healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.Status != nil && !s.Status.Connected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("disconnected\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}
