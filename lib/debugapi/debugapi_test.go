// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package debugapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"
)

type fakeStatus struct{ connected bool }

func (f fakeStatus) Connected() bool { return f.connected }

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestHealthzReflectsConnectionStatus(t *testing.T) {
	addr := freeAddr(t)
	svc := New(addr, fakeStatus{connected: false})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx)

	url := fmt.Sprintf("http://%s/healthz", addr)
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestDisabledWhenAddrEmpty(t *testing.T) {
	svc := New("", nil)
	err := svc.Serve(context.Background())
	if err != nil {
		t.Fatalf("expected nil error for disabled service, got %v", err)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	addr := freeAddr(t)
	svc := New(addr, fakeStatus{connected: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx)

	url := fmt.Sprintf("http://%s/metrics", addr)
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
