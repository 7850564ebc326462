// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package portforward

import (
	"errors"
	"testing"

	"github.com/edgetether/deviceconnect/lib/protomsg"
)

type fakeHost struct {
	connectErr error
	connected  []string
	sent       [][]byte
	closed     int
}

func (h *fakeHost) Connect(host string, port uint16, protocol string) (any, error) {
	if h.connectErr != nil {
		return nil, h.connectErr
	}
	h.connected = append(h.connected, protocol)
	return "conn", nil
}

func (h *fakeHost) Send(handle any, data []byte) error {
	h.sent = append(h.sent, append([]byte{}, data...))
	return nil
}

func (h *fakeHost) Close(handle any) error {
	h.closed++
	return nil
}

func newEnvelope(typ string, connID string, body []byte) protomsg.Envelope {
	return protomsg.Envelope{
		Proto:      protomsg.ProtoPortForward,
		Type:       typ,
		SID:        "P1",
		HasSID:     true,
		Properties: &protomsg.Properties{ConnectionID: &connID},
		Body:       body,
	}
}

func TestHappyPath(t *testing.T) {
	host := &fakeHost{}
	h := New(host)

	body, _ := protomsg.EncodePortForwardConnect(protomsg.PortForwardConnect{RemoteHost: "10.0.0.2", RemotePort: 22, Protocol: "tcp"})
	resp, err := h.Handle(newEnvelope(protomsg.TypeNew, "C1", body))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if resp == nil || resp.Type != protomsg.TypeAck || *resp.Properties.ConnectionID != "C1" {
		t.Fatalf("unexpected new response: %+v", resp)
	}
	if len(host.connected) != 1 || host.connected[0] != "tcp" {
		t.Fatalf("host.Connect not called with tcp: %+v", host.connected)
	}

	out, err := h.Forward([]byte("x"))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if out.Type != protomsg.TypeForward || *out.Properties.ConnectionID != "C1" || string(out.Body) != "x" {
		t.Fatalf("unexpected forward envelope: %+v", out)
	}

	resp, err = h.Handle(newEnvelope(protomsg.TypeStop, "C1", nil))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if resp == nil || resp.Type != protomsg.TypeStop || *resp.Properties.ConnectionID != "C1" {
		t.Fatalf("unexpected stop response: %+v", resp)
	}
	if host.closed != 1 {
		t.Fatal("host.Close not called")
	}
	if live, _, _ := h.SessionState(); live {
		t.Fatal("expected no live session after stop")
	}
}

func TestSecondNewWhileLiveIsRejected(t *testing.T) {
	host := &fakeHost{}
	h := New(host)
	body, _ := protomsg.EncodePortForwardConnect(protomsg.PortForwardConnect{RemoteHost: "h", RemotePort: 80, Protocol: "tcp"})
	h.Handle(newEnvelope(protomsg.TypeNew, "C1", body))

	resp, err := h.Handle(newEnvelope(protomsg.TypeNew, "C2", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil || resp.Type != protomsg.TypeError {
		t.Fatalf("expected error envelope, got %+v", resp)
	}
	if _, _, connID := h.SessionState(); connID != "C1" {
		t.Fatalf("connection_id overwritten: %q", connID)
	}
}

func TestConnectFailureClearsState(t *testing.T) {
	host := &fakeHost{connectErr: errors.New("refused")}
	h := New(host)
	body, _ := protomsg.EncodePortForwardConnect(protomsg.PortForwardConnect{RemoteHost: "h", RemotePort: 80, Protocol: "tcp"})
	resp, err := h.Handle(newEnvelope(protomsg.TypeNew, "C1", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil || resp.Type != protomsg.TypeError {
		t.Fatalf("expected error envelope, got %+v", resp)
	}
	if live, _, _ := h.SessionState(); live {
		t.Fatal("expected no session after failed connect")
	}
}

func TestForwardFailsWithoutSession(t *testing.T) {
	h := New(&fakeHost{})
	if _, err := h.Forward([]byte("x")); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Forward without session: err=%v, want ErrNoSession", err)
	}
}
