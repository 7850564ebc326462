// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package portforward implements the PORT_FORWARD protocol handler: one
// outbound connection forwarded on behalf of the server, keyed by
// (sid, connection_id).
package portforward

import (
	"errors"
	"fmt"

	"github.com/edgetether/deviceconnect/internal/logging"
	"github.com/edgetether/deviceconnect/lib/protomsg"
)

var l = logging.NewAdapter("portforward")

// ErrNoSession is returned by Forward when no connection is open.
var ErrNoSession = errors.New("portforward: no live connection")

// Host is the outbound-socket surface the device side drives on behalf
// of a remote forwarded connection. Handle is an opaque host-owned
// token.
type Host interface {
	Connect(host string, port uint16, protocol string) (handle any, err error)
	Send(handle any, data []byte) error
	Close(handle any) error
}

type state int

const (
	stateNoSession state = iota
	stateLive
)

// Handler is the PORT_FORWARD protocol state machine. It is not safe
// for concurrent use; the owning engine must serialize calls to it.
type Handler struct {
	host Host

	st           state
	sid          string
	connectionID string
	handle       any
}

// New returns a Handler with no live connection.
func New(host Host) *Handler {
	return &Handler{host: host}
}

// Handle dispatches one inbound PORT_FORWARD envelope and returns the
// response to send, if any.
func (h *Handler) Handle(e protomsg.Envelope) (*protomsg.Envelope, error) {
	switch e.Type {
	case protomsg.TypeNew:
		return h.handleNew(e)
	case protomsg.TypeForward:
		return h.handleForward(e)
	case protomsg.TypeStop:
		return h.handleStop(e)
	case protomsg.TypeAck, protomsg.TypeError:
		return nil, nil
	default:
		l.Warnf("unknown port_forward type %q", e.Type)
		return nil, nil
	}
}

func (h *Handler) handleNew(e protomsg.Envelope) (*protomsg.Envelope, error) {
	connID := connectionID(e)
	if h.st == stateLive {
		return errEnvelope(e, connID, "forward session already exists"), nil
	}

	req, err := protomsg.DecodePortForwardConnect(e.Body)
	if err != nil || req.RemotePort == 0 {
		return errEnvelope(e, connID, "malformed or invalid new request"), nil
	}

	handle, err := h.host.Connect(req.RemoteHost, req.RemotePort, req.Protocol)
	if err != nil {
		return errEnvelope(e, connID, fmt.Sprintf("connect: %v", err)), nil
	}

	h.sid = e.SID
	h.connectionID = connID
	h.handle = handle
	h.st = stateLive

	return &protomsg.Envelope{
		Proto:      protomsg.ProtoPortForward,
		Type:       protomsg.TypeAck,
		SID:        e.SID,
		HasSID:     e.HasSID,
		Properties: protomsg.WithConnectionID(connID),
	}, nil
}

func (h *Handler) handleForward(e protomsg.Envelope) (*protomsg.Envelope, error) {
	connID := connectionID(e)
	if h.st != stateLive || connID != h.connectionID || e.Body == nil {
		return nil, nil
	}
	if err := h.host.Send(h.handle, e.Body); err != nil {
		return errEnvelope(e, connID, fmt.Sprintf("send: %v", err)), nil
	}
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoPortForward,
		Type:       protomsg.TypeAck,
		SID:        e.SID,
		HasSID:     e.HasSID,
		Properties: protomsg.WithConnectionID(connID),
	}, nil
}

func (h *Handler) handleStop(e protomsg.Envelope) (*protomsg.Envelope, error) {
	if h.st != stateLive {
		return nil, nil
	}
	connID := h.connectionID
	_ = h.host.Close(h.handle)
	h.reset()
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoPortForward,
		Type:       protomsg.TypeStop,
		SID:        e.SID,
		HasSID:     e.HasSID,
		Properties: protomsg.WithConnectionID(connID),
	}, nil
}

// Forward emits a device-originated "forward" envelope carrying data
// read from the forwarded connection. It fails if no connection is
// open.
func (h *Handler) Forward(data []byte) (*protomsg.Envelope, error) {
	if h.st != stateLive {
		return nil, ErrNoSession
	}
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoPortForward,
		Type:       protomsg.TypeForward,
		SID:        h.sid,
		HasSID:     true,
		Properties: protomsg.WithConnectionID(h.connectionID),
		Body:       data,
	}, nil
}

// SessionState reports whether a session is open and, if so, its keys —
// for tests asserting the sid ⇔ connection_id ⇔ handle invariant.
func (h *Handler) SessionState() (live bool, sid, connectionID string) {
	return h.st == stateLive, h.sid, h.connectionID
}

func (h *Handler) reset() {
	h.st = stateNoSession
	h.sid = ""
	h.connectionID = ""
	h.handle = nil
}

func connectionID(e protomsg.Envelope) string {
	if e.Properties != nil && e.Properties.ConnectionID != nil {
		return *e.Properties.ConnectionID
	}
	return ""
}

func errEnvelope(e protomsg.Envelope, connID, description string) *protomsg.Envelope {
	body, _ := protomsg.EncodeErrorBody(protomsg.NewError(description))
	props := protomsg.WithConnectionID(connID)
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoPortForward,
		Type:       protomsg.TypeError,
		SID:        e.SID,
		HasSID:     e.HasSID,
		Properties: props,
		Body:       body,
	}
}
