// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package shellproto implements the SHELL protocol handler: a single
// interactive session toggling between NO_SESSION and LIVE, backed by a
// host-provided pty-like Host.
package shellproto

import (
	"errors"
	"fmt"

	"github.com/edgetether/deviceconnect/internal/logging"
	"github.com/edgetether/deviceconnect/lib/protomsg"
)

var l = logging.NewAdapter("shellproto")

// ErrAlreadyLive is logged (not returned to the peer) when "new" arrives
// while a session is already open.
var ErrAlreadyLive = errors.New("shellproto: session already live")

// ErrNoSession is returned by Print when no session is open.
var ErrNoSession = errors.New("shellproto: no live session")

// Host is the pty-like lifecycle the device side drives on behalf of a
// remote shell session.
type Host interface {
	Open(width, height uint16) error
	Resize(width, height uint16) error
	Write(data []byte) error
	Close() error
}

type state int

const (
	stateNoSession state = iota
	stateLive
)

// Handler is the SHELL protocol state machine. It is not safe for
// concurrent use; the owning engine must serialize calls to it.
type Handler struct {
	host Host
	sid  string
	st   state
}

// New returns a Handler with no live session.
func New(host Host) *Handler {
	return &Handler{host: host}
}

// Handle dispatches one inbound SHELL envelope and returns the response
// to send, if any.
func (h *Handler) Handle(e protomsg.Envelope) (*protomsg.Envelope, error) {
	switch e.Type {
	case protomsg.TypeNew:
		return h.handleNew(e)
	case protomsg.TypeResize:
		return h.handleResize(e)
	case protomsg.TypeShell:
		return h.handleData(e)
	case protomsg.TypePing:
		return h.handlePing(e)
	case protomsg.TypePong:
		return nil, nil
	case protomsg.TypeStop:
		return h.handleStop(e)
	default:
		l.Warnf("unknown shell type %q", e.Type)
		return nil, nil
	}
}

func (h *Handler) handleNew(e protomsg.Envelope) (*protomsg.Envelope, error) {
	if h.st == stateLive {
		l.Warnf("%v: new shell request for sid=%s while session %s is live", ErrAlreadyLive, e.SID, h.sid)
		return nil, nil
	}

	width, height := uint16(0), uint16(0)
	if e.Properties != nil {
		if e.Properties.TerminalWidth != nil {
			width = *e.Properties.TerminalWidth
		}
		if e.Properties.TerminalHeight != nil {
			height = *e.Properties.TerminalHeight
		}
	}

	h.sid = e.SID
	if err := h.host.Open(width, height); err != nil {
		return ack(e, protomsg.StatusError), nil
	}
	h.st = stateLive
	return ack(e, protomsg.StatusNormal), nil
}

func (h *Handler) handleResize(e protomsg.Envelope) (*protomsg.Envelope, error) {
	if h.st != stateLive || e.Properties == nil || e.Properties.TerminalWidth == nil || e.Properties.TerminalHeight == nil {
		return nil, nil
	}
	if err := h.host.Resize(*e.Properties.TerminalWidth, *e.Properties.TerminalHeight); err != nil {
		return nil, fmt.Errorf("shellproto: resize: %w", err)
	}
	return nil, nil
}

func (h *Handler) handleData(e protomsg.Envelope) (*protomsg.Envelope, error) {
	if e.Body == nil {
		return nil, nil
	}
	if err := h.host.Write(e.Body); err != nil {
		return nil, fmt.Errorf("shellproto: write: %w", err)
	}
	return nil, nil
}

func (h *Handler) handlePing(e protomsg.Envelope) (*protomsg.Envelope, error) {
	return &protomsg.Envelope{
		Proto:  protomsg.ProtoShell,
		Type:   protomsg.TypePong,
		SID:    e.SID,
		HasSID: e.HasSID,
	}, nil
}

func (h *Handler) handleStop(e protomsg.Envelope) (*protomsg.Envelope, error) {
	if h.st != stateLive {
		l.Warnf("stop for sid=%s while no session is live", e.SID)
		return nil, nil
	}
	status := protomsg.StatusNormal
	if err := h.host.Close(); err != nil {
		status = protomsg.StatusError
	}
	h.st = stateNoSession
	sid := h.sid
	h.sid = ""
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoShell,
		Type:       protomsg.TypeStop,
		SID:        sid,
		HasSID:     true,
		Properties: protomsg.WithStatus(status),
	}, nil
}

// Print emits a device-originated "shell" envelope carrying data read
// from the pty. It fails if no session is open.
func (h *Handler) Print(data []byte) (*protomsg.Envelope, error) {
	if h.st != stateLive {
		return nil, ErrNoSession
	}
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoShell,
		Type:       protomsg.TypeShell,
		SID:        h.sid,
		HasSID:     true,
		Properties: protomsg.WithStatus(protomsg.StatusNormal),
		Body:       data,
	}, nil
}

// Healthcheck emits an outbound "ping" with status=CONTROL when a shell
// session is open. timeoutSeconds is sent as is in the advisory timeout
// property (the liveness loop passes 2x its interval); zero omits it.
func (h *Handler) Healthcheck(timeoutSeconds uint32) (*protomsg.Envelope, error) {
	if h.st != stateLive {
		return nil, nil
	}
	props := protomsg.WithStatus(protomsg.StatusControl)
	if timeoutSeconds > 0 {
		props.Timeout = &timeoutSeconds
	}
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoShell,
		Type:       protomsg.TypePing,
		SID:        h.sid,
		HasSID:     true,
		Properties: props,
	}, nil
}

// Close forcibly tears down a live session (used by the liveness loop's
// error-recovery path). It is idempotent: calling it with no session
// open is a no-op and emits nothing.
func (h *Handler) Close() *protomsg.Envelope {
	if h.st != stateLive {
		return nil
	}
	sid := h.sid
	_ = h.host.Close()
	h.st = stateNoSession
	h.sid = ""
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoShell,
		Type:       protomsg.TypeStop,
		SID:        sid,
		HasSID:     true,
		Properties: protomsg.WithStatus(protomsg.StatusError),
	}
}

func ack(e protomsg.Envelope, status protomsg.Status) *protomsg.Envelope {
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoShell,
		Type:       e.Type,
		SID:        e.SID,
		HasSID:     e.HasSID,
		Properties: protomsg.WithStatus(status),
	}
}
