// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package control implements the reserved CONTROL protocol handler. The
// reference device has nothing transport-level to control yet; every
// message is acknowledged as a no-op.
package control

import "github.com/edgetether/deviceconnect/lib/protomsg"

// Handler acknowledges every CONTROL envelope without side effects.
type Handler struct{}

// New returns a no-op Handler.
func New() *Handler { return &Handler{} }

// Handle always replies ack/NORMAL and never touches any session state.
func (h *Handler) Handle(e protomsg.Envelope) (*protomsg.Envelope, error) {
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoControl,
		Type:       protomsg.TypeAck,
		SID:        e.SID,
		HasSID:     e.HasSID,
		Properties: protomsg.WithStatus(protomsg.StatusNormal),
	}, nil
}
