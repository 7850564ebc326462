// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package updatetrigger implements the UPDATE_TRIGGER protocol handler:
// two stateless commands that ask the host to run an update check or
// push an inventory report.
package updatetrigger

import (
	"github.com/edgetether/deviceconnect/internal/logging"
	"github.com/edgetether/deviceconnect/lib/protomsg"
)

var l = logging.NewAdapter("updatetrigger")

// Host is invoked to actually perform the requested action.
type Host interface {
	Execute() error
	InventoryExecute() error
}

// Handler carries no session state: every request is answered
// independently.
type Handler struct {
	host Host
}

// New returns a stateless Handler.
func New(host Host) *Handler {
	return &Handler{host: host}
}

// Handle dispatches one inbound UPDATE_TRIGGER envelope and returns the
// ack to send.
func (h *Handler) Handle(e protomsg.Envelope) (*protomsg.Envelope, error) {
	var err error
	switch e.Type {
	case protomsg.TypeCheckUpdate:
		err = h.host.Execute()
	case protomsg.TypeSendInventory:
		err = h.host.InventoryExecute()
	default:
		l.Warnf("unknown update_trigger type %q", e.Type)
		return nil, nil
	}

	status := protomsg.StatusNormal
	if err != nil {
		status = protomsg.StatusError
	}
	return &protomsg.Envelope{
		Proto:      protomsg.ProtoUpdateTrigger,
		Type:       e.Type,
		SID:        e.SID,
		HasSID:     e.HasSID,
		Properties: protomsg.WithStatus(status),
	}, nil
}
