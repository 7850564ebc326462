// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package protomsg implements the self-describing binary envelope that
// wraps every request and response on the device connect channel, and the
// typed body structures carried inside it.
package protomsg

import "fmt"

// Proto is the 16-bit discriminator selecting which handler an envelope
// routes to.
type Proto uint16

const (
	ProtoInvalid        Proto = 0x0000
	ProtoShell          Proto = 0x0001
	ProtoFileTransfer   Proto = 0x0002
	ProtoPortForward    Proto = 0x0003
	ProtoUpdateTrigger  Proto = 0x0004
	ProtoControl        Proto = 0xFFFF
)

func (p Proto) String() string {
	switch p {
	case ProtoInvalid:
		return "invalid"
	case ProtoShell:
		return "shell"
	case ProtoFileTransfer:
		return "file_transfer"
	case ProtoPortForward:
		return "port_forward"
	case ProtoUpdateTrigger:
		return "update_trigger"
	case ProtoControl:
		return "control"
	default:
		return fmt.Sprintf("proto(0x%04x)", uint16(p))
	}
}

// Known reports whether p is one of the defined discriminants.
func (p Proto) Known() bool {
	switch p {
	case ProtoShell, ProtoFileTransfer, ProtoPortForward, ProtoUpdateTrigger, ProtoControl:
		return true
	default:
		return false
	}
}

// Status is the well-known "status" property value.
type Status uint8

const (
	StatusNormal  Status = 1
	StatusError   Status = 2
	StatusControl Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusError:
		return "error"
	case StatusControl:
		return "control"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Well-known operation type tags carried in Envelope.Type.
const (
	TypeNew           = "new"
	TypeStop          = "stop"
	TypeShell         = "shell"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeResize        = "resize"
	TypeGetFile       = "get_file"
	TypePutFile       = "put_file"
	TypeAck           = "ack"
	TypeStat          = "stat"
	TypeFileInfo      = "file_info"
	TypeFileChunk     = "file_chunk"
	TypeError         = "error"
	TypeForward       = "forward"
	TypeCheckUpdate   = "check-update"
	TypeSendInventory = "send-inventory"
)

// Properties is the envelope's optional well-known property bag. Every
// field is a pointer: nil means absent, which is semantically distinct
// from the zero value of the underlying type.
type Properties struct {
	TerminalWidth  *uint16
	TerminalHeight *uint16
	UserID         *string
	Timeout        *uint32
	Status         *Status
	Offset         *uint64
	ConnectionID   *string
}

// IsZero reports whether no property is set, in which case the envelope
// omits the "props" key entirely.
func (p *Properties) IsZero() bool {
	if p == nil {
		return true
	}
	return p.TerminalWidth == nil && p.TerminalHeight == nil && p.UserID == nil &&
		p.Timeout == nil && p.Status == nil && p.Offset == nil && p.ConnectionID == nil
}

// Envelope is the top-level framed message exchanged over the transport.
type Envelope struct {
	Proto      Proto
	Type       string
	SID        string // meaningful only when HasSID is true
	HasSID     bool
	Properties *Properties
	Body       []byte // nil means absent; non-nil (possibly empty) means present
}

func (e Envelope) String() string {
	sid := "-"
	if e.HasSID {
		sid = e.SID
	}
	return fmt.Sprintf("Envelope{proto:%s, type:%q, sid:%s, body:%d bytes}", e.Proto, e.Type, sid, len(e.Body))
}

// Helper constructors used within this package (and its tests) to take
// the address of a literal when building optional Properties fields.

func u16(v uint16) *uint16    { return &v }
func u32(v uint32) *uint32    { return &v }
func u64(v uint64) *uint64    { return &v }
func str(v string) *string    { return &v }
func stat(v Status) *Status   { return &v }

// WithStatus returns a Properties carrying only a status value.
func WithStatus(s Status) *Properties {
	return &Properties{Status: stat(s)}
}

// WithConnectionID returns a Properties carrying only a connection_id value.
func WithConnectionID(id string) *Properties {
	return &Properties{ConnectionID: str(id)}
}
