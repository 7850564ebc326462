// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package fileproto implements the FILE_TRANSFER protocol handler: get,
// put and stat dialogs with windowed acknowledgement, backed by a
// host-provided filesystem Host.
package fileproto

import (
	"errors"
	"fmt"

	"github.com/edgetether/deviceconnect/internal/logging"
	"github.com/edgetether/deviceconnect/lib/protomsg"
)

var l = logging.NewAdapter("fileproto")

// ChunkSize is the maximum number of bytes carried in one file_chunk
// body.
const ChunkSize = 1024

// WindowSize is the number of chunks exchanged between acknowledgements,
// in either direction.
const WindowSize = 10

// ErrUnexpectedState's message is the description of the outbound error
// envelope sent when an "ack" arrives outside READING/EOF; Handle itself
// returns a nil error in that case and never panics.
var ErrUnexpectedState = errors.New("fileproto: ack received outside a read session")

// ReadMode and WriteMode are the host Open mode strings, mirroring the
// wire contract's "rb"/"wb" tags.
const (
	ReadMode  = "rb"
	WriteMode = "wb"
)

// Host is the filesystem surface the device side drives on behalf of a
// remote file-transfer session. Handle is an opaque host-owned token.
type Host interface {
	Stat(path string) (protomsg.FileInfo, error)
	Open(path, mode string) (handle any, err error)
	Read(handle any, max int) (data []byte, err error)
	Write(handle any, data []byte) error
	Close(handle any) error
}

type state int

const (
	stateIdle state = iota
	stateReading
	stateEOF
)

// Handler is the FILE_TRANSFER protocol state machine. It is not safe
// for concurrent use; the owning engine must serialize calls to it.
type Handler struct {
	host Host

	st     state
	handle any
	path   string
	offset uint64

	// inboundChunks counts file_chunk bodies received during an upload;
	// it resets on put_file and on the ack that follows a full window,
	// scoped per upload rather than carried across sessions.
	inboundChunks int
}

// New returns a Handler with no open file.
func New(host Host) *Handler {
	return &Handler{host: host}
}

// Handle dispatches one inbound FILE_TRANSFER envelope and returns the
// zero or more responses to send. get_file may produce several chunk
// envelopes, so Handle returns a slice.
func (h *Handler) Handle(e protomsg.Envelope) ([]protomsg.Envelope, error) {
	switch e.Type {
	case protomsg.TypeGetFile:
		return h.handleGetFile(e)
	case protomsg.TypePutFile:
		return h.handlePutFile(e)
	case protomsg.TypeAck:
		return h.handleAck(e)
	case protomsg.TypeStat:
		return h.handleStat(e)
	case protomsg.TypeFileChunk:
		return h.handleFileChunk(e)
	case protomsg.TypeFileInfo:
		return nil, nil
	case protomsg.TypeError:
		h.reset()
		return nil, nil
	default:
		l.Warnf("unknown file_transfer type %q", e.Type)
		return nil, nil
	}
}

func (h *Handler) handleGetFile(e protomsg.Envelope) ([]protomsg.Envelope, error) {
	req, err := protomsg.DecodeGetFile(e.Body)
	if err != nil {
		return []protomsg.Envelope{errEnvelope(e, "malformed get_file body")}, nil
	}
	if h.st != stateIdle {
		return []protomsg.Envelope{errEnvelope(e, "transfer already in progress")}, nil
	}

	handle, err := h.host.Open(req.Path, ReadMode)
	if err != nil {
		return []protomsg.Envelope{errEnvelope(e, fmt.Sprintf("open: %v", err))}, nil
	}
	h.handle = handle
	h.path = req.Path
	h.offset = 0
	h.st = stateReading

	return h.readWindow(e)
}

// readWindow reads up to WindowSize chunks starting at the handler's
// current offset, emitting one file_chunk envelope per chunk. A
// zero-length chunk marks EOF and is itself emitted as the window's
// final chunk.
func (h *Handler) readWindow(e protomsg.Envelope) ([]protomsg.Envelope, error) {
	var out []protomsg.Envelope
	for i := 0; i < WindowSize; i++ {
		data, err := h.host.Read(h.handle, ChunkSize)
		if err != nil {
			_ = h.host.Close(h.handle)
			h.reset()
			return append(out, errEnvelope(e, fmt.Sprintf("read: %v", err))), nil
		}
		chunk := protomsg.Envelope{
			Proto:      protomsg.ProtoFileTransfer,
			Type:       protomsg.TypeFileChunk,
			SID:        e.SID,
			HasSID:     e.HasSID,
			Properties: offsetProps(e, h.offset),
			Body:       data,
		}
		out = append(out, chunk)
		h.offset += uint64(len(data))
		if len(data) == 0 {
			h.st = stateEOF
			break
		}
		if len(data) < ChunkSize {
			// A short read likely means we're near end of file, but
			// only a zero-length read is a confirmed EOF; stop this
			// window here and let the next ack resume it.
			break
		}
	}
	return out, nil
}

func (h *Handler) handlePutFile(e protomsg.Envelope) ([]protomsg.Envelope, error) {
	req, err := protomsg.DecodeUploadRequest(e.Body)
	if err != nil {
		return []protomsg.Envelope{errEnvelope(e, "malformed put_file body")}, nil
	}

	handle, err := h.host.Open(req.Path, WriteMode)
	if err != nil {
		return []protomsg.Envelope{errEnvelope(e, fmt.Sprintf("open: %v", err))}, nil
	}
	h.handle = handle
	h.path = req.Path
	h.inboundChunks = 0
	// put_file's resulting state is governed by the subsequent
	// file_chunk stream; READING is the closest of the three states to
	// "a handle is open and chunks are expected next".
	h.st = stateReading

	var offset uint64
	if e.Properties != nil && e.Properties.Offset != nil {
		offset = *e.Properties.Offset
	}

	return []protomsg.Envelope{{
		Proto:      protomsg.ProtoFileTransfer,
		Type:       protomsg.TypeAck,
		SID:        e.SID,
		HasSID:     e.HasSID,
		Properties: ackProps(e, offset),
	}}, nil
}

func (h *Handler) handleAck(e protomsg.Envelope) ([]protomsg.Envelope, error) {
	switch h.st {
	case stateReading:
		var offset uint64
		if e.Properties != nil && e.Properties.Offset != nil {
			offset = *e.Properties.Offset
		}
		h.offset = offset
		return h.readWindow(e)
	case stateEOF:
		_ = h.host.Close(h.handle)
		h.reset()
		return nil, nil
	default:
		h.reset()
		return []protomsg.Envelope{errEnvelope(e, ErrUnexpectedState.Error())}, nil
	}
}

func (h *Handler) handleStat(e protomsg.Envelope) ([]protomsg.Envelope, error) {
	req, err := protomsg.DecodeStatFile(e.Body)
	if err != nil {
		return []protomsg.Envelope{errEnvelope(e, "malformed stat body")}, nil
	}
	info, err := h.host.Stat(req.Path)
	if err != nil {
		return []protomsg.Envelope{errEnvelope(e, fmt.Sprintf("stat: %v", err))}, nil
	}
	info.Path = req.Path
	body, err := protomsg.EncodeFileInfo(info)
	if err != nil {
		return []protomsg.Envelope{errEnvelope(e, "encode file_info")}, nil
	}
	return []protomsg.Envelope{{
		Proto:  protomsg.ProtoFileTransfer,
		Type:   protomsg.TypeFileInfo,
		SID:    e.SID,
		HasSID: e.HasSID,
		Body:   body,
	}}, nil
}

func (h *Handler) handleFileChunk(e protomsg.Envelope) ([]protomsg.Envelope, error) {
	if e.Body == nil {
		_ = h.host.Close(h.handle)
		h.reset()
		return []protomsg.Envelope{{
			Proto:      protomsg.ProtoFileTransfer,
			Type:       protomsg.TypeAck,
			SID:        e.SID,
			HasSID:     e.HasSID,
			Properties: ackProps(e, 0),
		}}, nil
	}

	if err := h.host.Write(h.handle, e.Body); err != nil {
		_ = h.host.Close(h.handle)
		h.reset()
		return []protomsg.Envelope{errEnvelope(e, fmt.Sprintf("write: %v", err))}, nil
	}
	h.inboundChunks++
	if h.inboundChunks < WindowSize {
		return nil, nil
	}
	h.inboundChunks = 0
	return []protomsg.Envelope{{
		Proto:      protomsg.ProtoFileTransfer,
		Type:       protomsg.TypeAck,
		SID:        e.SID,
		HasSID:     e.HasSID,
		Properties: ackProps(e, 0),
	}}, nil
}

func (h *Handler) reset() {
	h.st = stateIdle
	h.handle = nil
	h.path = ""
	h.offset = 0
	h.inboundChunks = 0
}

// State reports the current transfer state, for tests asserting the
// IDLE/READING/EOF ⇔ handle-ownership invariant.
func (h *Handler) State() (idle, reading, eof bool) {
	return h.st == stateIdle, h.st == stateReading, h.st == stateEOF
}

// HasHandle reports whether a file handle is currently owned.
func (h *Handler) HasHandle() bool { return h.handle != nil }

func offsetProps(e protomsg.Envelope, offset uint64) *protomsg.Properties {
	p := &protomsg.Properties{Offset: &offset}
	if e.Properties != nil {
		p.UserID = e.Properties.UserID
	}
	return p
}

func ackProps(e protomsg.Envelope, offset uint64) *protomsg.Properties {
	p := &protomsg.Properties{Offset: &offset}
	if e.Properties != nil {
		p.UserID = e.Properties.UserID
		if e.Properties.Offset != nil {
			p.Offset = e.Properties.Offset
		}
	}
	return p
}

func errEnvelope(e protomsg.Envelope, description string) protomsg.Envelope {
	body, _ := protomsg.EncodeErrorBody(protomsg.NewError(description))
	return protomsg.Envelope{
		Proto:  protomsg.ProtoFileTransfer,
		Type:   protomsg.TypeError,
		SID:    e.SID,
		HasSID: e.HasSID,
		Body:   body,
	}
}
