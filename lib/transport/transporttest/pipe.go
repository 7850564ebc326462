// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package transporttest provides an in-memory transport.Transport double
// for exercising lib/engine and the protocol handlers without a network,
// grounded on the io.Pipe harness internal/protocol's own tests use to
// wire two peers together.
package transporttest

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/edgetether/deviceconnect/lib/transport"
)

// PipeTransport is a transport.Transport backed by a net.Pipe. Two
// PipeTransports created with NewPipePair are wired to each other:
// anything one side Sends arrives as a DataReceived callback on the
// other. Message boundaries are preserved with a 4-byte big-endian
// length prefix, since net.Pipe (unlike a websocket) is a raw byte
// stream with no framing of its own.
type PipeTransport struct {
	conn net.Conn

	writeMut sync.Mutex

	mut       sync.Mutex
	connected bool
	closed    bool
}

var _ transport.Transport = (*PipeTransport)(nil)

// NewPipePair returns two PipeTransports, each the other's peer.
// Neither is "connected" until Connect is called on it.
func NewPipePair() (*PipeTransport, *PipeTransport) {
	a, b := net.Pipe()
	return &PipeTransport{conn: a}, &PipeTransport{conn: b}
}

func (p *PipeTransport) Connect(ctx context.Context, h transport.Handler) error {
	p.mut.Lock()
	if p.closed {
		p.mut.Unlock()
		return fmt.Errorf("transporttest: pipe already closed")
	}
	p.connected = true
	p.mut.Unlock()

	h.Connected()
	go p.readLoop(h)
	return nil
}

func (p *PipeTransport) readLoop(h transport.Handler) {
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(p.conn, lenBuf[:]); err != nil {
			p.onReadError(err, h)
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		data := make([]byte, n)
		if _, err := io.ReadFull(p.conn, data); err != nil {
			p.onReadError(err, h)
			return
		}
		h.DataReceived(data)
	}
}

func (p *PipeTransport) onReadError(err error, h transport.Handler) {
	p.mut.Lock()
	wasConnected := p.connected
	p.connected = false
	p.mut.Unlock()
	if wasConnected {
		if err != io.EOF {
			h.Error(err)
		}
		h.Disconnected()
	}
}

func (p *PipeTransport) Send(b []byte) error {
	p.writeMut.Lock()
	defer p.writeMut.Unlock()

	p.mut.Lock()
	connected := p.connected
	p.mut.Unlock()
	if !connected {
		return transport.ErrNotConnected
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := p.conn.Write(lenBuf[:]); err != nil {
		p.markDisconnected()
		return err
	}
	if _, err := p.conn.Write(b); err != nil {
		p.markDisconnected()
		return err
	}
	return nil
}

func (p *PipeTransport) markDisconnected() {
	p.mut.Lock()
	p.connected = false
	p.mut.Unlock()
}

func (p *PipeTransport) Disconnect() error {
	p.mut.Lock()
	if p.closed {
		p.mut.Unlock()
		return nil
	}
	p.closed = true
	p.connected = false
	p.mut.Unlock()
	return p.conn.Close()
}

func (p *PipeTransport) Connected() bool {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.connected
}
