// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package devicehost

import (
	"fmt"
	"net"

	"github.com/rs/xid"
)

// connState is the live half of one forwarded connection: the raw
// socket plus the id logged alongside it.
type connState struct {
	id   xid.ID
	conn net.Conn
}

// PortForward dials plain TCP connections on the device's behalf,
// relaying bytes read from the socket back to the server via emit.
type PortForward struct {
	emit func(data []byte)
}

// NewPortForward returns a PortForward host that calls emit with every
// chunk of data read from the forwarded socket.
func NewPortForward(emit func(data []byte)) *PortForward {
	return &PortForward{emit: emit}
}

func (p *PortForward) Connect(host string, port uint16, protocol string) (any, error) {
	if protocol != "" && protocol != "tcp" {
		return nil, fmt.Errorf("devicehost: unsupported port-forward protocol %q", protocol)
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	state := &connState{id: xid.New(), conn: conn}
	l.Infof("port-forward %s connected to %s", state.id, addr)
	go p.readLoop(state)
	return state, nil
}

func (p *PortForward) readLoop(state *connState) {
	buf := make([]byte, 4096)
	for {
		n, err := state.conn.Read(buf)
		if n > 0 {
			out := make([]byte, n)
			copy(out, buf[:n])
			p.emit(out)
		}
		if err != nil {
			l.Infof("port-forward %s closed: %v", state.id, err)
			return
		}
	}
}

func (p *PortForward) Send(handle any, data []byte) error {
	state, ok := handle.(*connState)
	if !ok {
		return fmt.Errorf("devicehost: invalid port-forward handle")
	}
	_, err := state.conn.Write(data)
	return err
}

func (p *PortForward) Close(handle any) error {
	state, ok := handle.(*connState)
	if !ok {
		return fmt.Errorf("devicehost: invalid port-forward handle")
	}
	return state.conn.Close()
}
