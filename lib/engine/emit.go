// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

// EmitShellPrint is the device-originated path for shell output: the
// host's pty reader calls this from its own goroutine whenever it has
// bytes to relay to the server.
func (e *Engine) EmitShellPrint(data []byte) error {
	var result error
	e.run(func() {
		env, err := e.shell.Print(data)
		if err != nil {
			result = err
			return
		}
		if env != nil {
			_ = e.send(*env)
		}
	})
	return result
}

// EmitPortForwardData is the device-originated path for forwarded
// connection bytes: the host's socket reader calls this from its own
// goroutine whenever it has bytes to relay to the server.
func (e *Engine) EmitPortForwardData(data []byte) error {
	var result error
	e.run(func() {
		if e.portfwd == nil {
			return
		}
		env, err := e.portfwd.Forward(data)
		if err != nil {
			result = err
			return
		}
		if env != nil {
			_ = e.send(*env)
		}
	})
	return result
}
