// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package devicehost provides the reference host-side implementations
// of the protocol handlers' Host interfaces: an os/exec-backed shell,
// an os-file-backed file transfer host, and a net.Dial-backed
// port-forward host. cmd/deviceconnect wires these into the engine;
// a different deployment target would supply its own.
package devicehost

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/edgetether/deviceconnect/internal/logging"
)

var l = logging.NewAdapter("devicehost")

// Shell runs one login shell per session via os/exec. With no pty
// library in play, sessions are driven over stdin/stdout pipes rather
// than a real pty; Resize is therefore a no-op.
type Shell struct {
	emit func(data []byte)

	mut   sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewShell returns a Shell that calls emit with every chunk of output
// read from the child process. emit is called from a reader goroutine
// owned by Open, never from Open/Write/Close themselves.
func NewShell(emit func(data []byte)) *Shell {
	return &Shell{emit: emit}
}

func (s *Shell) Open(width, height uint16) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.cmd != nil {
		return fmt.Errorf("devicehost: shell already open")
	}

	shellPath := os.Getenv("SHELL")
	if shellPath == "" {
		shellPath = "/bin/sh"
	}
	cmd := exec.Command(shellPath, "-i")
	cmd.Env = append(os.Environ(), fmt.Sprintf("COLUMNS=%d", width), fmt.Sprintf("LINES=%d", height))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return err
	}

	s.cmd = cmd
	s.stdin = stdin

	go s.readLoop(stdout)

	return nil
}

func (s *Shell) readLoop(r io.Reader) {
	buf := bufio.NewReaderSize(r, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := buf.Read(chunk)
		if n > 0 {
			out := make([]byte, n)
			copy(out, chunk[:n])
			s.emit(out)
		}
		if err != nil {
			if err != io.EOF {
				l.Warnf("shell output read: %v", err)
			}
			return
		}
	}
}

// Resize is a no-op: pipe-backed shells have no terminal geometry to
// update. A real pty would call pty.Setsize here.
func (s *Shell) Resize(width, height uint16) error {
	return nil
}

func (s *Shell) Write(data []byte) error {
	s.mut.Lock()
	stdin := s.stdin
	s.mut.Unlock()
	if stdin == nil {
		return fmt.Errorf("devicehost: no shell open")
	}
	_, err := stdin.Write(data)
	return err
}

func (s *Shell) Close() error {
	s.mut.Lock()
	cmd, stdin := s.cmd, s.stdin
	s.cmd, s.stdin = nil, nil
	s.mut.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cmd == nil {
		return nil
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	return cmd.Wait()
}
