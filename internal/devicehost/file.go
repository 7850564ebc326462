// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package devicehost

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edgetether/deviceconnect/lib/fileproto"
	"github.com/edgetether/deviceconnect/lib/protomsg"
)

// File reads and writes plain files on the local filesystem, handed out
// by *os.File handles typed as `any` to satisfy fileproto.Host.
type File struct{}

// NewFile returns a File host rooted at the local filesystem's normal
// path resolution (no chroot/jail; the device is trusted).
func NewFile() *File {
	return &File{}
}

func (f *File) Stat(path string) (protomsg.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return protomsg.FileInfo{}, err
	}
	size := fi.Size()
	mode := uint32(fi.Mode().Perm())
	modTime := fi.ModTime()
	return protomsg.FileInfo{
		Path:    path,
		Size:    &size,
		Mode:    &mode,
		ModTime: &modTime,
	}, nil
}

func (f *File) Open(path, mode string) (any, error) {
	switch mode {
	case fileproto.ReadMode:
		return os.Open(path)
	case fileproto.WriteMode:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	default:
		return nil, fmt.Errorf("devicehost: unknown open mode %q", mode)
	}
}

func (f *File) Read(handle any, max int) ([]byte, error) {
	fh, ok := handle.(*os.File)
	if !ok {
		return nil, fmt.Errorf("devicehost: invalid file handle")
	}
	buf := make([]byte, max)
	n, err := fh.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil && errors.Is(err, io.EOF) {
		return nil, nil
	}
	return nil, err
}

func (f *File) Write(handle any, data []byte) error {
	fh, ok := handle.(*os.File)
	if !ok {
		return fmt.Errorf("devicehost: invalid file handle")
	}
	_, err := fh.Write(data)
	return err
}

func (f *File) Close(handle any) error {
	fh, ok := handle.(*os.File)
	if !ok {
		return fmt.Errorf("devicehost: invalid file handle")
	}
	return fh.Close()
}
