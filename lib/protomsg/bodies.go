// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protomsg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Typed body structures carried inside Envelope.Body, one struct per
// (proto, type) pair that isn't raw bytes. Each has its own Encode/Decode
// pair, mirroring the header's explicit encodeXDR/decodeXDR convention:
// a self-contained, table-free translation between the Go value and the
// wire map.

// UploadRequest is carried by FILE_TRANSFER/put_file.
type UploadRequest struct {
	SrcPath *string
	Path    string
}

// GetFile is carried by FILE_TRANSFER/get_file.
type GetFile struct {
	Path string
}

// StatFile is carried by FILE_TRANSFER/stat.
type StatFile struct {
	Path string
}

// FileInfo is carried by FILE_TRANSFER/file_info.
type FileInfo struct {
	Path    string
	Size    *int64
	UID     *uint32
	GID     *uint32
	Mode    *uint32
	ModTime *time.Time
}

// PortForwardConnect is carried by PORT_FORWARD/new.
type PortForwardConnect struct {
	RemoteHost string
	RemotePort uint16
	Protocol   string
}

// Error is carried by the "error" type of file-transfer and port-forward.
type Error struct {
	Err     *string
	MsgType *string
	MsgID   *string
}

func EncodeUploadRequest(v UploadRequest) ([]byte, error) {
	return encodeBody(func(enc *msgpack.Encoder) error {
		n := 1
		if v.SrcPath != nil {
			n++
		}
		if err := enc.EncodeMapLen(n); err != nil {
			return err
		}
		if v.SrcPath != nil {
			if err := encodeKV(enc, "src_path", func() error { return enc.EncodeString(*v.SrcPath) }); err != nil {
				return err
			}
		}
		return encodeKV(enc, "path", func() error { return enc.EncodeString(v.Path) })
	})
}

func DecodeUploadRequest(b []byte) (UploadRequest, error) {
	var v UploadRequest
	err := decodeBody(b, func(dec *msgpack.Decoder, key string) error {
		switch key {
		case "src_path":
			s, err := dec.DecodeString()
			if err != nil {
				return err
			}
			v.SrcPath = str(s)
		case "path":
			s, err := dec.DecodeString()
			if err != nil {
				return err
			}
			v.Path = s
		default:
			return dec.Skip()
		}
		return nil
	})
	return v, err
}

func EncodeGetFile(v GetFile) ([]byte, error) {
	return encodeBody(func(enc *msgpack.Encoder) error {
		if err := enc.EncodeMapLen(1); err != nil {
			return err
		}
		return encodeKV(enc, "path", func() error { return enc.EncodeString(v.Path) })
	})
}

func DecodeGetFile(b []byte) (GetFile, error) {
	var v GetFile
	err := decodeBody(b, func(dec *msgpack.Decoder, key string) error {
		switch key {
		case "path":
			s, err := dec.DecodeString()
			if err != nil {
				return err
			}
			v.Path = s
		default:
			return dec.Skip()
		}
		return nil
	})
	return v, err
}

func EncodeStatFile(v StatFile) ([]byte, error) {
	return encodeBody(func(enc *msgpack.Encoder) error {
		if err := enc.EncodeMapLen(1); err != nil {
			return err
		}
		return encodeKV(enc, "path", func() error { return enc.EncodeString(v.Path) })
	})
}

func DecodeStatFile(b []byte) (StatFile, error) {
	var v StatFile
	err := decodeBody(b, func(dec *msgpack.Decoder, key string) error {
		switch key {
		case "path":
			s, err := dec.DecodeString()
			if err != nil {
				return err
			}
			v.Path = s
		default:
			return dec.Skip()
		}
		return nil
	})
	return v, err
}

func EncodeFileInfo(v FileInfo) ([]byte, error) {
	return encodeBody(func(enc *msgpack.Encoder) error {
		n := 1
		for _, present := range []bool{v.Size != nil, v.UID != nil, v.GID != nil, v.Mode != nil, v.ModTime != nil} {
			if present {
				n++
			}
		}
		if err := enc.EncodeMapLen(n); err != nil {
			return err
		}
		if err := encodeKV(enc, "path", func() error { return enc.EncodeString(v.Path) }); err != nil {
			return err
		}
		if v.Size != nil {
			if err := encodeKV(enc, "size", func() error { return enc.EncodeInt64(*v.Size) }); err != nil {
				return err
			}
		}
		if v.UID != nil {
			if err := encodeKV(enc, "uid", func() error { return enc.EncodeUint32(*v.UID) }); err != nil {
				return err
			}
		}
		if v.GID != nil {
			if err := encodeKV(enc, "gid", func() error { return enc.EncodeUint32(*v.GID) }); err != nil {
				return err
			}
		}
		if v.Mode != nil {
			if err := encodeKV(enc, "mode", func() error { return enc.EncodeUint32(*v.Mode) }); err != nil {
				return err
			}
		}
		if v.ModTime != nil {
			if err := enc.EncodeString("modtime"); err != nil {
				return err
			}
			if err := encodeModTime(enc, *v.ModTime); err != nil {
				return err
			}
		}
		return nil
	})
}

func DecodeFileInfo(b []byte) (FileInfo, error) {
	var v FileInfo
	err := decodeBody(b, func(dec *msgpack.Decoder, key string) error {
		switch key {
		case "path":
			s, err := dec.DecodeString()
			if err != nil {
				return err
			}
			v.Path = s
		case "size":
			n, err := dec.DecodeInt64()
			if err != nil {
				return err
			}
			v.Size = &n
		case "uid":
			n, err := dec.DecodeUint32()
			if err != nil {
				return err
			}
			v.UID = &n
		case "gid":
			n, err := dec.DecodeUint32()
			if err != nil {
				return err
			}
			v.GID = &n
		case "mode":
			n, err := dec.DecodeUint32()
			if err != nil {
				return err
			}
			v.Mode = &n
		case "modtime":
			t, err := decodeModTime(dec)
			if err != nil {
				return err
			}
			v.ModTime = &t
		default:
			return dec.Skip()
		}
		return nil
	})
	return v, err
}

func EncodePortForwardConnect(v PortForwardConnect) ([]byte, error) {
	return encodeBody(func(enc *msgpack.Encoder) error {
		if err := enc.EncodeMapLen(3); err != nil {
			return err
		}
		if err := encodeKV(enc, "remote_host", func() error { return enc.EncodeString(v.RemoteHost) }); err != nil {
			return err
		}
		if err := encodeKV(enc, "remote_port", func() error { return enc.EncodeUint16(v.RemotePort) }); err != nil {
			return err
		}
		return encodeKV(enc, "protocol", func() error { return enc.EncodeString(v.Protocol) })
	})
}

func DecodePortForwardConnect(b []byte) (PortForwardConnect, error) {
	var v PortForwardConnect
	err := decodeBody(b, func(dec *msgpack.Decoder, key string) error {
		switch key {
		case "remote_host":
			s, err := dec.DecodeString()
			if err != nil {
				return err
			}
			v.RemoteHost = s
		case "remote_port":
			n, err := dec.DecodeUint16()
			if err != nil {
				return err
			}
			v.RemotePort = n
		case "protocol":
			s, err := dec.DecodeString()
			if err != nil {
				return err
			}
			v.Protocol = s
		default:
			return dec.Skip()
		}
		return nil
	})
	return v, err
}

func EncodeErrorBody(v Error) ([]byte, error) {
	return encodeBody(func(enc *msgpack.Encoder) error {
		n := 0
		for _, present := range []bool{v.Err != nil, v.MsgType != nil, v.MsgID != nil} {
			if present {
				n++
			}
		}
		if err := enc.EncodeMapLen(n); err != nil {
			return err
		}
		if v.Err != nil {
			if err := encodeKV(enc, "err", func() error { return enc.EncodeString(*v.Err) }); err != nil {
				return err
			}
		}
		if v.MsgType != nil {
			if err := encodeKV(enc, "msgtype", func() error { return enc.EncodeString(*v.MsgType) }); err != nil {
				return err
			}
		}
		if v.MsgID != nil {
			if err := encodeKV(enc, "msgid", func() error { return enc.EncodeString(*v.MsgID) }); err != nil {
				return err
			}
		}
		return nil
	})
}

func DecodeErrorBody(b []byte) (Error, error) {
	var v Error
	err := decodeBody(b, func(dec *msgpack.Decoder, key string) error {
		switch key {
		case "err":
			s, err := dec.DecodeString()
			if err != nil {
				return err
			}
			v.Err = str(s)
		case "msgtype":
			s, err := dec.DecodeString()
			if err != nil {
				return err
			}
			v.MsgType = str(s)
		case "msgid":
			s, err := dec.DecodeString()
			if err != nil {
				return err
			}
			v.MsgID = str(s)
		default:
			return dec.Skip()
		}
		return nil
	})
	return v, err
}

// NewError builds a one-line Error body carrying only a description, the
// common case for protocol/host-callback failure replies.
func NewError(description string) Error {
	return Error{Err: str(description)}
}

func encodeBody(write func(enc *msgpack.Encoder) error) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := write(enc); err != nil {
		return nil, newEncodeError(err)
	}
	return buf.Bytes(), nil
}

func decodeBody(b []byte, field func(dec *msgpack.Decoder, key string) error) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	n, err := dec.DecodeMapLen()
	if err != nil {
		return classifyDecodeErr(err)
	}
	if n < 0 {
		return newDecodeError(ReasonMalformed, fmt.Errorf("body is nil"))
	}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return classifyDecodeErr(err)
		}
		if err := field(dec, key); err != nil {
			return classifyDecodeErr(err)
		}
	}
	return nil
}

// encodeModTime writes the 4-byte extension with subtype -1 carrying the
// raw big-endian seconds-since-epoch value, per the wire format's only
// accepted time encoding. We bypass the library's generic time.Time ext
// support (which uses a different internal layout) and instead build the
// fixext4(-1) bytes by hand, embedding them verbatim via
// msgpack.RawMessage, whose defined behavior is to encode/decode as
// already-valid MessagePack bytes with no further wrapping.
func encodeModTime(enc *msgpack.Encoder, t time.Time) error {
	var raw [6]byte
	raw[0] = 0xd6 // fixext4
	raw[1] = 0xff // ext subtype -1, as the int8 two's-complement byte
	binary.BigEndian.PutUint32(raw[2:], uint32(t.Unix()))
	return enc.Encode(msgpack.RawMessage(raw[:]))
}

func decodeModTime(dec *msgpack.Decoder) (time.Time, error) {
	var raw msgpack.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return time.Time{}, err
	}
	if len(raw) != 6 || raw[0] != 0xd6 || raw[1] != 0xff {
		return time.Time{}, fmt.Errorf("modtime: expected fixext4(-1), got %d bytes", len(raw))
	}
	secs := binary.BigEndian.Uint32(raw[2:])
	return time.Unix(int64(secs), 0).UTC(), nil
}
