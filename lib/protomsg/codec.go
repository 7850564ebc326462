// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protomsg

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode produces a deterministic byte string for e: a map of "proto",
// "typ", optionally "sid", optionally "props" and optionally "body", in
// that fixed key order.
func Encode(e Envelope) ([]byte, error) {
	if !e.Proto.Known() {
		return nil, newEncodeError(fmt.Errorf("%w: %s", ErrUnknownProto, e.Proto))
	}
	if e.Type == "" {
		return nil, newEncodeError(ErrMissingType)
	}

	hasProps := !e.Properties.IsZero()

	n := 2
	if e.HasSID {
		n++
	}
	if hasProps {
		n++
	}
	if e.Body != nil {
		n++
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.EncodeMapLen(n); err != nil {
		return nil, newEncodeError(err)
	}
	if err := encodeKV(enc, "proto", func() error { return enc.EncodeUint16(uint16(e.Proto)) }); err != nil {
		return nil, err
	}
	if err := encodeKV(enc, "typ", func() error { return enc.EncodeString(e.Type) }); err != nil {
		return nil, err
	}
	if e.HasSID {
		if err := encodeKV(enc, "sid", func() error { return enc.EncodeString(e.SID) }); err != nil {
			return nil, err
		}
	}
	if hasProps {
		if err := enc.EncodeString("props"); err != nil {
			return nil, newEncodeError(err)
		}
		if err := encodeProperties(enc, e.Properties); err != nil {
			return nil, err
		}
	}
	if e.Body != nil {
		if err := encodeKV(enc, "body", func() error { return enc.EncodeBytes(e.Body) }); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func encodeKV(enc *msgpack.Encoder, key string, encodeValue func() error) error {
	if err := enc.EncodeString(key); err != nil {
		return newEncodeError(err)
	}
	if err := encodeValue(); err != nil {
		return newEncodeError(err)
	}
	return nil
}

func encodeProperties(enc *msgpack.Encoder, p *Properties) error {
	n := 0
	for _, present := range []bool{
		p.TerminalWidth != nil, p.TerminalHeight != nil, p.UserID != nil,
		p.Timeout != nil, p.Status != nil, p.Offset != nil, p.ConnectionID != nil,
	} {
		if present {
			n++
		}
	}
	if err := enc.EncodeMapLen(n); err != nil {
		return newEncodeError(err)
	}
	if p.TerminalWidth != nil {
		if err := encodeKV(enc, "terminal_width", func() error { return enc.EncodeUint16(*p.TerminalWidth) }); err != nil {
			return err
		}
	}
	if p.TerminalHeight != nil {
		if err := encodeKV(enc, "terminal_height", func() error { return enc.EncodeUint16(*p.TerminalHeight) }); err != nil {
			return err
		}
	}
	if p.UserID != nil {
		if err := encodeKV(enc, "user_id", func() error { return enc.EncodeString(*p.UserID) }); err != nil {
			return err
		}
	}
	if p.Timeout != nil {
		if err := encodeKV(enc, "timeout", func() error { return enc.EncodeUint32(*p.Timeout) }); err != nil {
			return err
		}
	}
	if p.Status != nil {
		if uint64(*p.Status) > 0xff {
			return newEncodeError(fmt.Errorf("status %d overflows u8", *p.Status))
		}
		if err := encodeKV(enc, "status", func() error { return enc.EncodeUint8(uint8(*p.Status)) }); err != nil {
			return err
		}
	}
	if p.Offset != nil {
		if err := encodeKV(enc, "offset", func() error { return enc.EncodeUint64(*p.Offset) }); err != nil {
			return err
		}
	}
	if p.ConnectionID != nil {
		if err := encodeKV(enc, "connection_id", func() error { return enc.EncodeString(*p.ConnectionID) }); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses one complete envelope from b. Trailing bytes after the
// message are an error. Unknown map keys at any level are tolerated and
// ignored.
func Decode(b []byte) (Envelope, error) {
	// Bound the decoder to exactly the input we were given: a message
	// claiming lengths beyond this reader's remaining bytes surfaces as
	// io.ErrUnexpectedEOF / io.EOF from the decoder, which we classify as
	// ReasonTruncated below, rather than reading past the caller's slice.
	r := bytes.NewReader(b)
	dec := msgpack.NewDecoder(r)

	var e Envelope
	n, err := dec.DecodeMapLen()
	if err != nil {
		return Envelope{}, classifyDecodeErr(err)
	}
	if n < 0 {
		return Envelope{}, newDecodeError(ReasonMalformed, fmt.Errorf("envelope is nil"))
	}

	sawProto, sawType := false, false
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return Envelope{}, classifyDecodeErr(err)
		}
		switch key {
		case "proto":
			v, err := dec.DecodeUint16()
			if err != nil {
				return Envelope{}, classifyDecodeErr(err)
			}
			e.Proto = Proto(v)
			sawProto = true
		case "typ":
			v, err := dec.DecodeString()
			if err != nil {
				return Envelope{}, classifyDecodeErr(err)
			}
			e.Type = v
			sawType = true
		case "sid":
			v, err := dec.DecodeString()
			if err != nil {
				return Envelope{}, classifyDecodeErr(err)
			}
			e.SID = v
			e.HasSID = true
		case "props":
			props, err := decodeProperties(dec)
			if err != nil {
				return Envelope{}, err
			}
			e.Properties = props
		case "body":
			v, err := dec.DecodeBytes()
			if err != nil {
				return Envelope{}, classifyDecodeErr(err)
			}
			if v == nil {
				v = []byte{}
			}
			e.Body = v
		default:
			if err := dec.Skip(); err != nil {
				return Envelope{}, classifyDecodeErr(err)
			}
		}
	}

	if !sawProto || !sawType {
		return Envelope{}, newDecodeError(ReasonMalformed, ErrMissingType)
	}
	if !e.Proto.Known() {
		return Envelope{}, newDecodeError(ReasonMalformed, fmt.Errorf("%w: %s", ErrUnknownProto, e.Proto))
	}

	if r.Len() != 0 {
		return Envelope{}, newDecodeError(ReasonMalformed, ErrTrailingBytes)
	}

	return e, nil
}

func decodeProperties(dec *msgpack.Decoder) (*Properties, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, classifyDecodeErr(err)
	}
	if n < 0 {
		return nil, nil
	}
	p := &Properties{}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, classifyDecodeErr(err)
		}
		switch key {
		case "terminal_width":
			v, err := dec.DecodeUint16()
			if err != nil {
				return nil, classifyDecodeErr(err)
			}
			p.TerminalWidth = u16(v)
		case "terminal_height":
			v, err := dec.DecodeUint16()
			if err != nil {
				return nil, classifyDecodeErr(err)
			}
			p.TerminalHeight = u16(v)
		case "user_id":
			v, err := dec.DecodeString()
			if err != nil {
				return nil, classifyDecodeErr(err)
			}
			p.UserID = str(v)
		case "timeout":
			v, err := dec.DecodeUint32()
			if err != nil {
				return nil, classifyDecodeErr(err)
			}
			p.Timeout = u32(v)
		case "status":
			v, err := dec.DecodeUint8()
			if err != nil {
				return nil, classifyDecodeErr(err)
			}
			p.Status = stat(Status(v))
		case "offset":
			v, err := dec.DecodeUint64()
			if err != nil {
				return nil, classifyDecodeErr(err)
			}
			p.Offset = u64(v)
		case "connection_id":
			v, err := dec.DecodeString()
			if err != nil {
				return nil, classifyDecodeErr(err)
			}
			p.ConnectionID = str(v)
		default:
			if err := dec.Skip(); err != nil {
				return nil, classifyDecodeErr(err)
			}
		}
	}
	return p, nil
}

// classifyDecodeErr maps a msgpack/io error into our DecodeReason
// taxonomy. EOF-family errors mean the declared length ran past the
// available bytes; anything else is a malformed message.
func classifyDecodeErr(err error) *DecodeError {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return newDecodeError(ReasonTruncated, err)
	}
	return newDecodeError(ReasonMalformed, err)
}
