// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protomsg

import (
	"errors"
	"reflect"
	"testing"
	"testing/quick"
)

func mustEncode(t *testing.T, e Envelope) []byte {
	t.Helper()
	b, err := Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

func TestRoundTripMinimal(t *testing.T) {
	e := Envelope{Proto: ProtoControl, Type: TypePing}
	b := mustEncode(t, e)
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(e, got) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestRoundTripFull(t *testing.T) {
	e := Envelope{
		Proto:  ProtoShell,
		Type:   TypeNew,
		SID:    "S1",
		HasSID: true,
		Properties: &Properties{
			TerminalWidth:  u16(80),
			TerminalHeight: u16(24),
			UserID:         str("u1"),
			Timeout:        u32(60),
			Status:         stat(StatusNormal),
			Offset:         u64(1024),
			ConnectionID:   str("C1"),
		},
		Body: []byte("hello"),
	}
	b := mustEncode(t, e)
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(e, got) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, e)
	}
}

func TestAbsentPropertiesStayAbsent(t *testing.T) {
	e := Envelope{Proto: ProtoShell, Type: TypeStop, SID: "S1", HasSID: true}
	b := mustEncode(t, e)
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Properties != nil {
		t.Fatalf("expected absent properties, got %+v", got.Properties)
	}
	if got.Body != nil {
		t.Fatalf("expected absent body, got %q", got.Body)
	}
}

func TestEmptyBodyIsNotAbsentBody(t *testing.T) {
	e := Envelope{Proto: ProtoShell, Type: TypeShell, SID: "S1", HasSID: true, Body: []byte{}}
	b := mustEncode(t, e)
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Body == nil {
		t.Fatalf("expected present-but-empty body, got absent")
	}
	if len(got.Body) != 0 {
		t.Fatalf("expected zero-length body, got %d bytes", len(got.Body))
	}
}

func TestUnknownKeysTolerated(t *testing.T) {
	// Hand-build a message with an extra top-level key and an extra
	// property key; Decode must ignore both rather than erroring.
	e := Envelope{Proto: ProtoControl, Type: TypePing}
	b := mustEncode(t, e)

	// Re-encode via a raw map to inject unknown keys without going
	// through our own Encode (which never emits them).
	raw := map[string]interface{}{
		"proto":   uint16(ProtoControl),
		"typ":     TypePing,
		"unknown": "surprise",
		"props": map[string]interface{}{
			"status":       uint8(StatusNormal),
			"future_field": 42,
		},
	}
	encoded := encodeRawMap(t, raw)
	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode with unknown keys: %v", err)
	}
	if got.Proto != ProtoControl || got.Type != TypePing {
		t.Fatalf("unexpected decode result: %+v", got)
	}
	if got.Properties == nil || got.Properties.Status == nil || *got.Properties.Status != StatusNormal {
		t.Fatalf("expected status to survive alongside unknown sibling key: %+v", got.Properties)
	}
	_ = b
}

func TestDecodeTruncatedIsReasonTruncated(t *testing.T) {
	e := Envelope{Proto: ProtoShell, Type: TypeShell, SID: "S1", HasSID: true, Body: []byte("0123456789")}
	b := mustEncode(t, e)
	for n := 0; n < len(b); n++ {
		_, err := Decode(b[:n])
		if err == nil {
			t.Fatalf("Decode(%d bytes of %d) unexpectedly succeeded", n, len(b))
		}
		var de *DecodeError
		if !errors.As(err, &de) || de.Reason != ReasonTruncated {
			t.Fatalf("Decode(%d bytes of %d): err = %v, want reason %s", n, len(b), err, ReasonTruncated)
		}
	}
}

func TestDecodeTrailingBytesIsError(t *testing.T) {
	e := Envelope{Proto: ProtoControl, Type: TypePing}
	b := mustEncode(t, e)
	b = append(b, 0xc0) // a trailing nil value
	if _, err := Decode(b); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}

func TestUnknownProtoRejected(t *testing.T) {
	raw := map[string]interface{}{"proto": uint16(0x9999), "typ": "x"}
	b := encodeRawMap(t, raw)
	if _, err := Decode(b); err == nil {
		t.Fatal("expected error for unknown proto")
	}
}

func TestQuickRoundTrip(t *testing.T) {
	f := func(sidPresent bool, sid string, width, height uint16, hasBody bool, body []byte) bool {
		e := Envelope{Proto: ProtoFileTransfer, Type: TypeFileChunk}
		if sidPresent {
			e.SID = sid
			e.HasSID = true
		}
		if width != 0 || height != 0 {
			e.Properties = &Properties{TerminalWidth: u16(width), TerminalHeight: u16(height)}
		}
		if hasBody {
			e.Body = body
		}
		b, err := Encode(e)
		if err != nil {
			return false
		}
		got, err := Decode(b)
		if err != nil {
			return false
		}
		return reflect.DeepEqual(e, got)
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Error(err)
	}
}

func encodeRawMap(t *testing.T, m map[string]interface{}) []byte {
	t.Helper()
	b, err := msgpackMarshalForTest(m)
	if err != nil {
		t.Fatalf("marshal raw map: %v", err)
	}
	return b
}
