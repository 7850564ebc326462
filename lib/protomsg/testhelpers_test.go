// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protomsg

import "github.com/vmihailenco/msgpack/v5"

// msgpackMarshalForTest uses the library's generic reflection-based
// Marshal to hand-construct wire payloads (e.g. with keys our own Encode
// never emits) so decode-side tolerance can be exercised independently of
// our own encoder.
func msgpackMarshalForTest(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}
