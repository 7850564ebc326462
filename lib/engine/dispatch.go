// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import "github.com/edgetether/deviceconnect/lib/protomsg"

// dispatch implements §4.2: decode, route by proto, send any response.
// It must only ever run on the command loop goroutine.
func (e *Engine) dispatch(b []byte) {
	env, err := protomsg.Decode(b)
	if err != nil {
		l.Debugf("dropping undecodable frame: %v", err)
		return
	}

	var responses []protomsg.Envelope
	switch env.Proto {
	case protomsg.ProtoShell:
		resp, err := e.shell.Handle(env)
		if err != nil {
			l.Warnf("shell handler: %v", err)
		}
		if resp != nil {
			responses = append(responses, *resp)
		}

	case protomsg.ProtoFileTransfer:
		resps, err := e.file.Handle(env)
		if err != nil {
			l.Warnf("file_transfer handler: %v", err)
		}
		responses = append(responses, resps...)

	case protomsg.ProtoPortForward:
		if e.portfwd == nil {
			l.Warnf("port_forward unavailable in this build, sid=%s", env.SID)
			body, _ := protomsg.EncodeErrorBody(protomsg.NewError("port forwarding unavailable"))
			responses = append(responses, protomsg.Envelope{
				Proto:  protomsg.ProtoPortForward,
				Type:   protomsg.TypeError,
				SID:    env.SID,
				HasSID: env.HasSID,
				Body:   body,
			})
			break
		}
		resp, err := e.portfwd.Handle(env)
		if err != nil {
			l.Warnf("port_forward handler: %v", err)
		}
		if resp != nil {
			responses = append(responses, *resp)
		}

	case protomsg.ProtoUpdateTrigger:
		resp, err := e.update.Handle(env)
		if err != nil {
			l.Warnf("update_trigger handler: %v", err)
		}
		if resp != nil {
			responses = append(responses, *resp)
		}

	case protomsg.ProtoControl:
		resp, err := e.control.Handle(env)
		if err != nil {
			l.Warnf("control handler: %v", err)
		}
		if resp != nil {
			responses = append(responses, *resp)
		}

	default:
		// protomsg.Decode already rejects unknown discriminants; this is
		// unreachable in practice but costs nothing to guard.
		l.Warnf("envelope with unroutable proto %s dropped", env.Proto)
	}

	for _, resp := range responses {
		_ = e.send(resp)
	}
}

// send encodes and transmits one response envelope. A transport failure
// is reported to the caller as well as logged: the dispatch loop treats
// it as dropped (the stream is presumed broken and the liveness loop
// will reconnect on its next tick, §4.2, §7), but Tick's healthcheck
// path uses the returned error to trigger its own recovery immediately
// rather than waiting a full interval.
func (e *Engine) send(env protomsg.Envelope) error {
	b, err := protomsg.Encode(env)
	if err != nil {
		l.Warnf("encode response: %v", err)
		return err
	}
	if err := e.transport.Send(b); err != nil {
		l.Warnf("send response: %v", err)
		return err
	}
	return nil
}
