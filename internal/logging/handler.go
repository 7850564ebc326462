// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// packageHandler renders log lines as "LVL message pkg=<pkg> key=value ...",
// a plain-text single-line format with no JSON buffering or GUI log
// viewer, since this engine has no GUI.
type packageHandler struct {
	mut    sync.Mutex
	out    io.Writer
	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*packageHandler)(nil)

func (h *packageHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *packageHandler) Handle(_ context.Context, rec slog.Record) error {
	buf := new(bytes.Buffer)
	buf.WriteString(levelStr(rec.Level))
	buf.WriteByte(' ')

	prefix := strings.Join(h.groups, ".")

	attrs := make([]string, 0, rec.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs = append(attrs, formatAttr(prefix, a))
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, formatAttr(prefix, a))
		return true
	})

	buf.WriteString(rec.Message)
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(a)
	}
	buf.WriteByte('\n')

	h.mut.Lock()
	defer h.mut.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *packageHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := &packageHandler{out: h.out, groups: h.groups}
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return n
}

func (h *packageHandler) WithGroup(name string) slog.Handler {
	n := &packageHandler{out: h.out, attrs: h.attrs}
	n.groups = append(append([]string{}, h.groups...), name)
	return n
}

func formatAttr(prefix string, a slog.Attr) string {
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	return fmt.Sprintf("%s=%v", key, a.Value.Any())
}

func levelStr(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DBG"
	case l < slog.LevelWarn:
		return "INF"
	case l < slog.LevelError:
		return "WRN"
	default:
		return "ERR"
	}
}
