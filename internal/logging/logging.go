// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package logging provides the package-scoped slog adapter used
// throughout the device connect engine. Every package that logs calls
// NewAdapter(descr) once and gets a logger whose level can be raised or
// lowered independently of every other package's.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

var (
	globalLevels = &levelTracker{levels: make(map[string]slog.Level)}
	root         *slog.Logger
)

func init() {
	var out io.Writer = os.Stdout
	if os.Getenv("DEVICECONNECT_LOG_DISCARD") != "" {
		out = io.Discard
	}
	root = slog.New(&packageHandler{out: out})
	slog.SetDefault(root)

	for _, pkg := range strings.Split(os.Getenv("DEVICECONNECT_TRACE"), ",") {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" {
			continue
		}
		level := slog.LevelDebug
		if name, levelStr, ok := strings.Cut(pkg, ":"); ok {
			pkg = name
			_ = level.UnmarshalText([]byte(levelStr))
		}
		globalLevels.Set(pkg, level)
	}
}

// SetDefaultLevel changes the level applied to packages with no explicit
// override.
func SetDefaultLevel(level slog.Level) {
	globalLevels.SetDefault(level)
}

// SetPackageLevel overrides the level for one package name (as reported
// by NewAdapter's caller).
func SetPackageLevel(pkg string, level slog.Level) {
	globalLevels.Set(pkg, level)
}

// Adapter is a package-scoped logger. The zero value is not usable; get
// one from NewAdapter.
type Adapter struct {
	pkg string
}

// NewAdapter returns a logger attributed to pkg (conventionally the
// caller's own package name, e.g. "shellproto").
func NewAdapter(pkg string) Adapter {
	return Adapter{pkg: pkg}
}

func (a Adapter) Debugf(format string, args ...any) { a.log(slog.LevelDebug, format, args...) }
func (a Adapter) Infof(format string, args ...any)  { a.log(slog.LevelInfo, format, args...) }
func (a Adapter) Warnf(format string, args ...any)  { a.log(slog.LevelWarn, format, args...) }
func (a Adapter) Errorf(format string, args ...any) { a.log(slog.LevelError, format, args...) }

func (a Adapter) Debugln(args ...any) { a.logln(slog.LevelDebug, args...) }
func (a Adapter) Infoln(args ...any)  { a.logln(slog.LevelInfo, args...) }
func (a Adapter) Warnln(args ...any)  { a.logln(slog.LevelWarn, args...) }
func (a Adapter) Errorln(args ...any) { a.logln(slog.LevelError, args...) }

// ShouldDebug reports whether a's package is at debug level, letting
// callers skip building an expensive debug payload when it isn't.
func (a Adapter) ShouldDebug() bool {
	return globalLevels.Get(a.pkg) <= slog.LevelDebug
}

func (a Adapter) log(level slog.Level, format string, args ...any) {
	a.emit(level, fmt.Sprintf(format, args...))
}

func (a Adapter) logln(level slog.Level, args ...any) {
	a.emit(level, strings.TrimSpace(fmt.Sprintln(args...)))
}

func (a Adapter) emit(level slog.Level, msg string) {
	if globalLevels.Get(a.pkg) > level {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(4, pcs[:])
	rec := slog.NewRecord(time.Now(), level, msg, pcs[0])
	rec.Add(slog.String("pkg", a.pkg))
	_ = root.Handler().Handle(context.Background(), rec)
}
