// Copyright (C) 2019 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package build carries version metadata set at link time via
// -ldflags, and the validation the CLI uses to warn about a malformed
// version string.
package build

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
)

// Version, Stamp and User are overridden at link time
// (-ldflags "-X ...") by the release build process; the zero values
// are what a `go build` with no flags produces.
var (
	Version = "unknown-dev"
	Stamp   = "0"
	User    = "unknown"
	Host    = "unknown"
)

// allowedVersionExp matches the semver "vX.Y.Z[-pre][+build]" shape
// release tags must take: numeric fields and numeric pre-release
// identifiers carry no leading zeros, and no dot-separated identifier is
// empty. The "unknown-dev" default does not match; IsValidVersion
// accepts it separately.
var allowedVersionExp = regexp.MustCompile(`^v(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)(?:-(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*)?(?:\+[0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*)?$`)

// IsValidVersion reports whether v is either the untagged dev default
// or a well-formed release tag.
func IsValidVersion(v string) bool {
	return v == "unknown-dev" || allowedVersionExp.MatchString(v)
}

// LongVersion renders a one-line
// "deviceconnect <version> (<go version> <os/arch>) <user>" banner.
// User is link-time-injected and not validated like Version, so it's run
// through filterString first — a malformed -ldflags value can't inject
// stray punctuation into the banner.
func LongVersion() string {
	user := filterString(User, versionExtraAllowedChars)
	return fmt.Sprintf("deviceconnect %s (%s %s-%s) %s", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH, user)
}

// versionExtraAllowedChars is the charset filterString keeps when
// sanitizing free-form strings (e.g. a User-supplied build tag) for
// inclusion in a version banner.
const versionExtraAllowedChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.-_ "

// filterString returns input with every rune not present in filter
// removed.
func filterString(input, filter string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(filter, r) {
			return r
		}
		return -1
	}, input)
}
