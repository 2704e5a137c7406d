// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package calendar

import (
	"regexp"
	"time"
)

const (
	// SubmitRoute is the calendar route a digest is submitted to.  The
	// request body is the raw digest, the response a serialized proof
	// fragment committing to it.
	SubmitRoute = "/digest"

	// DefaultTimeout bounds calendar requests that do not carry an
	// explicit deadline.  A stalled calendar must never hang the
	// caller.
	DefaultTimeout = 30 * time.Second

	// TimestampRoute is the calendar route a previously submitted
	// commitment is queried through, with the hex digest appended.
	TimestampRoute = "/timestamp/"

	// Accept is the media type spoken by calendar servers.
	Accept = "application/vnd.opentimestamps.v1"

	// MaxResponseSize clamps calendar responses.  A proof fragment for
	// a single commitment is small; anything larger is hostile.
	MaxResponseSize = 10000
)

var (
	// DefaultAggregators are the calendars stamping submits to when
	// none are configured.
	DefaultAggregators = []string{
		"https://a.pool.opentimestamps.org",
		"https://b.pool.opentimestamps.org",
		"https://a.pool.eternitywall.com",
		"https://ots.btc.catallaxy.com",
	}

	// DefaultWhitelist are the calendar domains upgrades may contact
	// without explicit user approval.
	DefaultWhitelist = []string{
		"https://*.calendar.opentimestamps.org",
		"https://*.calendar.eternitywall.com",
		"https://*.calendar.catallaxy.com",
	}

	// RegexpSHA256 is the valid text representation of a sha256 digest.
	RegexpSHA256 = regexp.MustCompile("^[A-Fa-f0-9]{64}$")
)
