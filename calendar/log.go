// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package calendar

import "github.com/decred/slog"

// log is a logger that is initialized with no output filters.  This means
// the package will not perform any logging by default until the caller
// requests it.
var log = slog.Disabled

// UseLogger sets the subsystem logger for this package.
func UseLogger(l slog.Logger) {
	log = l
}
