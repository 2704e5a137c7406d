// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain resolves chain header attestations to wall clock times by
// checking them against real block headers.
package chain

import (
	"errors"
	"time"
)

var (
	// ErrHeightNotFound is returned when the queried block height is
	// beyond the best known block.
	ErrHeightNotFound = errors.New("block height not found")

	// ErrMerkleMismatch is returned when the block at the attested
	// height does not commit to the message.
	ErrMerkleMismatch = errors.New("merkle root does not match commitment")
)

// Verifier checks that msg is the merkle root of the block at height and
// returns the block's attested time.
type Verifier interface {
	Verify(msg []byte, height uint64) (time.Time, error)
}
