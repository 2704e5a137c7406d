// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package merkle aggregates per-file proof nodes into a single root so a
// batch of files shares one calendar submission.
package merkle

import (
	"crypto/rand"
	"errors"

	"github.com/nobodyinperson/opentimestamps-client/ots"
)

// NonceSize is the number of random bytes appended to a file digest before
// it enters the tree.
const NonceSize = 16

// ErrEmpty is returned when aggregating zero proof nodes.
var ErrEmpty = errors.New("no proof nodes to aggregate")

// Leaf attaches a random nonce to a file's proof node and hashes the
// result, returning the tip that enters the tree.  Without the nonce a
// proof detached from its batch would leak information about the digests
// of the files it was batched with.
func Leaf(t *ots.Timestamp) (*ots.Timestamp, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	nonced, err := t.Add(ots.NewOpAppend(nonce))
	if err != nil {
		return nil, err
	}
	return nonced.Add(ots.NewOpSHA256())
}

// catSHA256 combines two proof nodes into their shared parent commitment:
// SHA256(left.Msg || right.Msg).  The combined node is a single shared
// child of both inputs, reached by append from the left and prepend from
// the right.
func catSHA256(left, right *ots.Timestamp) (*ots.Timestamp, error) {
	cat, err := left.Add(ots.NewOpAppend(right.Msg))
	if err != nil {
		return nil, err
	}
	err = right.Splice(ots.NewOpPrepend(left.Msg), cat)
	if err != nil {
		return nil, err
	}
	return cat.Add(ots.NewOpSHA256())
}

// Tree reduces the provided proof nodes pairwise until a single root
// commitment remains, promoting an odd leftover unchanged.  Every input
// node ends up an ancestor of the returned root, so merging a calendar's
// response into the root extends all of them.
func Tree(tips []*ots.Timestamp) (*ots.Timestamp, error) {
	if len(tips) == 0 {
		return nil, ErrEmpty
	}

	for len(tips) > 1 {
		next := make([]*ots.Timestamp, 0, (len(tips)+1)/2)
		for i := 0; i+1 < len(tips); i += 2 {
			parent, err := catSHA256(tips[i], tips[i+1])
			if err != nil {
				return nil, err
			}
			next = append(next, parent)
		}
		if len(tips)%2 == 1 {
			next = append(next, tips[len(tips)-1])
		}
		tips = next
	}

	return tips[0], nil
}
