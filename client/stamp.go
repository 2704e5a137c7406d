// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package client implements the proof lifecycle engines: creating proofs
// through a quorum of calendars, upgrading provisional attestations to
// chain anchored ones, pruning redundant attestation paths and resolving
// completed proofs to wall clock times.
package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/nobodyinperson/opentimestamps-client/merkle"
	"github.com/nobodyinperson/opentimestamps-client/ots"
)

// Calendar is the remote calendar collaborator the engines depend on.
type Calendar interface {
	// URL identifies the calendar.
	URL() string

	// Submit sends a commitment for aggregation and returns the proof
	// fragment the calendar responds with.
	Submit(digest []byte, timeout time.Duration) (*ots.Timestamp, error)

	// GetTimestamp returns everything the calendar knows about a
	// previously submitted commitment.
	GetTimestamp(digest []byte) (*ots.Timestamp, error)
}

// TimestampCache is the local proof fragment store collaborator.
type TimestampCache interface {
	// Get returns the cached fragment for msg, nil on a miss.
	Get(msg []byte) (*ots.Timestamp, error)

	// Merge folds a learned fragment into the store, best effort.
	Merge(t *ots.Timestamp) error
}

// ErrQuorumNotMet is returned when fewer calendars than required responded
// with a valid proof within the deadline.
var ErrQuorumNotMet = errors.New("quorum not met")

type submitResult struct {
	url   string
	stamp *ots.Timestamp
	err   error
}

// Submit submits the root commitment to every calendar concurrently and
// merges each valid response into root.  The operation succeeds once at
// least m calendars respond within one shared wall clock deadline; workers
// still in flight when the deadline passes are abandoned, not cancelled.
func Submit(root *ots.Timestamp, calendars []Calendar, m int, timeout time.Duration) error {
	n := len(calendars)
	if m <= 0 || m > n {
		return fmt.Errorf("quorum %v must be between 1 and the number "+
			"of calendars (%v)", m, n)
	}

	log.Debugf("Doing %v-of-%v request, timeout %v", m, n, timeout)

	results := make(chan submitResult, n)
	for _, cal := range calendars {
		cal := cal
		url := cal.URL()
		log.Infof("Submitting to remote calendar %v", url)
		go func() {
			stamp, err := cal.Submit(root.Msg, timeout)
			results <- submitResult{url: url, stamp: stamp,
				err: err}
		}()
	}

	merged := 0
	merge := func(r submitResult) {
		if r.err != nil {
			log.Debugf("Calendar %v: %v", r.url, r.err)
			return
		}
		if err := root.Merge(r.stamp); err != nil {
			log.Debugf("Calendar %v: %v", r.url, err)
			return
		}
		merged++
	}

	// One deadline shared across all calendars; the budget for each
	// drain shrinks as results arrive so no single calendar can extend
	// the overall wait.  Once the deadline passes, responses already
	// buffered still count; only calendars yet to answer are abandoned.
	deadline := time.Now().Add(timeout)
drain:
	for i := 0; i < n; i++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			select {
			case r := <-results:
				merge(r)
			default:
				break drain
			}
			continue
		}
		select {
		case r := <-results:
			merge(r)
		case <-time.After(remaining):
			select {
			case r := <-results:
				merge(r)
			default:
				break drain
			}
		}
	}

	if merged < m {
		return fmt.Errorf("%w: need at least %v attestations but "+
			"received %v within timeout", ErrQuorumNotMet, m, merged)
	}
	return nil
}

// Stamp builds the shared commitment for a batch of detached proofs and
// submits it to the calendars.  Each file's proof node receives a nonce
// leaf, the leaves are aggregated into a single merkle root, and every
// attestation the calendars return on the root extends all of the files.
func Stamp(files []*ots.DetachedFile, calendars []Calendar, m int, timeout time.Duration) (*ots.Timestamp, error) {
	tips := make([]*ots.Timestamp, 0, len(files))
	for _, f := range files {
		tip, err := merkle.Leaf(f.Timestamp)
		if err != nil {
			return nil, err
		}
		tips = append(tips, tip)
	}

	root, err := merkle.Tree(tips)
	if err != nil {
		return nil, err
	}

	if err := Submit(root, calendars, m, timeout); err != nil {
		return nil, err
	}
	return root, nil
}
