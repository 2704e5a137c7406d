// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ots

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// OpEntry associates an operation with the child proof node it leads to.
// The child's message is always the operation applied to the parent's
// message.
type OpEntry struct {
	Op    Op
	Stamp *Timestamp
}

// Timestamp is a node in a proof DAG: a claim that Msg existed, supported
// by zero or more attestations and zero or more operation edges leading to
// further claims.  At most one child exists per distinct operation.
type Timestamp struct {
	Msg          []byte
	Attestations []Attestation
	Ops          []OpEntry
}

// NewTimestamp returns a proof node committing to msg.
func NewTimestamp(msg []byte) *Timestamp {
	m := make([]byte, len(msg))
	copy(m, msg)
	return &Timestamp{Msg: m}
}

// Get returns the child reached through op, or nil.
func (t *Timestamp) Get(op Op) *Timestamp {
	for _, e := range t.Ops {
		if OpEqual(e.Op, op) {
			return e.Stamp
		}
	}
	return nil
}

// Add returns the child reached through op, creating it if required.
func (t *Timestamp) Add(op Op) (*Timestamp, error) {
	if existing := t.Get(op); existing != nil {
		return existing, nil
	}
	result, err := op.Apply(t.Msg)
	if err != nil {
		return nil, err
	}
	child := NewTimestamp(result)
	t.Ops = append(t.Ops, OpEntry{Op: op, Stamp: child})
	return child, nil
}

// addOpStamp splices an already built child under op, merging if a child
// for op already exists.
func (t *Timestamp) addOpStamp(op Op, stamp *Timestamp) error {
	if existing := t.Get(op); existing != nil {
		return existing.Merge(stamp)
	}
	t.Ops = append(t.Ops, OpEntry{Op: op, Stamp: stamp})
	return nil
}

// Splice places an already built node under op, merging with any existing
// child for that op.  The node must commit to op applied to t's message.
func (t *Timestamp) Splice(op Op, stamp *Timestamp) error {
	result, err := op.Apply(t.Msg)
	if err != nil {
		return err
	}
	if !bytes.Equal(result, stamp.Msg) {
		return fmt.Errorf("splice mismatch: op yields %x, node "+
			"commits to %x", result, stamp.Msg)
	}
	return t.addOpStamp(op, stamp)
}

// RemoveOp detaches the child reached through op, if any.
func (t *Timestamp) RemoveOp(op Op) {
	for i, e := range t.Ops {
		if OpEqual(e.Op, op) {
			t.Ops = append(t.Ops[:i], t.Ops[i+1:]...)
			return
		}
	}
}

// HasAttestation returns whether the node holds an attestation equal to a.
func (t *Timestamp) HasAttestation(a Attestation) bool {
	for _, existing := range t.Attestations {
		if AttestationEqual(existing, a) {
			return true
		}
	}
	return false
}

// AddAttestation records an attestation on the node, deduplicating by
// equality.
func (t *Timestamp) AddAttestation(a Attestation) {
	if t.HasAttestation(a) {
		return
	}
	t.Attestations = append(t.Attestations, a)
}

// RemoveAttestation removes the attestation equal to a, if present.
func (t *Timestamp) RemoveAttestation(a Attestation) {
	for i, existing := range t.Attestations {
		if AttestationEqual(existing, a) {
			t.Attestations = append(t.Attestations[:i],
				t.Attestations[i+1:]...)
			return
		}
	}
}

// Merge folds every attestation and operation edge of other into t.  Both
// nodes must commit to the same message.  Merge is commutative and
// idempotent, which is what lets independently learned proof fragments
// accumulate without duplication or loss.
func (t *Timestamp) Merge(other *Timestamp) error {
	if !bytes.Equal(t.Msg, other.Msg) {
		return fmt.Errorf("can't merge timestamps for different "+
			"messages: %x != %x", t.Msg, other.Msg)
	}

	for _, a := range other.Attestations {
		t.AddAttestation(a)
	}

	for _, e := range other.Ops {
		ours, err := t.Add(e.Op)
		if err != nil {
			return err
		}
		if err := ours.Merge(e.Stamp); err != nil {
			return err
		}
	}

	return nil
}

// Walk visits every node of the DAG, parents before children.
func (t *Timestamp) Walk(fn func(*Timestamp)) {
	fn(t)
	for _, e := range t.Ops {
		e.Stamp.Walk(fn)
	}
}

// MsgAttestation pairs an attestation with the message it attests to.
type MsgAttestation struct {
	Msg         []byte
	Attestation Attestation
}

// AllAttestations returns every attestation in the DAG together with the
// message it applies to.
func (t *Timestamp) AllAttestations() []MsgAttestation {
	var all []MsgAttestation
	t.Walk(func(n *Timestamp) {
		for _, a := range n.Attestations {
			all = append(all, MsgAttestation{
				Msg:         n.Msg,
				Attestation: a,
			})
		}
	})
	return all
}

// AttestationSet returns the deduplicated set of attestations reachable in
// the DAG, ignoring which message they apply to.  Used by the upgrade
// engine to detect newly learned information.
func (t *Timestamp) AttestationSet() []Attestation {
	var set []Attestation
	t.Walk(func(n *Timestamp) {
		for _, a := range n.Attestations {
			found := false
			for _, existing := range set {
				if AttestationEqual(existing, a) {
					found = true
					break
				}
			}
			if !found {
				set = append(set, a)
			}
		}
	})
	return set
}

// IsComplete reports whether the proof contains at least one verifiable
// chain header attestation anywhere in its DAG.
func (t *Timestamp) IsComplete() bool {
	for _, ma := range t.AllAttestations() {
		switch ma.Attestation.Kind() {
		case KindBitcoin, KindLitecoin:
			return true
		}
	}
	return false
}

// Equal reports whether two proof DAGs carry the same information: same
// message, same attestation set and the same operation edges, recursively.
func (t *Timestamp) Equal(other *Timestamp) bool {
	if !bytes.Equal(t.Msg, other.Msg) {
		return false
	}
	if len(t.Attestations) != len(other.Attestations) {
		return false
	}
	for _, a := range t.Attestations {
		if !other.HasAttestation(a) {
			return false
		}
	}
	if len(t.Ops) != len(other.Ops) {
		return false
	}
	for _, e := range t.Ops {
		theirs := other.Get(e.Op)
		if theirs == nil || !e.Stamp.Equal(theirs) {
			return false
		}
	}
	return true
}

// Dump renders the DAG as an indented tree for human inspection.
func (t *Timestamp) Dump() string {
	var b strings.Builder
	t.dump(&b, 0, true)
	return b.String()
}

func (t *Timestamp) dump(b *strings.Builder, indent int, withMsg bool) {
	pad := strings.Repeat(" ", indent*4)
	if withMsg {
		fmt.Fprintf(b, "%vmsg %v\n", pad, hex.EncodeToString(t.Msg))
	}

	attestations := make([]Attestation, len(t.Attestations))
	copy(attestations, t.Attestations)
	sort.SliceStable(attestations, func(i, j int) bool {
		return AttestationCompare(attestations[i], attestations[j]) < 0
	})
	for _, a := range attestations {
		fmt.Fprintf(b, "%vverify %v\n", pad, a)
	}

	ops := make([]OpEntry, len(t.Ops))
	copy(ops, t.Ops)
	sort.SliceStable(ops, func(i, j int) bool {
		return OpCompare(ops[i].Op, ops[j].Op) < 0
	})
	fork := len(ops) > 1
	for _, e := range ops {
		if fork {
			fmt.Fprintf(b, "%v -> %v\n", pad, e.Op)
			e.Stamp.dump(b, indent+1, false)
		} else {
			fmt.Fprintf(b, "%v%v\n", pad, e.Op)
			e.Stamp.dump(b, indent, false)
		}
	}
}
