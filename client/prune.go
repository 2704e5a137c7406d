// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"fmt"

	"github.com/nobodyinperson/opentimestamps-client/chain"
	"github.com/nobodyinperson/opentimestamps-client/ots"
)

// DiscardSet specifies which attestations the pruning engine removes.
// Whole kinds may be discarded; pending attestations may additionally be
// discarded per calendar URI.
type DiscardSet struct {
	// Kinds removes every attestation of the listed kinds.  Including
	// KindPending here acts as the wildcard for all pending
	// attestations.
	Kinds map[ots.Kind]bool

	// PendingURIs removes only pending attestations from the listed
	// calendars.
	PendingURIs map[string]bool
}

// NewDiscardSet returns an empty discard specification.
func NewDiscardSet() DiscardSet {
	return DiscardSet{
		Kinds:       make(map[ots.Kind]bool),
		PendingURIs: make(map[string]bool),
	}
}

func (d DiscardSet) matches(a ots.Attestation) bool {
	if pending, ok := a.(ots.PendingAttestation); ok {
		return d.Kinds[ots.KindPending] || d.PendingURIs[pending.URI]
	}
	return d.Kinds[a.Kind()]
}

// PruneResult reports the outcome of a pruning run.  Both flags are
// ordinary outcomes, not errors: a fully prunable proof would be worthless
// and must not be persisted, and an unchanged proof needs no rewrite.
type PruneResult struct {
	// Prunable is set when no attestations survive anywhere in the DAG.
	Prunable bool

	// Changed is set when the DAG differs from the input.
	Changed bool
}

// Prune minimizes a proof DAG.  Attestations of the verify kinds are first
// checked against the chain verifier, and any failure aborts the whole
// operation: an explicit request to verify something that cannot be
// confirmed must not silently pass.  Matching attestations are then
// discarded, at most one attestation of each comparable kind is kept (the
// best and shallowest one) and subtrees left without any attestations are
// detached.
func Prune(t *ots.Timestamp, verify []ots.Kind, discard DiscardSet, verifier chain.Verifier) (PruneResult, error) {
	var result PruneResult

	if err := verifyAttestations(t, verify, verifier); err != nil {
		return result, err
	}

	if discardAttestations(t, discard) {
		result.Changed = true
	}

	for _, kind := range ots.ComparableKinds {
		if discardSuboptimal(t, kind) {
			result.Changed = true
		}
	}

	prunable, changed := pruneTree(t)
	result.Prunable = prunable
	result.Changed = result.Changed || changed

	return result, nil
}

// verifyAttestations checks every attestation of the requested kinds
// against its authoritative source.
func verifyAttestations(t *ots.Timestamp, verify []ots.Kind, verifier chain.Verifier) error {
	kinds := make(map[ots.Kind]bool, len(verify))
	for _, k := range verify {
		kinds[k] = true
	}

	for _, ma := range t.AllAttestations() {
		if !kinds[ma.Attestation.Kind()] {
			continue
		}

		switch a := ma.Attestation.(type) {
		case ots.BitcoinAttestation:
			if verifier == nil {
				return fmt.Errorf("no chain verifier "+
					"configured, could not check %v", a)
			}
			attested, err := verifier.Verify(ma.Msg, a.Height)
			if err != nil {
				return fmt.Errorf("verification of %v "+
					"failed: %w", a, err)
			}
			log.Debugf("%v attests existence as of %v", a, attested)
		default:
			return fmt.Errorf("verification of %v attestations "+
				"not supported", ma.Attestation.Kind())
		}
	}
	return nil
}

// discardAttestations removes every matching attestation anywhere in the
// DAG.
func discardAttestations(t *ots.Timestamp, discard DiscardSet) bool {
	removed := false
	t.Walk(func(n *ots.Timestamp) {
		attestations := make([]ots.Attestation, len(n.Attestations))
		copy(attestations, n.Attestations)
		for _, a := range attestations {
			if discard.matches(a) {
				n.RemoveAttestation(a)
				removed = true
			}
		}
	})
	return removed
}

// discardSuboptimal keeps only the single best attestation of the given
// comparable kind across the whole DAG.  The walk is post order: a node's
// children are fully resolved before its own attestation set is touched.
// Between two candidate attestations the strictly worse one is removed
// immediately; between equal candidates the deeper, more expensive proof
// path loses, where each operation on the path costs one byte plus its
// argument.
func discardSuboptimal(t *ots.Timestamp, kind ots.Kind) bool {
	removed := false

	var walk func(n *ots.Timestamp) (ots.Attestation, *ots.Timestamp, int)
	walk = func(n *ots.Timestamp) (ots.Attestation, *ots.Timestamp, int) {
		var optAtt ots.Attestation
		var optNode *ots.Timestamp
		optDepth := 0

		for _, e := range n.Ops {
			curAtt, curNode, curDepth := walk(e.Stamp)
			curDepth += ots.OpCost(e.Op)
			if curAtt == nil {
				continue
			}
			switch {
			case optAtt == nil:
				optAtt, optNode, optDepth = curAtt, curNode,
					curDepth
			case ots.AttestationCompare(curAtt, optAtt) > 0:
				curNode.RemoveAttestation(curAtt)
				removed = true
			case ots.AttestationCompare(curAtt, optAtt) < 0:
				optNode.RemoveAttestation(optAtt)
				removed = true
				optAtt, optNode, optDepth = curAtt, curNode,
					curDepth
			case curDepth < optDepth:
				optNode.RemoveAttestation(optAtt)
				removed = true
				optAtt, optNode, optDepth = curAtt, curNode,
					curDepth
			default:
				curNode.RemoveAttestation(curAtt)
				removed = true
			}
		}

		// The node's own attestations sit at depth zero, so on a tie
		// they always beat a candidate from below.
		attestations := make([]ots.Attestation, len(n.Attestations))
		copy(attestations, n.Attestations)
		for _, a := range attestations {
			if a.Kind() != kind {
				continue
			}
			switch {
			case optAtt == nil:
				optAtt, optNode, optDepth = a, n, 0
			case ots.AttestationCompare(a, optAtt) > 0:
				n.RemoveAttestation(a)
				removed = true
			default:
				optNode.RemoveAttestation(optAtt)
				removed = true
				optAtt, optNode, optDepth = a, n, 0
			}
		}

		return optAtt, optNode, optDepth
	}

	walk(t)
	return removed
}

// pruneTree detaches, bottom up, every child subtree that no longer
// carries a single attestation.  A node reports itself prunable to its
// parent only if it has no attestations and all of its children were
// pruned.  Children are fully visited before the node's operation mapping
// is mutated.
func pruneTree(t *ots.Timestamp) (prunable, changed bool) {
	prunable = len(t.Attestations) == 0

	var detach []ots.Op
	for _, e := range t.Ops {
		childPrunable, childChanged := pruneTree(e.Stamp)
		changed = changed || childChanged || childPrunable
		if childPrunable {
			detach = append(detach, e.Op)
		} else {
			prunable = false
		}
	}
	for _, op := range detach {
		t.RemoveOp(op)
	}

	return prunable, changed
}
