// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nobodyinperson/opentimestamps-client/ots"
)

// fakeVerifier resolves heights through a canned table and records every
// check it performed.
type fakeVerifier struct {
	times   map[uint64]time.Time
	err     error
	checked []uint64
}

func (v *fakeVerifier) Verify(msg []byte, height uint64) (time.Time, error) {
	v.checked = append(v.checked, height)
	if v.err != nil {
		return time.Time{}, v.err
	}
	at, ok := v.times[height]
	if !ok {
		return time.Time{}, errors.New("height not found")
	}
	return at, nil
}

// twoBranchProof builds a root with two branches, each anchored by a
// bitcoin attestation at the given height.  The second branch's path is
// more expensive than the first's.
func twoBranchProof(t *testing.T, heightA, heightB uint64) (root, tipA, tipB *ots.Timestamp) {
	root = ots.NewTimestamp(testDigest("file"))

	tipA, err := root.Add(ots.NewOpSHA256())
	require.NoError(t, err)
	tipA.AddAttestation(ots.BitcoinAttestation{Height: heightA})

	mid, err := root.Add(ots.NewOpAppend([]byte("a longer argument")))
	require.NoError(t, err)
	tipB, err = mid.Add(ots.NewOpSHA256())
	require.NoError(t, err)
	tipB.AddAttestation(ots.BitcoinAttestation{Height: heightB})

	return root, tipA, tipB
}

func discardPending() DiscardSet {
	d := NewDiscardSet()
	d.Kinds[ots.KindPending] = true
	return d
}

func TestPruneDiscardsPending(t *testing.T) {
	root, tipA, _ := twoBranchProof(t, 100, 100)
	tipA.AddAttestation(ots.PendingAttestation{URI: "https://a.example.com"})

	result, err := Prune(root, nil, discardPending(), nil)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.False(t, result.Prunable)

	for _, ma := range root.AllAttestations() {
		require.NotEqual(t, ots.KindPending, ma.Attestation.Kind())
	}
}

func TestPruneDiscardsPendingByURI(t *testing.T) {
	root, tipA, tipB := twoBranchProof(t, 100, 100)
	tipA.AddAttestation(ots.PendingAttestation{URI: "https://a.example.com"})
	tipB.AddAttestation(ots.PendingAttestation{URI: "https://b.example.com"})

	d := NewDiscardSet()
	d.PendingURIs["https://a.example.com"] = true

	result, err := Prune(root, nil, d, nil)
	require.NoError(t, err)
	require.True(t, result.Changed)

	require.False(t, tipA.HasAttestation(ots.PendingAttestation{
		URI: "https://a.example.com",
	}))
	require.True(t, tipB.HasAttestation(ots.PendingAttestation{
		URI: "https://b.example.com",
	}))
}

func TestPruneLowerHeightWins(t *testing.T) {
	root, tipA, tipB := twoBranchProof(t, 200, 100)

	result, err := Prune(root, nil, NewDiscardSet(), nil)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.False(t, result.Prunable)

	// The earlier block survives, the later one and its now empty
	// branch are gone.
	require.True(t, tipB.HasAttestation(ots.BitcoinAttestation{
		Height: 100,
	}))
	require.Empty(t, tipA.Attestations)
	require.Len(t, root.AllAttestations(), 1)
	require.Len(t, root.Ops, 1)
}

func TestPruneEqualHeightShallowerWins(t *testing.T) {
	// Branch A reaches its attestation through cheaper ops than branch
	// B, so at equal heights A survives.
	root, tipA, _ := twoBranchProof(t, 100, 100)

	result, err := Prune(root, nil, NewDiscardSet(), nil)
	require.NoError(t, err)
	require.True(t, result.Changed)

	require.True(t, tipA.HasAttestation(ots.BitcoinAttestation{
		Height: 100,
	}))
	require.Len(t, root.AllAttestations(), 1)
	require.Len(t, root.Ops, 1)
}

func TestPruneOwnAttestationBeatsDeeperEqual(t *testing.T) {
	root := ots.NewTimestamp(testDigest("file"))
	root.AddAttestation(ots.BitcoinAttestation{Height: 100})

	tip, err := root.Add(ots.NewOpSHA256())
	require.NoError(t, err)
	tip.AddAttestation(ots.BitcoinAttestation{Height: 100})

	result, err := Prune(root, nil, NewDiscardSet(), nil)
	require.NoError(t, err)
	require.True(t, result.Changed)

	require.True(t, root.HasAttestation(ots.BitcoinAttestation{
		Height: 100,
	}))
	require.Empty(t, root.Ops)
}

func TestPruneKeepsBestPerChain(t *testing.T) {
	root, tipA, _ := twoBranchProof(t, 100, 200)
	tipA.AddAttestation(ots.LitecoinAttestation{Height: 50})

	result, err := Prune(root, nil, NewDiscardSet(), nil)
	require.NoError(t, err)
	require.True(t, result.Changed)

	// One bitcoin and one litecoin attestation survive; the chains are
	// minimized independently.
	require.Len(t, root.AllAttestations(), 2)
}

func TestPrunePrunableProof(t *testing.T) {
	root := ots.NewTimestamp(testDigest("file"))
	tip, err := root.Add(ots.NewOpSHA256())
	require.NoError(t, err)
	tip.AddAttestation(ots.PendingAttestation{URI: "https://a.example.com"})

	result, err := Prune(root, nil, discardPending(), nil)
	require.NoError(t, err)
	require.True(t, result.Prunable)
	require.True(t, result.Changed)
	require.Empty(t, root.Ops)
}

func TestPruneIdempotent(t *testing.T) {
	root, _, _ := twoBranchProof(t, 200, 100)

	first, err := Prune(root, nil, NewDiscardSet(), nil)
	require.NoError(t, err)
	require.True(t, first.Changed)

	second, err := Prune(root, nil, NewDiscardSet(), nil)
	require.NoError(t, err)
	require.False(t, second.Changed)
	require.False(t, second.Prunable)
}

func TestPruneVerifySuccess(t *testing.T) {
	root, _, _ := twoBranchProof(t, 200, 100)
	v := &fakeVerifier{times: map[uint64]time.Time{
		100: time.Unix(1513622125, 0),
		200: time.Unix(1515827554, 0),
	}}

	result, err := Prune(root, []ots.Kind{ots.KindBitcoin},
		NewDiscardSet(), v)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.ElementsMatch(t, []uint64{100, 200}, v.checked)
}

func TestPruneVerifyFailureAborts(t *testing.T) {
	root, tipA, tipB := twoBranchProof(t, 200, 100)
	v := &fakeVerifier{err: errors.New("merkle root mismatch")}

	_, err := Prune(root, []ots.Kind{ots.KindBitcoin}, discardPending(), v)
	require.Error(t, err)

	// Nothing was discarded or minimized.
	require.True(t, tipA.HasAttestation(ots.BitcoinAttestation{
		Height: 200,
	}))
	require.True(t, tipB.HasAttestation(ots.BitcoinAttestation{
		Height: 100,
	}))
}

func TestPruneVerifyWithoutVerifier(t *testing.T) {
	root, _, _ := twoBranchProof(t, 200, 100)

	_, err := Prune(root, []ots.Kind{ots.KindBitcoin}, NewDiscardSet(),
		nil)
	require.Error(t, err)
}

func TestPruneVerifyUnsupportedKind(t *testing.T) {
	root, _, _ := twoBranchProof(t, 200, 100)
	root.AddAttestation(ots.LitecoinAttestation{Height: 50})
	v := &fakeVerifier{times: map[uint64]time.Time{}}

	_, err := Prune(root, []ots.Kind{ots.KindLitecoin}, NewDiscardSet(), v)
	require.Error(t, err)
}
