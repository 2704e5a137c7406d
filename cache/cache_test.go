// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cache

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nobodyinperson/opentimestamps-client/ots"
)

func openTestCache(t *testing.T) *Cache {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testFragment(t *testing.T, msg []byte, att ots.Attestation) *ots.Timestamp {
	frag := ots.NewTimestamp(msg)
	sub, err := frag.Add(ots.NewOpSHA256())
	require.NoError(t, err)
	sub.AddAttestation(att)
	return frag
}

func TestCacheMiss(t *testing.T) {
	c := openTestCache(t)

	digest := sha256.Sum256([]byte("never stored"))
	got, err := c.Get(digest[:])
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCacheMergeThenGet(t *testing.T) {
	c := openTestCache(t)

	digest := sha256.Sum256([]byte("commitment"))
	frag := testFragment(t, digest[:],
		ots.BitcoinAttestation{Height: 500000})
	require.NoError(t, c.Merge(frag))

	got, err := c.Get(digest[:])
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.Equal(frag))
}

func TestCacheMergeUnions(t *testing.T) {
	c := openTestCache(t)

	digest := sha256.Sum256([]byte("commitment"))
	require.NoError(t, c.Merge(testFragment(t, digest[:],
		ots.PendingAttestation{URI: "https://a.example.com"})))
	require.NoError(t, c.Merge(testFragment(t, digest[:],
		ots.BitcoinAttestation{Height: 500000})))

	got, err := c.Get(digest[:])
	require.NoError(t, err)
	require.NotNil(t, got)

	set := got.AttestationSet()
	require.Len(t, set, 2)
	require.True(t, got.IsComplete())
}

func TestCacheMergeEmptyFragment(t *testing.T) {
	c := openTestCache(t)

	digest := sha256.Sum256([]byte("commitment"))
	require.NoError(t, c.Merge(ots.NewTimestamp(digest[:])))

	got, err := c.Get(digest[:])
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCacheCorruptEntry(t *testing.T) {
	c := openTestCache(t)

	digest := sha256.Sum256([]byte("commitment"))
	require.NoError(t, c.db.Put(digest[:], []byte("garbage"), nil))

	got, err := c.Get(digest[:])
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCacheReopen(t *testing.T) {
	dir := t.TempDir()
	digest := sha256.Sum256([]byte("commitment"))

	c, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, c.Merge(testFragment(t, digest[:],
		ots.BitcoinAttestation{Height: 500000})))
	require.NoError(t, c.Close())

	c, err = New(dir)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Get(digest[:])
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.IsComplete())
}
