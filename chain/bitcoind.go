// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
)

// Bitcoind verifies attestations against a local bitcoind instance over
// JSON-RPC.
type Bitcoind struct {
	rpc *rpcclient.Client
}

// NewBitcoind connects to the bitcoind RPC interface at host.
func NewBitcoind(host, user, pass string) (*Bitcoind, error) {
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &Bitcoind{rpc: rpc}, nil
}

// Close shuts down the RPC client.
func (b *Bitcoind) Close() {
	b.rpc.Shutdown()
}

// Verify checks that msg is the merkle root of the Bitcoin block at height
// and returns the block header time.
func (b *Bitcoind) Verify(msg []byte, height uint64) (time.Time, error) {
	hash, err := b.rpc.GetBlockHash(int64(height))
	if err != nil {
		// Distinguish an unknown height from an unreachable node so
		// callers can report how far the local chain extends.
		if best, cerr := b.rpc.GetBlockCount(); cerr == nil &&
			uint64(best) < height {
			return time.Time{}, fmt.Errorf("%w: height %v, best "+
				"known block is %v", ErrHeightNotFound, height,
				best)
		}
		return time.Time{}, err
	}

	header, err := b.rpc.GetBlockHeader(hash)
	if err != nil {
		return time.Time{}, err
	}

	log.Debugf("Bitcoin block %v hash %v", height, hash)

	if !bytes.Equal(header.MerkleRoot[:], msg) {
		return time.Time{}, fmt.Errorf("%w: block %v has merkle "+
			"root %v", ErrMerkleMismatch, height, header.MerkleRoot)
	}

	return header.Timestamp, nil
}
