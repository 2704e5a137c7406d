// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"encoding/hex"
	"sort"
	"time"

	"github.com/nobodyinperson/opentimestamps-client/chain"
	"github.com/nobodyinperson/opentimestamps-client/ots"
)

// VerifyConfig configures the verification engine.  All collaborators are
// optional; with none configured every attestation is reported for manual
// verification.
type VerifyConfig struct {
	// Explorer is the public block explorer used for Bitcoin
	// attestations, bounded by MaxExplorerQueries.
	Explorer           chain.Verifier
	MaxExplorerQueries int

	// Bitcoin and Litecoin are local node verifiers.
	Bitcoin  chain.Verifier
	Litecoin chain.Verifier
}

// Verify resolves every chain header attestation in a completed proof to a
// wall clock time, earliest block heights first.  Pending attestations are
// assumed to have been handled by the upgrade engine and are ignored.
// Returns the earliest attested time; ok is false when no attestation
// could be checked.
func Verify(t *ots.Timestamp, cfg VerifyConfig) (earliest time.Time, ok bool) {
	all := t.AllAttestations()
	sort.SliceStable(all, func(i, j int) bool {
		return attestationSortKey(all[i].Attestation) <
			attestationSortKey(all[j].Attestation)
	})

	if cfg.Explorer == nil {
		log.Infof("Not checking Bitcoin attestations against a block " +
			"explorer")
	}
	if cfg.Bitcoin == nil {
		log.Infof("Not checking Bitcoin attestations with a local node")
	}

	explorerQueries := 0
	var attested []time.Time
	for _, ma := range all {
		switch a := ma.Attestation.(type) {
		case ots.PendingAttestation:
			// Already handled by the upgrade engine.
		case ots.BitcoinAttestation:
			if at, ok := verifyChain(ma.Msg, a.Height, "Bitcoin",
				cfg.Bitcoin, cfg.Explorer, cfg.MaxExplorerQueries,
				&explorerQueries); ok {
				attested = append(attested, at)
			}
		case ots.LitecoinAttestation:
			if at, ok := verifyChain(ma.Msg, a.Height, "Litecoin",
				cfg.Litecoin, nil, 0, nil); ok {
				attested = append(attested, at)
			}
		default:
			log.Warnf("Could not verify %v", ma.Attestation)
		}
	}

	if len(attested) == 0 {
		return time.Time{}, false
	}
	earliest = attested[0]
	for _, at := range attested[1:] {
		if at.Before(earliest) {
			earliest = at
		}
	}
	log.Infof("Earliest attested time is %v", earliest)
	return earliest, true
}

// verifyChain resolves one chain header attestation through the explorer
// when budget remains, falling back to the local node.  Failures are
// informational here; the pruning engine is where verification failures
// are fatal.
func verifyChain(msg []byte, height uint64, name string, local, explorer chain.Verifier, maxQueries int, queries *int) (time.Time, bool) {
	manual := func() {
		log.Infof("To verify manually, check that %v block %v has "+
			"merkleroot %v", name, height, reversedHex(msg))
	}

	if explorer != nil && queries != nil {
		if *queries >= maxQueries {
			manual()
			return time.Time{}, false
		}
		attested, err := explorer.Verify(msg, height)
		if err != nil {
			log.Errorf("Could not check %v block %v against "+
				"explorer: %v", name, height, err)
			manual()
			return time.Time{}, false
		}
		// Only successful checks consume the explorer budget.
		*queries++
		log.Infof("%v block %v attests existence as of %v", name,
			height, attested)
		return attested, true
	}

	if local != nil {
		attested, err := local.Verify(msg, height)
		if err != nil {
			log.Errorf("%v verification failed: %v", name, err)
			manual()
			return time.Time{}, false
		}
		log.Infof("%v block %v attests existence as of %v", name,
			height, attested)
		return attested, true
	}

	manual()
	return time.Time{}, false
}

// attestationSortKey orders attestations so lower chain heights are
// checked first; non chain attestations sort last.
func attestationSortKey(a ots.Attestation) uint64 {
	switch a := a.(type) {
	case ots.BitcoinAttestation:
		return a.Height
	case ots.LitecoinAttestation:
		return a.Height
	default:
		return 1<<32 - 1
	}
}

// reversedHex renders a commitment in the conventional display order for
// block hashes and merkle roots.
func reversedHex(msg []byte) string {
	r := make([]byte, len(msg))
	for i, b := range msg {
		r[len(msg)-1-i] = b
	}
	return hex.EncodeToString(r)
}
