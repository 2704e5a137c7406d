// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// DefaultExplorerURL is the public block explorer queried when no other
// verifier is available.
const DefaultExplorerURL = "https://blockstream.info/api"

// maxExplorerResponse clamps explorer responses.
const maxExplorerResponse = 1 << 20

// blockInfo is the subset of the explorer's block detail response the
// verifier needs.
type blockInfo struct {
	Timestamp  int64  `json:"timestamp"`
	MedianTime int64  `json:"mediantime"`
	MerkleRoot string `json:"merkle_root"`
}

// Explorer verifies attestations against a public block explorer speaking
// the Blockstream REST API.
type Explorer struct {
	url    string
	client *http.Client
}

// NewExplorer returns an explorer client for the given API base URL.  An
// empty url uses DefaultExplorerURL; a nil httpClient uses
// http.DefaultClient.
func NewExplorer(url string, httpClient *http.Client) *Explorer {
	if url == "" {
		url = DefaultExplorerURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Explorer{
		url:    strings.TrimRight(url, "/"),
		client: httpClient,
	}
}

func (e *Explorer) get(route string) ([]byte, error) {
	resp, err := e.client.Get(e.url + route)
	if err != nil {
		return nil, fmt.Errorf("HTTP Get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExplorerResponse))
	if err != nil {
		return nil, fmt.Errorf("invalid body: %v %w", resp.StatusCode,
			err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrHeightNotFound,
				body)
		}
		return nil, fmt.Errorf("invalid explorer answer: %v %s",
			resp.StatusCode, body)
	}
	return body, nil
}

// Verify checks that msg is the merkle root of the block at height and
// returns the block time, preferring the header timestamp over the median
// time when both are present.
func (e *Explorer) Verify(msg []byte, height uint64) (time.Time, error) {
	body, err := e.get(fmt.Sprintf("/block-height/%v", height))
	if err != nil {
		return time.Time{}, err
	}
	blockHash := strings.TrimSpace(string(body))
	if _, err := chainhash.NewHashFromStr(blockHash); err != nil {
		return time.Time{}, fmt.Errorf("invalid block hash %q: %w",
			blockHash, err)
	}

	body, err = e.get("/block/" + blockHash)
	if err != nil {
		return time.Time{}, err
	}
	var info blockInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return time.Time{}, fmt.Errorf("invalid block detail: %w", err)
	}

	// Explorers report hashes in the conventional reversed hex order
	// while the proof commits to the internal byte order.
	want, err := chainhash.NewHash(msg)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid commitment: %w", err)
	}
	if info.MerkleRoot != want.String() {
		return time.Time{}, fmt.Errorf("%w: block %v has merkle "+
			"root %v, expected %v", ErrMerkleMismatch, height,
			info.MerkleRoot, want)
	}

	blockTime := info.Timestamp
	if blockTime == 0 {
		blockTime = info.MedianTime
	}
	if blockTime == 0 {
		return time.Time{}, fmt.Errorf("explorer returned no time "+
			"for block %v", height)
	}

	log.Debugf("Explorer confirms merkle root %v of block %v", want,
		height)

	return time.Unix(blockTime, 0).UTC(), nil
}
