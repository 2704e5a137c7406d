// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"time"

	"github.com/nobodyinperson/opentimestamps-client/calendar"
	"github.com/nobodyinperson/opentimestamps-client/ots"
)

// UpgradeConfig configures the upgrade engine.
type UpgradeConfig struct {
	// Calendars, when non empty, overrides which calendars are queried
	// for every pending attestation regardless of its URI.
	Calendars []Calendar

	// Whitelist restricts which pending attestation URIs may be
	// contacted when no override is configured.
	Whitelist *calendar.Whitelist

	// NewCalendar constructs a client for a whitelisted URI.  Nil uses
	// the default HTTP calendar client.
	NewCalendar func(url string) Calendar

	// Cache, when non nil, is consulted for every node before any
	// network access and fed every fragment learned from calendars.
	Cache TimestampCache

	// Wait keeps retrying until the proof is complete, sleeping
	// WaitInterval between passes that learned nothing new.
	Wait         bool
	WaitInterval time.Duration
}

func (cfg *UpgradeConfig) newCalendar(url string) Calendar {
	if cfg.NewCalendar != nil {
		return cfg.NewCalendar(url)
	}
	return calendar.New(url, "", nil)
}

// directlyVerified returns the nodes whose attestations directly support
// this proof: nodes carrying attestations are returned as-is, nodes
// without are searched through their children.
func directlyVerified(t *ots.Timestamp) []*ots.Timestamp {
	if len(t.Attestations) > 0 {
		return []*ots.Timestamp{t}
	}
	var nodes []*ots.Timestamp
	for _, e := range t.Ops {
		nodes = append(nodes, directlyVerified(e.Stamp)...)
	}
	return nodes
}

// attestationDiff returns the attestations in set that are not in known.
func attestationDiff(set, known []ots.Attestation) []ots.Attestation {
	var diff []ots.Attestation
	for _, a := range set {
		found := false
		for _, k := range known {
			if ots.AttestationEqual(a, k) {
				found = true
				break
			}
		}
		if !found {
			diff = append(diff, a)
		}
	}
	return diff
}

// Upgrade attempts to complete the proof: first by merging in everything
// the local cache knows about any node of the DAG, then by querying
// calendars for each unresolved pending attestation, repeating while new
// information keeps arriving.  With Wait set the engine retries until the
// proof is complete, which may be forever if the calendars never anchor
// the commitment; the caller owns that decision.  Returns whether the DAG
// was mutated.
func Upgrade(t *ots.Timestamp, cfg UpgradeConfig) bool {
	changed := false
	known := t.AttestationSet()

	// Cache pass.  Purely local, so every single node is checked.
	if cfg.Cache != nil {
		t.Walk(func(n *ots.Timestamp) {
			cached, err := cfg.Cache.Get(n.Msg)
			if err != nil {
				log.Warnf("Cache lookup for %x: %v", n.Msg, err)
				return
			}
			if cached == nil {
				return
			}
			if err := n.Merge(cached); err != nil {
				log.Warnf("Cache merge for %x: %v", n.Msg, err)
			}
		})

		fromCache := attestationDiff(t.AttestationSet(), known)
		if len(fromCache) > 0 {
			changed = true
			known = append(known, fromCache...)
			log.Infof("Got %v attestation(s) from cache",
				len(fromCache))
			for _, a := range fromCache {
				log.Debugf("    %v", a)
			}
		}
	}

	for !t.IsComplete() {
		foundNew := false

		for _, sub := range directlyVerified(t) {
			attestations := make([]ots.Attestation,
				len(sub.Attestations))
			copy(attestations, sub.Attestations)
			for _, a := range attestations {
				pending, ok := a.(ots.PendingAttestation)
				if !ok {
					continue
				}
				if upgradePending(sub, pending, cfg, &known) {
					changed = true
					foundNew = true
				}
			}
		}

		if !cfg.Wait {
			break
		}
		if foundNew {
			// New information may have unlocked further pending
			// attestations, so go around again immediately.
			continue
		}

		log.Infof("Timestamp not complete; waiting %v before trying "+
			"again", cfg.WaitInterval)
		time.Sleep(cfg.WaitInterval)
	}

	return changed
}

// upgradePending queries the calendars responsible for one pending
// attestation and merges whatever they return into the node and the
// cache.  Per calendar failures are logged and skipped.
func upgradePending(sub *ots.Timestamp, pending ots.PendingAttestation, cfg UpgradeConfig, known *[]ots.Attestation) bool {
	calendars := cfg.Calendars
	if len(calendars) == 0 {
		if cfg.Whitelist == nil || !cfg.Whitelist.Contains(pending.URI) {
			log.Warnf("Ignoring attestation from calendar %v: "+
				"calendar not in whitelist", pending.URI)
			return false
		}
		calendars = []Calendar{cfg.newCalendar(pending.URI)}
	}

	foundNew := false
	for _, cal := range calendars {
		log.Debugf("Checking calendar %v for %x", cal.URL(), sub.Msg)

		upgraded, err := cal.GetTimestamp(sub.Msg)
		if err != nil {
			log.Warnf("Calendar %v: %v", cal.URL(), err)
			continue
		}

		remote := upgraded.AttestationSet()
		if len(remote) > 0 {
			log.Infof("Got %v attestation(s) from %v", len(remote),
				cal.URL())
			for _, a := range remote {
				log.Debugf("    %v", a)
			}
		}

		newAttestations := attestationDiff(remote, *known)
		if len(newAttestations) == 0 {
			continue
		}
		*known = append(*known, newAttestations...)
		foundNew = true

		if cfg.Cache != nil {
			if err := cfg.Cache.Merge(upgraded); err != nil {
				log.Warnf("Cache merge: %v", err)
			}
		}
		if err := sub.Merge(upgraded); err != nil {
			log.Warnf("Calendar %v: %v", cal.URL(), err)
		}
	}
	return foundNew
}
