// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package cache persists proof fragments learned from calendars so later
// upgrade runs can resolve commitments without network access.
package cache

import (
	"bytes"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/nobodyinperson/opentimestamps-client/ots"
)

// Cache is a leveldb backed mapping from commitment to the best proof
// fragment known for it.  A single process owns the store for the duration
// of an invocation.
type Cache struct {
	root string
	db   *leveldb.DB
}

// New opens, creating if necessary, the cache rooted at the provided
// directory.
func New(root string) (*Cache, error) {
	db, err := leveldb.OpenFile(root, &opt.Options{
		ErrorIfMissing: false,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{
		root: root,
		db:   db,
	}, nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached proof fragment for msg, or nil if the cache holds
// nothing for it.  A miss is not an error.
func (c *Cache) Get(msg []byte) (*ots.Timestamp, error) {
	value, err := c.db.Get(msg, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t, err := ots.DeserializeTimestamp(bytes.NewReader(value), msg)
	if err != nil {
		// A corrupt entry is equivalent to a miss; it will be
		// overwritten by the next merge.
		log.Warnf("Discarding corrupt cache entry for %x: %v", msg, err)
		return nil, nil
	}
	return t, nil
}

// Merge folds a proof fragment into the cache under its commitment,
// unioning with whatever was already stored.  Empty fragments are skipped;
// they carry no information and have no serialized form.
func (c *Cache) Merge(t *ots.Timestamp) error {
	if len(t.Attestations) == 0 && len(t.Ops) == 0 {
		return nil
	}

	merged := ots.NewTimestamp(t.Msg)
	if existing, err := c.Get(t.Msg); err != nil {
		return err
	} else if existing != nil {
		if err := merged.Merge(existing); err != nil {
			return err
		}
	}
	if err := merged.Merge(t); err != nil {
		return err
	}

	value, err := merged.SerializeToBytes()
	if err != nil {
		return err
	}
	return c.db.Put(merged.Msg, value, nil)
}
