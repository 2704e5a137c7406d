// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nobodyinperson/opentimestamps-client/ots"
)

// fakeCalendar is an in-memory Calendar.  Submit returns a pending
// attestation for the fake's URL after an optional delay; GetTimestamp
// serves canned fragments keyed by commitment.
type fakeCalendar struct {
	url       string
	delay     time.Duration
	err       error
	mu        sync.Mutex
	submitted [][]byte

	fragments map[string]*ots.Timestamp
	queried   [][]byte
}

func newFakeCalendarClient(url string) *fakeCalendar {
	return &fakeCalendar{
		url:       url,
		fragments: make(map[string]*ots.Timestamp),
	}
}

func (f *fakeCalendar) URL() string { return f.url }

func (f *fakeCalendar) Submit(digest []byte, timeout time.Duration) (*ots.Timestamp, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, digest)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ts := ots.NewTimestamp(digest)
	ts.AddAttestation(ots.PendingAttestation{URI: f.url})
	return ts, nil
}

func (f *fakeCalendar) GetTimestamp(digest []byte) (*ots.Timestamp, error) {
	f.mu.Lock()
	f.queried = append(f.queried, digest)
	frag, ok := f.fragments[string(digest)]
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if !ok {
		return nil, errors.New("commitment not found")
	}
	return frag, nil
}

// mapCache is an in-memory TimestampCache.
type mapCache struct {
	entries map[string]*ots.Timestamp
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*ots.Timestamp)}
}

func (c *mapCache) Get(msg []byte) (*ots.Timestamp, error) {
	return c.entries[string(msg)], nil
}

func (c *mapCache) Merge(t *ots.Timestamp) error {
	existing, ok := c.entries[string(t.Msg)]
	if !ok {
		existing = ots.NewTimestamp(t.Msg)
		c.entries[string(t.Msg)] = existing
	}
	return existing.Merge(t)
}

func testDigest(s string) []byte {
	d := sha256.Sum256([]byte(s))
	return d[:]
}

func TestSubmitQuorumMet(t *testing.T) {
	calendars := []Calendar{
		newFakeCalendarClient("https://a.example.com"),
		newFakeCalendarClient("https://b.example.com"),
		newFakeCalendarClient("https://c.example.com"),
	}

	root := ots.NewTimestamp(testDigest("root"))
	require.NoError(t, Submit(root, calendars, 2, 5*time.Second))

	// All three responded, so all three attestations are merged.
	require.Len(t, root.AttestationSet(), 3)
	for _, cal := range calendars {
		require.True(t, root.HasAttestation(ots.PendingAttestation{
			URI: cal.URL(),
		}))
	}
}

func TestSubmitQuorumNotMet(t *testing.T) {
	a := newFakeCalendarClient("https://a.example.com")
	b := newFakeCalendarClient("https://b.example.com")
	c := newFakeCalendarClient("https://c.example.com")
	b.err = errors.New("internal server error")
	c.err = errors.New("internal server error")

	root := ots.NewTimestamp(testDigest("root"))
	err := Submit(root, []Calendar{a, b, c}, 2, 5*time.Second)
	require.ErrorIs(t, err, ErrQuorumNotMet)

	// The one valid response was still merged before the quorum check
	// failed.
	require.True(t, root.HasAttestation(ots.PendingAttestation{
		URI: a.URL(),
	}))
}

func TestSubmitQuorumBounds(t *testing.T) {
	calendars := []Calendar{
		newFakeCalendarClient("https://a.example.com"),
	}
	root := ots.NewTimestamp(testDigest("root"))

	require.Error(t, Submit(root, calendars, 0, time.Second))
	require.Error(t, Submit(root, calendars, 2, time.Second))
	require.Error(t, Submit(root, nil, 1, time.Second))
}

// Slow calendars must not extend the wait beyond the single shared
// deadline, and a met quorum from the fast calendars must win.
func TestSubmitSharedDeadline(t *testing.T) {
	fast1 := newFakeCalendarClient("https://a.example.com")
	fast2 := newFakeCalendarClient("https://b.example.com")
	slow1 := newFakeCalendarClient("https://c.example.com")
	slow2 := newFakeCalendarClient("https://d.example.com")
	slow1.delay = 10 * time.Second
	slow2.delay = 10 * time.Second

	const timeout = 200 * time.Millisecond
	root := ots.NewTimestamp(testDigest("root"))
	start := time.Now()
	err := Submit(root, []Calendar{fast1, fast2, slow1, slow2}, 2, timeout)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Less(t, elapsed, 5*time.Second,
		"slow calendars must be abandoned at the deadline")
	require.Len(t, root.AttestationSet(), 2)
}

func TestSubmitQuorumNotMetWithinDeadline(t *testing.T) {
	fast := newFakeCalendarClient("https://a.example.com")
	slow := newFakeCalendarClient("https://b.example.com")
	slow.delay = 10 * time.Second

	root := ots.NewTimestamp(testDigest("root"))
	err := Submit(root, []Calendar{fast, slow}, 2, 200*time.Millisecond)
	require.ErrorIs(t, err, ErrQuorumNotMet)
}

// deferredCalendar stalls URL so that responses from calendars listed
// before it are already buffered by the time the drain loop starts.
type deferredCalendar struct {
	*fakeCalendar
	urlDelay time.Duration
}

func (d *deferredCalendar) URL() string {
	time.Sleep(d.urlDelay)
	return d.fakeCalendar.url
}

// A response that arrived before the deadline must count toward the
// quorum even when the drain only runs after the deadline has passed.
func TestSubmitKeepsResponsesArrivedBeforeDeadline(t *testing.T) {
	fast := newFakeCalendarClient("https://a.example.com")
	late := &deferredCalendar{
		fakeCalendar: newFakeCalendarClient("https://b.example.com"),
		urlDelay:     50 * time.Millisecond,
	}
	late.err = errors.New("internal server error")

	for i := 0; i < 10; i++ {
		root := ots.NewTimestamp(testDigest("root"))
		err := Submit(root, []Calendar{fast, late}, 1,
			time.Nanosecond)
		require.NoError(t, err)
		require.True(t, root.HasAttestation(ots.PendingAttestation{
			URI: fast.url,
		}))
	}
}

func TestStamp(t *testing.T) {
	cal := newFakeCalendarClient("https://a.example.com")

	var files []*ots.DetachedFile
	for i := 0; i < 3; i++ {
		d, err := ots.NewDetachedFileFromReader(ots.NewOpSHA256(),
			bytes.NewReader([]byte(fmt.Sprintf("file %v", i))))
		require.NoError(t, err)
		files = append(files, d)
	}

	root, err := Stamp(files, []Calendar{cal}, 1, 5*time.Second)
	require.NoError(t, err)

	// A single root commitment was submitted for the whole batch.
	require.Len(t, cal.submitted, 1)
	require.Equal(t, root.Msg, cal.submitted[0])

	// Every file's proof reaches the pending attestation on the root.
	want := ots.PendingAttestation{URI: cal.URL()}
	for _, f := range files {
		found := false
		for _, ma := range f.Timestamp.AllAttestations() {
			if ots.AttestationEqual(ma.Attestation, want) {
				found = true
			}
		}
		require.True(t, found)
	}
}

func TestStampNoFiles(t *testing.T) {
	cal := newFakeCalendarClient("https://a.example.com")
	_, err := Stamp(nil, []Calendar{cal}, 1, time.Second)
	require.Error(t, err)
}
