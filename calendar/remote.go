// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package calendar implements the client side of the remote calendar
// protocol: submitting commitments for aggregation and retrieving the
// proof fragments a calendar has collected for them.
package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nobodyinperson/opentimestamps-client/ots"
)

// ErrCommitmentNotFound is returned when the calendar has no record of the
// queried commitment.  Callers treat this as a skippable condition, not a
// failure.
var ErrCommitmentNotFound = errors.New("commitment not found")

// Remote is a single calendar server.  The HTTP client is injected at
// construction so callers control transport concerns such as TLS and
// proxying; there is no process global state.
type Remote struct {
	url       string
	userAgent string
	client    *http.Client
	timeout   time.Duration
}

// New returns a calendar client for the given base URL.  A nil httpClient
// uses http.DefaultClient; requests are bounded by DefaultTimeout either
// way.
func New(url string, userAgent string, httpClient *http.Client) *Remote {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Remote{
		url:       strings.TrimRight(url, "/"),
		userAgent: userAgent,
		client:    httpClient,
		timeout:   DefaultTimeout,
	}
}

// URL returns the calendar base URL.
func (r *Remote) URL() string {
	return r.url
}

// Submit sends a commitment to the calendar for aggregation and returns
// the proof fragment the calendar responds with, typically a single
// pending attestation.
func (r *Remote) Submit(digest []byte, timeout time.Duration) (*ots.Timestamp, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.url+SubmitRoute, bytes.NewReader(digest))
	if err != nil {
		return nil, err
	}
	r.setHeaders(req)

	return r.roundTrip(req, digest)
}

// GetTimestamp asks the calendar for everything it knows about a
// previously submitted commitment.  Returns ErrCommitmentNotFound when the
// calendar has no record of it.  The request is bounded by DefaultTimeout.
func (r *Remote) GetTimestamp(digest []byte) (*ots.Timestamp, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%v%v%x", r.url, TimestampRoute, digest), nil)
	if err != nil {
		return nil, err
	}
	r.setHeaders(req)

	return r.roundTrip(req, digest)
}

func (r *Remote) setHeaders(req *http.Request) {
	req.Header.Set("Accept", Accept)
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
}

func (r *Remote) roundTrip(req *http.Request, digest []byte) (*ots.Timestamp, error) {
	log.Debugf("%v %v", req.Method, req.URL)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar %v: %w", r.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("calendar %v: %w", r.url, err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("calendar %v: response exceeds %v bytes",
			r.url, MaxResponseSize)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("calendar %v: %w: %v", r.url,
			ErrCommitmentNotFound, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar %v: %v", r.url, resp.Status)
	}

	t, err := ots.DeserializeTimestamp(bytes.NewReader(body), digest)
	if err != nil {
		return nil, fmt.Errorf("calendar %v: %w", r.url, err)
	}
	return t, nil
}
