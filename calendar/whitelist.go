// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package calendar

import (
	"fmt"
	"net/url"
	"strings"
)

// Whitelist is the set of calendar URLs the upgrade engine may contact
// without an explicit override.  Entries are exact URLs or wildcard
// patterns of the form https://*.example.com, which match the domain
// itself and any subdomain of it.
type Whitelist struct {
	exact     map[string]struct{}
	wildcards []wildcard
}

type wildcard struct {
	scheme string
	domain string
}

// NewWhitelist returns an empty whitelist.
func NewWhitelist() *Whitelist {
	return &Whitelist{exact: make(map[string]struct{})}
}

// NewDefaultWhitelist returns a whitelist preloaded with the default
// calendar domains.
func NewDefaultWhitelist() *Whitelist {
	w := NewWhitelist()
	for _, entry := range DefaultWhitelist {
		// The defaults are well formed by construction.
		if err := w.Add(entry); err != nil {
			panic(err)
		}
	}
	return w
}

// Add inserts a URL or wildcard pattern.
func (w *Whitelist) Add(entry string) error {
	entry = strings.TrimRight(entry, "/")

	u, err := url.Parse(entry)
	if err != nil {
		return fmt.Errorf("invalid whitelist entry %q: %w", entry, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid whitelist entry %q: scheme must "+
			"be http or https", entry)
	}

	if strings.HasPrefix(u.Host, "*.") {
		w.wildcards = append(w.wildcards, wildcard{
			scheme: u.Scheme,
			domain: strings.TrimPrefix(u.Host, "*."),
		})
		return nil
	}

	w.exact[entry] = struct{}{}
	return nil
}

// Contains reports whether the URL is covered by the whitelist.
func (w *Whitelist) Contains(rawURL string) bool {
	rawURL = strings.TrimRight(rawURL, "/")
	if _, ok := w.exact[rawURL]; ok {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, wc := range w.wildcards {
		if u.Scheme != wc.scheme {
			continue
		}
		if u.Host == wc.domain ||
			strings.HasSuffix(u.Host, "."+wc.domain) {
			return true
		}
	}
	return false
}
