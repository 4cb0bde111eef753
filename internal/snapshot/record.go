// Package snapshot maps parsed reference-data records onto the bucketed
// on-disk layout and resolves which bucket to read or write under ambiguity.
//
// Layout per artifact root (profiles/ and profile_index/ independently):
//
//	<root>/
//	  <bucket>/
//	    <ISIN>/profile.parsed.json        per-entity artifact
//	    <ISIN>/profile.response.json      optional provenance sidecar
//	    profiles.parsed.json              optional whole-bucket aggregate
//	    profile_index.parsed.json         index artifact (index roots)
//	    profile_index.response.json       optional index provenance
//	  latest -> <bucket>                  or LATEST_BUCKET marker
//
// Buckets are immutable generations: nothing mutates a bucket other than the
// one currently being written, except the latest-pointer update.
package snapshot

import (
	"strings"
	"time"
)

// IDKey is the required identifier field of every record.
const IDKey = "isin"

// Record is one parsed entity: a schema-light mapping with a required
// non-empty identifier and an open set of scraped fields.
type Record map[string]any

// ID returns the record's identifier, or "" if absent or not a string.
func (r Record) ID() string {
	v, ok := r[IDKey]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// IndexEntry is one entry of the profile index: an identifier plus the
// canonical profile URL discovered for it.
type IndexEntry struct {
	ISIN    string `json:"isin"`
	URL     string `json:"url"`
	LastMod string `json:"lastmod,omitempty"`
}

// Today returns the current UTC date as an ISO bucket name.
func Today() string {
	return time.Now().UTC().Format("2006-01-02")
}
