package cache

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Mode selects how the response cache participates in a fetch.
type Mode string

const (
	// ModeDefault serves cached payloads while fresh, fetching otherwise.
	ModeDefault Mode = "default"
	// ModeRefresh always fetches and overwrites the cached payload.
	ModeRefresh Mode = "refresh"
	// ModeReadonly serves only cached payloads and never fetches.
	ModeReadonly Mode = "readonly"
	// ModeOff bypasses the cache entirely.
	ModeOff Mode = "off"
)

// ParseMode converts a config string to a Mode (case-insensitive, empty
// means default).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return ModeDefault, nil
	case "refresh":
		return ModeRefresh, nil
	case "readonly":
		return ModeReadonly, nil
	case "off":
		return ModeOff, nil
	default:
		return "", eris.Errorf("cache: unknown mode %q (valid: default, refresh, readonly, off)", s)
	}
}

// Policy is the caching policy resolved from config for one source.
type Policy struct {
	Mode Mode

	// TTL bounds how long a cached payload counts as fresh under
	// ModeDefault. Zero means no expiry.
	TTL time.Duration

	// BucketFormat resolves the as-of bucket stamped on provenance: a Go
	// reference layout ("2006-01-02") formats today's UTC date, anything
	// else is taken as a literal token (e.g. "2025Q4"), and empty means
	// today's ISO date.
	BucketFormat string
}

// ResolveBucket returns the as-of bucket the policy assigns to payloads
// fetched now.
func (p Policy) ResolveBucket() string {
	return ResolveBucket(p.BucketFormat)
}

// ResolveBucket resolves a layout-or-literal bucket format. The reference
// date substring "2006" marks a Go time layout; everything else is literal.
func ResolveBucket(fmtOrLiteral string) string {
	if fmtOrLiteral == "" {
		return time.Now().UTC().Format("2006-01-02")
	}
	if strings.Contains(fmtOrLiteral, "2006") {
		return time.Now().UTC().Format(fmtOrLiteral)
	}
	return fmtOrLiteral
}
