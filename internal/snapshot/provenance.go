package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Provenance records how a payload was obtained. It is written as a sidecar
// next to the primary artifact, never instead of it; its absence does not
// invalidate the artifact.
type Provenance struct {
	ResponseID string    `json:"response_id"`
	RequestID  string    `json:"request_id"`
	Source     string    `json:"source"`
	Kind       string    `json:"kind"`
	URL        string    `json:"url,omitempty"`
	Path       string    `json:"path,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	SizeBytes  int64     `json:"size_bytes"`

	// Bucket is the as-of bucket hint stamped by the fetch cache policy.
	// When present it takes precedence over any explicit bucket argument.
	Bucket string `json:"as_of_bucket,omitempty"`

	// Cache policy identity, informational.
	CacheMode  string  `json:"cache_mode,omitempty"`
	TTLSeconds float64 `json:"ttl_seconds,omitempty"`
}

// Verify reports whether data matches the recorded checksum. A provenance
// without a checksum verifies trivially.
func (p *Provenance) Verify(data []byte) bool {
	if p.Checksum == "" {
		return true
	}
	return ChecksumBytes(data) == p.Checksum
}

// ChecksumBytes returns the hex SHA-256 digest used for payload checksums.
func ChecksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
