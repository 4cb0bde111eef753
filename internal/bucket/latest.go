// Package bucket maintains the "latest" indirection over bucketed snapshot
// directories.
//
// The preferred mechanism is a relative symlink named "latest" pointing at a
// bucket directory. On filesystems that refuse symlinks (some network
// mounts), a plain-text marker file LATEST_BUCKET carries the bucket name
// instead. Callers never need to know which mechanism is in effect.
//
// Typical layout:
//
//	<root>/
//	  2025-10-29/
//	  2025-10-30/
//	  latest -> 2025-10-30
//	  LATEST_BUCKET        (only if symlink creation failed)
package bucket

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/refsnap/internal/artifact"
)

// MarkerFile is the fallback pointer file written when symlinks fail.
const MarkerFile = "LATEST_BUCKET"

// symlink is a seam for tests that simulate filesystems without symlink
// support.
var symlink = os.Symlink

// UpdateLatestPointer establishes <root>/latest as an indirection to bucket.
//
// Replacing an existing symlink or file is idempotent. If "latest" exists as
// a real directory the call fails with ErrConflict and leaves it untouched.
// If symlink creation fails at the OS level, the marker file is written
// instead. Not atomic across processes; refsnap assumes a single writer per
// artifact root.
func UpdateLatestPointer(root, bucket string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return eris.Wrapf(err, "bucket: create root %s", root)
	}
	latest := filepath.Join(root, "latest")

	if info, err := os.Lstat(latest); err == nil {
		if info.IsDir() {
			// A real directory, not an indirection. Never destroy it.
			return eris.Wrapf(artifact.ErrConflict, "bucket: 'latest' exists and is a real directory: %s", latest)
		}
		if err := os.Remove(latest); err != nil {
			return eris.Wrapf(err, "bucket: remove stale pointer %s", latest)
		}
	}

	// Relative target keeps the pointer valid when the root moves.
	if err := symlink(bucket, latest); err != nil {
		marker := filepath.Join(root, MarkerFile)
		if werr := os.WriteFile(marker, []byte(bucket), 0o644); werr != nil {
			return eris.Wrapf(werr, "bucket: write fallback marker %s", marker)
		}
	}
	return nil
}

// ResolveLatestBucket returns the bucket named by <root>/latest or the
// marker file, or "" when neither resolves.
//
// A dangling symlink still yields its target's final path component; only an
// unreadable link falls through to the marker file.
func ResolveLatestBucket(root string) string {
	latest := filepath.Join(root, "latest")
	if target, err := os.Readlink(latest); err == nil {
		return filepath.Base(target)
	}

	data, err := os.ReadFile(filepath.Join(root, MarkerFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
