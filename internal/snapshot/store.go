package snapshot

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/refsnap/internal/artifact"
	"github.com/sells-group/refsnap/internal/bucket"
)

// Artifact file names within a bucket.
const (
	RecordFile        = "profile.parsed.json"
	RecordSidecarFile = "profile.response.json"
	AggregateFile     = "profiles.parsed.json"
	IndexFile         = "profile_index.parsed.json"
	IndexSidecarFile  = "profile_index.response.json"
)

// Store persists records under one artifact root (e.g. <base>/profiles or
// <base>/profile_index). Each root tracks its own latest pointer.
type Store struct {
	root string
}

// NewStore returns a Store bound to the given artifact root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the artifact root this store writes under.
func (s *Store) Root() string { return s.root }

// WriteOpts carries the optional parts of a snapshot write.
type WriteOpts struct {
	// Provenance, when non-nil, is written as a sidecar and its Bucket hint
	// takes precedence in bucket resolution.
	Provenance *Provenance

	// Bucket names the target bucket explicitly. Used when no provenance
	// hint is present.
	Bucket string

	// WriteLatest moves the root's latest pointer to the resolved bucket
	// after a successful write.
	WriteLatest bool
}

// resolveWriteBucket applies the write-side bucket precedence:
// provenance hint, explicit argument, today's date.
func resolveWriteBucket(opts WriteOpts) string {
	if opts.Provenance != nil && opts.Provenance.Bucket != "" {
		return opts.Provenance.Bucket
	}
	if opts.Bucket != "" {
		return opts.Bucket
	}
	return Today()
}

// BucketDir returns the directory of a bucket under this root.
func (s *Store) BucketDir(bkt string) string {
	return filepath.Join(s.root, bkt)
}

// RecordDir returns the per-entity directory for an identifier in a bucket.
func (s *Store) RecordDir(bkt, isin string) string {
	return filepath.Join(s.root, bkt, isin)
}

// RecordPath returns the primary artifact path for an identifier in a bucket.
func (s *Store) RecordPath(bkt, isin string) string {
	return filepath.Join(s.RecordDir(bkt, isin), RecordFile)
}

// RecordExists reports whether the per-entity artifact is present in a bucket.
func (s *Store) RecordExists(bkt, isin string) bool {
	_, err := os.Stat(s.RecordPath(bkt, isin))
	return err == nil
}

// SaveRecord persists one record and (optionally) its provenance sidecar
// under the bucketed layout, returning the primary artifact path.
//
// Records lacking a non-empty identifier fail with ErrValidation before
// anything touches the filesystem.
func (s *Store) SaveRecord(rec Record, opts WriteOpts) (string, error) {
	isin := rec.ID()
	if isin == "" {
		return "", eris.Wrapf(artifact.ErrValidation, "snapshot: record missing non-empty %q", IDKey)
	}

	bkt := resolveWriteBucket(opts)
	path, err := artifact.WriteJSON(s.RecordPath(bkt, isin), map[string]any(rec))
	if err != nil {
		return "", err
	}

	if opts.Provenance != nil {
		sidecar := filepath.Join(s.RecordDir(bkt, isin), RecordSidecarFile)
		if _, err := artifact.WriteJSON(sidecar, opts.Provenance); err != nil {
			return "", err
		}
	}

	if opts.WriteLatest {
		if err := bucket.UpdateLatestPointer(s.root, bkt); err != nil {
			return "", err
		}
	}
	return path, nil
}

// LoadRecord reads one record from the given bucket, or from the bucket the
// latest pointer names when bkt is "". Fails with ErrNotFound when no bucket
// resolves or the artifact is absent.
func (s *Store) LoadRecord(isin, bkt string) (Record, error) {
	useBucket := bkt
	if useBucket == "" {
		useBucket = bucket.ResolveLatestBucket(s.root)
	}
	if useBucket == "" {
		return nil, eris.Wrapf(artifact.ErrNotFound, "snapshot: no buckets under %s and no latest pointer", s.root)
	}

	value, err := artifact.ReadJSON(s.RecordPath(useBucket, isin))
	if err != nil {
		return nil, err
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, eris.Wrapf(artifact.ErrParse, "snapshot: record for %q in bucket %q is not an object", isin, useBucket)
	}
	return Record(m), nil
}

// SaveAggregate writes the whole-bucket aggregate (all records of one run)
// at the bucket root. Per-entity artifacts are not touched.
func (s *Store) SaveAggregate(recs []Record, opts WriteOpts) (string, error) {
	bkt := resolveWriteBucket(opts)

	// A run with zero successes still writes an (empty) aggregate.
	list := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		list = append(list, map[string]any(r))
	}

	path, err := artifact.WriteJSON(filepath.Join(s.BucketDir(bkt), AggregateFile), list)
	if err != nil {
		return "", err
	}
	if opts.WriteLatest {
		if err := bucket.UpdateLatestPointer(s.root, bkt); err != nil {
			return "", err
		}
	}
	return path, nil
}

// LatestBucket resolves the bucket a read should target when none is named:
// the latest pointer first, then the last bucket on disk, then "".
func (s *Store) LatestBucket() string {
	if latest := bucket.ResolveLatestBucket(s.root); latest != "" {
		return latest
	}
	return s.LastBucketOnDisk()
}

// LastBucketOnDisk returns the lexicographically last bucket directory under
// the root, excluding the latest pointer itself, or "" when none exist.
func (s *Store) LastBucketOnDisk() string {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return ""
	}
	var buckets []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "latest" || e.Name() == "runs" {
			continue
		}
		buckets = append(buckets, e.Name())
	}
	if len(buckets) == 0 {
		return ""
	}
	sort.Strings(buckets)
	return buckets[len(buckets)-1]
}
