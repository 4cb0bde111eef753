package snapshot

import (
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/refsnap/internal/artifact"
	"github.com/sells-group/refsnap/internal/bucket"
)

// SaveIndex persists the profile index snapshot and (optionally) its
// provenance sidecar under the bucketed layout.
//
// Unlike SaveAggregate, the index write never defaults to today: a bucket
// must come from the provenance hint or the explicit argument, otherwise the
// call fails with ErrValidation.
func (s *Store) SaveIndex(entries []IndexEntry, opts WriteOpts) (string, error) {
	bkt := opts.Bucket
	if opts.Provenance != nil && opts.Provenance.Bucket != "" {
		bkt = opts.Provenance.Bucket
	}
	if bkt == "" {
		return "", eris.Wrap(artifact.ErrValidation, "snapshot: index write requires a provenance or explicit bucket")
	}

	if entries == nil {
		entries = []IndexEntry{}
	}
	path, err := artifact.WriteJSON(filepath.Join(s.BucketDir(bkt), IndexFile), entries)
	if err != nil {
		return "", err
	}

	if opts.Provenance != nil {
		sidecar := map[string]any{
			"source":   opts.Provenance.Source,
			"kind":     "profile_index",
			"bucket":   bkt,
			"response": opts.Provenance,
		}
		if _, err := artifact.WriteJSON(filepath.Join(s.BucketDir(bkt), IndexSidecarFile), sidecar); err != nil {
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

// LoadIndex reads the profile index from the given bucket. When bkt is "",
// resolution falls back from the latest pointer to the lexicographically
// last bucket directory on disk, and fails with ErrNotFound when neither
// yields anything.
func (s *Store) LoadIndex(bkt string) ([]IndexEntry, error) {
	useBucket := bkt
	if useBucket == "" {
		useBucket = s.LatestBucket()
	}
	if useBucket == "" {
		return nil, eris.Wrapf(artifact.ErrNotFound, "snapshot: no index buckets under %s", s.root)
	}

	var entries []IndexEntry
	if err := artifact.ReadJSONInto(filepath.Join(s.BucketDir(useBucket), IndexFile), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
