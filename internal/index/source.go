package index

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/refsnap/internal/artifact"
	"github.com/sells-group/refsnap/internal/snapshot"
)

// Source supplies profile index entries for a batch run. It serves the
// persisted index when one exists and falls back to a fresh sitemap
// build, persisting the result for the next run.
type Source struct {
	store      *snapshot.Store
	getter     Getter
	sitemapURL string
}

// NewSource wires a load-else-build entry source over store. sitemapURL
// may be empty to use the default justETF sitemap.
func NewSource(store *snapshot.Store, g Getter, sitemapURL string) *Source {
	return &Source{store: store, getter: g, sitemapURL: sitemapURL}
}

// Entries returns the profile index from the latest bucket, building and
// persisting a fresh one from the sitemap when none exists on disk.
func (s *Source) Entries(ctx context.Context) ([]snapshot.IndexEntry, error) {
	entries, err := s.store.LoadIndex("")
	if err == nil {
		zap.L().Debug("loaded persisted profile index", zap.Int("entries", len(entries)))
		return entries, nil
	}
	if !errors.Is(err, artifact.ErrNotFound) {
		return nil, err
	}

	zap.L().Info("no persisted profile index, building from sitemap")

	entries, prov, err := BuildProfileIndex(ctx, s.getter, s.sitemapURL)
	if err != nil {
		return nil, err
	}

	opts := snapshot.WriteOpts{Provenance: prov, WriteLatest: true}
	if prov == nil || prov.Bucket == "" {
		opts.Bucket = snapshot.Today()
	}
	if _, err := s.store.SaveIndex(entries, opts); err != nil {
		return nil, err
	}
	return entries, nil
}
