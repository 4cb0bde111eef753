// Package batch drives a sequence of index entries through
// fetch → parse → persist, producing an idempotent, resumable, dated
// snapshot with a movable latest pointer.
//
// Processing is strictly sequential and rate-limited; there is no parallel
// fetching. Individual entity failures are isolated and recorded in the run
// log, never aborting the run. The only run-fatal conditions are failure to
// obtain the entity list and failure to initialize the run log.
package batch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/refsnap/internal/runlog"
	"github.com/sells-group/refsnap/internal/snapshot"
)

// Fetcher downloads one entity's payload and reports its provenance.
type Fetcher interface {
	Fetch(ctx context.Context, isin, url string) ([]byte, *snapshot.Provenance, error)
}

// ParseFunc turns a raw payload into a record. Pure; the returned record
// must carry the identifier.
type ParseFunc func(raw []byte, isin string) (snapshot.Record, error)

// EntrySource supplies the entity list when the caller does not. It either
// returns a list or fails after exhausting its own retries.
type EntrySource interface {
	Entries(ctx context.Context) ([]snapshot.IndexEntry, error)
}

// Runner orchestrates one batch run over the profiles root.
type Runner struct {
	profiles *snapshot.Store
	fetcher  Fetcher
	parse    ParseFunc
	source   EntrySource
}

// NewRunner creates a Runner. source may be nil when every Run call supplies
// its own entries.
func NewRunner(profiles *snapshot.Store, f Fetcher, parse ParseFunc, source EntrySource) *Runner {
	return &Runner{profiles: profiles, fetcher: f, parse: parse, source: source}
}

// RunOpts configures one batch run.
type RunOpts struct {
	// Entries is the pre-supplied entity list. When nil, the runner asks its
	// EntrySource. An empty non-nil slice means "process nothing".
	Entries []snapshot.IndexEntry

	// Bucket pre-supplies the working bucket; entities already present in it
	// are skipped unless ForceRefresh is set.
	Bucket string

	// RateLimit is the unconditional pause after each successful fetch.
	RateLimit time.Duration

	// ForceRefresh disables the early-skip check.
	ForceRefresh bool

	// RunID names the run directory; empty means a UTC timestamp default.
	RunID string

	// WriteLatest moves the latest pointer after bucket writes.
	WriteLatest bool
}

// Stats summarizes a completed run. A run completes and returns stats even
// when every entity failed; callers inspect the counts to detect degraded
// runs.
type Stats struct {
	Bucket       string
	OK           int
	Skip         int
	Err          int
	SnapshotPath string
	RunID        string
}

// Run executes the batch over the entity list in order.
func (r *Runner) Run(ctx context.Context, opts RunOpts) (*Stats, error) {
	log := zap.L().With(zap.String("component", "batch.runner"))

	entries := opts.Entries
	if entries == nil {
		if r.source == nil {
			return nil, eris.New("batch: no entries supplied and no entry source configured")
		}
		var err error
		entries, err = r.source.Entries(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "batch: obtain entity list")
		}
	}

	rl, err := runlog.New(r.profiles.Root(), opts.RunID)
	if err != nil {
		return nil, eris.Wrap(err, "batch: init run log")
	}

	log.Info("starting batch run",
		zap.String("run_id", rl.RunID()),
		zap.Int("entries", len(entries)),
		zap.String("bucket", opts.Bucket),
		zap.Bool("force_refresh", opts.ForceRefresh),
	)

	stats := &Stats{Bucket: opts.Bucket, RunID: rl.RunID()}
	adopted := opts.Bucket
	var runRecords []snapshot.Record

	for _, entry := range entries {
		isin := entry.ISIN

		if skip, reason := r.shouldSkip(adopted, isin, opts.ForceRefresh); skip {
			r.logEntry(rl, runlog.Entry{ISIN: isin, Status: runlog.StatusSkip, Bucket: adopted, Reason: reason})
			stats.Skip++
			continue
		}

		rec, bucketUsed, procErr := r.processOne(ctx, entry, adopted, opts.WriteLatest)
		if procErr != nil {
			msg := procErr.Error()
			log.Warn("entry failed", zap.String("isin", isin), zap.Error(procErr))
			r.logEntry(rl, runlog.Entry{ISIN: isin, Status: runlog.StatusErr, Bucket: adopted, Error: msg})
			if err := rl.MarkErr(isin, map[string]any{"isin": isin, "error": msg}); err != nil {
				log.Error("failed to write error marker", zap.String("isin", isin), zap.Error(err))
			}
			stats.Err++
			continue
		}

		// First successful entity's bucket becomes authoritative for the
		// rest of the run.
		if adopted == "" {
			adopted = bucketUsed
		}

		r.logEntry(rl, runlog.Entry{ISIN: isin, Status: runlog.StatusOK, Bucket: adopted})
		if err := rl.MarkOK(isin); err != nil {
			log.Error("failed to write ok marker", zap.String("isin", isin), zap.Error(err))
		}
		runRecords = append(runRecords, rec)
		stats.OK++

		if opts.RateLimit > 0 {
			time.Sleep(opts.RateLimit)
		}
	}

	if adopted == "" {
		adopted = r.resolveFallbackBucket()
	}
	stats.Bucket = adopted

	aggPath, err := r.profiles.SaveAggregate(runRecords, snapshot.WriteOpts{
		Bucket:      adopted,
		WriteLatest: opts.WriteLatest,
	})
	if err != nil {
		return nil, eris.Wrap(err, "batch: write run aggregate")
	}
	stats.SnapshotPath = aggPath

	log.Info("batch run complete",
		zap.String("run_id", rl.RunID()),
		zap.String("bucket", adopted),
		zap.Int("ok", stats.OK),
		zap.Int("skip", stats.Skip),
		zap.Int("err", stats.Err),
	)
	return stats, nil
}

// shouldSkip decides the early-skip fast path. It deliberately never fires
// before a bucket is known: skip decisions require knowing which bucket to
// check.
func (r *Runner) shouldSkip(adopted, isin string, force bool) (bool, string) {
	if force || adopted == "" {
		return false, ""
	}
	if r.profiles.RecordExists(adopted, isin) {
		return true, "exists"
	}
	return false, ""
}

// processOne fetches, parses, and persists a single entry. The bucket used
// prefers the fetch provenance's hint, then the bucket already adopted this
// run, then today.
func (r *Runner) processOne(ctx context.Context, entry snapshot.IndexEntry, adopted string, writeLatest bool) (snapshot.Record, string, error) {
	raw, prov, err := r.fetcher.Fetch(ctx, entry.ISIN, entry.URL)
	if err != nil {
		return nil, "", err
	}

	rec, err := r.parse(raw, entry.ISIN)
	if err != nil {
		return nil, "", err
	}
	if v, ok := rec["source_url"].(string); !ok || v == "" {
		rec["source_url"] = entry.URL
	}

	bucketUsed := adopted
	if prov != nil && prov.Bucket != "" {
		bucketUsed = prov.Bucket
	}
	if bucketUsed == "" {
		bucketUsed = snapshot.Today()
	}

	if _, err := r.profiles.SaveRecord(rec, snapshot.WriteOpts{
		Provenance:  prov,
		Bucket:      bucketUsed,
		WriteLatest: writeLatest,
	}); err != nil {
		return nil, "", err
	}
	return rec, bucketUsed, nil
}

// resolveFallbackBucket picks the aggregate bucket when the run adopted none
// (e.g. everything was skipped): latest pointer, last bucket on disk, today.
func (r *Runner) resolveFallbackBucket() string {
	if bkt := r.profiles.LatestBucket(); bkt != "" {
		return bkt
	}
	return snapshot.Today()
}

// logEntry appends to the progress ledger, downgrading append failures to a
// log line so one bad write cannot abort the run.
func (r *Runner) logEntry(rl *runlog.RunLog, e runlog.Entry) {
	if err := rl.Log(e); err != nil {
		zap.L().Error("failed to append progress record",
			zap.String("isin", e.ISIN),
			zap.Error(err),
		)
	}
}
