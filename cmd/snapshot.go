package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/refsnap/internal/batch"
	"github.com/sells-group/refsnap/internal/index"
	"github.com/sells-group/refsnap/internal/profile"
	"github.com/sells-group/refsnap/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Snapshot ETF profile pages into the current bucket",
	Long: `Snapshot downloads and parses the profile page of every ETF in the
profile index, persisting one record per ISIN under a dated bucket.

Entities already present in the working bucket are skipped unless
--force is set. Each run writes a progress ledger under runs/<run-id>.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "snapshot"))

		bucket, _ := cmd.Flags().GetString("bucket")
		runID, _ := cmd.Flags().GetString("run-id")
		force, _ := cmd.Flags().GetBool("force")
		limit, _ := cmd.Flags().GetInt("limit")
		isins, _ := cmd.Flags().GetStringSlice("isin")
		cacheMode, _ := cmd.Flags().GetString("cache-mode")
		noLatest, _ := cmd.Flags().GetBool("no-latest")

		f, closeCache, err := initFetcher(ctx, cacheMode)
		if err != nil {
			return err
		}
		if closeCache != nil {
			defer closeCache() //nolint:errcheck
		}

		source := index.NewSource(indexStore(), f, cfg.JustETF.SitemapURL)
		runner := batch.NewRunner(profilesStore(), f, profile.Parse, source)

		opts := batch.RunOpts{
			Bucket:       bucket,
			RunID:        runID,
			ForceRefresh: force,
			RateLimit:    time.Duration(cfg.JustETF.RateSeconds * float64(time.Second)),
			WriteLatest:  !noLatest,
		}

		if len(isins) > 0 || limit > 0 {
			entries, err := selectEntries(ctx, source, isins, limit)
			if err != nil {
				return err
			}
			opts.Entries = entries
		}

		log.Info("starting snapshot run",
			zap.String("bucket", bucket),
			zap.Bool("force", force),
			zap.Int("limit", limit),
			zap.Int("isins", len(isins)),
		)

		stats, err := runner.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "snapshot")
		}

		fmt.Printf("Run %s complete: bucket=%s ok=%d skip=%d err=%d\n",
			stats.RunID, stats.Bucket, stats.OK, stats.Skip, stats.Err)
		fmt.Printf("Aggregate: %s\n", stats.SnapshotPath)
		return nil
	},
}

// selectEntries narrows the profile index to the requested subset.
func selectEntries(ctx context.Context, source batch.EntrySource, isins []string, limit int) ([]snapshot.IndexEntry, error) {
	entries, err := source.Entries(ctx)
	if err != nil {
		return nil, err
	}

	if len(isins) > 0 {
		want := make(map[string]bool, len(isins))
		for _, isin := range isins {
			want[strings.ToUpper(strings.TrimSpace(isin))] = true
		}
		var filtered []snapshot.IndexEntry
		for _, e := range entries {
			if want[strings.ToUpper(e.ISIN)] {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func init() {
	snapshotCmd.Flags().String("bucket", "", "target bucket (default: adopt from first fetch, else today)")
	snapshotCmd.Flags().String("run-id", "", "run identifier (default: UTC timestamp)")
	snapshotCmd.Flags().Bool("force", false, "re-fetch entities already present in the bucket")
	snapshotCmd.Flags().Int("limit", 0, "process at most N entities (0 = all)")
	snapshotCmd.Flags().StringSlice("isin", nil, "restrict to specific ISINs (comma-separated or repeated)")
	snapshotCmd.Flags().String("cache-mode", "", "override cache mode: default, refresh, readonly, off")
	snapshotCmd.Flags().Bool("no-latest", false, "do not move the latest pointer")
	rootCmd.AddCommand(snapshotCmd)
}
