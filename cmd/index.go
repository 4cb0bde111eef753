package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/refsnap/internal/index"
	"github.com/sells-group/refsnap/internal/snapshot"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the ETF profile index",
	Long:  "Commands for building and inspecting the profile index derived from the justETF sitemap.",
}

// -- index build --

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the profile index from the sitemap",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "index.build"))

		cacheMode, _ := cmd.Flags().GetString("cache-mode")
		bucket, _ := cmd.Flags().GetString("bucket")

		f, closeCache, err := initFetcher(ctx, cacheMode)
		if err != nil {
			return err
		}
		if closeCache != nil {
			defer closeCache() //nolint:errcheck
		}

		entries, prov, err := index.BuildProfileIndex(ctx, f, cfg.JustETF.SitemapURL)
		if err != nil {
			return eris.Wrap(err, "index build")
		}

		store := indexStore()
		opts := snapshot.WriteOpts{Provenance: prov, Bucket: bucket, WriteLatest: true}
		if bucket == "" && (prov == nil || prov.Bucket == "") {
			opts.Bucket = snapshot.Today()
		}
		path, err := store.SaveIndex(entries, opts)
		if err != nil {
			return eris.Wrap(err, "index build")
		}

		log.Info("profile index persisted", zap.Int("entries", len(entries)), zap.String("path", path))
		fmt.Printf("Indexed %d ETFs: %s\n", len(entries), path)
		return nil
	},
}

// -- index show --

var indexShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the persisted profile index",
	RunE: func(cmd *cobra.Command, _ []string) error {
		bucket, _ := cmd.Flags().GetString("bucket")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := indexStore().LoadIndex(bucket)
		if err != nil {
			return eris.Wrap(err, "index show")
		}

		shown := entries
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ISIN\tLASTMOD\tURL")
		for _, e := range shown {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.ISIN, e.LastMod, e.URL)
		}
		_ = w.Flush()

		if len(shown) < len(entries) {
			fmt.Printf("... and %d more (total %d)\n", len(entries)-len(shown), len(entries))
		}
		return nil
	},
}

func init() {
	indexBuildCmd.Flags().String("bucket", "", "explicit bucket for the index write")
	indexBuildCmd.Flags().String("cache-mode", "", "override cache mode: default, refresh, readonly, off")

	indexShowCmd.Flags().String("bucket", "", "read from a specific bucket (default: latest)")
	indexShowCmd.Flags().Int("limit", 25, "max entries to display (0 = all)")

	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexShowCmd)
	rootCmd.AddCommand(indexCmd)
}
