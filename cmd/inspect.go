package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/refsnap/internal/artifact"
	"github.com/sells-group/refsnap/internal/bucket"
	"github.com/sells-group/refsnap/internal/snapshot"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [bucket]",
	Short: "Inspect a snapshot bucket",
	Long: `Inspect summarizes the contents of a profiles bucket: how many
records it holds, whether the aggregate is present, and whether the
profile index root carries the same bucket. With --isin it prints one
full profile record instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := profilesStore()

		bkt := ""
		if len(args) > 0 {
			bkt = args[0]
		}
		if bkt == "" {
			bkt = store.LatestBucket()
		}
		if bkt == "" {
			return eris.Wrapf(artifact.ErrNotFound, "inspect: no buckets under %s", store.Root())
		}

		isin, _ := cmd.Flags().GetString("isin")
		if isin != "" {
			rec, err := store.LoadRecord(isin, bkt)
			if err != nil {
				return eris.Wrap(err, "inspect")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}

		return summarizeBucket(store, indexStore(), bkt)
	},
}

func summarizeBucket(profiles, idx *snapshot.Store, bkt string) error {
	dir := profiles.BucketDir(bkt)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return eris.Wrapf(artifact.ErrNotFound, "inspect: bucket %s", bkt)
		}
		return eris.Wrapf(err, "inspect: read %s", dir)
	}

	records := 0
	for _, e := range entries {
		if e.IsDir() && profiles.RecordExists(bkt, e.Name()) {
			records++
		}
	}

	latest := bucket.ResolveLatestBucket(profiles.Root())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Bucket:\t%s\n", bkt)
	_, _ = fmt.Fprintf(w, "Latest:\t%v\n", latest == bkt)
	_, _ = fmt.Fprintf(w, "Profiles:\t%d\n", records)
	_, _ = fmt.Fprintf(w, "Aggregate:\t%s\n", presence(filepath.Join(dir, snapshot.AggregateFile)))
	_, _ = fmt.Fprintf(w, "Index:\t%s\n", presence(filepath.Join(idx.BucketDir(bkt), snapshot.IndexFile)))
	return w.Flush()
}

func presence(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "present"
	}
	return "missing"
}

func init() {
	inspectCmd.Flags().String("isin", "", "print the full record for one ISIN")
	rootCmd.AddCommand(inspectCmd)
}
