package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/refsnap/internal/runlog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect snapshot run history",
	Long:  "Commands for listing and viewing snapshot run ledgers.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshot runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		root := profilesRoot()

		ids, err := runlog.ListRuns(root)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(ids) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		summaries := make([]runlog.Summary, 0, len(ids))
		for _, id := range ids {
			s, err := runlog.Summarize(root, id)
			if err != nil {
				return eris.Wrapf(err, "runs list: %s", id)
			}
			summaries = append(summaries, s)
		}

		formatRunsList(os.Stdout, summaries)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full ledger of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		lines, err := runlog.ReadProgress(profilesRoot(), args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TIME\tISIN\tSTATUS\tBUCKET\tDETAIL")
		for _, ln := range lines {
			if status != "" && string(ln.Status) != status {
				continue
			}
			detail := ln.Reason
			if ln.Error != "" {
				detail = ln.Error
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ln.Time, ln.ISIN, ln.Status, ln.Bucket, detail)
		}
		_ = w.Flush()
		return nil
	},
}

// formatRunsList writes a tabular list of run summaries to w.
func formatRunsList(out io.Writer, summaries []runlog.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTARTED\tOK\tSKIP\tERR\tTOTAL")
	for _, s := range summaries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n", s.RunID, s.Started, s.OK, s.Skip, s.Err, s.Total())
	}
	_ = w.Flush()
}

func init() {
	runsShowCmd.Flags().String("status", "", "filter by outcome (ok, skip, err)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
