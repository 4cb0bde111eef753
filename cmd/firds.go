package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/refsnap/internal/index"
)

var firdsCmd = &cobra.Command{
	Use:   "firds",
	Short: "Query the FCA FIRDS file registry",
	Long:  "Commands for discovering published FIRDS instrument reference files.",
}

// -- firds files --

var firdsFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "List FIRDS files by type and publication date range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fileType, _ := cmd.Flags().GetString("type")
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		wildcard, _ := cmd.Flags().GetString("name")

		c := index.NewFirdsClient(initFirdsFetcher(), cfg.Firds.APIURL)
		files, err := c.ListFiles(cmd.Context(), index.FirdsQuery{
			FileType:         fileType,
			StartDate:        start,
			EndDate:          end,
			FileNameWildcard: wildcard,
			Size:             cfg.Firds.PageSize,
		})
		if err != nil {
			return eris.Wrap(err, "firds files")
		}

		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "No files found.")
			return nil
		}
		formatFirdsFiles(files)
		return nil
	},
}

// -- firds latest --

var firdsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "List the latest full ETF instrument files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := index.NewFirdsClient(initFirdsFetcher(), cfg.Firds.APIURL)
		files, err := c.LatestFullETFFiles(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "firds latest")
		}

		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "No files found.")
			return nil
		}
		formatFirdsFiles(files)
		return nil
	},
}

func formatFirdsFiles(files []index.FirdsFile) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PUBLISHED\tTYPE\tFILE\tDOWNLOAD")
	for _, f := range files {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.PublicationDate, f.FileType, f.FileName, f.DownloadLink)
	}
	_ = w.Flush()
}

func init() {
	firdsFilesCmd.Flags().String("type", "FULINS", "file type: FULINS, DLTINS, FULCAN")
	firdsFilesCmd.Flags().String("start", "", "start of publication date range (YYYY-MM-DD)")
	firdsFilesCmd.Flags().String("end", "", "end of publication date range (YYYY-MM-DD)")
	firdsFilesCmd.Flags().String("name", "", "filename wildcard, e.g. FULINS_C_*")
	_ = firdsFilesCmd.MarkFlagRequired("start")
	_ = firdsFilesCmd.MarkFlagRequired("end")

	firdsCmd.AddCommand(firdsFilesCmd)
	firdsCmd.AddCommand(firdsLatestCmd)
	rootCmd.AddCommand(firdsCmd)
}
