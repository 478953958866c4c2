package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/talent-ops/intake-cli/internal/history"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect extraction run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extraction runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initHistory(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recordID, _ := cmd.Flags().GetInt("record")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListRuns(ctx, history.Filter{RecordID: recordID, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tRECORD\tUPDATE\tTOKENS\tCOST_USD")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\t%t\t%d\t%.4f\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"),
				e.RecordID,
				e.IsUpdate,
				e.PromptTokens+e.CompletionTokens,
				e.CostUSD,
			)
		}
		return w.Flush()
	},
}

func init() {
	runsListCmd.Flags().Int("record", 0, "filter by record id")
	runsListCmd.Flags().Int("limit", 50, "maximum rows")
	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd)
}
