package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talent-ops/intake-cli/internal/export"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect and export the candidate table",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the candidate table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		dict, err := initFields()
		if err != nil {
			return err
		}
		st, err := initStore(dict)
		if err != nil {
			return err
		}

		snap, err := st.Snapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "read table")
		}
		if len(snap.Rows) == 0 {
			fmt.Fprintln(os.Stderr, "No records.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for i, col := range snap.Header() {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, col)
		}
		fmt.Fprintln(w)
		for _, rec := range snap.Rows {
			fmt.Fprintf(w, "%d\t%s", rec.ID, rec.Timestamp)
			for _, col := range snap.Columns {
				fmt.Fprintf(w, "\t%s", rec.Get(col))
			}
			fmt.Fprintln(w)
		}
		return w.Flush()
	},
}

var exportOut string

var recordsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the candidate table to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		dict, err := initFields()
		if err != nil {
			return err
		}
		st, err := initStore(dict)
		if err != nil {
			return err
		}

		snap, err := st.Snapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "read table")
		}

		if err := export.WriteXLSX(exportOut, snap, ""); err != nil {
			return err
		}
		zap.L().Info("exported", zap.String("path", exportOut), zap.Int("rows", len(snap.Rows)))
		return nil
	},
}

func init() {
	recordsExportCmd.Flags().StringVar(&exportOut, "out", "candidates.xlsx", "output file path")
	recordsCmd.AddCommand(recordsListCmd, recordsExportCmd)
	rootCmd.AddCommand(recordsCmd)
}
