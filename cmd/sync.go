package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the local table with the Google Sheets mirror",
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the local table with the remote sheet",
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
		m := initMirror()
		if m == nil {
			return eris.New("sheets mirror is not configured (INTAKE_SHEETS_TOKEN, INTAKE_SHEETS_SPREADSHEET_ID)")
		}

		snap, err := m.Pull(ctx)
		if err != nil {
			return eris.Wrap(err, "pull remote sheet")
		}
		if err := st.Replace(ctx, snap); err != nil {
			return eris.Wrap(err, "replace local table")
		}
		zap.L().Info("pulled", zap.Int("rows", len(snap.Rows)), zap.Int("columns", len(snap.Columns)))
		return nil
	},
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Replace the remote sheet with the local table",
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
		m := initMirror()
		if m == nil {
			return eris.New("sheets mirror is not configured (INTAKE_SHEETS_TOKEN, INTAKE_SHEETS_SPREADSHEET_ID)")
		}

		snap, err := st.Snapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "read table")
		}
		if err := m.Push(ctx, snap); err != nil {
			return eris.Wrap(err, "push to remote sheet")
		}
		zap.L().Info("pushed", zap.Int("rows", len(snap.Rows)), zap.Int("columns", len(snap.Columns)))
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncPullCmd, syncPushCmd)
	rootCmd.AddCommand(syncCmd)
}
