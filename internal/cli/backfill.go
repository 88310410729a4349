package cli

import (
	"github.com/spf13/cobra"

	"stock-sync/internal/app"
	syncjob "stock-sync/internal/sync"
)

var backfillOnce bool

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill full daily bar history from the instrument catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.RunJobOptions{SinglePage: backfillOnce}
		return getApp().RunJob(cmd.Context(), syncjob.JobDailyBackfill, opts)
	},
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillOnce, "once", false, "Process a single catalogue page and exit")
}
