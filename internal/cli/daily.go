package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stock-sync/internal/app"
	syncjob "stock-sync/internal/sync"
)

var dailyDate string

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Sync all daily bars for one trade date",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.RunJobOptions{}
		if dailyDate != "" {
			date, err := time.Parse("2006-01-02", dailyDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			opts.Date = date.UTC()
		}
		return getApp().RunJob(cmd.Context(), syncjob.JobDailyQuotes, opts)
	},
}

func init() {
	dailyCmd.Flags().StringVar(&dailyDate, "date", "", "Trade date to sync (YYYY-MM-DD, defaults to today)")
}
