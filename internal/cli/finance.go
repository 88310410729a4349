package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stock-sync/internal/app"
	syncjob "stock-sync/internal/sync"
)

var financeDate string

var financeCmd = &cobra.Command{
	Use:   "finance",
	Short: "Sync financial statements for the current reporting period",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.RunJobOptions{}
		if financeDate != "" {
			date, err := time.Parse("2006-01-02", financeDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			opts.Date = date.UTC()
		}
		return getApp().RunJob(cmd.Context(), syncjob.JobFinance, opts)
	},
}

func init() {
	financeCmd.Flags().StringVar(&financeDate, "date", "", "Reference date for period resolution (YYYY-MM-DD, defaults to today)")
}
