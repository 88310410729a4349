package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stock-sync/internal/app"
)

var planDate string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the finance work set without syncing",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.PlanOptions{}
		if planDate != "" {
			date, err := time.Parse("2006-01-02", planDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			opts.Date = date.UTC()
		}
		return getApp().Plan(cmd.Context(), opts)
	},
}

func init() {
	planCmd.Flags().StringVar(&planDate, "date", "", "Reference date for period resolution (YYYY-MM-DD, defaults to today)")
}
