package cli

import (
	"github.com/spf13/cobra"

	"watch-arb-alerts/internal/app"
)

var backfillDryRun bool

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Record an initial price for listings without history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Backfill(cmd.Context(), app.BackfillOptions{DryRun: backfillDryRun})
	},
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Report listings without writing history")
}
