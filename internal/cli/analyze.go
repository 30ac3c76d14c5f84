package cli

import (
	"github.com/spf13/cobra"

	"watch-arb-alerts/internal/app"
)

var analyzeDryRun bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detect arbitrage, large price changes and rare sightings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Analyze(cmd.Context(), app.AnalyzeOptions{DryRun: analyzeDryRun})
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false, "Print results without persisting or dispatching alerts")
}
