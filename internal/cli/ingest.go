package cli

import (
	"github.com/spf13/cobra"

	"watch-arb-alerts/internal/app"
)

var (
	ingestFiles   []string
	ingestAnalyze bool
	ingestDryRun  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest listing files once and record price history",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.IngestOptions{
			Files:   ingestFiles,
			Analyze: ingestAnalyze,
			DryRun:  ingestDryRun,
		}
		return getApp().Ingest(cmd.Context(), opts)
	},
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestFiles, "file", nil, "Listing file (.json, .jsonl, .csv); repeatable, defaults to ingest.paths")
	ingestCmd.Flags().BoolVar(&ingestAnalyze, "analyze", false, "Run an analysis after ingesting")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "With --analyze, do not persist or dispatch alerts")
}
