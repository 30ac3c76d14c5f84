package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"watch-arb-alerts/internal/app"
)

var (
	exportKey       string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the price history of a comparison key as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportKey == "" {
			return fmt.Errorf("--key must be provided")
		}
		opts := app.ExportOptions{
			Key:       exportKey,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportKey, "key", "", "Comparison key, e.g. 16610-standard")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
