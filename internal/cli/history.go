package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"watch-arb-alerts/internal/app"
)

var (
	historyKey   string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show price history and trend for one comparison key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyKey == "" {
			return fmt.Errorf("--key must be provided")
		}
		return getApp().History(cmd.Context(), app.HistoryOptions{Key: historyKey, Limit: historyLimit})
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyKey, "key", "", "Comparison key, e.g. 16610-standard")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Most recent entries to display (0 for all)")
}
