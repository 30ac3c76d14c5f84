package cli

import (
	"github.com/spf13/cobra"

	"watch-arb-alerts/internal/app"
)

var (
	classifyText      string
	classifyReference string
	classifyRules     bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Show the variation tag and comparison key for a listing text",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ClassifyOptions{
			Text:      classifyText,
			Reference: classifyReference,
			ListRules: classifyRules,
		}
		return getApp().Classify(opts)
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyText, "text", "", "Listing text to classify")
	classifyCmd.Flags().StringVar(&classifyReference, "reference", "", "Reference number used to build the comparison key")
	classifyCmd.Flags().BoolVar(&classifyRules, "rules", false, "Print the active rule table and overlapping triggers")
}
