package cli

import (
	"github.com/spf13/cobra"

	"watch-arb-alerts/internal/app"
)

var (
	dealsLimit     int
	dealsReference string
)

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "List listings priced well below their variant average",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Deals(cmd.Context(), app.DealsOptions{Limit: dealsLimit, Reference: dealsReference})
	},
}

func init() {
	dealsCmd.Flags().IntVar(&dealsLimit, "limit", 20, "Maximum deals to display (0 for all)")
	dealsCmd.Flags().StringVar(&dealsReference, "reference", "", "Also summarise every variant of this reference number")
}
