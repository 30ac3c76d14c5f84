package app

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"watch-arb-alerts/internal/alerting"
)

// Deals lists listings priced well under their group average and, when a
// reference is given, a cross-variant summary for it.
func (a *App) Deals(ctx context.Context, opts DealsOptions) error {
	repo, closeRepo, err := a.openRepo(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	listings, err := repo.AllLiveListings(ctx)
	if err != nil {
		return err
	}
	engine := a.newEngine()

	deals, err := engine.BestDeals(ctx, listings)
	if err != nil {
		return err
	}
	if opts.Limit > 0 && len(deals) > opts.Limit {
		deals = deals[:opts.Limit]
	}

	if len(deals) == 0 {
		fmt.Fprintln(a.Out, "no deals found")
	} else {
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Key\tSource\tPrice\tGroup Avg\tDiscount\tDiscount%\tComparables\tURL")
		for _, d := range deals {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				d.Listing.ComparisonKey,
				d.Listing.SourceID,
				alerting.FormatUSD(d.Listing.PriceUSD),
				alerting.FormatUSD(d.GroupAvg),
				alerting.FormatUSD(d.DiscountDollars),
				formatDecimal(d.DiscountPercent, 1),
				d.Comparables,
				d.Listing.URL,
			)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	if opts.Reference == "" {
		return nil
	}

	byRef, err := repo.ListingsByReference(ctx, opts.Reference)
	if err != nil {
		return err
	}
	summary, ok := engine.ReferenceStats(byRef, opts.Reference)
	if !ok {
		fmt.Fprintf(a.Out, "no live listings for reference %s\n", opts.Reference)
		return nil
	}

	fmt.Fprintf(a.Out, "\nreference %s: %d listings, avg %s, median %s, range %s - %s\n",
		summary.Reference, summary.Count,
		alerting.FormatUSD(summary.AvgPrice), alerting.FormatUSD(summary.MedianPrice),
		alerting.FormatUSD(summary.MinPrice), alerting.FormatUSD(summary.MaxPrice))

	keys := make([]string, 0, len(summary.Variants))
	for k := range summary.Variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(a.Out, "  %s: %d\n", k, summary.Variants[k])
	}
	return nil
}
