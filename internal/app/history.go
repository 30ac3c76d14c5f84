package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"watch-arb-alerts/internal/alerting"
	"watch-arb-alerts/internal/history"
	"watch-arb-alerts/internal/market"
)

// History prints the price history and trend of one comparison key.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	if _, _, ok := market.SplitComparisonKey(opts.Key); !ok {
		return errors.New("--key must look like <reference>-<tag>, e.g. 16610-standard")
	}

	repo, closeRepo, err := a.openRepo(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	entries, err := repo.HistoryForKey(ctx, opts.Key, opts.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(a.Out, "no history for %s\n", opts.Key)
		return nil
	}

	trend := history.Summarize(opts.Key, entries)
	fmt.Fprintf(a.Out, "%s: %d points, avg %s, range %s - %s, trend %s (%s)\n",
		trend.ComparisonKey, trend.DataPoints,
		alerting.FormatUSD(trend.AvgPrice),
		alerting.FormatUSD(trend.MinPrice), alerting.FormatUSD(trend.MaxPrice),
		trend.Direction, alerting.FormatPercent(trend.TrendPercent))

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSource\tPrice\tChange\tChange%")
	for _, e := range entries {
		change, pct := "-", "-"
		if e.PriceChange != nil {
			change = alerting.FormatUSD(*e.PriceChange)
		}
		if e.PriceChangePercent != nil {
			pct = alerting.FormatPercent(*e.PriceChangePercent)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			e.ObservedAt.UTC().Format(time.RFC3339),
			e.SourceID,
			alerting.FormatUSD(e.PriceUSD),
			change,
			pct,
		)
	}
	return writer.Flush()
}
