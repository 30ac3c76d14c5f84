package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints table sizes and the most recent alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	repo, closeRepo, err := a.openRepo(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	stats, err := repo.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "listings: %d (%d active)  history entries: %d  alerts: %d\n",
		stats.Listings, stats.ActiveListings, stats.HistoryEntries, stats.Alerts)

	alerts, err := repo.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tKind\tKey\tSource\tMessage")
	for _, rec := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Kind,
			rec.ComparisonKey,
			rec.SourceID,
			sanitizeInline(rec.Message),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
