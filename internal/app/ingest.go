package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"watch-arb-alerts/internal/alerting"
	"watch-arb-alerts/internal/analytics"
)

// Ingest loads listing files once, classifies them and records price history.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	paths := opts.Files
	if len(paths) == 0 {
		paths = a.Config.Ingest.Paths
	}
	if len(paths) == 0 {
		return errors.New("no listing files given; pass --file or set ingest.paths")
	}

	sources, err := a.sourcesFor(paths)
	if err != nil {
		return err
	}

	repo, closeRepo, err := a.openRepo(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	svc, err := a.newService(repo, nil)
	if err != nil {
		return err
	}

	stats, err := svc.Ingest(ctx, sources)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "ingested %d records: %d new, %d changed, %d unchanged, %d skipped, %d deactivated\n",
		stats.Records, stats.FirstObservations, stats.PriceChanges, stats.Unchanged, stats.Skipped, stats.Deactivated)

	if !opts.Analyze {
		return nil
	}
	report, err := svc.Analyze(ctx, time.Now().UTC(), opts.DryRun)
	if err != nil {
		return err
	}
	return printReport(a.Out, report)
}

// Analyze runs arbitrage detection and the event scan over stored data.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	repo, closeRepo, err := a.openRepo(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	svc, err := a.newService(repo, nil)
	if err != nil {
		return err
	}

	report, err := svc.Analyze(ctx, time.Now().UTC(), opts.DryRun)
	if err != nil {
		return err
	}
	return printReport(a.Out, report)
}

// Backfill records an initial price for listings that have no history yet.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	repo, closeRepo, err := a.openRepo(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	svc, err := a.newService(repo, nil)
	if err != nil {
		return err
	}

	n, err := svc.Backfill(ctx, opts.DryRun)
	if err != nil {
		return err
	}
	if opts.DryRun {
		fmt.Fprintf(a.Out, "%d listings would receive an initial history entry\n", n)
		return nil
	}
	fmt.Fprintf(a.Out, "recorded initial history for %d listings\n", n)
	return nil
}

func printReport(w io.Writer, report analytics.Report) error {
	fmt.Fprintf(w, "run %s: %d arbitrage candidates, %d large changes, %d rare sightings\n",
		report.RunID, len(report.Candidates), len(report.Events.LargeChanges), len(report.Events.RareSightings))

	if len(report.Candidates) > 0 {
		writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Key\tListings\tMin\tMax\tSpread\tProfit%\tBuy\tSell")
		for _, c := range report.Candidates {
			g := c.Group
			fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				c.Key(),
				g.Count,
				alerting.FormatUSD(g.MinPrice),
				alerting.FormatUSD(g.MaxPrice),
				alerting.FormatUSD(c.Spread),
				formatDecimal(c.ProfitPercent, 1),
				g.Cheapest.SourceID,
				g.MostExpensive.SourceID,
			)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	if len(report.Alerts) > 0 {
		_, err := io.WriteString(w, alerting.Render(report.GeneratedAt, report.Alerts))
		return err
	}
	return nil
}
