package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"watch-arb-alerts/internal/market"
)

// Export renders the price history of one comparison key as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if _, _, ok := market.SplitComparisonKey(opts.Key); !ok {
		return errors.New("--key must look like <reference>-<tag>, e.g. 16610-standard")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	repo, closeRepo, err := a.openRepo(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	entries, err := repo.HistoryForKey(ctx, opts.Key, 0)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.Logger.Info().Str("comparison_key", opts.Key).Msg("no history found for export")
		return nil
	}

	downsampled := downsampleEntries(entries, opts.MaxPoints)
	a.Logger.Info().Int("total", len(entries)).Int("exported", len(downsampled)).Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, opts.Key, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleEntries(entries []market.PriceHistoryEntry, max int) []market.PriceHistoryEntry {
	if max <= 0 || len(entries) <= max {
		return entries
	}
	if max == 1 {
		return entries[len(entries)-1:]
	}

	result := make([]market.PriceHistoryEntry, 0, max)
	step := float64(len(entries)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(entries) {
			idx = len(entries) - 1
		}
		result = append(result, entries[idx])
	}
	return result
}

func writeHistoryCSV(path string, entries []market.PriceHistoryEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"observed_at", "source_id", "comparison_key", "price_usd", "previous_price", "price_change", "price_change_percent", "url"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		record := []string{
			e.ObservedAt.UTC().Format(time.RFC3339),
			e.SourceID,
			e.ComparisonKey,
			e.PriceUSD.String(),
			optionalDecimal(e.PreviousPrice),
			optionalDecimal(e.PriceChange),
			optionalDecimal(e.PriceChangePercent),
			e.URL,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeHistoryPNG draws one line per source id so relisted prices of the same
// variant can be compared over time.
func writeHistoryPNG(path, key string, entries []market.PriceHistoryEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	order := make([]string, 0)
	xs := make(map[string][]time.Time)
	ys := make(map[string][]float64)
	for _, e := range entries {
		if _, ok := xs[e.SourceID]; !ok {
			order = append(order, e.SourceID)
		}
		xs[e.SourceID] = append(xs[e.SourceID], e.ObservedAt)
		ys[e.SourceID] = append(ys[e.SourceID], e.PriceUSD.InexactFloat64())
	}

	series := make([]chart.Series, 0, len(order))
	for _, id := range order {
		x, y := xs[id], ys[id]
		if len(x) == 1 {
			// a single point does not draw as a line
			x = append(x, x[0].Add(time.Minute))
			y = append(y, y[0])
		}
		series = append(series, chart.TimeSeries{
			Name:    id,
			XValues: x,
			YValues: y,
		})
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.0f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("Price history %s", key),
		Width:  1280,
		Height: 720,
		Background: chart.Style{
			Padding: chart.Box{Top: 50},
		},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func optionalDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
