package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"watch-arb-alerts/internal/alerting"
	"watch-arb-alerts/internal/market"
)

// Events holds the findings of a history scan.
type Events struct {
	// LargeChanges sorted by absolute percent change descending.
	LargeChanges []market.PriceHistoryEntry
	// RareSightings sorted by observation time then source id.
	RareSightings []market.PriceHistoryEntry
}

// ScanEvents inspects entries observed within the lookback window ending at
// now. known lists source ids seen before the window; it may be nil.
func (e *Engine) ScanEvents(ctx context.Context, entries []market.PriceHistoryEntry, known map[string]struct{}, now time.Time) (Events, error) {
	since := now.Add(-e.cfg.LookbackWindow)
	var ev Events
	sighted := make(map[string]struct{})

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Events{}, err
		}
		if !entry.ObservedAt.After(since) || entry.ObservedAt.After(now) {
			continue
		}

		if entry.PriceChangePercent != nil && entry.PriceChangePercent.Abs().GreaterThanOrEqual(e.cfg.ChangeThresholdPct) {
			ev.LargeChanges = append(ev.LargeChanges, entry)
		}

		if !entry.IsFirstObservation() {
			continue
		}
		if _, seen := known[entry.SourceID]; seen {
			continue
		}
		if _, dup := sighted[entry.SourceID]; dup {
			continue
		}
		_, tag, ok := market.SplitComparisonKey(entry.ComparisonKey)
		if !ok {
			e.logger.Warn().Str("source_id", entry.SourceID).Str("comparison_key", entry.ComparisonKey).Msg("malformed comparison key in history")
			continue
		}
		if _, rare := e.rare[tag]; rare {
			sighted[entry.SourceID] = struct{}{}
			ev.RareSightings = append(ev.RareSightings, entry)
		}
	}

	sort.SliceStable(ev.LargeChanges, func(i, j int) bool {
		a, b := ev.LargeChanges[i], ev.LargeChanges[j]
		if c := a.PriceChangePercent.Abs().Cmp(b.PriceChangePercent.Abs()); c != 0 {
			return c > 0
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.ObservedAt.Before(b.ObservedAt)
	})
	sort.SliceStable(ev.RareSightings, func(i, j int) bool {
		a, b := ev.RareSightings[i], ev.RareSightings[j]
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.Before(b.ObservedAt)
		}
		return a.SourceID < b.SourceID
	})
	return ev, nil
}

// LargeChangeAlerts renders large changes in severity order.
func (ev Events) LargeChangeAlerts() []alerting.Alert {
	alerts := make([]alerting.Alert, 0, len(ev.LargeChanges))
	for _, entry := range ev.LargeChanges {
		alerts = append(alerts, alerting.Alert{
			Kind:          alerting.KindLargeChange,
			ComparisonKey: entry.ComparisonKey,
			SourceID:      entry.SourceID,
			Magnitude:     entry.PriceChangePercent.Abs(),
			Message: fmt.Sprintf("%s(%s): %s → %s (%s)",
				describe(entry.Brand, entry.Model),
				entry.ComparisonKey,
				alerting.FormatUSD(*entry.PreviousPrice),
				alerting.FormatUSD(entry.PriceUSD),
				alerting.FormatPercent(*entry.PriceChangePercent)),
		})
	}
	return alerts
}

// RareSightingAlerts renders rare sightings in their stable order.
func (ev Events) RareSightingAlerts() []alerting.Alert {
	alerts := make([]alerting.Alert, 0, len(ev.RareSightings))
	for _, entry := range ev.RareSightings {
		_, tag, _ := market.SplitComparisonKey(entry.ComparisonKey)
		alerts = append(alerts, alerting.Alert{
			Kind:          alerting.KindRareSighting,
			ComparisonKey: entry.ComparisonKey,
			SourceID:      entry.SourceID,
			Message: fmt.Sprintf("%s[%s] (Ref: %s) - %s",
				describe(entry.Brand, entry.Model),
				tag,
				entry.ReferenceNumber,
				alerting.FormatUSD(entry.PriceUSD)),
		})
	}
	return alerts
}
