package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/history"
	"watch-arb-alerts/internal/market"
)

func change(sourceID, key string, from, to int64, at time.Time) market.PriceHistoryEntry {
	prev := decimal.NewFromInt(from)
	return history.NewEntry(market.Listing{
		SourceID:      sourceID,
		ComparisonKey: key,
		PriceUSD:      decimal.NewFromInt(to),
	}, &prev, at)
}

func first(sourceID, key string, price int64, at time.Time) market.PriceHistoryEntry {
	return history.NewEntry(market.Listing{
		SourceID:      sourceID,
		ComparisonKey: key,
		PriceUSD:      decimal.NewFromInt(price),
	}, nil, at)
}

func TestScanEventsLargeChanges(t *testing.T) {
	now := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	entries := []market.PriceHistoryEntry{
		change("boundary", "16610-standard", 10000, 11500, now.Add(-time.Hour)),
		change("small", "16610-standard", 10000, 11000, now.Add(-time.Hour)),
		change("drop", "16710-standard", 10000, 7000, now.Add(-2*time.Hour)),
		change("old", "16710-standard", 10000, 20000, now.Add(-25*time.Hour)),
		first("fresh", "16610-standard", 50000, now.Add(-time.Hour)),
		change("zero", "16610-standard", 0, 5000, now.Add(-time.Hour)),
	}

	ev, err := newEngine().ScanEvents(context.Background(), entries, nil, now)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(ev.LargeChanges) != 2 {
		t.Fatalf("expected 2 large changes, got %d", len(ev.LargeChanges))
	}
	if ev.LargeChanges[0].SourceID != "drop" || ev.LargeChanges[1].SourceID != "boundary" {
		t.Fatalf("large changes should be sorted by absolute percent: %s, %s", ev.LargeChanges[0].SourceID, ev.LargeChanges[1].SourceID)
	}
	for _, e := range ev.LargeChanges {
		if e.IsFirstObservation() {
			t.Fatalf("first observation %s must never be a large change", e.SourceID)
		}
	}
}

func TestScanEventsRareSightings(t *testing.T) {
	now := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	entries := []market.PriceHistoryEntry{
		first("t2", "1680-tiffany", 45000, now.Add(-time.Hour)),
		first("t1", "1680-tiffany", 44000, now.Add(-time.Hour)),
		first("trop", "1675-tropical", 30000, now.Add(-3*time.Hour)),
		first("gold", "1680-gold", 30000, now.Add(-time.Hour)),
		first("known", "5513-comex", 30000, now.Add(-time.Hour)),
		first("stale", "1680-spider", 30000, now.Add(-48*time.Hour)),
		change("moved", "1680-tiffany", 40000, 41000, now.Add(-time.Hour)),
		first("weird", "nokey", 100, now.Add(-time.Hour)),
	}
	known := map[string]struct{}{"known": {}}

	ev, err := newEngine().ScanEvents(context.Background(), entries, known, now)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var got []string
	for _, e := range ev.RareSightings {
		got = append(got, e.SourceID)
	}
	want := []string{"trop", "t1", "t2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	alerts := ev.RareSightingAlerts()
	if alerts[0].ComparisonKey != "1675-tropical" {
		t.Fatalf("unexpected alert %+v", alerts[0])
	}
}

func TestScanEventsCustomThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChangeThresholdPct = decimal.NewFromInt(5)
	cfg.LookbackWindow = time.Hour
	e := New(cfg, zerolog.Nop())

	now := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	entries := []market.PriceHistoryEntry{
		change("a", "16610-standard", 10000, 10600, now.Add(-30*time.Minute)),
		change("b", "16610-standard", 10000, 10600, now.Add(-2*time.Hour)),
	}
	ev, err := e.ScanEvents(context.Background(), entries, nil, now)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(ev.LargeChanges) != 1 || ev.LargeChanges[0].SourceID != "a" {
		t.Fatalf("expected only in-window change, got %+v", ev.LargeChanges)
	}
}
