package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/market"
)

type fakeStore struct {
	mu      sync.Mutex
	entries map[string][]market.PriceHistoryEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string][]market.PriceHistoryEntry)}
}

func (f *fakeStore) LatestEntry(ctx context.Context, sourceID string) (*market.PriceHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	series := f.entries[sourceID]
	if len(series) == 0 {
		return nil, nil
	}
	latest := series[len(series)-1]
	return &latest, nil
}

func (f *fakeStore) AppendHistory(ctx context.Context, entry market.PriceHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.SourceID] = append(f.entries[entry.SourceID], entry)
	return nil
}

func listing(sourceID string, price int64, at time.Time) market.Listing {
	return market.Listing{
		SourceID:        sourceID,
		ReferenceNumber: "16610",
		ComparisonKey:   "16610-standard",
		PriceUSD:        decimal.NewFromInt(price),
		ScrapedAt:       at,
	}
}

func TestRecordFirstObservation(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(store, zerolog.Nop())
	at := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	out, err := rec.Record(context.Background(), listing("a", 12000, at))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Kind != FirstObservation {
		t.Fatalf("expected first observation, got %s", out.Kind)
	}
	e := out.Entry
	if e.PreviousPrice != nil || e.PriceChange != nil || e.PriceChangePercent != nil {
		t.Fatalf("first observation must leave delta fields nil: %+v", e)
	}
	if !e.IsFirstObservation() {
		t.Fatal("IsFirstObservation should be true")
	}
}

func TestRecordPercentChange(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(store, zerolog.Nop())
	at := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	if _, err := rec.Record(context.Background(), listing("a", 10000, at)); err != nil {
		t.Fatalf("record first: %v", err)
	}
	out, err := rec.Record(context.Background(), listing("a", 11500, at.Add(12*time.Hour)))
	if err != nil {
		t.Fatalf("record change: %v", err)
	}
	if out.Kind != PriceChanged {
		t.Fatalf("expected price change, got %s", out.Kind)
	}
	e := out.Entry
	if !e.PreviousPrice.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("previous price should be 10000, got %s", e.PreviousPrice)
	}
	if !e.PriceChange.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("change should be 1500, got %s", e.PriceChange)
	}
	if !e.PriceChangePercent.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("percent should be 15, got %s", e.PriceChangePercent)
	}
}

func TestRecordUnchangedPriceIsNoop(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(store, zerolog.Nop())
	at := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	_, _ = rec.Record(context.Background(), listing("a", 9000, at))
	out, err := rec.Record(context.Background(), listing("a", 9000, at.Add(time.Hour)))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Kind != Unchanged || out.Entry != nil {
		t.Fatalf("expected unchanged no-op, got %+v", out)
	}
	if len(store.entries["a"]) != 1 {
		t.Fatalf("unchanged price must not append, have %d entries", len(store.entries["a"]))
	}
}

func TestRecordZeroPreviousPrice(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(store, zerolog.Nop())
	at := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	_, _ = rec.Record(context.Background(), listing("a", 0, at))
	out, err := rec.Record(context.Background(), listing("a", 5000, at.Add(time.Hour)))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Entry.PriceChange == nil || !out.Entry.PriceChange.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("change should be recorded, got %v", out.Entry.PriceChange)
	}
	if out.Entry.PriceChangePercent != nil {
		t.Fatalf("percent must be unavailable for zero previous price, got %s", out.Entry.PriceChangePercent)
	}
}

func TestRecordRejectsOutOfOrderObservation(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(store, zerolog.Nop())
	at := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	_, _ = rec.Record(context.Background(), listing("a", 9000, at))
	_, err := rec.Record(context.Background(), listing("a", 9500, at.Add(-time.Minute)))
	if !errors.Is(err, market.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if len(store.entries["a"]) != 1 {
		t.Fatal("rejected observation must not be appended")
	}
}

func TestRecordChainsPreviousPrice(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(store, zerolog.Nop())
	at := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	for i, price := range []int64{10000, 9500, 9800, 12000} {
		if _, err := rec.Record(context.Background(), listing("a", price, at.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	series := store.entries["a"]
	for i := 1; i < len(series); i++ {
		if !series[i].PreviousPrice.Equal(series[i-1].PriceUSD) {
			t.Fatalf("entry %d previous %s != entry %d price %s", i, series[i].PreviousPrice, i-1, series[i-1].PriceUSD)
		}
		if series[i].ObservedAt.Before(series[i-1].ObservedAt) {
			t.Fatalf("entries out of order at %d", i)
		}
	}
}

func TestRecordValidatesInput(t *testing.T) {
	rec := NewRecorder(newFakeStore(), zerolog.Nop())
	if _, err := rec.Record(context.Background(), market.Listing{ComparisonKey: "x-standard"}); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("missing source id should fail validation, got %v", err)
	}
	if _, err := rec.Record(context.Background(), market.Listing{SourceID: "a"}); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("missing key should fail validation, got %v", err)
	}
}

func TestRecordSerialisesSameSource(t *testing.T) {
	store := newFakeStore()
	rec := NewRecorder(store, zerolog.Nop())
	base := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = rec.Record(context.Background(), listing("shared", int64(10000+i), base))
		}(i)
	}
	wg.Wait()

	series := store.entries["shared"]
	if len(series) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(series))
	}
	for i := 1; i < len(series); i++ {
		if !series[i].PreviousPrice.Equal(series[i-1].PriceUSD) {
			t.Fatalf("racing writers broke the chain at %d", i)
		}
	}
	if rec.locks.Len() != 0 {
		t.Fatalf("lock table should be empty, has %d", rec.locks.Len())
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var entries []market.PriceHistoryEntry
	for i, p := range []int64{100, 100, 110, 110} {
		entries = append(entries, market.PriceHistoryEntry{PriceUSD: decimal.NewFromInt(p), ObservedAt: base.Add(time.Duration(i) * time.Hour)})
	}

	trend := Summarize("k", entries)
	if trend.DataPoints != 4 {
		t.Fatalf("expected 4 points, got %d", trend.DataPoints)
	}
	if !trend.TrendPercent.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected +10%%, got %s", trend.TrendPercent)
	}
	if trend.Direction != "up" {
		t.Fatalf("expected up, got %s", trend.Direction)
	}
	if !trend.MinPrice.Equal(decimal.NewFromInt(100)) || !trend.MaxPrice.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("unexpected range %s-%s", trend.MinPrice, trend.MaxPrice)
	}

	short := Summarize("k", entries[:3])
	if !short.TrendPercent.IsZero() || short.Direction != "stable" {
		t.Fatalf("fewer than four points must be stable, got %s %s", short.TrendPercent, short.Direction)
	}

	empty := Summarize("k", nil)
	if empty.DataPoints != 0 || empty.Direction != "stable" {
		t.Fatalf("unexpected empty trend %+v", empty)
	}
}
