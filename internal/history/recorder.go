package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/market"
)

var hundred = decimal.NewFromInt(100)

// Store is the persistence contract the recorder needs. LatestEntry returns
// nil, nil for a source id that has never been recorded.
type Store interface {
	LatestEntry(ctx context.Context, sourceID string) (*market.PriceHistoryEntry, error)
	AppendHistory(ctx context.Context, entry market.PriceHistoryEntry) error
}

// OutcomeKind classifies what Record did.
type OutcomeKind int

const (
	// FirstObservation opened a new series for the source id.
	FirstObservation OutcomeKind = iota
	// PriceChanged appended a delta entry.
	PriceChanged
	// Unchanged skipped the append because the price did not move.
	Unchanged
)

func (k OutcomeKind) String() string {
	switch k {
	case FirstObservation:
		return "first"
	case PriceChanged:
		return "changed"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Outcome describes a single Record call.
type Outcome struct {
	Kind  OutcomeKind
	Entry *market.PriceHistoryEntry
}

// Recorder appends price deltas. It is the only writer of history entries.
type Recorder struct {
	store  Store
	locks  *KeyedMutex
	logger zerolog.Logger
	now    func() time.Time
}

// NewRecorder constructs a recorder over store.
func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		locks:  NewKeyedMutex(),
		logger: logger.With().Str("component", "history").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record compares the listing against the latest entry for its source id and
// appends a new entry when the price moved or the source is new.
func (r *Recorder) Record(ctx context.Context, l market.Listing) (Outcome, error) {
	if l.SourceID == "" {
		return Outcome{}, &market.ValidationError{Field: "source_id", Reason: "must not be empty"}
	}
	if l.ComparisonKey == "" {
		return Outcome{}, &market.ValidationError{Field: "comparison_key", Value: l.SourceID, Reason: "listing not classified"}
	}

	unlock := r.locks.Lock(l.SourceID)
	defer unlock()

	observedAt := l.ScrapedAt
	if observedAt.IsZero() {
		observedAt = r.now()
	}

	latest, err := r.store.LatestEntry(ctx, l.SourceID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load latest entry: %w", err)
	}

	if latest != nil && observedAt.Before(latest.ObservedAt) {
		return Outcome{}, &market.ConsistencyError{SourceID: l.SourceID, Latest: latest.ObservedAt, Attempted: observedAt}
	}

	var previous *decimal.Decimal
	kind := FirstObservation
	if latest != nil {
		if latest.PriceUSD.Equal(l.PriceUSD) {
			return Outcome{Kind: Unchanged}, nil
		}
		p := latest.PriceUSD
		previous = &p
		kind = PriceChanged
	}

	entry := NewEntry(l, previous, observedAt)
	if err := r.store.AppendHistory(ctx, entry); err != nil {
		return Outcome{}, fmt.Errorf("append history: %w", err)
	}

	if kind == PriceChanged {
		ev := r.logger.Info().
			Str("source_id", l.SourceID).
			Str("comparison_key", l.ComparisonKey).
			Str("previous", previous.StringFixed(0)).
			Str("price", l.PriceUSD.StringFixed(0))
		if entry.PriceChangePercent != nil {
			ev = ev.Str("change_pct", entry.PriceChangePercent.StringFixed(1))
		}
		ev.Msg("price change recorded")
	} else {
		r.logger.Debug().
			Str("source_id", l.SourceID).
			Str("comparison_key", l.ComparisonKey).
			Str("price", l.PriceUSD.StringFixed(0)).
			Msg("initial price recorded")
	}

	return Outcome{Kind: kind, Entry: &entry}, nil
}

// NewEntry builds a history entry. previous is nil for a first observation; a
// zero previous price leaves the percent change unset.
func NewEntry(l market.Listing, previous *decimal.Decimal, observedAt time.Time) market.PriceHistoryEntry {
	entry := market.PriceHistoryEntry{
		SourceID:        l.SourceID,
		ComparisonKey:   l.ComparisonKey,
		Brand:           l.Brand,
		Model:           l.Model,
		ReferenceNumber: l.ReferenceNumber,
		URL:             l.URL,
		PriceUSD:        l.PriceUSD,
		ObservedAt:      observedAt,
	}
	if previous == nil {
		return entry
	}

	prev := *previous
	change := l.PriceUSD.Sub(prev)
	entry.PreviousPrice = &prev
	entry.PriceChange = &change
	if !prev.IsZero() {
		pct := change.Div(prev).Mul(hundred)
		entry.PriceChangePercent = &pct
	}
	return entry
}
