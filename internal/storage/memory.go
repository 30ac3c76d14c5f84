package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"watch-arb-alerts/internal/alerting"
	"watch-arb-alerts/internal/market"
)

// Memory is an in-process Repository used for dry runs, tests and when no
// database is configured. Contents are lost on exit.
type Memory struct {
	mu       sync.RWMutex
	listings map[string]market.Listing
	history  map[string][]market.PriceHistoryEntry
	alerts   []AlertRecord
	nextID   int64
	locks    map[int64]*sync.Mutex
	now      func() time.Time
}

// NewMemory constructs an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		listings: make(map[string]market.Listing),
		history:  make(map[string][]market.PriceHistoryEntry),
		locks:    make(map[int64]*sync.Mutex),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TryAdvisoryLock provides the same non-blocking semantics as the Postgres lock
// within one process.
func (m *Memory) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()

	if !lock.TryLock() {
		return nil, false, nil
	}
	return lock.Unlock, true, nil
}

// UpsertListing inserts or refreshes a listing, preserving FirstSeen.
func (m *Memory) UpsertListing(_ context.Context, l market.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.listings[l.SourceID]; ok {
		l.FirstSeen = existing.FirstSeen
	} else if l.FirstSeen.IsZero() {
		l.FirstSeen = m.now()
	}
	l.Active = true
	m.listings[l.SourceID] = l
	return nil
}

// AllLiveListings returns active listings ordered by key then source id.
func (m *Memory) AllLiveListings(_ context.Context) ([]market.Listing, error) {
	return m.filterListings(func(l market.Listing) bool { return l.Active }), nil
}

// ListingsByReference returns active listings for one reference.
func (m *Memory) ListingsByReference(_ context.Context, reference string) ([]market.Listing, error) {
	return m.filterListings(func(l market.Listing) bool {
		return l.Active && l.ReferenceNumber == reference
	}), nil
}

// SourcesWithoutHistory returns active listings that have no history entry.
func (m *Memory) SourcesWithoutHistory(_ context.Context) ([]market.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]market.Listing, 0)
	for id, l := range m.listings {
		if l.Active && len(m.history[id]) == 0 {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (m *Memory) filterListings(keep func(market.Listing) bool) []market.Listing {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]market.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ComparisonKey != out[j].ComparisonKey {
			return out[i].ComparisonKey < out[j].ComparisonKey
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

// KnownSourceIDs lists source ids first seen before the given time.
func (m *Memory) KnownSourceIDs(_ context.Context, before time.Time) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	known := make(map[string]struct{})
	for id, l := range m.listings {
		if l.FirstSeen.Before(before) {
			known[id] = struct{}{}
		}
	}
	return known, nil
}

// DeactivateStale marks active listings missing from seen as inactive.
func (m *Memory) DeactivateStale(_ context.Context, seen []string) (int64, error) {
	keep := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		keep[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, l := range m.listings {
		if _, ok := keep[id]; ok || !l.Active {
			continue
		}
		l.Active = false
		m.listings[id] = l
		n++
	}
	return n, nil
}

// LatestEntry returns the newest entry for a source id, or nil.
func (m *Memory) LatestEntry(_ context.Context, sourceID string) (*market.PriceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.history[sourceID]
	if len(series) == 0 {
		return nil, nil
	}
	latest := series[len(series)-1]
	return &latest, nil
}

// AppendHistory appends an entry, rejecting one older than the series head.
func (m *Memory) AppendHistory(_ context.Context, entry market.PriceHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.history[entry.SourceID]
	if n := len(series); n > 0 && series[n-1].ObservedAt.After(entry.ObservedAt) {
		return &market.ConsistencyError{
			SourceID:  entry.SourceID,
			Latest:    series[n-1].ObservedAt,
			Attempted: entry.ObservedAt,
		}
	}
	m.nextID++
	entry.ID = m.nextID
	m.history[entry.SourceID] = append(series, entry)
	return nil
}

// HistorySince lists entries observed strictly after since, oldest first.
func (m *Memory) HistorySince(_ context.Context, since time.Time) ([]market.PriceHistoryEntry, error) {
	return m.filterHistory(func(e market.PriceHistoryEntry) bool { return e.ObservedAt.After(since) }), nil
}

// HistoryForKey returns up to limit most recent entries for a key, oldest first.
func (m *Memory) HistoryForKey(_ context.Context, key string, limit int) ([]market.PriceHistoryEntry, error) {
	out := m.filterHistory(func(e market.PriceHistoryEntry) bool { return e.ComparisonKey == key })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Memory) filterHistory(keep func(market.PriceHistoryEntry) bool) []market.PriceHistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]market.PriceHistoryEntry, 0)
	for _, series := range m.history {
		for _, e := range series {
			if keep(e) {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.Before(out[j].ObservedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// InsertAlerts stores a batch of alerts.
func (m *Memory) InsertAlerts(_ context.Context, alerts []alerting.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range alerts {
		m.nextID++
		m.alerts = append(m.alerts, AlertRecord{
			ID:            m.nextID,
			RunID:         a.RunID,
			Kind:          a.Kind,
			ComparisonKey: a.ComparisonKey,
			SourceID:      a.SourceID,
			Magnitude:     a.Magnitude,
			Message:       a.Message,
			CreatedAt:     a.CreatedAt,
		})
	}
	return nil
}

// ListRecentAlerts returns recent alerts, newest first.
func (m *Memory) ListRecentAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	m.mu.RLock()
	out := append([]AlertRecord(nil), m.alerts...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteAlertsBefore drops alerts created before olderThan.
func (m *Memory) DeleteAlertsBefore(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if !a.CreatedAt.Before(olderThan) {
			kept = append(kept, a)
		}
	}
	m.alerts = kept
	return nil
}

// Stats counts stored rows.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{Listings: int64(len(m.listings)), Alerts: int64(len(m.alerts))}
	for _, l := range m.listings {
		if l.Active {
			st.ActiveListings++
		}
	}
	for _, series := range m.history {
		st.HistoryEntries += int64(len(series))
	}
	return st, nil
}

var _ Repository = (*Memory)(nil)
