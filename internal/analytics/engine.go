package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/alerting"
	"watch-arb-alerts/internal/market"
)

var hundred = decimal.NewFromInt(100)

// Config carries every threshold the engine uses. It is passed explicitly so
// each caller, and each test, can choose its own values.
type Config struct {
	ArbitrageThreshold decimal.Decimal
	ChangeThresholdPct decimal.Decimal
	RareTags           []string
	LookbackWindow     time.Duration
	// MaxAlertsPerKind caps rendered alerts per kind; zero means no cap.
	MaxAlertsPerKind int

	DealMinListings int
	DealMinRange    decimal.Decimal
	DealDiscountPct decimal.Decimal
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		ArbitrageThreshold: decimal.NewFromInt(1000),
		ChangeThresholdPct: decimal.NewFromInt(15),
		RareTags:           []string{"tiffany", "tropical", "spider", "comex"},
		LookbackWindow:     24 * time.Hour,
		MaxAlertsPerKind:   5,
		DealMinListings:    3,
		DealMinRange:       decimal.NewFromInt(500),
		DealDiscountPct:    decimal.NewFromInt(10),
	}
}

// Engine runs read-only analyses over a market snapshot.
type Engine struct {
	cfg    Config
	rare   map[string]struct{}
	logger zerolog.Logger
}

// New constructs an engine.
func New(cfg Config, logger zerolog.Logger) *Engine {
	rare := make(map[string]struct{}, len(cfg.RareTags))
	for _, tag := range cfg.RareTags {
		rare[tag] = struct{}{}
	}
	return &Engine{
		cfg:    cfg,
		rare:   rare,
		logger: logger.With().Str("component", "analytics").Logger(),
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Input is the snapshot analysed by Run.
type Input struct {
	Listings []market.Listing
	History  []market.PriceHistoryEntry
	// KnownSources holds source ids seen before the lookback window.
	KnownSources map[string]struct{}
	Now          time.Time
}

// Report is the outcome of one analysis run.
type Report struct {
	RunID       string
	GeneratedAt time.Time
	Candidates  []Candidate
	Events      Events
	Alerts      []alerting.Alert
}

// Run performs arbitrage detection and the event scan and renders alerts.
func (e *Engine) Run(ctx context.Context, in Input) (Report, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	candidates, err := e.Arbitrage(ctx, in.Listings)
	if err != nil {
		return Report{}, err
	}
	events, err := e.ScanEvents(ctx, in.History, in.KnownSources, now)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		RunID:       uuid.NewString(),
		GeneratedAt: now,
		Candidates:  candidates,
		Events:      events,
	}

	alerts := make([]alerting.Alert, 0)
	alerts = append(alerts, e.capped(events.LargeChangeAlerts())...)
	alerts = append(alerts, e.capped(ArbitrageAlerts(candidates))...)
	alerts = append(alerts, e.capped(events.RareSightingAlerts())...)
	alerting.Stamp(alerts, report.RunID, now)
	report.Alerts = alerts

	e.logger.Info().
		Str("run_id", report.RunID).
		Int("listings", len(in.Listings)).
		Int("candidates", len(candidates)).
		Int("large_changes", len(events.LargeChanges)).
		Int("rare_sightings", len(events.RareSightings)).
		Msg("analysis complete")

	return report, nil
}

func (e *Engine) capped(alerts []alerting.Alert) []alerting.Alert {
	if e.cfg.MaxAlertsPerKind > 0 && len(alerts) > e.cfg.MaxAlertsPerKind {
		return alerts[:e.cfg.MaxAlertsPerKind]
	}
	return alerts
}

// Groups buckets usable listings by comparison key, sorted by key. Listings
// with no key or a non-positive price are skipped with a warning.
func (e *Engine) Groups(ctx context.Context, listings []market.Listing) ([]market.MarketGroup, error) {
	buckets := make(map[string][]market.Listing)
	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.ComparisonKey == "" {
			e.logger.Warn().Str("source_id", l.SourceID).Msg("listing without comparison key skipped")
			continue
		}
		if l.PriceUSD.Sign() <= 0 {
			e.logger.Warn().
				Str("source_id", l.SourceID).
				Str("comparison_key", l.ComparisonKey).
				Str("price_usd", l.PriceUSD.String()).
				Msg("listing with non-positive price excluded from spread")
			continue
		}
		buckets[l.ComparisonKey] = append(buckets[l.ComparisonKey], l)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]market.MarketGroup, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, buildGroup(k, buckets[k]))
	}
	return groups, nil
}

func buildGroup(key string, listings []market.Listing) market.MarketGroup {
	sorted := append([]market.Listing(nil), listings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].PriceUSD.Cmp(sorted[j].PriceUSD); c != 0 {
			return c < 0
		}
		return sorted[i].SourceID < sorted[j].SourceID
	})

	prices := make([]decimal.Decimal, len(sorted))
	for i, l := range sorted {
		prices[i] = l.PriceUSD
	}

	g := market.MarketGroup{
		ComparisonKey: key,
		Listings:      sorted,
		Count:         len(sorted),
		MinPrice:      prices[0],
		MaxPrice:      prices[len(prices)-1],
		AvgPrice:      mean(prices),
		MedianPrice:   median(prices),
		Cheapest:      &sorted[0],
		MostExpensive: &sorted[len(sorted)-1],
	}
	g.Spread = g.MaxPrice.Sub(g.MinPrice)
	return g
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values))))
}

// median expects values sorted ascending.
func median(values []decimal.Decimal) decimal.Decimal {
	n := len(values)
	if n == 0 {
		return decimal.Zero
	}
	if n%2 == 1 {
		return values[n/2]
	}
	return values[n/2-1].Add(values[n/2]).Div(decimal.NewFromInt(2))
}
