package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/alerting"
	"watch-arb-alerts/internal/market"
)

// Candidate is a comparison group whose spread meets the arbitrage threshold.
type Candidate struct {
	Group         market.MarketGroup
	Spread        decimal.Decimal
	ProfitPercent decimal.Decimal
}

// Key returns the comparison key of the candidate group.
func (c Candidate) Key() string {
	return c.Group.ComparisonKey
}

// Arbitrage returns groups with at least two listings and a spread at or above
// the configured threshold, sorted by spread descending then key ascending.
// Listings are only ever compared within their own comparison key.
func (e *Engine) Arbitrage(ctx context.Context, listings []market.Listing) ([]Candidate, error) {
	groups, err := e.Groups(ctx, listings)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0)
	for _, g := range groups {
		if g.Count < 2 {
			continue
		}
		if g.Spread.LessThan(e.cfg.ArbitrageThreshold) {
			continue
		}
		if err := checkHomogeneous(g); err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{
			Group:         g,
			Spread:        g.Spread,
			ProfitPercent: g.ProfitPercent(),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if c := candidates[i].Spread.Cmp(candidates[j].Spread); c != 0 {
			return c > 0
		}
		return candidates[i].Key() < candidates[j].Key()
	})
	return candidates, nil
}

func checkHomogeneous(g market.MarketGroup) error {
	for _, l := range g.Listings {
		if l.ComparisonKey != g.ComparisonKey {
			return fmt.Errorf("analytics: group %s contains listing %s keyed %s", g.ComparisonKey, l.SourceID, l.ComparisonKey)
		}
	}
	return nil
}

// ArbitrageAlerts renders candidates in their existing order.
func ArbitrageAlerts(candidates []Candidate) []alerting.Alert {
	alerts := make([]alerting.Alert, 0, len(candidates))
	for _, c := range candidates {
		g := c.Group
		alerts = append(alerts, alerting.Alert{
			Kind:          alerting.KindArbitrage,
			ComparisonKey: g.ComparisonKey,
			SourceID:      g.Cheapest.SourceID,
			Magnitude:     c.Spread,
			Message: fmt.Sprintf("%s(%s): Buy %s, Sell %s = %s profit (%d listings)",
				describe(g.Cheapest.Brand, g.Cheapest.Model),
				g.ComparisonKey,
				alerting.FormatUSD(g.MinPrice),
				alerting.FormatUSD(g.MaxPrice),
				alerting.FormatUSD(c.Spread),
				g.Count),
		})
	}
	return alerts
}

func describe(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}
	return strings.Join(nonEmpty, " ") + " "
}
