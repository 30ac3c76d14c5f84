package history

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/market"
)

var stableBand = decimal.NewFromInt(2)

// Trend summarises the recorded prices of one comparison key.
type Trend struct {
	ComparisonKey string
	DataPoints    int
	AvgPrice      decimal.Decimal
	MinPrice      decimal.Decimal
	MaxPrice      decimal.Decimal
	TrendPercent  decimal.Decimal
	Direction     string
	First         time.Time
	Last          time.Time
}

// Summarize compares the average of the older half of entries with the newer
// half. Fewer than four points yield a flat trend.
func Summarize(key string, entries []market.PriceHistoryEntry) Trend {
	t := Trend{ComparisonKey: key, Direction: "stable"}
	if len(entries) == 0 {
		return t
	}

	sorted := append([]market.PriceHistoryEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ObservedAt.Before(sorted[j].ObservedAt)
	})

	t.DataPoints = len(sorted)
	t.First = sorted[0].ObservedAt
	t.Last = sorted[len(sorted)-1].ObservedAt
	t.MinPrice = sorted[0].PriceUSD
	t.MaxPrice = sorted[0].PriceUSD

	prices := make([]decimal.Decimal, len(sorted))
	for i, e := range sorted {
		prices[i] = e.PriceUSD
		if e.PriceUSD.LessThan(t.MinPrice) {
			t.MinPrice = e.PriceUSD
		}
		if e.PriceUSD.GreaterThan(t.MaxPrice) {
			t.MaxPrice = e.PriceUSD
		}
	}
	t.AvgPrice = mean(prices)

	if len(prices) >= 4 {
		mid := len(prices) / 2
		early := mean(prices[:mid])
		late := mean(prices[mid:])
		if !early.IsZero() {
			t.TrendPercent = late.Sub(early).Div(early).Mul(hundred)
		}
	}

	switch {
	case t.TrendPercent.GreaterThan(stableBand):
		t.Direction = "up"
	case t.TrendPercent.LessThan(stableBand.Neg()):
		t.Direction = "down"
	}
	return t
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values))))
}
