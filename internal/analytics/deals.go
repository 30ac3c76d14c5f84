package analytics

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/market"
)

const dealsPerGroup = 2

// Deal is a listing priced well below the average of its comparison group.
type Deal struct {
	Listing         market.Listing
	GroupAvg        decimal.Decimal
	GroupMin        decimal.Decimal
	GroupMax        decimal.Decimal
	Comparables     int
	DiscountDollars decimal.Decimal
	DiscountPercent decimal.Decimal
}

// BestDeals finds up to two listings per group that sit at least the
// configured discount under the group average. Only groups with enough
// listings and a meaningful price range qualify.
func (e *Engine) BestDeals(ctx context.Context, listings []market.Listing) ([]Deal, error) {
	groups, err := e.Groups(ctx, listings)
	if err != nil {
		return nil, err
	}

	factor := decimal.NewFromInt(1).Sub(e.cfg.DealDiscountPct.Div(hundred))
	deals := make([]Deal, 0)
	for _, g := range groups {
		if g.Count < e.cfg.DealMinListings || g.Spread.LessThan(e.cfg.DealMinRange) {
			continue
		}
		ceiling := g.AvgPrice.Mul(factor)
		picked := 0
		for _, l := range g.Listings {
			if picked == dealsPerGroup || !l.PriceUSD.LessThan(ceiling) {
				break
			}
			discount := g.AvgPrice.Sub(l.PriceUSD)
			deals = append(deals, Deal{
				Listing:         l,
				GroupAvg:        g.AvgPrice,
				GroupMin:        g.MinPrice,
				GroupMax:        g.MaxPrice,
				Comparables:     g.Count,
				DiscountDollars: discount,
				DiscountPercent: discount.Div(g.AvgPrice).Mul(hundred),
			})
			picked++
		}
	}

	sort.SliceStable(deals, func(i, j int) bool {
		if c := deals[i].DiscountDollars.Cmp(deals[j].DiscountDollars); c != 0 {
			return c > 0
		}
		return deals[i].Listing.SourceID < deals[j].Listing.SourceID
	})
	return deals, nil
}

// ReferenceListing pairs a listing with its deviation from the reference median.
type ReferenceListing struct {
	Listing             market.Listing
	DeviationFromMedian decimal.Decimal
}

// ReferenceSummary describes every variant listed under one reference number.
// It is informational only; arbitrage never compares across variants.
type ReferenceSummary struct {
	Reference   string
	Count       int
	AvgPrice    decimal.Decimal
	MedianPrice decimal.Decimal
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	Variants    map[string]int
	Listings    []ReferenceListing
}

// ReferenceStats summarises listings sharing a reference number across all
// variation tags. ok is false when nothing usable matched.
func (e *Engine) ReferenceStats(listings []market.Listing, reference string) (ReferenceSummary, bool) {
	var matched []market.Listing
	for _, l := range listings {
		if l.ReferenceNumber == reference && l.PriceUSD.Sign() > 0 {
			matched = append(matched, l)
		}
	}
	if len(matched) == 0 {
		return ReferenceSummary{Reference: reference}, false
	}

	g := buildGroup(reference, matched)
	summary := ReferenceSummary{
		Reference:   reference,
		Count:       g.Count,
		AvgPrice:    g.AvgPrice,
		MedianPrice: g.MedianPrice,
		MinPrice:    g.MinPrice,
		MaxPrice:    g.MaxPrice,
		Variants:    make(map[string]int),
		Listings:    make([]ReferenceListing, 0, g.Count),
	}
	for _, l := range g.Listings {
		summary.Variants[l.ComparisonKey]++
		summary.Listings = append(summary.Listings, ReferenceListing{
			Listing:             l,
			DeviationFromMedian: l.PriceUSD.Sub(g.MedianPrice).Div(g.MedianPrice).Mul(hundred),
		})
	}
	return summary, true
}
