package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is one scraped observation of a dealer advert. A re-scrape of the same
// advert yields a new Listing sharing SourceID.
type Listing struct {
	SourceID        string
	Source          string
	URL             string
	Brand           string
	Model           string
	ReferenceNumber string
	RawText         string
	PriceUSD        decimal.Decimal

	// Assigned by the classifier; display only.
	DialType       *string
	SpecialEdition *string
	VariationTag   string
	ComparisonKey  string

	ScrapedAt time.Time
	FirstSeen time.Time
	Active    bool
}

// PriceHistoryEntry is an append-only record of an observed price for a source id.
type PriceHistoryEntry struct {
	ID                 int64
	SourceID           string
	ComparisonKey      string
	Brand              string
	Model              string
	ReferenceNumber    string
	URL                string
	PriceUSD           decimal.Decimal
	PreviousPrice      *decimal.Decimal
	PriceChange        *decimal.Decimal
	PriceChangePercent *decimal.Decimal
	ObservedAt         time.Time
}

// IsFirstObservation reports whether the entry opened the series for its source.
func (e PriceHistoryEntry) IsFirstObservation() bool {
	return e.PreviousPrice == nil
}

// MarketGroup is a derived view over live listings sharing a comparison key.
type MarketGroup struct {
	ComparisonKey string
	Listings      []Listing
	Count         int
	MinPrice      decimal.Decimal
	MaxPrice      decimal.Decimal
	Spread        decimal.Decimal
	AvgPrice      decimal.Decimal
	MedianPrice   decimal.Decimal
	Cheapest      *Listing
	MostExpensive *Listing
}

// ProfitPercent is the spread relative to the cheapest listing.
func (g MarketGroup) ProfitPercent() decimal.Decimal {
	if g.MinPrice.Sign() <= 0 {
		return decimal.Zero
	}
	return g.Spread.Div(g.MinPrice).Mul(decimal.NewFromInt(100))
}
