package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/market"
)

// ListingSource yields pre-scraped listing records.
type ListingSource interface {
	Load(ctx context.Context) ([]Record, error)
	Name() string
}

// Record is one dealer listing as delivered by an upstream scraper. Prices are
// already normalised to USD.
type Record struct {
	SourceID        string          `json:"source_id"`
	Source          string          `json:"source"`
	URL             string          `json:"url"`
	Brand           string          `json:"brand"`
	Model           string          `json:"model"`
	ReferenceNumber string          `json:"reference_number"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	RawText         string          `json:"raw_text"`
	PriceUSD        decimal.Decimal `json:"price_usd"`
	ScrapedAt       time.Time       `json:"scraped_at"`
}

// Text joins the free-text fields the classifier should see. Model is left
// out: dealer model names such as "Datejust Two-Tone" are not dial evidence.
func (r Record) Text() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{r.Title, r.Description, r.RawText, r.URL} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Listing converts the record into an unlabelled listing. The comparison key
// is left empty for the classifier to fill in.
func (r Record) Listing() (market.Listing, error) {
	if strings.TrimSpace(r.SourceID) == "" {
		return market.Listing{}, &market.ValidationError{Field: "source_id", Value: r.SourceID, Reason: "must not be empty"}
	}
	// zero is a dealer placeholder ("price on request") and is still recorded
	if r.PriceUSD.Sign() < 0 {
		return market.Listing{}, &market.ValidationError{Field: "price_usd", Value: r.PriceUSD.String(), Reason: "must not be negative"}
	}
	return market.Listing{
		SourceID:        strings.TrimSpace(r.SourceID),
		Source:          strings.TrimSpace(r.Source),
		URL:             strings.TrimSpace(r.URL),
		Brand:           strings.TrimSpace(r.Brand),
		Model:           strings.TrimSpace(r.Model),
		ReferenceNumber: strings.TrimSpace(r.ReferenceNumber),
		RawText:         r.Text(),
		PriceUSD:        r.PriceUSD,
		ScrapedAt:       r.ScrapedAt.UTC(),
		Active:          true,
	}, nil
}

// ForPath returns the file source matching the path extension.
func ForPath(path string) (ListingSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson":
		return NewJSONFile(path), nil
	case ".csv":
		return NewCSVFile(path), nil
	default:
		return nil, fmt.Errorf("unsupported listing file %q", path)
	}
}
