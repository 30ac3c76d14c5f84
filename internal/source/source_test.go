package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/market"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestJSONArray(t *testing.T) {
	path := writeFile(t, "listings.json", `[
  {"source_id": "bobs-1", "source": "bobs_watches", "brand": "Rolex", "model": "Submariner",
   "reference_number": "1680", "title": "Tiffany & Co dial", "price_usd": 45000,
   "scraped_at": "2024-05-01T06:00:00Z"},
  {"source_id": "bobs-2", "reference_number": "1680", "price_usd": "15000.50"}
]`)

	src, err := ForPath(path)
	if err != nil {
		t.Fatalf("for path: %v", err)
	}
	records, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].PriceUSD.Equal(decimal.NewFromInt(45000)) {
		t.Fatalf("unexpected price %s", records[0].PriceUSD)
	}
	if !records[1].PriceUSD.Equal(decimal.RequireFromString("15000.50")) {
		t.Fatalf("string prices should decode, got %s", records[1].PriceUSD)
	}
	if records[0].Text() != "Tiffany & Co dial" {
		t.Fatalf("unexpected text %q", records[0].Text())
	}
}

func TestJSONLines(t *testing.T) {
	path := writeFile(t, "listings.ndjson", `{"source_id": "a", "price_usd": 100}

{"source_id": "b", "price_usd": 200}
`)
	records, err := NewJSONFile(path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 || records[1].SourceID != "b" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestJSONLinesReportsLine(t *testing.T) {
	path := writeFile(t, "bad.jsonl", "{\"source_id\": \"a\"}\n{oops\n")
	if _, err := NewJSONFile(path).Load(context.Background()); err == nil {
		t.Fatal("malformed line should fail")
	}
}

func TestCSV(t *testing.T) {
	path := writeFile(t, "listings.csv", `Source_ID,brand,model,reference_number,price_usd,scraped_at,extra
wf-1,Rolex,GMT-Master,16710,"$17,995",2024-05-01T06:00:00Z,x
wf-2,Rolex,GMT-Master,16710,44995,,y
`)
	records, err := NewCSVFile(path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].PriceUSD.Equal(decimal.NewFromInt(17995)) {
		t.Fatalf("dealer formatted price should parse, got %s", records[0].PriceUSD)
	}
	want := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	if !records[0].ScrapedAt.Equal(want) {
		t.Fatalf("unexpected scraped_at %s", records[0].ScrapedAt)
	}
	if !records[1].ScrapedAt.IsZero() {
		t.Fatal("empty scraped_at should stay zero")
	}
}

func TestCSVMissingColumn(t *testing.T) {
	path := writeFile(t, "listings.csv", "source_id,brand\na,Rolex\n")
	if _, err := NewCSVFile(path).Load(context.Background()); err == nil {
		t.Fatal("missing price column should fail")
	}
}

func TestForPathRejectsUnknown(t *testing.T) {
	if _, err := ForPath("listings.xml"); err == nil {
		t.Fatal("unknown extension should fail")
	}
}

func TestRecordListing(t *testing.T) {
	rec := Record{SourceID: " a ", ReferenceNumber: "1680 ", PriceUSD: decimal.NewFromInt(100)}
	l, err := rec.Listing()
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if l.SourceID != "a" || l.ReferenceNumber != "1680" || !l.Active || l.ComparisonKey != "" {
		t.Fatalf("unexpected listing %+v", l)
	}

	zero, err := Record{SourceID: "b"}.Listing()
	if err != nil {
		t.Fatalf("zero price placeholder should be accepted: %v", err)
	}
	if !zero.PriceUSD.IsZero() {
		t.Fatalf("unexpected price %s", zero.PriceUSD)
	}

	_, err = Record{SourceID: "c", PriceUSD: decimal.NewFromInt(-1)}.Listing()
	if !errors.Is(err, market.ErrValidation) {
		t.Fatalf("negative price should be a validation error, got %v", err)
	}
}

func TestRecordTextExcludesModel(t *testing.T) {
	rec := Record{Model: "Datejust Two-Tone", Title: "Datejust 16013", URL: "https://dealer.example/16013"}
	if got := rec.Text(); got != "Datejust 16013 https://dealer.example/16013" {
		t.Fatalf("unexpected text %q", got)
	}
}
