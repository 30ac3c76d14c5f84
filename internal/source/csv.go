package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var requiredColumns = []string{"source_id", "price_usd"}

// CSVFile reads records from a CSV file with a header row. Columns are matched
// by name, so order and extra columns do not matter.
type CSVFile struct {
	path string
}

// NewCSVFile constructs a CSV file source.
func NewCSVFile(path string) *CSVFile {
	return &CSVFile{path: path}
}

// Name returns the file path.
func (f *CSVFile) Name() string {
	return f.path
}

// Load parses the whole file.
func (f *CSVFile) Load(ctx context.Context) ([]Record, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open listings file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("csv %s missing column %q", f.path, col)
		}
	}

	records := make([]Record, 0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		line, _ := reader.FieldPos(0)

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rec := Record{
			SourceID:        get("source_id"),
			Source:          get("source"),
			URL:             get("url"),
			Brand:           get("brand"),
			Model:           get("model"),
			ReferenceNumber: get("reference_number"),
			Title:           get("title"),
			Description:     get("description"),
			RawText:         get("raw_text"),
		}

		price, err := parsePrice(get("price_usd"))
		if err != nil {
			return nil, fmt.Errorf("csv %s line %d: parse price: %w", f.path, line, err)
		}
		rec.PriceUSD = price

		if ts := get("scraped_at"); ts != "" {
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return nil, fmt.Errorf("csv %s line %d: parse scraped_at: %w", f.path, line, err)
			}
			rec.ScrapedAt = parsed
		}

		records = append(records, rec)
	}
	return records, nil
}

// parsePrice accepts plain numbers as well as dealer formatting such as "$17,995".
func parsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
	if cleaned == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(cleaned)
}

var _ ListingSource = (*CSVFile)(nil)
