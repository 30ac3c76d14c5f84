package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/config"
	"watch-arb-alerts/internal/market"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  name: test\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	var out bytes.Buffer
	a := NewApp(cfg, zerolog.Nop())
	a.Out = &out
	return a, &out
}

func TestClassify(t *testing.T) {
	a, out := newTestApp(t)
	if err := a.Classify(ClassifyOptions{Text: "Rolex Submariner TIFFANY & Co  gold", Reference: "1680"}); err != nil {
		t.Fatalf("classify: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "tag: tiffany") || !strings.Contains(got, "key: 1680-tiffany") {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestClassifyListRules(t *testing.T) {
	a, out := newTestApp(t)
	if err := a.Classify(ClassifyOptions{ListRules: true}); err != nil {
		t.Fatalf("classify: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "tiffany") || !strings.Contains(got, `overlap: "green bezel" matches kermit first, shadowing greenbezel`) {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestNewClassifierWarnsAboutOverlaps(t *testing.T) {
	a, _ := newTestApp(t)
	var logs bytes.Buffer
	a.Logger = zerolog.New(&logs)

	if _, err := a.newClassifier(); err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	got := logs.String()
	for _, want := range []string{`"level":"warn"`, `"trigger":"green bezel"`, `"winner":"kermit"`, `"shadow":"greenbezel"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %s in log output %q", want, got)
		}
	}
}

func TestClassifyRequiresText(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.Classify(ClassifyOptions{}); err == nil {
		t.Fatal("missing text should fail")
	}
}

func TestIngestAndAnalyzeInMemory(t *testing.T) {
	a, out := newTestApp(t)
	scraped := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	listings := filepath.Join(t.TempDir(), "listings.json")
	body := `[
  {"source_id": "a", "brand": "Rolex", "reference_number": "18239", "price_usd": 17995, "scraped_at": "` + scraped + `"},
  {"source_id": "b", "brand": "Rolex", "reference_number": "18239", "price_usd": 44995, "scraped_at": "` + scraped + `"},
  {"source_id": "c", "brand": "Rolex", "reference_number": "1680", "price_usd": 15000, "scraped_at": "` + scraped + `"},
  {"source_id": "d", "brand": "Rolex", "reference_number": "1680", "title": "Tiffany dial", "price_usd": 45000, "scraped_at": "` + scraped + `"}
]`
	if err := os.WriteFile(listings, []byte(body), 0o600); err != nil {
		t.Fatalf("write listings: %v", err)
	}

	if err := a.Ingest(context.Background(), IngestOptions{Files: []string{listings}, Analyze: true}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "ingested 4 records: 4 new") {
		t.Fatalf("unexpected ingest summary %q", got)
	}
	if !strings.Contains(got, "1 arbitrage candidates") || !strings.Contains(got, "18239-standard") {
		t.Fatalf("expected the 18239 candidate, got %q", got)
	}
	if strings.Contains(got, "1680-standard") {
		t.Fatalf("1680 variants must not form a candidate: %q", got)
	}
	if !strings.Contains(got, "[Watch Market Alert]") || !strings.Contains(got, "Rare watch detected") {
		t.Fatalf("expected rendered alerts, got %q", got)
	}

	out.Reset()
	if err := a.Show(context.Background(), ShowOptions{Limit: 10}); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out.String(), "listings: 4 (4 active)") {
		t.Fatalf("unexpected show output %q", out.String())
	}
}

func TestHistoryRejectsBadKey(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.History(context.Background(), HistoryOptions{Key: "nokey"}); err == nil {
		t.Fatal("malformed key should fail")
	}
}

func sampleHistory(n int) []market.PriceHistoryEntry {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	entries := make([]market.PriceHistoryEntry, n)
	for i := range entries {
		entries[i] = market.PriceHistoryEntry{
			SourceID:      []string{"a", "b"}[i%2],
			ComparisonKey: "16610-standard",
			PriceUSD:      decimal.NewFromInt(int64(10000 + i*100)),
			ObservedAt:    t0.Add(time.Duration(i) * time.Hour),
		}
	}
	return entries
}

func TestDownsampleEntries(t *testing.T) {
	entries := sampleHistory(10)
	if got := downsampleEntries(entries, 0); len(got) != 10 {
		t.Fatalf("no limit should keep all entries, got %d", len(got))
	}
	got := downsampleEntries(entries, 4)
	if len(got) != 4 || got[0].ObservedAt != entries[0].ObservedAt || got[3].ObservedAt != entries[9].ObservedAt {
		t.Fatalf("downsample should keep both ends: %+v", got)
	}
	if got := downsampleEntries(entries, 1); len(got) != 1 || got[0].ObservedAt != entries[9].ObservedAt {
		t.Fatalf("single point should be the newest, got %+v", got)
	}
}

func TestWriteHistoryCSVAndPNG(t *testing.T) {
	dir := t.TempDir()
	entries := sampleHistory(5)
	prev := decimal.NewFromInt(9900)
	entries[1].PreviousPrice = &prev

	csvPath := filepath.Join(dir, "out", "history.csv")
	if err := writeHistoryCSV(csvPath, entries); err != nil {
		t.Fatalf("csv: %v", err)
	}
	file, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 6 || rows[0][0] != "observed_at" || rows[2][4] != "9900" || rows[1][4] != "" {
		t.Fatalf("unexpected csv rows %v", rows)
	}

	pngPath := filepath.Join(dir, "history.png")
	if err := writeHistoryPNG(pngPath, "16610-standard", entries); err != nil {
		t.Fatalf("png: %v", err)
	}
	info, err := os.Stat(pngPath)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected a non-empty png, got %v", err)
	}
}
