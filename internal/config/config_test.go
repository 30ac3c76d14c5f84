package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Name != "test" {
		t.Fatalf("unexpected app name %q", cfg.App.Name)
	}
	if !cfg.Analytics.ArbitrageThreshold.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected arbitrage threshold %s", cfg.Analytics.ArbitrageThreshold)
	}
	if cfg.Analytics.LookbackWindow != 24*time.Hour {
		t.Fatalf("unexpected lookback %s", cfg.Analytics.LookbackWindow)
	}
	if cfg.Scheduler.Cron != "0 6,18 * * *" {
		t.Fatalf("unexpected cron %q", cfg.Scheduler.Cron)
	}
	rs, err := cfg.RuleSet()
	if err != nil {
		t.Fatalf("rule set: %v", err)
	}
	if rs.Len() != 20 {
		t.Fatalf("expected default rules, got %d", rs.Len())
	}

	ec := cfg.EngineConfig()
	if len(ec.RareTags) != 4 || !ec.ChangeThresholdPct.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected engine config %+v", ec)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	t.Setenv("WATCHARB_ANALYTICS_ARBITRAGE_THRESHOLD", "2500.50")
	path := writeConfig(t, `
analytics:
  change_threshold_pct: 12.5
  rare_tags: [tiffany, dominos]
ingest:
  paths: [a.json, b.csv]
  workers: 8
scheduler:
  cron: ""
  interval: 30m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Analytics.ArbitrageThreshold.Equal(decimal.RequireFromString("2500.50")) {
		t.Fatalf("env override not applied: %s", cfg.Analytics.ArbitrageThreshold)
	}
	if !cfg.Analytics.ChangeThresholdPct.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("yaml number should decode to decimal: %s", cfg.Analytics.ChangeThresholdPct)
	}
	if strings.Join(cfg.Analytics.RareTags, ",") != "tiffany,dominos" {
		t.Fatalf("unexpected rare tags %v", cfg.Analytics.RareTags)
	}
	if len(cfg.Ingest.Paths) != 2 || cfg.Ingest.Workers != 8 {
		t.Fatalf("unexpected ingest config %+v", cfg.Ingest)
	}
	if cfg.Scheduler.Cron != "" || cfg.Scheduler.Interval != 30*time.Minute {
		t.Fatalf("unexpected scheduler config %+v", cfg.Scheduler)
	}
}

func TestLoadClassifierRules(t *testing.T) {
	path := writeConfig(t, `
classifier:
  rules:
    - tag: rootbeer
      positives: ["root beer", "rootbeer"]
      dial_type: Root Beer
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rs, err := cfg.RuleSet()
	if err != nil {
		t.Fatalf("rule set: %v", err)
	}
	tags := rs.Tags()
	if len(tags) != 21 || tags[len(tags)-1] != "rootbeer" {
		t.Fatalf("configured rule should be appended last, got %v", tags)
	}
}

func TestLoadRejectsInvalidRules(t *testing.T) {
	cases := map[string]string{
		"reserved tag": "classifier:\n  rules:\n    - tag: standard\n      positives: [plain]\n",
		"dash in tag":  "classifier:\n  rules:\n    - tag: root-beer\n      positives: [root beer]\n",
		"replace none": "classifier:\n  replace_defaults: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"bad cron":      "scheduler:\n  cron: \"not a cron\"\n",
		"no schedule":   "scheduler:\n  cron: \"\"\n  interval: 0s\n",
		"no workers":    "ingest:\n  workers: 0\n",
		"negative arb":  "analytics:\n  arbitrage_threshold: \"-1\"\n",
		"discount 100":  "analytics:\n  deal_discount_pct: 100\n",
		"no lookback":   "analytics:\n  lookback_window: 0s\n",
		"export points": "export:\n  max_data_points: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 10}}
	if cfg.ResolveMaxPoints(0) != 10 || cfg.ResolveMaxPoints(3) != 3 {
		t.Fatal("override should win only when positive")
	}
}
