package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"watch-arb-alerts/internal/analytics"
	"watch-arb-alerts/internal/logging"
	"watch-arb-alerts/internal/variation"
)

// EnvPrefix namespaces environment overrides, e.g. WATCHARB_DATABASE_DSN.
const EnvPrefix = "WATCHARB"

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN runs the
// application against the in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs update cadence. Cron wins over Interval when set.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cron            string        `mapstructure:"cron"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// IngestConfig lists the listing files read on every cycle.
type IngestConfig struct {
	Paths             []string `mapstructure:"paths"`
	Workers           int      `mapstructure:"workers"`
	DeactivateMissing bool     `mapstructure:"deactivate_missing"`
}

// AnalyticsConfig holds analysis thresholds.
type AnalyticsConfig struct {
	ArbitrageThreshold decimal.Decimal `mapstructure:"arbitrage_threshold"`
	ChangeThresholdPct decimal.Decimal `mapstructure:"change_threshold_pct"`
	RareTags           []string        `mapstructure:"rare_tags"`
	LookbackWindow     time.Duration   `mapstructure:"lookback_window"`
	MaxAlertsPerKind   int             `mapstructure:"max_alerts_per_kind"`
	DealMinListings    int             `mapstructure:"deal_min_listings"`
	DealMinRange       decimal.Decimal `mapstructure:"deal_min_range"`
	DealDiscountPct    decimal.Decimal `mapstructure:"deal_discount_pct"`
}

// ClassifierConfig extends or replaces the built-in variation rules. Extra
// rules are evaluated after the defaults unless ReplaceDefaults is set.
type ClassifierConfig struct {
	ReplaceDefaults bool             `mapstructure:"replace_defaults"`
	Rules           []variation.Rule `mapstructure:"rules"`
}

// AlertingConfig defines alert routing and retention.
type AlertingConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Channels  []string      `mapstructure:"channels"`
	Retention time.Duration `mapstructure:"retention"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv reads ./.env into the process environment without overriding
// variables that are already set.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "watcharb")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("scheduler.interval", "12h")
	v.SetDefault("scheduler.cron", "0 6,18 * * *")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x77617463))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("ingest.paths", []string{})
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.deactivate_missing", false)

	v.SetDefault("analytics.arbitrage_threshold", "1000")
	v.SetDefault("analytics.change_threshold_pct", "15")
	v.SetDefault("analytics.rare_tags", []string{"tiffany", "tropical", "spider", "comex"})
	v.SetDefault("analytics.lookback_window", "24h")
	v.SetDefault("analytics.max_alerts_per_kind", 5)
	v.SetDefault("analytics.deal_min_listings", 3)
	v.SetDefault("analytics.deal_min_range", "500")
	v.SetDefault("analytics.deal_discount_pct", "10")

	v.SetDefault("classifier.replace_defaults", false)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.retention", "720h")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToDecimalHookFunc(),
		)
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// stringToDecimalHookFunc lets money and percentages be written as strings or
// YAML numbers and still land in decimal.Decimal.
func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case decimal.Decimal:
			return v, nil
		default:
			return nil, fmt.Errorf("cannot decode %s into decimal", from)
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Cron == "" && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero when scheduler.cron is empty")
	}
	if c.Scheduler.Cron != "" {
		if _, err := cron.ParseStandard(c.Scheduler.Cron); err != nil {
			return fmt.Errorf("scheduler.cron: %w", err)
		}
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be greater than zero")
	}
	if c.Analytics.ArbitrageThreshold.IsNegative() {
		return fmt.Errorf("analytics.arbitrage_threshold cannot be negative")
	}
	if c.Analytics.ChangeThresholdPct.IsNegative() {
		return fmt.Errorf("analytics.change_threshold_pct cannot be negative")
	}
	if c.Analytics.LookbackWindow <= 0 {
		return fmt.Errorf("analytics.lookback_window must be greater than zero")
	}
	if c.Analytics.DealDiscountPct.IsNegative() || c.Analytics.DealDiscountPct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("analytics.deal_discount_pct must be within [0, 100)")
	}
	if c.Alerting.Retention < 0 {
		return fmt.Errorf("alerting.retention cannot be negative")
	}
	if _, err := c.RuleSet(); err != nil {
		return fmt.Errorf("classifier.rules: %w", err)
	}
	return nil
}

// RuleSet builds the classifier rule table from the defaults and any
// configured rules.
func (c *Config) RuleSet() (*variation.RuleSet, error) {
	if c.Classifier.ReplaceDefaults {
		if len(c.Classifier.Rules) == 0 {
			return nil, fmt.Errorf("replace_defaults requires at least one rule")
		}
		return variation.NewRuleSet(c.Classifier.Rules)
	}
	if len(c.Classifier.Rules) == 0 {
		return variation.DefaultRuleSet(), nil
	}
	return variation.DefaultRuleSet().Extend(c.Classifier.Rules)
}

// EngineConfig converts the analytics section for the analytics engine.
func (c *Config) EngineConfig() analytics.Config {
	a := c.Analytics
	return analytics.Config{
		ArbitrageThreshold: a.ArbitrageThreshold,
		ChangeThresholdPct: a.ChangeThresholdPct,
		RareTags:           append([]string(nil), a.RareTags...),
		LookbackWindow:     a.LookbackWindow,
		MaxAlertsPerKind:   a.MaxAlertsPerKind,
		DealMinListings:    a.DealMinListings,
		DealMinRange:       a.DealMinRange,
		DealDiscountPct:    a.DealDiscountPct,
	}
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
