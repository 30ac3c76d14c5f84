package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"watch-arb-alerts/internal/alerting"
	"watch-arb-alerts/internal/analytics"
	"watch-arb-alerts/internal/config"
	"watch-arb-alerts/internal/scheduler"
	"watch-arb-alerts/internal/service"
	"watch-arb-alerts/internal/source"
	"watch-arb-alerts/internal/storage"
	"watch-arb-alerts/internal/variation"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives tables and reports.
	Out io.Writer

	memory *storage.Memory
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newNotifier() (alerting.Notifier, error) {
	return alerting.NewNotifier(a.Config.Alerting.Channels, a.Logger)
}

func (a *App) newClassifier() (*variation.Classifier, error) {
	rules, err := a.Config.RuleSet()
	if err != nil {
		return nil, err
	}
	for _, o := range rules.Overlaps() {
		a.Logger.Warn().
			Str("trigger", o.Trigger).
			Str("winner", o.Winner).
			Str("shadow", o.Shadow).
			Msg("variation rule shadowed by an earlier rule")
	}
	return variation.NewClassifier(rules), nil
}

func (a *App) newEngine() *analytics.Engine {
	return analytics.New(a.Config.EngineConfig(), a.Logger)
}

func (a *App) sourcesFor(paths []string) ([]source.ListingSource, error) {
	sources := make([]source.ListingSource, 0, len(paths))
	for _, p := range paths {
		src, err := source.ForPath(p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// openRepo connects to Postgres, or falls back to a process-local memory
// store when no DSN is configured.
func (a *App) openRepo(ctx context.Context) (storage.Repository, func(), error) {
	if a.Config.Database.DSN == "" {
		if a.memory == nil {
			a.Logger.Warn().Msg("database.dsn not configured; using in-memory store")
			a.memory = storage.NewMemory()
		}
		return a.memory, func() {}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	return store, store.Close, nil
}

func (a *App) newService(repo storage.Repository, sched *scheduler.Scheduler) (*service.Service, error) {
	classifier, err := a.newClassifier()
	if err != nil {
		return nil, err
	}
	notifier, err := a.newNotifier()
	if err != nil {
		return nil, err
	}
	sources, err := a.sourcesFor(a.Config.Ingest.Paths)
	if err != nil {
		return nil, err
	}
	return service.New(a.Config, service.Deps{
		Scheduler:  sched,
		Repo:       repo,
		Classifier: classifier,
		Engine:     a.newEngine(),
		Notifier:   notifier,
		Sources:    sources,
	}, a.Logger), nil
}

// Run executes the long-running update service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(a.Config.Ingest.Paths) == 0 {
		a.Logger.Warn().Msg("ingest.paths empty; cycles will only re-analyse stored listings")
	}

	repo, closeRepo, err := a.openRepo(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Cron:         a.Config.Scheduler.Cron,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc, err := a.newService(repo, sched)
	if err != nil {
		return err
	}

	a.Logger.Info().Msg("starting update service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("update service stopped")
	return nil
}

// Migrate applies the database schema.
func (a *App) Migrate(ctx context.Context) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database.dsn not configured; nothing to migrate")
	}
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	store := storage.NewStore(pool)
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("schema applied")
	return nil
}

// IngestOptions configure a one-off ingest.
type IngestOptions struct {
	Files []string
	// Analyze runs an analysis right after ingesting, which is the only way
	// to see results when running without a database.
	Analyze bool
	DryRun  bool
}

// AnalyzeOptions configure the analyze command.
type AnalyzeOptions struct {
	DryRun bool
}

// ExportOptions hold parameters for exporting the history of one comparison key.
type ExportOptions struct {
	Key       string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// DealsOptions configure the deals command.
type DealsOptions struct {
	Limit     int
	Reference string
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Key   string
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	DryRun bool
}

// ClassifyOptions configure the classify command.
type ClassifyOptions struct {
	Text      string
	Reference string
	ListRules bool
}
