package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"watch-arb-alerts/internal/alerting"
	"watch-arb-alerts/internal/analytics"
	"watch-arb-alerts/internal/config"
	"watch-arb-alerts/internal/history"
	"watch-arb-alerts/internal/market"
	"watch-arb-alerts/internal/scheduler"
	"watch-arb-alerts/internal/source"
	"watch-arb-alerts/internal/storage"
	"watch-arb-alerts/internal/variation"
)

// Deps are the collaborators a Service drives.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Repo       storage.Repository
	Classifier *variation.Classifier
	Engine     *analytics.Engine
	Notifier   alerting.Notifier
	Sources    []source.ListingSource
}

// Service orchestrates ingestion, history recording, analysis and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	repo       storage.Repository
	classifier *variation.Classifier
	recorder   *history.Recorder
	engine     *analytics.Engine
	notifier   alerting.Notifier
	sources    []source.ListingSource
	logger     zerolog.Logger

	workers           int
	deactivateMissing bool
	alertsOn          bool
	retention         time.Duration
	lookback          time.Duration
	lockKey           int64
	now               func() time.Time
}

// New constructs the update service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	classifier := deps.Classifier
	if classifier == nil {
		classifier = variation.NewClassifier(nil)
	}
	engine := deps.Engine
	if engine == nil {
		engine = analytics.New(cfg.EngineConfig(), logger)
	}
	workers := cfg.Ingest.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Service{
		scheduler:         deps.Scheduler,
		repo:              deps.Repo,
		classifier:        classifier,
		recorder:          history.NewRecorder(deps.Repo, logger),
		engine:            engine,
		notifier:          deps.Notifier,
		sources:           deps.Sources,
		logger:            logger.With().Str("component", "service").Logger(),
		workers:           workers,
		deactivateMissing: cfg.Ingest.DeactivateMissing,
		alertsOn:          cfg.Alerting.Enabled,
		retention:         cfg.Alerting.Retention,
		lookback:          engine.Config().LookbackWindow,
		lockKey:           cfg.Scheduler.AdvisoryLockKey,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Run begins the scheduled update loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle runs one full update: ingest every source, analyse, alert.
func (s *Service) ProcessCycle(ctx context.Context, slot time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("slot", slot).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	stats, err := s.Ingest(ctx, s.sources)
	if err != nil {
		return fmt.Errorf("ingest listings: %w", err)
	}
	s.logger.Info().Time("slot", slot).
		Int("records", stats.Records).
		Int("skipped", stats.Skipped).
		Int("first_observations", stats.FirstObservations).
		Int("price_changes", stats.PriceChanges).
		Int64("deactivated", stats.Deactivated).
		Msg("ingest complete")

	now := s.now()
	if _, err := s.Analyze(ctx, now, false); err != nil {
		return fmt.Errorf("analyze market: %w", err)
	}

	if s.retention > 0 {
		if err := s.repo.DeleteAlertsBefore(ctx, now.Add(-s.retention)); err != nil {
			s.logger.Error().Err(err).Msg("failed to prune old alerts")
		}
	}
	return nil
}

// IngestStats summarises one ingest pass.
type IngestStats struct {
	Records           int
	Skipped           int
	FirstObservations int
	PriceChanges      int
	Unchanged         int
	Deactivated       int64
}

func (st *IngestStats) add(o IngestStats) {
	st.Records += o.Records
	st.Skipped += o.Skipped
	st.FirstObservations += o.FirstObservations
	st.PriceChanges += o.PriceChanges
	st.Unchanged += o.Unchanged
}

// Ingest loads every source and ingests the combined records. When configured,
// listings absent from this full pass are deactivated afterwards.
func (s *Service) Ingest(ctx context.Context, sources []source.ListingSource) (IngestStats, error) {
	records := make([]source.Record, 0)
	for _, src := range sources {
		recs, err := src.Load(ctx)
		if err != nil {
			return IngestStats{}, fmt.Errorf("load %s: %w", src.Name(), err)
		}
		s.logger.Debug().Str("source", src.Name()).Int("records", len(recs)).Msg("listings loaded")
		records = append(records, recs...)
	}

	stats, seen, err := s.ingest(ctx, records)
	if err != nil {
		return stats, err
	}

	if s.deactivateMissing && len(sources) > 0 {
		n, err := s.repo.DeactivateStale(ctx, seen)
		if err != nil {
			return stats, fmt.Errorf("deactivate missing listings: %w", err)
		}
		stats.Deactivated = n
	}
	return stats, nil
}

// IngestRecords classifies, records and stores the given records.
func (s *Service) IngestRecords(ctx context.Context, records []source.Record) (IngestStats, error) {
	stats, _, err := s.ingest(ctx, records)
	return stats, err
}

func (s *Service) ingest(ctx context.Context, records []source.Record) (IngestStats, []string, error) {
	stats := IngestStats{Records: len(records)}
	listings := make([]market.Listing, 0, len(records))
	for _, rec := range records {
		l, err := s.prepare(rec)
		if err != nil {
			stats.Skipped++
			s.logger.Warn().Err(err).Str("source_id", rec.SourceID).Msg("listing skipped")
			continue
		}
		listings = append(listings, l)
	}

	// a source id always lands on the same worker, oldest observation first
	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].ScrapedAt.Before(listings[j].ScrapedAt)
	})
	shards := make([][]market.Listing, s.workers)
	seenSet := make(map[string]struct{}, len(listings))
	for _, l := range listings {
		shards[shardFor(l.SourceID, s.workers)] = append(shards[shardFor(l.SourceID, s.workers)], l)
		seenSet[l.SourceID] = struct{}{}
	}

	results := make([]IngestStats, s.workers)
	var wg sync.WaitGroup
	for i := range shards {
		if len(shards[i]) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.ingestShard(ctx, shards[i])
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		stats.add(r)
	}
	if err := ctx.Err(); err != nil {
		return stats, nil, err
	}

	seen := make([]string, 0, len(seenSet))
	for id := range seenSet {
		seen = append(seen, id)
	}
	sort.Strings(seen)
	return stats, seen, nil
}

func (s *Service) ingestShard(ctx context.Context, listings []market.Listing) IngestStats {
	var st IngestStats
	for _, l := range listings {
		if ctx.Err() != nil {
			return st
		}
		outcome, err := s.recorder.Record(ctx, l)
		if err != nil {
			st.Skipped++
			ev := s.logger.Warn()
			if errors.Is(err, market.ErrConsistency) {
				ev = s.logger.Error()
			}
			ev.Err(err).Str("source_id", l.SourceID).Str("comparison_key", l.ComparisonKey).Msg("history not recorded")
			continue
		}
		switch outcome.Kind {
		case history.FirstObservation:
			st.FirstObservations++
		case history.PriceChanged:
			st.PriceChanges++
		case history.Unchanged:
			st.Unchanged++
		}

		if err := s.repo.UpsertListing(ctx, l); err != nil {
			st.Skipped++
			s.logger.Error().Err(err).Str("source_id", l.SourceID).Msg("failed to store listing")
		}
	}
	return st
}

func (s *Service) prepare(rec source.Record) (market.Listing, error) {
	l, err := rec.Listing()
	if err != nil {
		return market.Listing{}, err
	}
	if l.ScrapedAt.IsZero() {
		l.ScrapedAt = s.now()
	}
	l.FirstSeen = l.ScrapedAt
	return s.classifier.Label(l)
}

func shardFor(sourceID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return int(h.Sum32() % uint32(n))
}

// Analyze runs the analytics engine over the current snapshot. Unless dryRun
// is set, alerts are persisted and dispatched.
func (s *Service) Analyze(ctx context.Context, now time.Time, dryRun bool) (analytics.Report, error) {
	since := now.Add(-s.lookback)

	listings, err := s.repo.AllLiveListings(ctx)
	if err != nil {
		return analytics.Report{}, fmt.Errorf("load listings: %w", err)
	}
	entries, err := s.repo.HistorySince(ctx, since)
	if err != nil {
		return analytics.Report{}, fmt.Errorf("load history: %w", err)
	}
	known, err := s.repo.KnownSourceIDs(ctx, since)
	if err != nil {
		return analytics.Report{}, fmt.Errorf("load known sources: %w", err)
	}

	report, err := s.engine.Run(ctx, analytics.Input{
		Listings:     listings,
		History:      entries,
		KnownSources: known,
		Now:          now,
	})
	if err != nil {
		return analytics.Report{}, err
	}

	if dryRun || len(report.Alerts) == 0 {
		return report, nil
	}

	if err := s.repo.InsertAlerts(ctx, report.Alerts); err != nil {
		s.logger.Error().Err(err).Str("run_id", report.RunID).Msg("failed to persist alerts")
	}
	if s.alertsOn && s.notifier != nil {
		if err := s.notifier.Notify(ctx, report.Alerts); err != nil {
			s.logger.Error().Err(err).Str("run_id", report.RunID).Msg("failed to dispatch alerts")
		}
	}
	return report, nil
}

// Backfill writes an initial history entry for every live listing that has
// none. It returns the number of listings concerned.
func (s *Service) Backfill(ctx context.Context, dryRun bool) (int, error) {
	missing, err := s.repo.SourcesWithoutHistory(ctx)
	if err != nil {
		return 0, fmt.Errorf("list listings without history: %w", err)
	}
	if dryRun {
		for _, l := range missing {
			s.logger.Info().Str("source_id", l.SourceID).Str("comparison_key", l.ComparisonKey).Msg("would record initial price")
		}
		return len(missing), nil
	}

	recorded := 0
	for _, l := range missing {
		if err := ctx.Err(); err != nil {
			return recorded, err
		}
		if _, err := s.recorder.Record(ctx, l); err != nil {
			s.logger.Warn().Err(err).Str("source_id", l.SourceID).Msg("initial price not recorded")
			continue
		}
		recorded++
	}
	return recorded, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.repo == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.repo.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
