package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/alerting"
	"watch-arb-alerts/internal/history"
	"watch-arb-alerts/internal/market"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

//go:embed schema.sql
var schemaSQL string

const (
	listingColumns = `source_id,
        source,
        url,
        brand,
        model,
        reference_number,
        raw_text,
        price_usd::text,
        dial_type,
        special_edition,
        variation_tag,
        comparison_key,
        scraped_at,
        first_seen,
        active`

	historyColumns = `id,
        source_id,
        comparison_key,
        brand,
        model,
        reference_number,
        url,
        price_usd::text,
        previous_price::text,
        price_change::text,
        price_change_percent::text,
        observed_at`

	upsertListingSQL = `INSERT INTO listings (
        source_id,
        source,
        url,
        brand,
        model,
        reference_number,
        raw_text,
        price_usd,
        dial_type,
        special_edition,
        variation_tag,
        comparison_key,
        scraped_at,
        first_seen,
        active
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,COALESCE($14::timestamptz, now()),TRUE
    )
    ON CONFLICT (source_id) DO UPDATE
    SET
        source           = EXCLUDED.source,
        url              = EXCLUDED.url,
        brand            = EXCLUDED.brand,
        model            = EXCLUDED.model,
        reference_number = EXCLUDED.reference_number,
        raw_text         = EXCLUDED.raw_text,
        price_usd        = EXCLUDED.price_usd,
        dial_type        = EXCLUDED.dial_type,
        special_edition  = EXCLUDED.special_edition,
        variation_tag    = EXCLUDED.variation_tag,
        comparison_key   = EXCLUDED.comparison_key,
        scraped_at       = EXCLUDED.scraped_at,
        active           = TRUE;`

	listLiveListingsSQL = `SELECT ` + listingColumns + `
    FROM listings
    WHERE active
    ORDER BY comparison_key, source_id;`

	listListingsByReferenceSQL = `SELECT ` + listingColumns + `
    FROM listings
    WHERE active AND reference_number = $1
    ORDER BY comparison_key, price_usd, source_id;`

	listKnownSourcesSQL = `SELECT source_id FROM listings WHERE first_seen < $1;`

	deactivateMissingSQL = `UPDATE listings
    SET active = FALSE
    WHERE active AND NOT (source_id = ANY($1));`

	listSourcesWithoutHistorySQL = `SELECT ` + listingColumns + `
    FROM listings l
    WHERE l.active
      AND NOT EXISTS (SELECT 1 FROM price_history h WHERE h.source_id = l.source_id)
    ORDER BY l.source_id;`

	latestEntrySQL = `SELECT ` + historyColumns + `
    FROM price_history
    WHERE source_id = $1
    ORDER BY observed_at DESC, id DESC
    LIMIT 1;`

	// the NOT EXISTS guard keeps a series ordered even across processes
	appendHistorySQL = `INSERT INTO price_history (
        source_id,
        comparison_key,
        brand,
        model,
        reference_number,
        url,
        price_usd,
        previous_price,
        price_change,
        price_change_percent,
        observed_at
    )
    SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::text,
           $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::timestamptz
    WHERE NOT EXISTS (
        SELECT 1 FROM price_history WHERE source_id = $1::text AND observed_at > $11::timestamptz
    );`

	listHistorySinceSQL = `SELECT ` + historyColumns + `
    FROM price_history
    WHERE observed_at > $1
    ORDER BY observed_at, id;`

	listHistoryForKeySQL = `SELECT * FROM (
        SELECT ` + historyColumns + `
        FROM price_history
        WHERE comparison_key = $1
        ORDER BY observed_at DESC, id DESC
        LIMIT $2
    ) recent
    ORDER BY observed_at, id;`

	insertAlertSQL = `INSERT INTO market_alerts (
        run_id,
        kind,
        comparison_key,
        source_id,
        magnitude,
        message,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	listRecentAlertsSQL = `SELECT
        id,
        run_id::text,
        kind,
        comparison_key,
        source_id,
        magnitude::text,
        message,
        created_at
    FROM market_alerts
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM market_alerts WHERE created_at < $1;`

	statsSQL = `SELECT
        (SELECT COUNT(*) FROM listings),
        (SELECT COUNT(*) FROM listings WHERE active),
        (SELECT COUNT(*) FROM price_history),
        (SELECT COUNT(*) FROM market_alerts);`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ListingStore defines operations for the current listing snapshot.
type ListingStore interface {
	UpsertListing(ctx context.Context, l market.Listing) error
	AllLiveListings(ctx context.Context) ([]market.Listing, error)
	ListingsByReference(ctx context.Context, reference string) ([]market.Listing, error)
	// KnownSourceIDs returns source ids first seen before the given time.
	KnownSourceIDs(ctx context.Context, before time.Time) (map[string]struct{}, error)
	// DeactivateStale marks every active listing not in seen as inactive.
	DeactivateStale(ctx context.Context, seen []string) (int64, error)
}

// HistoryReader exposes read access to price history.
type HistoryReader interface {
	HistorySince(ctx context.Context, since time.Time) ([]market.PriceHistoryEntry, error)
	// HistoryForKey returns up to limit most recent entries in ascending time order.
	// A non-positive limit returns everything.
	HistoryForKey(ctx context.Context, key string, limit int) ([]market.PriceHistoryEntry, error)
	SourcesWithoutHistory(ctx context.Context) ([]market.Listing, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlerts(ctx context.Context, alerts []alerting.Alert) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Repository is everything the service layer needs from persistence.
type Repository interface {
	history.Store
	ListingStore
	HistoryReader
	AlertStore
	AdvisoryLocker
	Stats(ctx context.Context) (Stats, error)
}

// Store aggregates Postgres access to listings, history and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, schemaSQL); execErr != nil {
		return fmt.Errorf("apply schema: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock also dies with the connection
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertListing inserts or refreshes a listing and marks it active.
func (s *Store) UpsertListing(ctx context.Context, l market.Listing) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var firstSeen interface{}
	if !l.FirstSeen.IsZero() {
		firstSeen = l.FirstSeen
	}

	_, execErr := pool.Exec(ctx, upsertListingSQL,
		l.SourceID,
		l.Source,
		l.URL,
		l.Brand,
		l.Model,
		l.ReferenceNumber,
		l.RawText,
		l.PriceUSD.String(),
		nullableString(l.DialType),
		nullableString(l.SpecialEdition),
		l.VariationTag,
		l.ComparisonKey,
		l.ScrapedAt,
		firstSeen,
	)
	if execErr != nil {
		return fmt.Errorf("upsert listing %s: %w", l.SourceID, execErr)
	}
	return nil
}

// AllLiveListings returns every active listing ordered by key then source id.
func (s *Store) AllLiveListings(ctx context.Context) ([]market.Listing, error) {
	return s.queryListings(ctx, "list live listings", listLiveListingsSQL)
}

// ListingsByReference returns active listings for one reference across all variants.
func (s *Store) ListingsByReference(ctx context.Context, reference string) ([]market.Listing, error) {
	return s.queryListings(ctx, "list listings by reference", listListingsByReferenceSQL, reference)
}

// SourcesWithoutHistory returns active listings that have no history entry yet.
func (s *Store) SourcesWithoutHistory(ctx context.Context) ([]market.Listing, error) {
	return s.queryListings(ctx, "list sources without history", listSourcesWithoutHistorySQL)
}

func (s *Store) queryListings(ctx context.Context, op, query string, args ...interface{}) ([]market.Listing, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", op, queryErr)
	}
	defer rows.Close()

	listings := make([]market.Listing, 0)
	for rows.Next() {
		l, scanErr := scanListing(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		listings = append(listings, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return listings, nil
}

// KnownSourceIDs lists source ids first seen before the given time.
func (s *Store) KnownSourceIDs(ctx context.Context, before time.Time) (map[string]struct{}, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listKnownSourcesSQL, before)
	if queryErr != nil {
		return nil, fmt.Errorf("list known sources: %w", queryErr)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, scanErr
		}
		known[id] = struct{}{}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return known, nil
}

// DeactivateStale marks active listings missing from seen as inactive.
func (s *Store) DeactivateStale(ctx context.Context, seen []string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if seen == nil {
		seen = []string{}
	}
	cmdTag, execErr := pool.Exec(ctx, deactivateMissingSQL, seen)
	if execErr != nil {
		return 0, fmt.Errorf("deactivate stale listings: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// LatestEntry returns the newest history entry for a source id, or nil.
func (s *Store) LatestEntry(ctx context.Context, sourceID string) (*market.PriceHistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestEntrySQL, sourceID)
	if queryErr != nil {
		return nil, fmt.Errorf("latest history entry: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, nil
	}
	entry, scanErr := scanHistory(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &entry, nil
}

// AppendHistory inserts an entry unless a newer one already exists for the source.
func (s *Store) AppendHistory(ctx context.Context, entry market.PriceHistoryEntry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, appendHistorySQL,
		entry.SourceID,
		entry.ComparisonKey,
		entry.Brand,
		entry.Model,
		entry.ReferenceNumber,
		entry.URL,
		entry.PriceUSD.String(),
		nullableDecimal(entry.PreviousPrice),
		nullableDecimal(entry.PriceChange),
		nullableDecimal(entry.PriceChangePercent),
		entry.ObservedAt,
	)
	if execErr != nil {
		return fmt.Errorf("append history: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		consistency := &market.ConsistencyError{SourceID: entry.SourceID, Attempted: entry.ObservedAt}
		if latest, latestErr := s.LatestEntry(ctx, entry.SourceID); latestErr == nil && latest != nil {
			consistency.Latest = latest.ObservedAt
		}
		return consistency
	}
	return nil
}

// HistorySince lists entries observed strictly after since.
func (s *Store) HistorySince(ctx context.Context, since time.Time) ([]market.PriceHistoryEntry, error) {
	return s.queryHistory(ctx, "list history since", listHistorySinceSQL, since)
}

// HistoryForKey lists the most recent entries for a comparison key.
func (s *Store) HistoryForKey(ctx context.Context, key string, limit int) ([]market.PriceHistoryEntry, error) {
	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	return s.queryHistory(ctx, "list history for key", listHistoryForKeySQL, key, lim)
}

func (s *Store) queryHistory(ctx context.Context, op, query string, args ...interface{}) ([]market.PriceHistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", op, queryErr)
	}
	defer rows.Close()

	entries := make([]market.PriceHistoryEntry, 0)
	for rows.Next() {
		entry, scanErr := scanHistory(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// InsertAlerts persists a batch of alerts in one round trip.
func (s *Store) InsertAlerts(ctx context.Context, alerts []alerting.Alert) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range alerts {
		runID, parseErr := uuid.Parse(a.RunID)
		if parseErr != nil {
			return fmt.Errorf("alert run id %q: %w", a.RunID, parseErr)
		}
		batch.Queue(insertAlertSQL,
			runID,
			string(a.Kind),
			a.ComparisonKey,
			a.SourceID,
			a.Magnitude.String(),
			a.Message,
			a.CreatedAt,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range alerts {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert alert: %w", execErr)
		}
	}
	return nil
}

// ListRecentAlerts returns recent alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var kind, magnitudeStr string
		if scanErr := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&kind,
			&rec.ComparisonKey,
			&rec.SourceID,
			&magnitudeStr,
			&rec.Message,
			&rec.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		rec.Kind = alerting.Kind(kind)

		var convErr error
		rec.Magnitude, convErr = decimal.NewFromString(magnitudeStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse alert magnitude: %w", convErr)
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// Stats counts rows in every table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	pool, err := s.getPool()
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	if scanErr := pool.QueryRow(ctx, statsSQL).Scan(
		&st.Listings,
		&st.ActiveListings,
		&st.HistoryEntries,
		&st.Alerts,
	); scanErr != nil {
		return Stats{}, fmt.Errorf("count rows: %w", scanErr)
	}
	return st, nil
}

func scanListing(rows pgx.Rows) (market.Listing, error) {
	var (
		l              market.Listing
		priceStr       string
		dialType       sql.NullString
		specialEdition sql.NullString
	)

	if err := rows.Scan(
		&l.SourceID,
		&l.Source,
		&l.URL,
		&l.Brand,
		&l.Model,
		&l.ReferenceNumber,
		&l.RawText,
		&priceStr,
		&dialType,
		&specialEdition,
		&l.VariationTag,
		&l.ComparisonKey,
		&l.ScrapedAt,
		&l.FirstSeen,
		&l.Active,
	); err != nil {
		return market.Listing{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return market.Listing{}, fmt.Errorf("parse listing price: %w", err)
	}
	l.PriceUSD = price

	if dialType.Valid {
		value := dialType.String
		l.DialType = &value
	}
	if specialEdition.Valid {
		value := specialEdition.String
		l.SpecialEdition = &value
	}
	return l, nil
}

func scanHistory(rows pgx.Rows) (market.PriceHistoryEntry, error) {
	var (
		e         market.PriceHistoryEntry
		priceStr  string
		previous  sql.NullString
		change    sql.NullString
		changePct sql.NullString
	)

	if err := rows.Scan(
		&e.ID,
		&e.SourceID,
		&e.ComparisonKey,
		&e.Brand,
		&e.Model,
		&e.ReferenceNumber,
		&e.URL,
		&priceStr,
		&previous,
		&change,
		&changePct,
		&e.ObservedAt,
	); err != nil {
		return market.PriceHistoryEntry{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return market.PriceHistoryEntry{}, fmt.Errorf("parse history price: %w", err)
	}
	e.PriceUSD = price

	if e.PreviousPrice, err = parseNullDecimal(previous); err != nil {
		return market.PriceHistoryEntry{}, fmt.Errorf("parse previous price: %w", err)
	}
	if e.PriceChange, err = parseNullDecimal(change); err != nil {
		return market.PriceHistoryEntry{}, fmt.Errorf("parse price change: %w", err)
	}
	if e.PriceChangePercent, err = parseNullDecimal(changePct); err != nil {
		return market.PriceHistoryEntry{}, fmt.Errorf("parse price change percent: %w", err)
	}
	return e, nil
}

func parseNullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

var _ Repository = (*Store)(nil)
