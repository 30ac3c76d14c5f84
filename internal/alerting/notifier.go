package alerting

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier hands alerts to a delivery subsystem.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// LogNotifier writes alerts to the structured log. It is the fallback when no
// delivery channel is wired.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs each alert at warn level.
func (n *LogNotifier) Notify(ctx context.Context, alerts []Alert) error {
	for _, a := range alerts {
		n.logger.Warn().
			Str("run_id", a.RunID).
			Str("kind", string(a.Kind)).
			Str("comparison_key", a.ComparisonKey).
			Str("source_id", a.SourceID).
			Msg("ALERT: " + a.Message)
	}
	return nil
}

// MultiNotifier fans alerts out to every configured notifier.
type MultiNotifier []Notifier

// Notify calls each notifier and joins their errors.
func (m MultiNotifier) Notify(ctx context.Context, alerts []Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alerts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Collector retains every notified batch in memory for inspection in tests.
type Collector struct {
	Batches [][]Alert
}

// Notify stores the batch.
func (c *Collector) Notify(ctx context.Context, alerts []Alert) error {
	c.Batches = append(c.Batches, append([]Alert(nil), alerts...))
	return nil
}

// NewNotifier builds the notifier for the configured channel names. Unknown
// names are rejected.
func NewNotifier(channels []string, logger zerolog.Logger) (Notifier, error) {
	var out MultiNotifier
	for _, ch := range channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case "log", "":
			out = append(out, NewLogNotifier(logger))
		default:
			return nil, errors.New("alerting: unsupported channel " + ch)
		}
	}
	if len(out) == 0 {
		out = append(out, NewLogNotifier(logger))
	}
	return out, nil
}

// Stamp fills run id and creation time on alerts missing them.
func Stamp(alerts []Alert, runID string, at time.Time) {
	for i := range alerts {
		if alerts[i].RunID == "" {
			alerts[i].RunID = runID
		}
		if alerts[i].CreatedAt.IsZero() {
			alerts[i].CreatedAt = at
		}
	}
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = MultiNotifier(nil)
	_ Notifier = (*Collector)(nil)
)
