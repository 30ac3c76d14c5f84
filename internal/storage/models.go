package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"watch-arb-alerts/internal/alerting"
)

// AlertRecord is a persisted alert.
type AlertRecord struct {
	ID            int64
	RunID         string
	Kind          alerting.Kind
	ComparisonKey string
	SourceID      string
	Magnitude     decimal.Decimal
	Message       string
	CreatedAt     time.Time
}

// Alert converts the record back into the alerting form.
func (r AlertRecord) Alert() alerting.Alert {
	return alerting.Alert{
		RunID:         r.RunID,
		Kind:          r.Kind,
		ComparisonKey: r.ComparisonKey,
		SourceID:      r.SourceID,
		Magnitude:     r.Magnitude,
		Message:       r.Message,
		CreatedAt:     r.CreatedAt,
	}
}

// Stats summarises table sizes for the show command.
type Stats struct {
	Listings       int64
	ActiveListings int64
	HistoryEntries int64
	Alerts         int64
}
