package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind names the analysis that produced an alert.
type Kind string

const (
	KindArbitrage    Kind = "arbitrage"
	KindLargeChange  Kind = "large_change"
	KindRareSighting Kind = "rare_sighting"
)

// Alert is a structured market event plus its plain-text rendering.
type Alert struct {
	RunID         string
	Kind          Kind
	ComparisonKey string
	SourceID      string
	// Magnitude orders alerts of the same kind: spread in USD for arbitrage,
	// absolute percent for large changes, zero for sightings.
	Magnitude decimal.Decimal
	Message   string
	CreatedAt time.Time
}

func (k Kind) label() string {
	switch k {
	case KindArbitrage:
		return "New arbitrage opportunity"
	case KindLargeChange:
		return "Large price change"
	case KindRareSighting:
		return "Rare watch detected"
	default:
		return string(k)
	}
}

// Render builds a plain-text digest of alerts for a notifier.
func Render(generatedAt time.Time, alerts []Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Watch Market Alert] %s UTC\n", generatedAt.UTC().Format("2006-01-02 15:04")))
	builder.WriteString(fmt.Sprintf("%d significant market events detected\n", len(alerts)))
	for _, a := range alerts {
		builder.WriteString(fmt.Sprintf("- %s: %s\n", a.Kind.label(), a.Message))
	}
	return builder.String()
}

// FormatUSD renders whole dollars with thousands separators, e.g. $27,000.
func FormatUSD(d decimal.Decimal) string {
	s := d.Round(0).Abs().StringFixed(0)
	var out strings.Builder
	if d.Round(0).Sign() < 0 {
		out.WriteByte('-')
	}
	out.WriteByte('$')
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(r)
	}
	return out.String()
}

// FormatPercent renders a signed percentage with one decimal, e.g. +15.0%.
func FormatPercent(d decimal.Decimal) string {
	if d.Sign() >= 0 {
		return "+" + d.StringFixed(1) + "%"
	}
	return d.StringFixed(1) + "%"
}
