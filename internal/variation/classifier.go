package variation

import (
	"strings"

	"watch-arb-alerts/internal/market"
)

// Result is the outcome of classifying one listing text.
type Result struct {
	Tag            string
	DialType       *string
	SpecialEdition *string
	// Trigger is the positive phrase that fired; empty for the default tag.
	Trigger string
}

// Matched reports whether a rule fired.
func (r Result) Matched() bool {
	return r.Tag != market.DefaultTag
}

// Classifier assigns variation tags. It holds no mutable state and is safe for
// concurrent use.
type Classifier struct {
	rules *RuleSet
}

// NewClassifier wraps a rule set. A nil set falls back to the defaults.
func NewClassifier(rules *RuleSet) *Classifier {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &Classifier{rules: rules}
}

// Rules exposes the underlying table.
func (c *Classifier) Rules() *RuleSet {
	return c.rules
}

// Classify returns the tag of the first rule, in priority order, with a
// matching positive trigger and no matching negative trigger.
func (c *Classifier) Classify(rawText string) Result {
	text := normalise(rawText)
	if text == "" {
		return Result{Tag: market.DefaultTag}
	}

	for _, rule := range c.rules.rules {
		trigger := firstMatch(text, rule.Positives)
		if trigger == "" {
			continue
		}
		if firstMatch(text, rule.Negatives) != "" {
			continue
		}
		return Result{
			Tag:            rule.Tag,
			DialType:       optional(rule.DialType),
			SpecialEdition: optional(rule.SpecialEdition),
			Trigger:        trigger,
		}
	}
	return Result{Tag: market.DefaultTag}
}

// Label classifies a listing and derives its comparison key.
func (c *Classifier) Label(l market.Listing) (market.Listing, error) {
	res := c.Classify(l.RawText)
	key, err := market.BuildComparisonKey(l.ReferenceNumber, res.Tag)
	if err != nil {
		return l, err
	}
	l.VariationTag = res.Tag
	l.DialType = res.DialType
	l.SpecialEdition = res.SpecialEdition
	l.ComparisonKey = key
	return l, nil
}

func firstMatch(text string, triggers []string) string {
	for _, t := range triggers {
		if strings.Contains(text, t) {
			return t
		}
	}
	return ""
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
