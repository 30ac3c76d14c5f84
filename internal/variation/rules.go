package variation

import (
	"fmt"
	"regexp"
	"strings"

	"watch-arb-alerts/internal/market"
)

var tagPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Rule maps trigger phrases to a variation tag. Negatives veto the rule even
// when a positive trigger fires.
type Rule struct {
	Tag            string   `mapstructure:"tag"`
	Positives      []string `mapstructure:"positives"`
	Negatives      []string `mapstructure:"negatives"`
	DialType       string   `mapstructure:"dial_type"`
	SpecialEdition string   `mapstructure:"special_edition"`
}

// RuleSet is an ordered, validated rule table. Index 0 has the highest priority.
type RuleSet struct {
	rules []Rule
}

// Overlap records two rules sharing a positive trigger. The earlier rule
// always wins for that trigger.
type Overlap struct {
	Trigger string
	Winner  string
	Shadow  string
}

// NewRuleSet normalises and validates rules, preserving their order.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	seen := make(map[string]struct{}, len(rules))
	normalised := make([]Rule, 0, len(rules))

	for i, r := range rules {
		tag := strings.TrimSpace(r.Tag)
		if !tagPattern.MatchString(tag) {
			return nil, &market.ValidationError{Field: "rule.tag", Value: r.Tag, Reason: fmt.Sprintf("rule %d: tag must match [a-z0-9_]+", i)}
		}
		if tag == market.DefaultTag {
			return nil, &market.ValidationError{Field: "rule.tag", Value: tag, Reason: "reserved for unmatched listings"}
		}
		if _, dup := seen[tag]; dup {
			return nil, &market.ValidationError{Field: "rule.tag", Value: tag, Reason: "duplicate tag"}
		}
		seen[tag] = struct{}{}

		positives, err := normaliseTriggers(tag, "positives", r.Positives)
		if err != nil {
			return nil, err
		}
		if len(positives) == 0 {
			return nil, &market.ValidationError{Field: "rule.positives", Value: tag, Reason: "at least one positive trigger required"}
		}
		negatives, err := normaliseTriggers(tag, "negatives", r.Negatives)
		if err != nil {
			return nil, err
		}

		normalised = append(normalised, Rule{
			Tag:            tag,
			Positives:      positives,
			Negatives:      negatives,
			DialType:       strings.TrimSpace(r.DialType),
			SpecialEdition: strings.TrimSpace(r.SpecialEdition),
		})
	}

	return &RuleSet{rules: normalised}, nil
}

// MustRuleSet panics on invalid input. Intended for static tables.
func MustRuleSet(rules []Rule) *RuleSet {
	rs, err := NewRuleSet(rules)
	if err != nil {
		panic("variation: " + err.Error())
	}
	return rs
}

// Rules returns a copy of the ordered table.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = Rule{
			Tag:            r.Tag,
			Positives:      append([]string(nil), r.Positives...),
			Negatives:      append([]string(nil), r.Negatives...),
			DialType:       r.DialType,
			SpecialEdition: r.SpecialEdition,
		}
	}
	return out
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Tags lists rule tags in priority order.
func (rs *RuleSet) Tags() []string {
	tags := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		tags[i] = r.Tag
	}
	return tags
}

// Overlaps lists positive triggers of later rules that an earlier rule also
// fires on, so the later rule can never win for that phrase.
func (rs *RuleSet) Overlaps() []Overlap {
	var out []Overlap
	for i, later := range rs.rules {
		for _, trigger := range later.Positives {
			for _, earlier := range rs.rules[:i] {
				if containsAny(trigger, earlier.Positives) && !containsAny(trigger, earlier.Negatives) {
					out = append(out, Overlap{Trigger: trigger, Winner: earlier.Tag, Shadow: later.Tag})
					break
				}
			}
		}
	}
	return out
}

// Extend returns a new set with extra rules appended at the lowest priority.
func (rs *RuleSet) Extend(extra []Rule) (*RuleSet, error) {
	return NewRuleSet(append(rs.Rules(), extra...))
}

func normaliseTriggers(tag, field string, triggers []string) ([]string, error) {
	out := make([]string, 0, len(triggers))
	for _, t := range triggers {
		n := normalise(t)
		if n == "" {
			return nil, &market.ValidationError{Field: "rule." + field, Value: tag, Reason: "empty trigger"}
		}
		out = append(out, n)
	}
	return out, nil
}

// normalise lowercases and collapses whitespace runs to single spaces.
func normalise(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsAny(text string, triggers []string) bool {
	for _, t := range triggers {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
