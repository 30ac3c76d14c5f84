package app

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"watch-arb-alerts/internal/market"
)

// Classify prints the variation tag and comparison key derived from text, or
// the active rule table when ListRules is set.
func (a *App) Classify(opts ClassifyOptions) error {
	classifier, err := a.newClassifier()
	if err != nil {
		return err
	}

	if opts.ListRules {
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "#\tTag\tPositives\tNegatives")
		for i, r := range classifier.Rules().Rules() {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\n", i+1, r.Tag, strings.Join(r.Positives, ", "), strings.Join(r.Negatives, ", "))
		}
		if err := writer.Flush(); err != nil {
			return err
		}
		for _, o := range classifier.Rules().Overlaps() {
			fmt.Fprintf(a.Out, "overlap: %q matches %s first, shadowing %s\n", o.Trigger, o.Winner, o.Shadow)
		}
		return nil
	}

	if strings.TrimSpace(opts.Text) == "" {
		return errors.New("--text is required unless --rules is set")
	}

	res := classifier.Classify(opts.Text)
	fmt.Fprintf(a.Out, "tag: %s\n", res.Tag)
	if res.Matched() {
		fmt.Fprintf(a.Out, "trigger: %s\n", res.Trigger)
	}
	if res.DialType != nil {
		fmt.Fprintf(a.Out, "dial: %s\n", *res.DialType)
	}
	if res.SpecialEdition != nil {
		fmt.Fprintf(a.Out, "edition: %s\n", *res.SpecialEdition)
	}

	if opts.Reference != "" {
		key, err := market.BuildComparisonKey(opts.Reference, res.Tag)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "key: %s\n", key)
	}
	return nil
}
