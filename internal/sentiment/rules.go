package sentiment

import (
	"fmt"
	"regexp"

	"thetagang-wheel/internal/types"
)

// Rule is an outcome override. The first rule whose pattern matches the normalized text fixes the result.
type Rule struct {
	Name  string
	Label types.SentimentLabel
	Score float64
	match []*regexp.Regexp
}

func (r Rule) matches(normalized string) bool {
	for _, re := range r.match {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// NewRule builds an override from expressions matched against the lower-cased text,
// with runs of whitespace collapsed to one space
func NewRule(name string, label types.SentimentLabel, score float64, exprs ...string) (Rule, error) {
	r := Rule{Name: name, Label: label, Score: score}
	for _, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: %w", name, err)
		}
		r.match = append(r.match, re)
	}
	return r, nil
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Losses are checked before profits: a post reporting both is not a clean win.
var defaultRules = []Rule{
	{
		Name:  "negative-outcome",
		Label: types.SentimentNegative,
		Score: -0.9,
		match: patterns(
			`\bblew up\b`,
			`\bclosed (it |them )?for (a )?loss\b`,
			`\btook (a )?loss\b`,
			`\brealized (a )?loss\b`,
			`\brolled for (a )?debit\b`,
			`\bdebit to roll\b`,
			`\bgot (burned|wrecked|rekt)\b`,
			`(^|[\s(])-\$\d`,
			`(^|[\s(])-\d+(\.\d+)?%`,
			`\bp/?l:?\s*-\s*\$?\d`,
		),
	},
	{
		Name:  "positive-outcome",
		Label: types.SentimentPositive,
		Score: 0.9,
		match: patterns(
			`\btook (some )?profits?\b`,
			`\bclosed (it |them )?for (a )?profit\b`,
			`\brealized (a )?profit\b`,
			`\bexpired worthless\b`,
			`\bcredit received\b`,
			`\bputs? looking (great|good)\b`,
			`(^|[\s(])\+\$\d`,
			`(^|[\s(])\+\d+(\.\d+)?%`,
			`\bp/?l:?\s*\+\s*\$?\d`,
		),
	},
	{
		Name:  "unclear-outcome",
		Label: types.SentimentUnclear,
		Score: 0,
		match: patterns(
			`\bstill holding\b`,
			`\bcontinuing to hold\b`,
			`\bposition is (still )?open\b`,
			`\brolled (the|my) `,
			`\brolling\b`,
			`\bmonitoring\b`,
			`\bwatching\b`,
		),
	},
}

// DefaultRules returns a copy of the built-in override list in priority order
func DefaultRules() []Rule {
	return append([]Rule(nil), defaultRules...)
}
