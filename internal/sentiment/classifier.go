package sentiment

import (
	"math"
	"strings"
	"unicode"

	"thetagang-wheel/internal/types"
)

const (
	DefaultPositiveThreshold = 0.05
	DefaultNegativeThreshold = -0.05

	ruleLexicon = "lexicon"
)

// Classifier labels post text. It is stateless after construction and safe for concurrent use.
type Classifier struct {
	positive float64
	negative float64
	rules    []Rule
}

type Option func(*Classifier)

// WithThresholds sets the cut-offs: score > positive is positive, score < negative is negative
func WithThresholds(positive, negative float64) Option {
	return func(c *Classifier) {
		c.positive = positive
		c.negative = negative
	}
}

// WithRules replaces the outcome overrides. Order is priority. Build custom rules with NewRule
// and start from DefaultRules to extend the built-in list.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		c.rules = append([]Rule(nil), rules...)
	}
}

func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		positive: DefaultPositiveThreshold,
		negative: DefaultNegativeThreshold,
		rules:    defaultRules,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify scores text and never fails. Empty or letter-free text is unclear with score 0.
func (c *Classifier) Classify(postID, text string) types.SentimentResult {
	result := types.SentimentResult{PostID: postID, Label: types.SentimentUnclear, Rule: ruleLexicon}
	if !hasLetter(text) {
		return result
	}

	normalized := normalize(text)
	for _, r := range c.rules {
		if r.matches(normalized) {
			result.Label = r.Label
			result.Score = r.Score
			result.Rule = r.Name
			return result
		}
	}

	result.Score = Polarity(normalized)
	result.Label = c.label(result.Score)
	return result
}

// ClassifyPost classifies the post's joined title and body
func (c *Classifier) ClassifyPost(p types.Post) types.SentimentResult {
	return c.Classify(p.ID, p.RawText())
}

func (c *Classifier) label(score float64) types.SentimentLabel {
	switch {
	case score > c.positive:
		return types.SentimentPositive
	case score < c.negative:
		return types.SentimentNegative
	default:
		return types.SentimentUnclear
	}
}

// Polarity is the lexicon baseline in [-1, 1]
func Polarity(text string) float64 {
	words := tokenize(strings.ToLower(text))

	sum := 0.0
	for i, w := range words {
		v, ok := valence[w]
		if !ok {
			continue
		}
		if negated(words, i) {
			v *= negationScalar
		}
		sum += v
	}
	if sum == 0 {
		return 0
	}
	return sum / math.Sqrt(sum*sum+alpha)
}

func negated(words []string, i int) bool {
	for j := max(0, i-negationWindow); j < i; j++ {
		if negators[words[j]] {
			return true
		}
	}
	return false
}

// Distribution counts results per label. All three labels are always present.
func Distribution(results []types.SentimentResult) map[types.SentimentLabel]int {
	dist := map[types.SentimentLabel]int{
		types.SentimentPositive: 0,
		types.SentimentNegative: 0,
		types.SentimentUnclear:  0,
	}
	for _, r := range results {
		dist[r.Label]++
	}
	return dist
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// tokenize splits on anything that is not a letter, digit or inner apostrophe
func tokenize(text string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, strings.Trim(current.String(), "'"))
			current.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return words
}

func hasLetter(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
