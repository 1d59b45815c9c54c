package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SentimentLabel is the signed outcome of classifying a post
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentUnclear  SentimentLabel = "unclear"
)

// MatchConfidence records how a ticker was spotted in text
type MatchConfidence string

const (
	// MatchExact is a $-prefixed cashtag
	MatchExact MatchConfidence = "exact-match"
	// MatchFuzzy is a bare upper-case token
	MatchFuzzy MatchConfidence = "fuzzy-match"
)

// Post is a single ingested social-media post. Immutable once ingested.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    string    `json:"author,omitempty"`
	Score     int       `json:"score"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RawText joins title and body the way classification and extraction see it
func (p Post) RawText() string {
	switch {
	case p.Title == "":
		return p.Body
	case p.Body == "":
		return p.Title
	}
	return p.Title + "\n" + p.Body
}

type SentimentResult struct {
	PostID string         `json:"post_id"`
	Label  SentimentLabel `json:"label"`
	Score  float64        `json:"score"`
	Rule   string         `json:"rule"`
}

type TickerMention struct {
	PostID     string          `json:"post_id"`
	Symbol     string          `json:"symbol"`
	Confidence MatchConfidence `json:"confidence"`
}

// OptionContract is one put quote from a chain snapshot
type OptionContract struct {
	Symbol            string    `json:"symbol" yaml:"symbol"`
	Strike            float64   `json:"strike" yaml:"strike"`
	ExpirationDate    time.Time `json:"expiration_date" yaml:"expiration_date"`
	Bid               float64   `json:"bid" yaml:"bid"`
	Ask               float64   `json:"ask" yaml:"ask"`
	OpenInterest      int64     `json:"open_interest" yaml:"open_interest"`
	ImpliedVolatility *float64  `json:"implied_volatility,omitempty" yaml:"implied_volatility,omitempty"`
	UnderlyingPrice   *float64  `json:"underlying_price,omitempty" yaml:"underlying_price,omitempty"`
}

// Mid returns the premium estimate (bid+ask)/2
func (c OptionContract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// SpreadPct returns (ask-bid)/mid as a fraction. Callers must reject mid <= 0 first.
func (c OptionContract) SpreadPct() float64 {
	return (c.Ask - c.Bid) / c.Mid()
}

// Collateral is the cash needed to secure one contract
func (c OptionContract) Collateral() float64 {
	return c.Strike * 100
}

// ScreenedCandidate is a contract that passed every guardrail
type ScreenedCandidate struct {
	Symbol           string         `json:"symbol"`
	Contract         OptionContract `json:"contract"`
	WeeklyYield      float64        `json:"weekly_yield"`
	PassedGuardrails bool           `json:"passed_guardrails"`
	Caveats          []Caveat       `json:"caveats,omitempty"`
}

// GuardrailConfig is fixed for the duration of a run
type GuardrailConfig struct {
	MinOpenInterest      int64   `json:"min_open_interest"`
	MaxSpreadPct         float64 `json:"max_spread_pct"` // fraction, 0.10 = 10%
	EarningsBlackoutDays int     `json:"earnings_blackout_days"`
	AccountSize          float64 `json:"account_size"`
	MaxStrike            float64 `json:"max_strike,omitempty"` // 0 disables
	ExcludeEarnings      bool    `json:"exclude_earnings"`
	DeltaMin             float64 `json:"delta_min,omitempty"` // absolute put delta
	DeltaMax             float64 `json:"delta_max,omitempty"` // 0 disables
	RiskFreeRate         float64 `json:"risk_free_rate,omitempty"`
}

type CaveatKind string

const (
	CaveatCalendarUnverified CaveatKind = "calendar-unverified"
	CaveatEarningsUnverified CaveatKind = "earnings-unverified"
	CaveatDataQuality        CaveatKind = "data-quality"
)

type Caveat struct {
	Symbol string     `json:"symbol,omitempty"`
	Kind   CaveatKind `json:"kind"`
	Detail string     `json:"detail"`
}

type SkipReason string

const (
	SkipFetchFailed      SkipReason = "fetch-failed"
	SkipFetchTimeout     SkipReason = "fetch-timeout"
	SkipEarningsBlackout SkipReason = "earnings-blackout"
	SkipNoContracts      SkipReason = "no-contracts"

	// SkipNoEligibleContracts means every contract failed a guardrail; Detail has the counts
	SkipNoEligibleContracts SkipReason = "no-eligible-contracts"
)

type SkippedSymbol struct {
	Symbol string     `json:"symbol"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// RunState is a stage of the screening pipeline
type RunState string

const (
	StateIdle             RunState = "Idle"
	StatePostsIngested    RunState = "PostsIngested"
	StateClassified       RunState = "Classified"
	StateTickersExtracted RunState = "TickersExtracted"
	StateTickersValidated RunState = "TickersValidated"
	StateChainsFetched    RunState = "ChainsFetched"
	StateScreened         RunState = "Screened"
	StateRanked           RunState = "Ranked"
	StateDone             RunState = "Done"
)

// RunResult is everything the output formatter receives for one run
type RunResult struct {
	RunID           string                 `json:"run_id"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at"`
	State           RunState               `json:"state"`
	AsOf            time.Time              `json:"as_of"`
	Expiry          time.Time              `json:"expiry"`
	ExpiryVerified  bool                   `json:"expiry_verified"`
	Guardrails      GuardrailConfig        `json:"guardrails"`
	PostsAnalyzed   int                    `json:"posts_analyzed"`
	SentimentCounts map[SentimentLabel]int `json:"sentiment_counts"`
	MentionCounts   map[string]int         `json:"mention_counts"`
	ScreenedSymbols []string               `json:"screened_symbols"`
	Candidates      []ScreenedCandidate    `json:"candidates"`
	Skipped         []SkippedSymbol        `json:"skipped,omitempty"`
	Caveats         []Caveat               `json:"caveats,omitempty"`
}

// Degraded reports whether the run carries skips or caveats
func (r *RunResult) Degraded() bool {
	return len(r.Skipped) > 0 || len(r.Caveats) > 0
}

var (
	ErrConfigInvalid       = errors.New("config invalid")
	ErrNoPosts             = errors.New("no posts ingested")
	ErrNoValidTickers      = errors.New("no valid tickers with positive sentiment")
	ErrCalendarUnavailable = errors.New("market calendar unavailable")
	ErrEarningsUnavailable = errors.New("earnings lookup unavailable")
)

// FetchError wraps a per-symbol chain fetch failure
type FetchError struct {
	Symbol  string
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("chain fetch for %s timed out: %v", e.Symbol, e.Err)
	}
	return fmt.Sprintf("chain fetch for %s failed: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigError lists every invalid field found during validation
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "config invalid: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfigInvalid }
