package screener

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"thetagang-wheel/internal/calendar"
	"thetagang-wheel/internal/interfaces"
	"thetagang-wheel/internal/logger"
	"thetagang-wheel/internal/types"
)

// DropReason names the first guardrail a contract failed
type DropReason string

const (
	DropWrongExpiry      DropReason = "wrong-expiry"
	DropDataQuality      DropReason = "data-quality"
	DropOpenInterest     DropReason = "open-interest"
	DropSpread           DropReason = "spread"
	DropMaxStrike        DropReason = "max-strike"
	DropCollateral       DropReason = "collateral"
	DropDelta            DropReason = "delta"
	DropEarningsBlackout DropReason = "earnings-blackout"
)

// Screening is the outcome for one symbol
type Screening struct {
	Symbol       string
	Passed       []types.OptionContract
	Dropped      map[DropReason]int
	Caveats      []types.Caveat
	Blackout     bool
	EarningsDate time.Time // zero when unknown or not looked up
}

// DropSummary lists the drop counts as "reason=n" pairs sorted by reason
func (s Screening) DropSummary() string {
	parts := make([]string, 0, len(s.Dropped))
	for _, reason := range slices.Sorted(maps.Keys(s.Dropped)) {
		parts = append(parts, fmt.Sprintf("%s=%d", reason, s.Dropped[reason]))
	}
	return strings.Join(parts, ", ")
}

type Screener struct {
	earnings interfaces.EarningsLookup
	now      func() time.Time
}

type Option func(*Screener)

// WithClock sets the time the delta guardrail measures time to expiry from
func WithClock(now func() time.Time) Option {
	return func(s *Screener) {
		s.now = now
	}
}

// New returns a screener. A nil lookup fails the earnings guardrail open with a caveat.
func New(earnings interfaces.EarningsLookup, opts ...Option) *Screener {
	s := &Screener{earnings: earnings, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var hundred = decimal.NewFromInt(100)

// Screen keeps the contracts that pass every guardrail. Nothing in chain is modified.
// The earnings lookup only runs when at least one contract survives the quote checks.
func (s *Screener) Screen(ctx context.Context, symbol string, chain []types.OptionContract, cfg types.GuardrailConfig, expiry time.Time) Screening {
	res := Screening{
		Symbol:  symbol,
		Dropped: make(map[DropReason]int),
	}

	deltaUnchecked := 0
	for _, c := range chain {
		if reason, ok := check(c, cfg, expiry); !ok {
			res.Dropped[reason]++
			continue
		}
		if cfg.DeltaMax > 0 {
			d, ok := s.delta(c, cfg, expiry)
			switch {
			case !ok:
				deltaUnchecked++
			case d < cfg.DeltaMin || d > cfg.DeltaMax:
				res.Dropped[DropDelta]++
				continue
			}
		}
		res.Passed = append(res.Passed, c)
	}

	if n := res.Dropped[DropDataQuality]; n > 0 {
		res.Caveats = append(res.Caveats, types.Caveat{
			Symbol: symbol,
			Kind:   types.CaveatDataQuality,
			Detail: fmt.Sprintf("%d of %d contracts dropped for unusable quotes", n, len(chain)),
		})
	}
	if deltaUnchecked > 0 {
		res.Caveats = append(res.Caveats, types.Caveat{
			Symbol: symbol,
			Kind:   types.CaveatDataQuality,
			Detail: fmt.Sprintf("delta not checked for %d contracts without implied volatility or underlying price", deltaUnchecked),
		})
	}

	if len(res.Passed) > 0 && cfg.ExcludeEarnings {
		s.applyEarnings(ctx, &res, cfg, expiry)
	}

	logger.Debug(ctx, "Symbol screened",
		"symbol", symbol,
		"contracts", len(chain),
		"passed", len(res.Passed),
		"blackout", res.Blackout,
		"caveats", len(res.Caveats))
	return res
}

func (s *Screener) applyEarnings(ctx context.Context, res *Screening, cfg types.GuardrailConfig, expiry time.Time) {
	if s.earnings == nil {
		res.Caveats = append(res.Caveats, types.Caveat{
			Symbol: res.Symbol,
			Kind:   types.CaveatEarningsUnverified,
			Detail: "no earnings source configured",
		})
		return
	}

	date, found, err := s.earnings.NextEarnings(ctx, res.Symbol)
	if err != nil {
		logger.Warn(ctx, "Earnings lookup failed, guardrail skipped", "symbol", res.Symbol, "error", err)
		res.Caveats = append(res.Caveats, types.Caveat{
			Symbol: res.Symbol,
			Kind:   types.CaveatEarningsUnverified,
			Detail: fmt.Sprintf("earnings lookup failed: %v", err),
		})
		return
	}
	if !found {
		return
	}

	res.EarningsDate = date
	if InBlackout(date, expiry, cfg.EarningsBlackoutDays) {
		res.Blackout = true
		res.Dropped[DropEarningsBlackout] += len(res.Passed)
		res.Passed = nil
	}
}

// InBlackout reports whether earnings falls within days calendar days of expiry, either side
func InBlackout(earnings, expiry time.Time, days int) bool {
	d := calendar.DaysBetween(expiry, earnings)
	if d < 0 {
		d = -d
	}
	return d <= days
}

// delta returns the absolute put delta, or false when the quote lacks the inputs
func (s *Screener) delta(c types.OptionContract, cfg types.GuardrailConfig, expiry time.Time) (float64, bool) {
	if c.ImpliedVolatility == nil || c.UnderlyingPrice == nil {
		return 0, false
	}
	// expiry is a date; the contract lives until the end of it
	left := expiry.AddDate(0, 0, 1).Sub(s.now())
	left = max(left, 24*time.Hour)
	years := left.Hours() / (24 * 365)

	d := PutDelta(*c.UnderlyingPrice, c.Strike, years, cfg.RiskFreeRate, *c.ImpliedVolatility)
	if math.IsNaN(d) {
		return 0, false
	}
	return -d, true
}

// check returns the first failed guardrail
func check(c types.OptionContract, cfg types.GuardrailConfig, expiry time.Time) (DropReason, bool) {
	if !calendar.SameDay(c.ExpirationDate, expiry) {
		return DropWrongExpiry, false
	}
	if c.Bid < 0 || c.Ask < 0 || c.Ask < c.Bid || c.Strike <= 0 || c.Mid() <= 0 {
		return DropDataQuality, false
	}
	if c.OpenInterest < cfg.MinOpenInterest {
		return DropOpenInterest, false
	}

	bid := decimal.NewFromFloat(c.Bid)
	ask := decimal.NewFromFloat(c.Ask)
	// (ask-bid)/mid <= max  <=>  2(ask-bid) <= max(ask+bid)
	if ask.Sub(bid).Mul(decimal.NewFromInt(2)).GreaterThan(decimal.NewFromFloat(cfg.MaxSpreadPct).Mul(ask.Add(bid))) {
		return DropSpread, false
	}

	strike := decimal.NewFromFloat(c.Strike)
	if cfg.MaxStrike > 0 && strike.GreaterThan(decimal.NewFromFloat(cfg.MaxStrike)) {
		return DropMaxStrike, false
	}
	if strike.Mul(hundred).GreaterThan(decimal.NewFromFloat(cfg.AccountSize)) {
		return DropCollateral, false
	}
	return "", true
}
