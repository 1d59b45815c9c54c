package ranker

import (
	"sort"

	"thetagang-wheel/internal/types"
)

// Input is one screened contract plus the caveats its symbol carries
type Input struct {
	Contract types.OptionContract
	Caveats  []types.Caveat
}

// Yield is the weekly premium over collateral: mid / (strike * 100)
func Yield(c types.OptionContract) float64 {
	return c.Mid() / c.Collateral()
}

// Rank orders candidates by yield descending, then open interest descending, strike ascending,
// symbol and expiration ascending. The input slice is left untouched.
func Rank(inputs []Input) []types.ScreenedCandidate {
	out := make([]types.ScreenedCandidate, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, types.ScreenedCandidate{
			Symbol:           in.Contract.Symbol,
			Contract:         in.Contract,
			WeeklyYield:      Yield(in.Contract),
			PassedGuardrails: true,
			Caveats:          in.Caveats,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Less is the ranking order
func Less(a, b types.ScreenedCandidate) bool {
	if a.WeeklyYield != b.WeeklyYield {
		return a.WeeklyYield > b.WeeklyYield
	}
	if a.Contract.OpenInterest != b.Contract.OpenInterest {
		return a.Contract.OpenInterest > b.Contract.OpenInterest
	}
	if a.Contract.Strike != b.Contract.Strike {
		return a.Contract.Strike < b.Contract.Strike
	}
	if a.Symbol != b.Symbol {
		return a.Symbol < b.Symbol
	}
	return a.Contract.ExpirationDate.Before(b.Contract.ExpirationDate)
}

// Top keeps the first n candidates; n <= 0 keeps all
func Top(ranked []types.ScreenedCandidate, n int) []types.ScreenedCandidate {
	if n <= 0 || len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}
