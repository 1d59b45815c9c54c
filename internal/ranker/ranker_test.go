package ranker

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thetagang-wheel/internal/types"
)

var expiry = time.Date(2025, time.May, 9, 0, 0, 0, 0, time.UTC)

func contract(symbol string, strike, bid, ask float64, oi int64) types.OptionContract {
	return types.OptionContract{Symbol: symbol, Strike: strike, ExpirationDate: expiry, Bid: bid, Ask: ask, OpenInterest: oi}
}

func TestRankEqualYieldPrefersOpenInterest(t *testing.T) {
	a := contract("AAPL", 50, 0.58, 0.62, 100)
	b := contract("MSFT", 50, 0.58, 0.62, 150)
	require.Equal(t, Yield(a), Yield(b))

	ranked := Rank([]Input{{Contract: a}, {Contract: b}})
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(150), ranked[0].Contract.OpenInterest)
	assert.Equal(t, "MSFT", ranked[0].Symbol)
}

func TestLessTieBreaks(t *testing.T) {
	base := types.ScreenedCandidate{Symbol: "AAPL", Contract: contract("AAPL", 50, 1, 1.05, 100), WeeklyYield: 0.012}

	lowerStrike := base
	lowerStrike.Contract.Strike = 45
	assert.True(t, Less(lowerStrike, base))
	assert.False(t, Less(base, lowerStrike))

	otherSymbol := base
	otherSymbol.Symbol = "MSFT"
	assert.True(t, Less(base, otherSymbol))

	later := base
	later.Contract.ExpirationDate = expiry.AddDate(0, 0, 7)
	assert.True(t, Less(base, later))

	assert.False(t, Less(base, base))
}

func TestRankIsTotalAndDescending(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	symbols := []string{"AAPL", "MSFT", "TSLA", "SPY"}

	var inputs []Input
	for i := 0; i < 300; i++ {
		strike := float64(20 + r.Intn(40))
		bid := float64(r.Intn(40)) * 0.05
		inputs = append(inputs, Input{Contract: contract(
			symbols[r.Intn(len(symbols))], strike, bid, bid+0.05, int64(50+r.Intn(5)*50),
		)})
	}

	ranked := Rank(inputs)
	require.Len(t, ranked, len(inputs))
	for i := 1; i < len(ranked); i++ {
		prev, cur := ranked[i-1], ranked[i]
		assert.GreaterOrEqual(t, prev.WeeklyYield, cur.WeeklyYield)
		assert.False(t, Less(cur, prev), "pair %d out of order", i)
	}

	// same input in a different order ranks identically
	shuffled := append([]Input(nil), inputs...)
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	assert.Equal(t, ranked, Rank(shuffled))
}

func TestYieldRoundTrip(t *testing.T) {
	inputs := []Input{
		{Contract: contract("AAPL", 172.5, 1.21, 1.27, 900)},
		{Contract: contract("F", 11, 0.09, 0.11, 12000)},
		{Contract: contract("SPY", 510, 3.40, 3.46, 40000)},
	}
	for _, c := range Rank(inputs) {
		recomputed := ((c.Contract.Bid + c.Contract.Ask) / 2) / (c.Contract.Strike * 100)
		assert.LessOrEqual(t, math.Abs(recomputed-c.WeeklyYield), 1e-9)
		assert.True(t, c.PassedGuardrails)
	}
}

func TestRankCarriesCaveats(t *testing.T) {
	cav := []types.Caveat{{Symbol: "AAPL", Kind: types.CaveatEarningsUnverified, Detail: "lookup failed"}}
	ranked := Rank([]Input{{Contract: contract("AAPL", 50, 1, 1.05, 100), Caveats: cav}})
	assert.Equal(t, cav, ranked[0].Caveats)
}

func TestTop(t *testing.T) {
	ranked := Rank([]Input{
		{Contract: contract("A", 10, 0.10, 0.12, 100)},
		{Contract: contract("B", 10, 0.20, 0.22, 100)},
		{Contract: contract("C", 10, 0.30, 0.32, 100)},
	})
	top := Top(ranked, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "C", top[0].Symbol)
	assert.Len(t, Top(ranked, 0), 3)
	assert.Len(t, Top(ranked, 10), 3)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil))
}
