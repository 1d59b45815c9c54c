package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thetagang-wheel/internal/types"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(id string, started time.Time) *types.RunResult {
	expiry := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	return &types.RunResult{
		RunID:          id,
		StartedAt:      started,
		FinishedAt:     started.Add(time.Second),
		State:          types.StateDone,
		AsOf:           started,
		Expiry:         expiry,
		ExpiryVerified: true,
		Guardrails:     types.GuardrailConfig{MinOpenInterest: 50, MaxSpreadPct: 0.1, AccountSize: 10000},
		PostsAnalyzed:  2,
		Candidates: []types.ScreenedCandidate{
			{Symbol: "AAPL", WeeklyYield: 0.01, PassedGuardrails: true, Caveats: []types.Caveat{{Symbol: "AAPL", Kind: types.CaveatDataQuality, Detail: "1 contract dropped"}}, Contract: types.OptionContract{Symbol: "AAPL", Strike: 90, ExpirationDate: expiry, Bid: 0.85, Ask: 0.95, OpenInterest: 500}},
			{Symbol: "MSFT", WeeklyYield: 0.005, PassedGuardrails: true, Contract: types.OptionContract{Symbol: "MSFT", Strike: 80, ExpirationDate: expiry, Bid: 0.38, Ask: 0.42, OpenInterest: 120}},
		},
		Skipped: []types.SkippedSymbol{{Symbol: "TSLA", Reason: types.SkipFetchTimeout}},
	}
}

func TestSaveRunRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	started := time.Date(2026, 1, 12, 15, 0, 0, 0, time.UTC)

	posts := []types.Post{{ID: "p1", Title: "AAPL"}, {ID: "p2", Title: "MSFT"}}
	sentiments := []types.SentimentResult{
		{PostID: "p1", Label: types.SentimentPositive, Score: 0.9, Rule: "positive-outcome"},
		{PostID: "p2", Label: types.SentimentPositive, Score: 0.4, Rule: "lexicon"},
	}
	require.NoError(t, s.SaveRun(ctx, posts, sentiments, sampleRun("run-1", started)))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.True(t, runs[0].Degraded)
	assert.Contains(t, runs[0].Guardrails, `"min_open_interest":50`)

	cands, err := s.Candidates(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, 1, cands[0].Rank)
	assert.Equal(t, "AAPL", cands[0].Symbol)
	assert.Equal(t, "MSFT", cands[1].Symbol)
	assert.JSONEq(t, `[{"symbol":"AAPL","kind":"data-quality","detail":"1 contract dropped"}]`, cands[0].Caveats)
	assert.JSONEq(t, `null`, cands[1].Caveats)

	skips, err := s.Skips(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, string(types.SkipFetchTimeout), skips[0].Reason)

	counts, err := s.SentimentCounts(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts["positive"])
}

func TestRunsNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 12, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, nil, nil, sampleRun("old", base)))
	require.NoError(t, s.SaveRun(ctx, nil, nil, sampleRun("new", base.Add(7*24*time.Hour))))

	runs, err := s.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)
}

func TestSaveRunRejectsDuplicateID(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	started := time.Date(2026, 1, 12, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, nil, nil, sampleRun("dup", started)))
	require.Error(t, s.SaveRun(ctx, nil, nil, sampleRun("dup", started)))

	cands, err := s.Candidates(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, cands, 2, "failed transaction leaves the first run intact")
}

func TestSaveRunRequiresID(t *testing.T) {
	s := openTemp(t)
	assert.Error(t, s.SaveRun(context.Background(), nil, nil, &types.RunResult{}))
	assert.Error(t, s.SaveRun(context.Background(), nil, nil, nil))
}
