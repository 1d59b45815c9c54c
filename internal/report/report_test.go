package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thetagang-wheel/internal/types"
)

func sampleResult() *types.RunResult {
	expiry := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	return &types.RunResult{
		RunID:          "run-1",
		Expiry:         expiry,
		ExpiryVerified: false,
		PostsAnalyzed:  3,
		Guardrails:     types.GuardrailConfig{MinOpenInterest: 50, MaxSpreadPct: 0.1, EarningsBlackoutDays: 7, AccountSize: 10000},
		SentimentCounts: map[types.SentimentLabel]int{
			types.SentimentPositive: 2, types.SentimentNegative: 0, types.SentimentUnclear: 1,
		},
		Candidates: []types.ScreenedCandidate{{
			Symbol:           "AAPL",
			WeeklyYield:      0.01,
			PassedGuardrails: true,
			Contract:         types.OptionContract{Symbol: "AAPL", Strike: 90, ExpirationDate: expiry, Bid: 0.8, Ask: 1.0, OpenInterest: 500},
			Caveats: []types.Caveat{
				{Symbol: "AAPL", Kind: types.CaveatEarningsUnverified, Detail: "lookup failed"},
				{Symbol: "AAPL", Kind: types.CaveatCalendarUnverified, Detail: "holiday source down"},
			},
		}},
		Skipped: []types.SkippedSymbol{{Symbol: "TSLA", Reason: types.SkipFetchTimeout, Detail: "20s"}},
		Caveats: []types.Caveat{{Kind: types.CaveatCalendarUnverified, Detail: "holiday source down"}},
	}
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatCSV, FormatForPath("out/cands.CSV"))
	assert.Equal(t, FormatJSON, FormatForPath("cands.json"))
	assert.Equal(t, FormatTable, FormatForPath("cands.txt"))
	assert.Equal(t, FormatJSON, FormatForPath("cands"))
}

func TestTableShowsCandidatesSkipsAndCaveats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResult(), FormatTable))
	out := buf.String()

	assert.Contains(t, out, "2026-01-16 (unverified)")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "1.000%")
	assert.Contains(t, out, "calendar-unverified;earnings-unverified")
	assert.Contains(t, out, "TSLA: fetch-timeout (20s)")
	assert.Contains(t, out, "calendar-unverified: holiday source down")
}

func TestTableWithNothingToShow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &types.RunResult{RunID: "empty", ExpiryVerified: true}, FormatTable))
	out := buf.String()
	assert.Contains(t, out, "No candidates passed the guardrails.")
	assert.NotContains(t, out, "unverified")
}

func TestJSONRoundTripsRunResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResult(), FormatJSON))

	var got types.RunResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, 90.0, got.Candidates[0].Contract.Strike)
	require.Len(t, got.Skipped, 1)
}

func TestCSVIncludesSkips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResult(), FormatCSV))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "rank", rows[0][0])
	assert.Equal(t, []string{"1", "AAPL", "candidate", "90", "2026-01-16", "0.8", "1", "0.9", "500", "0.010000", "calendar-unverified;earnings-unverified"}, rows[1])
	assert.Equal(t, "skipped:fetch-timeout", rows[2][2])
}

func TestWriteFileUsesExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "run.csv")
	require.NoError(t, WriteFile(path, sampleResult()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("rank,symbol,status")))
}

func TestUnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, sampleResult(), Format("xml")))
}
