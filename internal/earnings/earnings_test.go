package earnings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thetagang-wheel/internal/types"
)

const calendarPage = `<html><body>
<table>
  <thead><tr><th>Symbol</th><th>Earnings Date</th></tr></thead>
  <tbody>
    <tr><td aria-label="Symbol">AAPL</td><td aria-label="Earnings Date">Jan 30, 2025, 4 PMEST</td></tr>
    <tr><td aria-label="Symbol">AAPL</td><td aria-label="Earnings Date">Jul 31, 2025, 4 PMEDT</td></tr>
    <tr><td aria-label="Symbol">AAPL</td><td aria-label="Earnings Date">May 1, 2025, 4 PMEDT</td></tr>
  </tbody>
</table>
</body></html>`

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 12, 0, 0, 0, time.UTC) }
}

func TestScraperFindsNextDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(calendarPage))
	}))
	defer srv.Close()

	s := NewScraper(srv.URL+"/calendar/earnings?symbol={symbol}", WithClock(fixedClock(2025, time.April, 20)))
	d, found, err := s.NextEarnings(context.Background(), "aapl")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), d)
}

func TestScraperNothingUpcoming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(calendarPage))
	}))
	defer srv.Close()

	s := NewScraper(srv.URL+"/?symbol={symbol}", WithClock(fixedClock(2025, time.December, 1)))
	_, found, err := s.NextEarnings(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScraperLayoutChangeIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><div>redesigned</div></body></html>`))
	}))
	defer srv.Close()

	_, _, err := NewScraper(srv.URL + "/?symbol={symbol}").NextEarnings(context.Background(), "AAPL")
	assert.ErrorIs(t, err, types.ErrEarningsUnavailable)
}

func TestScraperHTTPErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	_, _, err := NewScraper(srv.URL + "/?symbol={symbol}").NextEarnings(context.Background(), "AAPL")
	assert.ErrorIs(t, err, types.ErrEarningsUnavailable)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"May 1, 2025", "May 1, 2025, 4 PMEDT", "2025-05-01", "05/01/2025", "Thu, May 1, 2025", "  May  1,  2025 "} {
		d, ok := ParseDate(s)
		require.True(t, ok, s)
		assert.Equal(t, want, d, s)
	}
	_, ok := ParseDate("TBD")
	assert.False(t, ok)
}

func TestStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "earnings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("earnings:\n  aapl: [2025-01-30, 2025-05-01]\n"), 0o644))

	s, err := LoadStatic(path)
	require.NoError(t, err)
	s.now = fixedClock(2025, time.April, 20)

	d, found, err := s.NextEarnings(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), d)

	_, found, err = s.NextEarnings(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStaticRejectsBadDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "earnings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("earnings:\n  AAPL: [soon]\n"), 0o644))
	_, err := LoadStatic(path)
	assert.Error(t, err)
}

type countingLookup struct {
	calls int
	err   error
}

func (c *countingLookup) NextEarnings(ctx context.Context, symbol string) (time.Time, bool, error) {
	c.calls++
	return time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), true, c.err
}

func TestCachedMemoizesWithinTTL(t *testing.T) {
	inner := &countingLookup{}
	c := NewCached(inner, time.Hour)
	now := time.Date(2025, time.April, 20, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, found, err := c.NextEarnings(context.Background(), "aapl")
		require.NoError(t, err)
		assert.True(t, found)
	}
	assert.Equal(t, 1, inner.calls)

	now = now.Add(2 * time.Hour)
	_, _, err := c.NextEarnings(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	inner := &countingLookup{err: errors.New("blocked")}
	c := NewCached(inner, time.Hour)

	_, _, err := c.NextEarnings(context.Background(), "AAPL")
	require.Error(t, err)
	_, _, err = c.NextEarnings(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
