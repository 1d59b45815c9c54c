package chain

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
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"

	"thetagang-wheel/internal/api"
)

var expiry = time.Date(2025, time.May, 9, 0, 0, 0, 0, time.UTC)

func TestHTTPProviderParsesPuts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v7/finance/options/AAPL", r.URL.Path)
		assert.Equal(t, "1746748800", r.URL.Query().Get("date"))
		w.Write([]byte(`{"optionChain":{"result":[{"underlyingSymbol":"AAPL","quote":{"regularMarketPrice":182.5},"options":[{
			"expirationDate":1746748800,
			"calls":[{"strike":200,"bid":1,"ask":1.1}],
			"puts":[
				{"contractSymbol":"AAPL250509P00170000","strike":170,"bid":1.20,"ask":1.25,"openInterest":1500,"impliedVolatility":0.31,"expiration":1746748800},
				{"contractSymbol":"AAPL250509P00165000","strike":165,"bid":0.70,"ask":0.74,"openInterest":800}
			]}]}],"error":null}}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(api.NewClient(api.WithBaseURL(srv.URL)), nil)
	chain, err := p.FetchChain(context.Background(), "aapl", expiry)
	require.NoError(t, err)
	require.Len(t, chain, 2)

	assert.Equal(t, "AAPL", chain[0].Symbol)
	assert.Equal(t, 170.0, chain[0].Strike)
	assert.Equal(t, int64(1500), chain[0].OpenInterest)
	require.NotNil(t, chain[0].ImpliedVolatility)
	assert.InDelta(t, 0.31, *chain[0].ImpliedVolatility, 1e-12)
	assert.True(t, chain[0].ExpirationDate.Equal(expiry))
	assert.True(t, chain[1].ExpirationDate.Equal(expiry), "falls back to the group expiration")
	assert.Nil(t, chain[1].ImpliedVolatility)
	for _, c := range chain {
		require.NotNil(t, c.UnderlyingPrice)
		assert.Equal(t, 182.5, *c.UnderlyingPrice)
	}
}

func TestHTTPProviderEmptyChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"optionChain":{"result":[],"error":null}}`))
	}))
	defer srv.Close()

	chain, err := NewHTTPProvider(api.NewClient(api.WithBaseURL(srv.URL)), nil).FetchChain(context.Background(), "ZZZ", expiry)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestHTTPProviderReportsEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"optionChain":{"result":[],"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(api.NewClient(api.WithBaseURL(srv.URL)), nil).FetchChain(context.Background(), "ZZZ", expiry)
	assert.ErrorContains(t, err, "No data found")
}

func TestStaticProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chains:
  aapl:
    - strike: 170
      expiration_date: 2025-05-09T00:00:00Z
      bid: 1.20
      ask: 1.25
      open_interest: 1500
`), 0o644))

	p, err := LoadStatic(path)
	require.NoError(t, err)

	chain, err := p.FetchChain(context.Background(), "AAPL", expiry)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "AAPL", chain[0].Symbol)
	assert.True(t, chain[0].ExpirationDate.Equal(expiry))

	chain, err = p.FetchChain(context.Background(), "MSFT", expiry)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func fakeKite(insts kiteconnect.Instruments, quotes map[string]kiteQuote) *KiteProvider {
	return &KiteProvider{
		exchange:    "NFO",
		instruments: func() (kiteconnect.Instruments, error) { return insts, nil },
		quotes: func(keys ...string) (map[string]kiteQuote, error) {
			out := make(map[string]kiteQuote)
			for _, k := range keys {
				if q, ok := quotes[k]; ok {
					out[k] = q
				}
			}
			return out, nil
		},
		now: time.Now,
	}
}

func TestKiteProviderFiltersPutsForExpiry(t *testing.T) {
	exp := models.Time{Time: time.Date(2025, time.May, 9, 0, 0, 0, 0, time.UTC)}
	later := models.Time{Time: time.Date(2025, time.May, 16, 0, 0, 0, 0, time.UTC)}
	insts := kiteconnect.Instruments{
		{Name: "RELIANCE", Tradingsymbol: "RELIANCE25MAY1400PE", StrikePrice: 1400, Expiry: exp, InstrumentType: "PE"},
		{Name: "RELIANCE", Tradingsymbol: "RELIANCE25MAY1400CE", StrikePrice: 1400, Expiry: exp, InstrumentType: "CE"},
		{Name: "RELIANCE", Tradingsymbol: "RELIANCE25MAY16P", StrikePrice: 1400, Expiry: later, InstrumentType: "PE"},
		{Name: "INFY", Tradingsymbol: "INFY25MAY1500PE", StrikePrice: 1500, Expiry: exp, InstrumentType: "PE"},
	}
	quotes := map[string]kiteQuote{
		"NFO:RELIANCE25MAY1400PE": {Bid: 10.5, Ask: 11, OI: 42000},
	}

	chain, err := fakeKite(insts, quotes).FetchChain(context.Background(), "reliance", expiry)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "RELIANCE", chain[0].Symbol)
	assert.Equal(t, 1400.0, chain[0].Strike)
	assert.Equal(t, int64(42000), chain[0].OpenInterest)
	assert.Equal(t, 10.5, chain[0].Bid)
	assert.True(t, chain[0].ExpirationDate.Equal(expiry))
}

func TestKiteProviderUnknownSymbolIsEmpty(t *testing.T) {
	chain, err := fakeKite(nil, nil).FetchChain(context.Background(), "AAPL", expiry)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestKiteProviderCachesInstrumentsPerDay(t *testing.T) {
	calls := 0
	p := fakeKite(nil, nil)
	p.instruments = func() (kiteconnect.Instruments, error) {
		calls++
		return nil, nil
	}
	day := time.Date(2025, time.May, 5, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return day }

	for i := 0; i < 3; i++ {
		_, err := p.FetchChain(context.Background(), "INFY", expiry)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)

	day = day.AddDate(0, 0, 1)
	_, err := p.FetchChain(context.Background(), "INFY", expiry)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestKiteProviderInstrumentError(t *testing.T) {
	p := fakeKite(nil, nil)
	p.instruments = func() (kiteconnect.Instruments, error) { return nil, errors.New("token expired") }
	_, err := p.FetchChain(context.Background(), "INFY", expiry)
	assert.ErrorContains(t, err, "token expired")
}

func TestKiteProviderListedExpiry(t *testing.T) {
	day := func(m time.Month, d int) models.Time {
		return models.Time{Time: time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)}
	}
	insts := kiteconnect.Instruments{
		{Name: "NIFTY", Tradingsymbol: "NIFTY25MAY29PE", InstrumentType: "PE", Expiry: day(time.May, 29)},
		{Name: "NIFTY", Tradingsymbol: "NIFTY2550624000PE", InstrumentType: "PE", Expiry: day(time.May, 6)},
		{Name: "NIFTY", Tradingsymbol: "NIFTY2542924000PE", InstrumentType: "PE", Expiry: day(time.April, 29)},
		{Name: "NIFTY", Tradingsymbol: "NIFTY2550524000CE", InstrumentType: "CE", Expiry: day(time.May, 5)},
		{Name: "IDEA", Tradingsymbol: "IDEA25MAYFUT", InstrumentType: "FUT", Expiry: day(time.May, 29)},
	}
	p := fakeKite(insts, nil)
	ctx := context.Background()

	got, found, err := p.ListedExpiry(ctx, "nifty", time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, time.Date(2025, time.May, 6, 0, 0, 0, 0, time.UTC), got, "Tuesday weekly, not the NYSE Friday")

	got, found, err = p.ListedExpiry(ctx, "NIFTY", time.Date(2025, time.May, 6, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 6, got.Day(), "expiry day itself still counts")

	_, found, err = p.ListedExpiry(ctx, "IDEA", time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, found, "futures only")

	set, err := p.Symbols(ctx)
	require.NoError(t, err)
	assert.True(t, set.Contains("NIFTY"))
	assert.False(t, set.Contains("IDEA"))
	assert.Equal(t, 1, set.Len())
}

func TestKiteProviderFetchesListedExpiry(t *testing.T) {
	tue := models.Time{Time: time.Date(2025, time.May, 6, 0, 0, 0, 0, time.UTC)}
	insts := kiteconnect.Instruments{
		{Name: "NIFTY", Tradingsymbol: "NIFTY2550624000PE", StrikePrice: 24000, Expiry: tue, InstrumentType: "PE"},
	}
	quotes := map[string]kiteQuote{"NFO:NIFTY2550624000PE": {Bid: 80, Ask: 82, OI: 1200000}}
	p := fakeKite(insts, quotes)

	exp, found, err := p.ListedExpiry(context.Background(), "NIFTY", time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, found)

	chain, err := p.FetchChain(context.Background(), "NIFTY", exp)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.True(t, chain[0].ExpirationDate.Equal(exp))
}
