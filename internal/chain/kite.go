package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"thetagang-wheel/internal/logger"
	"thetagang-wheel/internal/tickers"
	"thetagang-wheel/internal/types"
)

// Kite limits a quote call to this many instruments
const kiteQuoteBatch = 500

// kiteQuote is the slice of a Kite quote the screener needs
type kiteQuote struct {
	Bid float64
	Ask float64
	OI  float64
}

// KiteProvider reads put chains from Kite Connect for an F&O exchange (NFO by default).
// The instrument dump is fetched once per calendar day. It also serves the symbol universe
// and the listed expirations for that exchange.
type KiteProvider struct {
	exchange    string
	instruments func() (kiteconnect.Instruments, error)
	quotes      func(keys ...string) (map[string]kiteQuote, error)

	mu       sync.Mutex
	loadedOn string
	byName   map[string][]kiteconnect.Instrument
	now      func() time.Time
}

func NewKiteProvider(apiKey, accessToken, exchange string) *KiteProvider {
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)

	if exchange == "" {
		exchange = "NFO"
	}
	return &KiteProvider{
		exchange: exchange,
		instruments: func() (kiteconnect.Instruments, error) {
			return kc.GetInstrumentsByExchange(exchange)
		},
		quotes: func(keys ...string) (map[string]kiteQuote, error) {
			q, err := kc.GetQuote(keys...)
			if err != nil {
				return nil, err
			}
			return fromKiteQuote(q), nil
		},
		now: time.Now,
	}
}

func fromKiteQuote(q kiteconnect.Quote) map[string]kiteQuote {
	out := make(map[string]kiteQuote, len(q))
	for key, v := range q {
		kq := kiteQuote{OI: v.OI}
		if len(v.Depth.Buy) > 0 {
			kq.Bid = v.Depth.Buy[0].Price
		}
		if len(v.Depth.Sell) > 0 {
			kq.Ask = v.Depth.Sell[0].Price
		}
		out[key] = kq
	}
	return out
}

// Symbols returns every underlying with listed puts. Exchange names differ from US tickers,
// so a Kite run extracts mentions against this set.
func (p *KiteProvider) Symbols(ctx context.Context) (tickers.SymbolSet, error) {
	byName, err := p.load(ctx)
	if err != nil {
		return tickers.SymbolSet{}, err
	}
	names := make([]string, 0, len(byName))
	for name, insts := range byName {
		for _, inst := range insts {
			if inst.InstrumentType == "PE" {
				names = append(names, name)
				break
			}
		}
	}
	return tickers.NewSymbolSet(names...), nil
}

// ListedExpiry returns the nearest put expiry listed for symbol on or after asOf's date.
// F&O contracts settle on the exchange's own weekday, not the NYSE Friday.
func (p *KiteProvider) ListedExpiry(ctx context.Context, symbol string, asOf time.Time) (time.Time, bool, error) {
	byName, err := p.load(ctx)
	if err != nil {
		return time.Time{}, false, err
	}

	today := dateOf(asOf)
	var best time.Time
	for _, inst := range byName[strings.ToUpper(symbol)] {
		if inst.InstrumentType != "PE" || inst.Expiry.Time.IsZero() {
			continue
		}
		d := dateOf(inst.Expiry.Time)
		if d.Before(today) {
			continue
		}
		if best.IsZero() || d.Before(best) {
			best = d
		}
	}
	return best, !best.IsZero(), nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (p *KiteProvider) FetchChain(ctx context.Context, symbol string, expiry time.Time) ([]types.OptionContract, error) {
	byName, err := p.load(ctx)
	if err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	var puts []kiteconnect.Instrument
	for _, inst := range byName[symbol] {
		if inst.InstrumentType != "PE" {
			continue
		}
		ey, em, ed := inst.Expiry.Time.Date()
		if ey == expiry.Year() && em == expiry.Month() && ed == expiry.Day() {
			puts = append(puts, inst)
		}
	}
	if len(puts) == 0 {
		return nil, nil
	}

	out := make([]types.OptionContract, 0, len(puts))
	for start := 0; start < len(puts); start += kiteQuoteBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+kiteQuoteBatch, len(puts))

		keys := make([]string, 0, end-start)
		for _, inst := range puts[start:end] {
			keys = append(keys, p.exchange+":"+inst.Tradingsymbol)
		}
		quotes, err := p.quotes(keys...)
		if err != nil {
			return nil, fmt.Errorf("kite quote: %w", err)
		}

		for i, inst := range puts[start:end] {
			q, ok := quotes[keys[i]]
			if !ok {
				continue
			}
			out = append(out, types.OptionContract{
				Symbol:         symbol,
				Strike:         inst.StrikePrice,
				ExpirationDate: dateOf(inst.Expiry.Time),
				Bid:            q.Bid,
				Ask:            q.Ask,
				OpenInterest:   int64(q.OI),
			})
		}
	}

	logger.Debug(ctx, "Chain fetched", "symbol", symbol, "provider", "kite", "puts", len(out))
	return out, nil
}

func (p *KiteProvider) load(ctx context.Context) (map[string][]kiteconnect.Instrument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	today := p.now().Format(time.DateOnly)
	if p.byName != nil && p.loadedOn == today {
		return p.byName, nil
	}

	insts, err := p.instruments()
	if err != nil {
		return nil, fmt.Errorf("kite instruments %s: %w", p.exchange, err)
	}
	byName := make(map[string][]kiteconnect.Instrument)
	for _, inst := range insts {
		byName[strings.ToUpper(inst.Name)] = append(byName[strings.ToUpper(inst.Name)], inst)
	}
	p.byName = byName
	p.loadedOn = today

	logger.Info(ctx, "Kite instruments loaded", "exchange", p.exchange, "instruments", len(insts), "underlyings", len(byName))
	return byName, nil
}
