package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"thetagang-wheel/internal/api"
	"thetagang-wheel/internal/logger"
	"thetagang-wheel/internal/types"
)

// HTTPProvider reads puts from a Yahoo-style options endpoint:
// GET {base}/v7/finance/options/{symbol}?date={unix seconds}
type HTTPProvider struct {
	client *api.Client
	retry  *api.RetryConfig
}

func NewHTTPProvider(client *api.Client, retry *api.RetryConfig) *HTTPProvider {
	return &HTTPProvider{client: client, retry: retry}
}

type optionChainResponse struct {
	OptionChain struct {
		Result []struct {
			UnderlyingSymbol string `json:"underlyingSymbol"`
			Quote            struct {
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
			} `json:"quote"`
			Options []struct {
				ExpirationDate int64       `json:"expirationDate"`
				Puts           []quoteJSON `json:"puts"`
			} `json:"options"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"optionChain"`
}

type quoteJSON struct {
	ContractSymbol    string   `json:"contractSymbol"`
	Strike            float64  `json:"strike"`
	Bid               float64  `json:"bid"`
	Ask               float64  `json:"ask"`
	OpenInterest      int64    `json:"openInterest"`
	ImpliedVolatility *float64 `json:"impliedVolatility"`
	Expiration        int64    `json:"expiration"`
}

func (p *HTTPProvider) FetchChain(ctx context.Context, symbol string, expiry time.Time) ([]types.OptionContract, error) {
	day := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	path := fmt.Sprintf("/v7/finance/options/%s?date=%d", url.PathEscape(strings.ToUpper(symbol)), day.Unix())

	req := api.NewRequest(http.MethodGet, path).WithContext(ctx)
	resp, err := p.client.DoWithRetry(req, p.retry)
	if err != nil {
		return nil, err
	}

	var body optionChainResponse
	if err := resp.ParseJSON(&body); err != nil {
		return nil, err
	}
	if e := body.OptionChain.Error; e != nil {
		return nil, fmt.Errorf("options endpoint error %s: %s", e.Code, e.Description)
	}

	var out []types.OptionContract
	for _, r := range body.OptionChain.Result {
		for _, o := range r.Options {
			for _, q := range o.Puts {
				exp := q.Expiration
				if exp == 0 {
					exp = o.ExpirationDate
				}
				out = append(out, types.OptionContract{
					Symbol:            strings.ToUpper(symbol),
					Strike:            q.Strike,
					ExpirationDate:    time.Unix(exp, 0).UTC(),
					Bid:               q.Bid,
					Ask:               q.Ask,
					OpenInterest:      q.OpenInterest,
					ImpliedVolatility: q.ImpliedVolatility,
					UnderlyingPrice:   r.Quote.RegularMarketPrice,
				})
			}
		}
	}

	logger.Debug(ctx, "Chain fetched", "symbol", symbol, "provider", "http", "puts", len(out))
	return out, nil
}
