package interfaces

import (
	"context"
	"time"

	"thetagang-wheel/internal/tickers"
	"thetagang-wheel/internal/types"
)

// PostSource supplies the posts a run classifies
type PostSource interface {
	FetchPosts(ctx context.Context, limit int) ([]types.Post, error)
}

// SymbolSource returns the validated ticker snapshot for one run
type SymbolSource interface {
	Symbols(ctx context.Context) (tickers.SymbolSet, error)
}

// ChainProvider returns the put chain for one underlying and expiration.
// An empty chain is not an error.
type ChainProvider interface {
	FetchChain(ctx context.Context, symbol string, expiry time.Time) ([]types.OptionContract, error)
}

// EarningsLookup returns the next scheduled earnings date. found is false when nothing is scheduled.
type EarningsLookup interface {
	NextEarnings(ctx context.Context, symbol string) (date time.Time, found bool, err error)
}

// ExpirySource lists the expirations an exchange actually trades, for venues whose
// weeklies do not settle on the Friday the market calendar picks
type ExpirySource interface {
	ListedExpiry(ctx context.Context, symbol string, asOf time.Time) (expiry time.Time, found bool, err error)
}
