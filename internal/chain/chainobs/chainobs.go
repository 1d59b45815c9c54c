package chainobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"thetagang-wheel/internal/interfaces"
	"thetagang-wheel/internal/logger"
	"thetagang-wheel/internal/trace"
	"thetagang-wheel/internal/types"
)

// observableProvider wraps a ChainProvider with logging and tracing
type observableProvider struct {
	inner    interfaces.ChainProvider
	provider string
}

// Wrap decorates provider with a span and structured logs per fetch
func Wrap(provider interfaces.ChainProvider, name string) interfaces.ChainProvider {
	return &observableProvider{inner: provider, provider: name}
}

func (o *observableProvider) FetchChain(ctx context.Context, symbol string, expiry time.Time) ([]types.OptionContract, error) {
	ctx, span := trace.StartSpan(ctx, "chain.FetchChain")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", symbol),
		attribute.String("provider", o.provider),
		attribute.String("expiry", expiry.Format(time.DateOnly)),
	)

	logger.DebugSkip(ctx, 1, "Fetching chain", "symbol", symbol, "provider", o.provider, "expiry", expiry.Format(time.DateOnly))
	start := time.Now()

	chain, err := o.inner.FetchChain(ctx, symbol, expiry)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnSkip(ctx, 1, "Chain fetch failed",
			"symbol", symbol, "provider", o.provider, "duration_ms", durationMs, "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("puts", len(chain)))
	logger.DebugSkip(ctx, 1, "Chain fetched",
		"symbol", symbol, "provider", o.provider, "duration_ms", durationMs, "puts", len(chain))
	return chain, nil
}
