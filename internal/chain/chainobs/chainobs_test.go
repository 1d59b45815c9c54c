package chainobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thetagang-wheel/internal/types"
)

type stubProvider struct {
	chain []types.OptionContract
	err   error
}

func (s stubProvider) FetchChain(ctx context.Context, symbol string, expiry time.Time) ([]types.OptionContract, error) {
	return s.chain, s.err
}

func TestWrapPassesThrough(t *testing.T) {
	want := []types.OptionContract{{Symbol: "AAPL", Strike: 170}}
	got, err := Wrap(stubProvider{chain: want}, "stub").FetchChain(context.Background(), "AAPL", time.Now())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWrapPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Wrap(stubProvider{err: boom}, "stub").FetchChain(context.Background(), "AAPL", time.Now())
	assert.ErrorIs(t, err, boom)
}
