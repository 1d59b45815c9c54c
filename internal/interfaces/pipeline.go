package interfaces

import (
	"context"

	"thetagang-wheel/internal/types"
)

type Pipeline interface {
	Run(ctx context.Context) (*types.RunResult, error)
}

// RunStore persists finished runs
type RunStore interface {
	SaveRun(ctx context.Context, posts []types.Post, sentiments []types.SentimentResult, result *types.RunResult) error
}
