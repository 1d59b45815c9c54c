package pipelineobs

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

type observablePipeline struct {
	pipeline interfaces.Pipeline
}

var _ interfaces.Pipeline = (*observablePipeline)(nil)

func Wrap(p interfaces.Pipeline) interfaces.Pipeline {
	return &observablePipeline{pipeline: p}
}

func (op *observablePipeline) Run(ctx context.Context) (*types.RunResult, error) {
	ctx, span := trace.StartSpan(ctx, "pipeline.Run")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Starting screening run")

	result, err := op.pipeline.Run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorWithErrSkip(ctx, 1, "Screening run failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("run_id", result.RunID),
		attribute.String("expiry", result.Expiry.Format(time.DateOnly)),
		attribute.Int("candidates", len(result.Candidates)),
		attribute.Int("skipped", len(result.Skipped)),
		attribute.Bool("degraded", result.Degraded()),
	)
	logger.InfoSkip(ctx, 1, "Screening run completed",
		"run_id", result.RunID,
		"expiry", result.Expiry.Format(time.DateOnly),
		"expiry_verified", result.ExpiryVerified,
		"posts", result.PostsAnalyzed,
		"symbols", len(result.ScreenedSymbols),
		"candidates", len(result.Candidates),
		"skipped", len(result.Skipped),
		"caveats", len(result.Caveats),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
