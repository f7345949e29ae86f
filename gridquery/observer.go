package gridquery

import (
	"context"
	"log/slog"

	"github.com/gabisonia/go-gridquery/griddata"
)

// Observer receives events at the points where a query touches the store.
// Implementations must be safe for concurrent use.
type Observer interface {
	// PipelineBuilt is called before a pipeline is sent to the store.
	PipelineBuilt(ctx context.Context, op string, path []any, pipeline griddata.Pipeline)
	// CountResolved is called with the normalized result of a count pipeline.
	CountResolved(ctx context.Context, path []any, pipeline griddata.Pipeline, count int64)
	// StoreError is called once for every failed store call.
	StoreError(ctx context.Context, err *griddata.StoreQueryError)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) PipelineBuilt(context.Context, string, []any, griddata.Pipeline) {}
func (NopObserver) CountResolved(context.Context, []any, griddata.Pipeline, int64) {}
func (NopObserver) StoreError(context.Context, *griddata.StoreQueryError) {}

// SlogObserver logs events through a structured logger. Pipelines log at
// debug level; store errors log at error level with the offending pipeline.
type SlogObserver struct {
	Logger *slog.Logger
}

func (o SlogObserver) PipelineBuilt(ctx context.Context, op string, path []any, pipeline griddata.Pipeline) {
	o.Logger.LogAttrs(ctx, slog.LevelDebug, "pipeline built",
		slog.String("op", op),
		slog.Any("path", path),
		slog.Any("pipeline", pipeline),
	)
}

func (o SlogObserver) CountResolved(ctx context.Context, path []any, pipeline griddata.Pipeline, count int64) {
	o.Logger.LogAttrs(ctx, slog.LevelDebug, "count resolved",
		slog.Any("path", path),
		slog.Int64("count", count),
		slog.Any("pipeline", pipeline),
	)
}

func (o SlogObserver) StoreError(ctx context.Context, err *griddata.StoreQueryError) {
	o.Logger.LogAttrs(ctx, slog.LevelError, "store query failed",
		slog.String("op", err.Op),
		slog.Any("path", err.Path),
		slog.Any("pipeline", err.Pipeline),
		slog.Any("error", err.Err),
	)
}
