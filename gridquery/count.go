package gridquery

import (
	"context"

	"github.com/gabisonia/go-gridquery/griddata"
)

// countResolver runs count pipelines. A pipeline that lets no row reach its
// count stage resolves to zero.
type countResolver struct {
	calls    *storeCalls
	observer Observer
}

func (r countResolver) count(ctx context.Context, path []any, pipeline griddata.Pipeline) (int64, error) {
	counts, err := r.calls.count(ctx, path, pipeline)
	if err != nil {
		return 0, err
	}

	var n int64
	if len(counts) > 0 {
		n = counts[0]
	}
	r.observer.CountResolved(ctx, path, pipeline, n)
	return n, nil
}
