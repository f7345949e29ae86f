package gridquery

import (
	"context"
	"errors"

	"github.com/gabisonia/go-gridquery/griddata"
	"golang.org/x/sync/semaphore"
)

// storeCalls is the boundary between the query layer and the collection.
// Every call holds one semaphore slot, so recursion waiting on children never
// holds a slot and cannot starve them.
type storeCalls struct {
	coll     griddata.Collection
	sem      *semaphore.Weighted
	observer Observer
}

func newStoreCalls(coll griddata.Collection, opts Options) *storeCalls {
	return &storeCalls{
		coll:     coll,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		observer: opts.Observer,
	}
}

func (s *storeCalls) find(ctx context.Context, opts griddata.FindOptions) ([]griddata.Row, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	// Describes the Find call for diagnostics only.
	pipeline := concatStages(filterStages(opts.Filter), sortRowStages(opts.Sort), pagingStages(opts.Skip, opts.Take))
	s.observer.PipelineBuilt(ctx, "find", nil, pipeline)
	rows, err := s.coll.Find(ctx, opts)
	if err != nil {
		return nil, s.fail(ctx, "find", nil, pipeline, err)
	}
	return rows, nil
}

func (s *storeCalls) aggregate(ctx context.Context, path []any, pipeline griddata.Pipeline) ([]griddata.Bucket, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	s.observer.PipelineBuilt(ctx, "aggregate", path, pipeline)
	buckets, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, s.fail(ctx, "aggregate", path, pipeline, err)
	}
	return buckets, nil
}

func (s *storeCalls) count(ctx context.Context, path []any, pipeline griddata.Pipeline) ([]int64, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	s.observer.PipelineBuilt(ctx, "count", path, pipeline)
	counts, err := s.coll.Count(ctx, pipeline)
	if err != nil {
		return nil, s.fail(ctx, "count", path, pipeline, err)
	}
	return counts, nil
}

// get returns griddata.ErrNotFound unwrapped so callers can report absence.
func (s *storeCalls) get(ctx context.Context, id any) (griddata.Row, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return griddata.Row{}, err
	}
	defer s.sem.Release(1)

	row, err := s.coll.Get(ctx, id)
	if err != nil {
		if errors.Is(err, griddata.ErrNotFound) {
			return griddata.Row{}, griddata.ErrNotFound
		}
		return griddata.Row{}, s.fail(ctx, "get", nil, nil, err)
	}
	return row, nil
}

func (s *storeCalls) fail(ctx context.Context, op string, path []any, pipeline griddata.Pipeline, err error) error {
	storeErr := &griddata.StoreQueryError{
		Op:       op,
		Path:     path,
		Pipeline: pipeline,
		Err:      err,
	}
	// Calls cut short by a failing sibling are not store errors of their own.
	if ctxErr := ctx.Err(); ctxErr == nil || !errors.Is(err, ctxErr) {
		s.observer.StoreError(ctx, storeErr)
	}
	return storeErr
}
