package gridquery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gabisonia/go-gridquery/griddata"
	"github.com/gabisonia/go-gridquery/stores/memory"
	"github.com/stretchr/testify/require"
)

func newMemoryCollection(t *testing.T, docs ...map[string]any) *memory.Collection {
	t.Helper()
	coll, err := memory.NewCollection("rows")
	require.NoError(t, err)
	_, err = coll.Insert(context.Background(), docs)
	require.NoError(t, err)
	return coll
}

func newTestService(t *testing.T, coll griddata.Collection, opts Options) *Service {
	t.Helper()
	svc, err := NewService(coll, opts)
	require.NoError(t, err)
	return svc
}

// recordingCollection wraps a collection, recording pipelines and in-flight
// calls and optionally failing selected calls.
type recordingCollection struct {
	griddata.Collection

	delay     time.Duration
	failCount func(griddata.Pipeline) error

	mu          sync.Mutex
	aggregates  []griddata.Pipeline
	counts      []griddata.Pipeline
	finds       int
	inFlight    int
	maxInFlight int
}

func (r *recordingCollection) enter() {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
}

func (r *recordingCollection) leave() {
	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()
}

func (r *recordingCollection) Find(ctx context.Context, opts griddata.FindOptions) ([]griddata.Row, error) {
	r.enter()
	defer r.leave()
	r.mu.Lock()
	r.finds++
	r.mu.Unlock()
	return r.Collection.Find(ctx, opts)
}

func (r *recordingCollection) Aggregate(ctx context.Context, pipeline griddata.Pipeline) ([]griddata.Bucket, error) {
	r.enter()
	defer r.leave()
	r.mu.Lock()
	r.aggregates = append(r.aggregates, pipeline)
	r.mu.Unlock()
	return r.Collection.Aggregate(ctx, pipeline)
}

func (r *recordingCollection) Count(ctx context.Context, pipeline griddata.Pipeline) ([]int64, error) {
	r.enter()
	defer r.leave()
	r.mu.Lock()
	r.counts = append(r.counts, pipeline)
	r.mu.Unlock()
	if r.failCount != nil {
		if err := r.failCount(pipeline); err != nil {
			return nil, err
		}
	}
	return r.Collection.Count(ctx, pipeline)
}

func (r *recordingCollection) storeCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.aggregates) + len(r.counts) + r.finds
}

// hasKeyMatch reports whether pipeline constrains field to key.
func hasKeyMatch(pipeline griddata.Pipeline, field string, key any) bool {
	for _, stage := range pipeline {
		match, ok := stage.(griddata.MatchStage)
		if !ok {
			continue
		}
		cmp, ok := match.Filter.(griddata.CompareFilter)
		if ok && cmp.Field == field && cmp.Op == griddata.OpEq && cmp.Value == key {
			return true
		}
	}
	return false
}

// capturingObserver records built pipelines by operation and store errors.
type capturingObserver struct {
	NopObserver

	mu     sync.Mutex
	built  map[string][]griddata.Pipeline
	errors []*griddata.StoreQueryError
}

func (o *capturingObserver) PipelineBuilt(_ context.Context, op string, _ []any, pipeline griddata.Pipeline) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.built == nil {
		o.built = make(map[string][]griddata.Pipeline)
	}
	o.built[op] = append(o.built[op], pipeline)
}

func (o *capturingObserver) StoreError(_ context.Context, err *griddata.StoreQueryError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}
