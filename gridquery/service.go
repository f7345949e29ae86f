// Package gridquery answers grid queries (filter, sort, multi-level
// grouping, paging and counts) against any griddata.Collection.
package gridquery

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabisonia/go-gridquery/griddata"
)

// Service runs grid queries against one collection. It holds no state
// between calls and is safe for concurrent use.
type Service struct {
	coll griddata.Collection
	opts Options
}

// NewService creates a query service over coll.
func NewService(coll griddata.Collection, opts Options) (*Service, error) {
	if coll == nil {
		return nil, fmt.Errorf("nil collection")
	}

	normalized := opts.withDefaults()
	if err := normalized.validate(); err != nil {
		return nil, err
	}

	return &Service{coll: coll, opts: normalized}, nil
}

// Query validates q, compiles its filter and returns grouped or flat data.
// Descriptor and filter errors are returned before any store call.
func (s *Service) Query(ctx context.Context, q griddata.QueryDescriptor) (griddata.QueryResult, error) {
	if err := q.Validate(); err != nil {
		return griddata.QueryResult{}, err
	}
	filter, err := griddata.CompileFilter(q.Filter)
	if err != nil {
		return griddata.QueryResult{}, err
	}
	if s.opts.ReviveDates {
		filter = griddata.ReviveDates(filter)
	}

	a := s.newAssembler()
	if q.Grouped() {
		return a.grouped(ctx, q, filter)
	}
	return a.flat(ctx, q, filter)
}

// Fetch returns the row with the given external identifier. A malformed or
// unknown identifier yields griddata.ErrUnknownIdentifier.
func (s *Service) Fetch(ctx context.Context, externalID string) (griddata.Item, error) {
	internal, err := s.coll.DecodeID(externalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", griddata.ErrUnknownIdentifier, externalID)
	}

	calls := newStoreCalls(s.coll, s.opts)
	row, err := calls.get(ctx, internal)
	if err != nil {
		if errors.Is(err, griddata.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", griddata.ErrUnknownIdentifier, externalID)
		}
		return nil, err
	}
	return normalizeRow(s.coll, row)
}

// newAssembler builds the per-query collaborators. Each query gets its own
// concurrency budget.
func (s *Service) newAssembler() assembler {
	calls := newStoreCalls(s.coll, s.opts)
	return assembler{
		calls:  calls,
		counts: countResolver{calls: calls, observer: s.opts.Observer},
	}
}
