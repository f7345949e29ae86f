package gridquery

import (
	"context"

	"github.com/gabisonia/go-gridquery/griddata"
	"golang.org/x/sync/errgroup"
)

// groupExecutor walks the grouping levels of one query.
type groupExecutor struct {
	calls  *storeCalls
	counts countResolver
	groups []griddata.GroupSpec
}

// executeLevel groups the rows of match by groups[level]. Skip and take
// apply only at the root level.
func (e groupExecutor) executeLevel(ctx context.Context, level int, match matchContext, skip, take int) (griddata.GroupList, error) {
	spec := e.groups[level]
	lastLevel := level == len(e.groups)-1
	itemsRequired := lastLevel && spec.IsExpanded
	subGroupsRequired := !lastLevel && spec.IsExpanded
	separateCountRequired := !lastLevel

	pipeline := concatStages(
		match.stages(),
		BuildGroupLevel(spec.Selector, spec.Desc, itemsRequired, separateCountRequired),
	)
	if level == 0 {
		pipeline = concatStages(pipeline, pagingStages(skip, take))
	}

	buckets, err := e.calls.aggregate(ctx, match.path(), pipeline)
	if err != nil {
		return nil, err
	}

	// One goroutine per bucket. Goroutines hold no semaphore slot while they
	// wait on children, so the number in flight is bounded only by the bucket
	// count; store calls stay bounded by Options.MaxConcurrency.
	results := make(griddata.GroupList, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	for i, bucket := range buckets {
		results[i] = griddata.GroupResult{Key: bucket.Key}

		switch {
		case subGroupsRequired:
			child := match.with(spec.Selector, bucket.Key)
			g.Go(func() error {
				children, err := e.executeLevel(gctx, level+1, child, 0, 0)
				if err != nil {
					return err
				}
				results[i].Items = children
				results[i].Count = int64(len(children))
				return nil
			})
		case separateCountRequired:
			child := match.with(spec.Selector, bucket.Key)
			next := e.groups[level+1]
			g.Go(func() error {
				n, err := e.counts.count(gctx, child.path(), concatStages(child.stages(), distinctCountStages(next.Selector)))
				if err != nil {
					return err
				}
				results[i].Count = n
				return nil
			})
		default:
			if bucket.Count != nil {
				results[i].Count = *bucket.Count
			}
			if itemsRequired {
				items, err := normalizeRows(e.calls.coll, bucket.Items)
				if err != nil {
					return nil, err
				}
				results[i].Items = items
				if bucket.Count == nil {
					results[i].Count = int64(len(items))
				}
			}
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
