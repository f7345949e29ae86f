package gridquery

import (
	"context"
	"fmt"

	"github.com/gabisonia/go-gridquery/griddata"
	"golang.org/x/sync/errgroup"
)

// assembler composes the response of one query.
type assembler struct {
	calls  *storeCalls
	counts countResolver
}

func (a assembler) grouped(ctx context.Context, q griddata.QueryDescriptor, filter griddata.Filter) (griddata.QueryResult, error) {
	result := griddata.QueryResult{Grouped: true}
	executor := groupExecutor{calls: a.calls, counts: a.counts, groups: q.Group}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		groups, err := executor.executeLevel(gctx, 0, rootMatch(filter), q.Skip, q.Take)
		if err != nil {
			return err
		}
		result.Groups = groups
		return nil
	})
	if q.RequireGroupCount {
		g.Go(func() error {
			n, err := a.counts.count(gctx, nil, concatStages(filterStages(filter), distinctCountStages(q.Group[0].Selector)))
			if err != nil {
				return err
			}
			result.GroupCount = &n
			return nil
		})
	}
	if q.RequireTotalCount {
		g.Go(func() error {
			n, err := a.totalCount(gctx, filter)
			if err != nil {
				return err
			}
			result.TotalCount = &n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return griddata.QueryResult{}, err
	}
	return result, nil
}

func (a assembler) flat(ctx context.Context, q griddata.QueryDescriptor, filter griddata.Filter) (griddata.QueryResult, error) {
	var result griddata.QueryResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := a.calls.find(gctx, griddata.FindOptions{
			Filter: filter,
			Sort:   q.Sort,
			Skip:   q.Skip,
			Take:   q.Take,
		})
		if err != nil {
			return err
		}
		items, err := normalizeRows(a.calls.coll, rows)
		if err != nil {
			return err
		}
		result.Items = items
		return nil
	})
	if q.RequireTotalCount {
		g.Go(func() error {
			n, err := a.totalCount(gctx, filter)
			if err != nil {
				return err
			}
			result.TotalCount = &n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return griddata.QueryResult{}, err
	}
	return result, nil
}

func (a assembler) totalCount(ctx context.Context, filter griddata.Filter) (int64, error) {
	return a.counts.count(ctx, nil, concatStages(filterStages(filter), countStages()))
}

// normalizeRows replaces internal identifiers with their external form.
func normalizeRows(codec griddata.IDCodec, rows []griddata.Row) (griddata.ItemList, error) {
	items := make(griddata.ItemList, 0, len(rows))
	for _, row := range rows {
		item, err := normalizeRow(codec, row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func normalizeRow(codec griddata.IDCodec, row griddata.Row) (griddata.Item, error) {
	external, err := codec.EncodeID(row.ID)
	if err != nil {
		return nil, fmt.Errorf("encode id: %w", err)
	}
	item := make(griddata.Item, len(row.Doc)+1)
	for k, v := range row.Doc {
		item[k] = v
	}
	item[griddata.IDField] = external
	return item, nil
}
