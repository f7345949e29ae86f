package memory

import (
	"fmt"
	"sort"

	"github.com/gabisonia/go-gridquery/griddata"
)

// RunPipeline executes a grouping pipeline over rows in process. The
// pipeline must contain a GroupStage and must not end in a CountStage.
func RunPipeline(rows []griddata.Row, pipeline griddata.Pipeline) ([]griddata.Bucket, error) {
	plan, err := griddata.PlanPipeline(pipeline)
	if err != nil {
		return nil, err
	}
	if plan.Group == nil {
		return nil, fmt.Errorf("%w: aggregate pipeline has no group stage", griddata.ErrUnsupportedPipeline)
	}
	if plan.Count {
		return nil, fmt.Errorf("%w: aggregate pipeline ends in a count stage", griddata.ErrUnsupportedPipeline)
	}

	matched, err := filterRows(rows, plan.Filter())
	if err != nil {
		return nil, err
	}
	buckets, err := groupRows(matched, *plan.Group)
	if err != nil {
		return nil, err
	}
	if plan.SortKeys != nil {
		sortBuckets(buckets, plan.SortKeys.Desc)
	}
	return page(buckets, plan.Skip, plan.Limit), nil
}

// RunCount executes a pipeline ending in a CountStage. Like a document
// store's $count, it emits no row when nothing reaches the count stage.
func RunCount(rows []griddata.Row, pipeline griddata.Pipeline) ([]int64, error) {
	plan, err := griddata.PlanPipeline(pipeline)
	if err != nil {
		return nil, err
	}
	if !plan.Count {
		return nil, fmt.Errorf("%w: count pipeline has no count stage", griddata.ErrUnsupportedPipeline)
	}

	matched, err := filterRows(rows, plan.Filter())
	if err != nil {
		return nil, err
	}

	var n int
	if plan.Group != nil {
		buckets, err := groupRows(matched, griddata.GroupStage{Selector: plan.Group.Selector})
		if err != nil {
			return nil, err
		}
		n = len(page(buckets, plan.Skip, plan.Limit))
	} else {
		n = len(page(matched, plan.Skip, plan.Limit))
	}

	if n == 0 {
		return nil, nil
	}
	return []int64{int64(n)}, nil
}

// ApplyFind filters, sorts and pages rows. Sorting is stable; rows missing
// a sort field order as null.
func ApplyFind(rows []griddata.Row, opts griddata.FindOptions) ([]griddata.Row, error) {
	if opts.Skip < 0 || opts.Take < 0 {
		return nil, fmt.Errorf("%w: skip and take must be >= 0", griddata.ErrInvalidQuery)
	}

	matched, err := filterRows(rows, opts.Filter)
	if err != nil {
		return nil, err
	}

	if len(opts.Sort) > 0 {
		paths := make([][]string, len(opts.Sort))
		for i, spec := range opts.Sort {
			path, err := griddata.FieldPath(spec.Selector)
			if err != nil {
				return nil, err
			}
			paths[i] = path
		}
		sort.SliceStable(matched, func(i, j int) bool {
			for k, spec := range opts.Sort {
				left, _ := griddata.ResolvePath(matched[i].Doc, paths[k])
				right, _ := griddata.ResolvePath(matched[j].Doc, paths[k])
				cmp := griddata.CompareValues(left, right)
				if cmp == 0 {
					continue
				}
				if spec.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	return page(matched, opts.Skip, opts.Take), nil
}

func filterRows(rows []griddata.Row, filter griddata.Filter) ([]griddata.Row, error) {
	out := make([]griddata.Row, 0, len(rows))
	for _, row := range rows {
		ok, err := griddata.Matches(filter, row.Doc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// groupRows buckets rows by selector in first-seen order. Rows missing the
// field land in the null bucket.
func groupRows(rows []griddata.Row, stage griddata.GroupStage) ([]griddata.Bucket, error) {
	path, err := griddata.FieldPath(stage.Selector)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	buckets := make([]griddata.Bucket, 0)
	counts := make([]int64, 0)
	for _, row := range rows {
		key, _ := griddata.ResolvePath(row.Doc, path)
		id := griddata.KeyString(key)
		pos, ok := index[id]
		if !ok {
			pos = len(buckets)
			index[id] = pos
			buckets = append(buckets, griddata.Bucket{Key: key})
			counts = append(counts, 0)
		}
		counts[pos]++
		if stage.Items {
			buckets[pos].Items = append(buckets[pos].Items, row)
		}
	}

	if stage.Count {
		for i := range buckets {
			n := counts[i]
			buckets[i].Count = &n
		}
	}
	return buckets, nil
}

func sortBuckets(buckets []griddata.Bucket, desc bool) {
	sort.SliceStable(buckets, func(i, j int) bool {
		cmp := griddata.CompareValues(buckets[i].Key, buckets[j].Key)
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// page applies skip and limit; a zero limit keeps everything after skip.
func page[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return items[:0]
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
