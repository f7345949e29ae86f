package gridquery

import "github.com/gabisonia/go-gridquery/griddata"

// BuildGroupLevel returns the stages for one grouping pass: group rows by
// selector, then order buckets by key. When separateCount is set the
// per-bucket count is left to the caller. Buckets keep their rows only when
// includeItems is set; otherwise their items stay absent. Every call returns
// a fresh pipeline.
func BuildGroupLevel(selector string, desc, includeItems, separateCount bool) griddata.Pipeline {
	return griddata.Pipeline{
		griddata.GroupStage{
			Selector: selector,
			Count:    !separateCount,
			Items:    includeItems,
		},
		griddata.SortKeysStage{Desc: desc},
	}
}

func filterStages(filter griddata.Filter) griddata.Pipeline {
	if filter == nil {
		return griddata.Pipeline{}
	}
	return griddata.Pipeline{griddata.MatchStage{Filter: filter}}
}

func sortRowStages(sort []griddata.SortSpec) griddata.Pipeline {
	if len(sort) == 0 {
		return griddata.Pipeline{}
	}
	specs := make([]griddata.SortSpec, len(sort))
	copy(specs, sort)
	return griddata.Pipeline{griddata.SortRowsStage{Sort: specs}}
}

func matchKeyStage(selector string, key any) griddata.Stage {
	return griddata.MatchStage{Filter: griddata.Eq(selector, key)}
}

// pagingStages applies skip and take; zero values add no stage.
func pagingStages(skip, take int) griddata.Pipeline {
	out := griddata.Pipeline{}
	if skip > 0 {
		out = append(out, griddata.SkipStage{N: skip})
	}
	if take > 0 {
		out = append(out, griddata.LimitStage{N: take})
	}
	return out
}

func countStages() griddata.Pipeline {
	return griddata.Pipeline{griddata.CountStage{}}
}

// distinctCountStages counts the distinct values of selector.
func distinctCountStages(selector string) griddata.Pipeline {
	return griddata.Pipeline{
		griddata.GroupStage{Selector: selector},
		griddata.CountStage{},
	}
}

// concatStages joins pipelines into a new slice that aliases none of them.
func concatStages(parts ...griddata.Pipeline) griddata.Pipeline {
	n := 0
	for _, part := range parts {
		n += len(part)
	}
	out := make(griddata.Pipeline, 0, n)
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

// matchContext is the filter plus the group keys fixed while descending
// into nested groups. Values are never modified in place.
type matchContext struct {
	filter    griddata.Filter
	selectors []string
	keys      []any
}

func rootMatch(filter griddata.Filter) matchContext {
	return matchContext{filter: filter}
}

// with returns a new context constrained by selector == key.
func (m matchContext) with(selector string, key any) matchContext {
	selectors := make([]string, len(m.selectors), len(m.selectors)+1)
	copy(selectors, m.selectors)
	keys := make([]any, len(m.keys), len(m.keys)+1)
	copy(keys, m.keys)
	return matchContext{
		filter:    m.filter,
		selectors: append(selectors, selector),
		keys:      append(keys, key),
	}
}

func (m matchContext) stages() griddata.Pipeline {
	out := filterStages(m.filter)
	for i, selector := range m.selectors {
		out = append(out, matchKeyStage(selector, m.keys[i]))
	}
	return out
}

// path returns the group keys leading to this context.
func (m matchContext) path() []any {
	out := make([]any, len(m.keys))
	copy(out, m.keys)
	return out
}
