package griddata

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Stage is one step of an aggregation pipeline. Stores translate stages into
// their native query form.
type Stage interface {
	isStage()
}

// MatchStage keeps rows accepted by Filter.
type MatchStage struct {
	Filter Filter
}

func (MatchStage) isStage() {}

// GroupStage groups rows into one bucket per distinct value of Selector.
// Count computes the row count per bucket in the same pass. Items retains
// the bucket's rows; when false the bucket carries no items at all.
type GroupStage struct {
	Selector string
	Count    bool
	Items    bool
}

func (GroupStage) isStage() {}

// SortKeysStage orders buckets by key.
type SortKeysStage struct {
	Desc bool
}

func (SortKeysStage) isStage() {}

// SortRowsStage orders rows by one or more fields. It describes the sort of
// a Find call in diagnostics; aggregation pipelines never carry it.
type SortRowsStage struct {
	Sort []SortSpec
}

func (SortRowsStage) isStage() {}

// SkipStage drops the first N results.
type SkipStage struct {
	N int
}

func (SkipStage) isStage() {}

// LimitStage keeps at most N results.
type LimitStage struct {
	N int
}

func (LimitStage) isStage() {}

// CountStage replaces its input with a single row holding the input size.
// When the input is empty the store emits no row at all.
type CountStage struct{}

func (CountStage) isStage() {}

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// LogValue renders the pipeline as a structured group, one attribute per stage.
func (p Pipeline) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(p))
	for i, stage := range p {
		attrs = append(attrs, slog.String(strconv.Itoa(i), describeStage(stage)))
	}
	return slog.GroupValue(attrs...)
}

func describeStage(stage Stage) string {
	switch s := stage.(type) {
	case MatchStage:
		return "match " + describeFilter(s.Filter)
	case GroupStage:
		return fmt.Sprintf("group by %s (count=%t, items=%t)", s.Selector, s.Count, s.Items)
	case SortKeysStage:
		if s.Desc {
			return "sort keys desc"
		}
		return "sort keys asc"
	case SortRowsStage:
		parts := make([]string, 0, len(s.Sort))
		for _, spec := range s.Sort {
			direction := "asc"
			if spec.Desc {
				direction = "desc"
			}
			parts = append(parts, spec.Selector+" "+direction)
		}
		return "sort " + strings.Join(parts, ", ")
	case SkipStage:
		return fmt.Sprintf("skip %d", s.N)
	case LimitStage:
		return fmt.Sprintf("limit %d", s.N)
	case CountStage:
		return "count"
	default:
		return fmt.Sprintf("%T", stage)
	}
}

func describeFilter(filter Filter) string {
	switch f := filter.(type) {
	case nil:
		return "*"
	case TruthyFilter:
		return f.Field
	case CompareFilter:
		return fmt.Sprintf("%s %s %s", f.Field, f.Op, describeElement(f.Value))
	case AndFilter:
		return describeChain("and", f.Children)
	case OrFilter:
		return describeChain("or", f.Children)
	case NotFilter:
		return "!(" + describeFilter(f.Child) + ")"
	default:
		return fmt.Sprintf("%T", filter)
	}
}

func describeChain(op string, children []Filter) string {
	out := "("
	for i, child := range children {
		if i > 0 {
			out += " " + op + " "
		}
		out += describeFilter(child)
	}
	return out + ")"
}
