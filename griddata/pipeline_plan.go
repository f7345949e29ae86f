package griddata

import "fmt"

// PipelinePlan is the canonical shape every store-built pipeline follows:
// matches, an optional group with key sort, paging, and an optional count.
// SQL stores compile the plan instead of walking stages one by one.
type PipelinePlan struct {
	Filters  []Filter
	Group    *GroupStage
	SortKeys *SortKeysStage
	Skip     int
	Limit    int
	Count    bool
}

// Filter returns the conjunction of all match filters, or nil.
func (p PipelinePlan) Filter() Filter {
	switch len(p.Filters) {
	case 0:
		return nil
	case 1:
		return p.Filters[0]
	default:
		return And(p.Filters...)
	}
}

const (
	phaseMatch = iota
	phaseGroup
	phaseSort
	phaseSkip
	phaseLimit
	phaseCount
)

// PlanPipeline validates stage order and folds the pipeline into a plan.
func PlanPipeline(p Pipeline) (PipelinePlan, error) {
	var plan PipelinePlan
	phase := phaseMatch

	advance := func(next int, stage Stage) error {
		if next < phase || (next == phase && next != phaseMatch) {
			return fmt.Errorf("%w: stage %q out of order", ErrUnsupportedPipeline, describeStage(stage))
		}
		phase = next
		return nil
	}

	for _, stage := range p {
		switch s := stage.(type) {
		case MatchStage:
			if err := advance(phaseMatch, s); err != nil {
				return PipelinePlan{}, err
			}
			if s.Filter != nil {
				plan.Filters = append(plan.Filters, s.Filter)
			}
		case GroupStage:
			if err := advance(phaseGroup, s); err != nil {
				return PipelinePlan{}, err
			}
			group := s
			plan.Group = &group
		case SortKeysStage:
			if plan.Group == nil {
				return PipelinePlan{}, fmt.Errorf("%w: key sort without group", ErrUnsupportedPipeline)
			}
			if err := advance(phaseSort, s); err != nil {
				return PipelinePlan{}, err
			}
			sortKeys := s
			plan.SortKeys = &sortKeys
		case SkipStage:
			if err := advance(phaseSkip, s); err != nil {
				return PipelinePlan{}, err
			}
			plan.Skip = s.N
		case LimitStage:
			if err := advance(phaseLimit, s); err != nil {
				return PipelinePlan{}, err
			}
			plan.Limit = s.N
		case CountStage:
			if err := advance(phaseCount, s); err != nil {
				return PipelinePlan{}, err
			}
			plan.Count = true
		default:
			return PipelinePlan{}, fmt.Errorf("%w: unknown stage %T", ErrUnsupportedPipeline, stage)
		}
	}
	return plan, nil
}

// LeadingMatches splits off the match stages at the head of a pipeline.
func LeadingMatches(p Pipeline) ([]Filter, Pipeline) {
	filters := make([]Filter, 0, len(p))
	i := 0
	for ; i < len(p); i++ {
		match, ok := p[i].(MatchStage)
		if !ok {
			break
		}
		if match.Filter != nil {
			filters = append(filters, match.Filter)
		}
	}
	rest := make(Pipeline, len(p)-i)
	copy(rest, p[i:])
	return filters, rest
}
