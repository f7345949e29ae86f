package mongo

import (
	"fmt"

	"github.com/gabisonia/go-gridquery/griddata"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

const (
	keyField   = "key"
	countField = "count"
	itemsField = "items"
)

// buildAggregatePipeline translates a grouping pipeline into aggregation
// stages producing documents of the form {key, count, items}.
func buildAggregatePipeline(p griddata.Pipeline) (mongodriver.Pipeline, error) {
	plan, err := griddata.PlanPipeline(p)
	if err != nil {
		return nil, err
	}
	if plan.Group == nil {
		return nil, fmt.Errorf("%w: aggregate pipeline has no group stage", griddata.ErrUnsupportedPipeline)
	}
	if plan.Count {
		return nil, fmt.Errorf("%w: aggregate pipeline ends in a count stage", griddata.ErrUnsupportedPipeline)
	}

	out, err := matchStages(plan)
	if err != nil {
		return nil, err
	}

	group, err := groupStage(*plan.Group)
	if err != nil {
		return nil, err
	}
	out = append(out, group)
	if plan.SortKeys != nil {
		direction := 1
		if plan.SortKeys.Desc {
			direction = -1
		}
		out = append(out, bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: direction}}}})
	}
	out = append(out, pagingStages(plan)...)

	projection := bson.D{
		{Key: "_id", Value: 0},
		{Key: keyField, Value: "$_id"},
	}
	if plan.Group.Count {
		projection = append(projection, bson.E{Key: countField, Value: 1})
	}
	if plan.Group.Items {
		projection = append(projection, bson.E{Key: itemsField, Value: 1})
	}
	out = append(out, bson.D{{Key: "$project", Value: projection}})
	if !plan.Group.Items {
		out = append(out, bson.D{{Key: "$addFields", Value: bson.D{{Key: itemsField, Value: nil}}}})
	}
	return out, nil
}

// buildCountPipeline translates a pipeline ending in a CountStage. Like the
// $count stage it ends in, it yields no document for empty input.
func buildCountPipeline(p griddata.Pipeline) (mongodriver.Pipeline, error) {
	plan, err := griddata.PlanPipeline(p)
	if err != nil {
		return nil, err
	}
	if !plan.Count {
		return nil, fmt.Errorf("%w: count pipeline has no count stage", griddata.ErrUnsupportedPipeline)
	}

	out, err := matchStages(plan)
	if err != nil {
		return nil, err
	}
	if plan.Group != nil {
		group, err := groupStage(griddata.GroupStage{Selector: plan.Group.Selector})
		if err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	out = append(out, pagingStages(plan)...)
	out = append(out, bson.D{{Key: "$count", Value: countField}})
	return out, nil
}

func matchStages(plan griddata.PipelinePlan) (mongodriver.Pipeline, error) {
	out := make(mongodriver.Pipeline, 0, len(plan.Filters)+6)
	for _, filter := range plan.Filters {
		compiled, err := compileFilterBSON(filter)
		if err != nil {
			return nil, err
		}
		out = append(out, bson.D{{Key: "$match", Value: compiled}})
	}
	return out, nil
}

func groupStage(stage griddata.GroupStage) (bson.D, error) {
	field, err := fieldName(stage.Selector)
	if err != nil {
		return nil, err
	}

	spec := bson.D{{Key: "_id", Value: "$" + field}}
	if stage.Count {
		spec = append(spec, bson.E{Key: countField, Value: bson.D{{Key: "$sum", Value: 1}}})
	}
	if stage.Items {
		spec = append(spec, bson.E{Key: itemsField, Value: bson.D{{Key: "$push", Value: "$$ROOT"}}})
	}
	return bson.D{{Key: "$group", Value: spec}}, nil
}

func pagingStages(plan griddata.PipelinePlan) mongodriver.Pipeline {
	var out mongodriver.Pipeline
	if plan.Skip > 0 {
		out = append(out, bson.D{{Key: "$skip", Value: int64(plan.Skip)}})
	}
	if plan.Limit > 0 {
		out = append(out, bson.D{{Key: "$limit", Value: int64(plan.Limit)}})
	}
	return out
}
