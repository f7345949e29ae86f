package mongo

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gabisonia/go-gridquery/griddata"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// compileFilterBSON translates a Filter tree into a MongoDB query document.
// A nil filter matches everything.
func compileFilterBSON(filter griddata.Filter) (bson.D, error) {
	if filter == nil {
		return bson.D{}, nil
	}
	return compileNode(filter)
}

func compileNode(filter griddata.Filter) (bson.D, error) {
	switch node := filter.(type) {
	case griddata.TruthyFilter:
		field, err := fieldName(node.Field)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: field, Value: true}}, nil
	case griddata.CompareFilter:
		return compileCompare(node)
	case griddata.AndFilter:
		return compileLogical("$and", node.Children)
	case griddata.OrFilter:
		return compileLogical("$or", node.Children)
	case griddata.NotFilter:
		if node.Child == nil {
			return nil, fmt.Errorf("%w: NOT requires a child", griddata.ErrFilterSyntax)
		}
		child, err := compileNode(node.Child)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{child}}}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported node type %T", griddata.ErrFilterSyntax, filter)
	}
}

var comparisonOperators = map[griddata.CompareOp]string{
	griddata.OpEq:  "$eq",
	griddata.OpNe:  "$ne",
	griddata.OpGt:  "$gt",
	griddata.OpGte: "$gte",
	griddata.OpLt:  "$lt",
	griddata.OpLte: "$lte",
}

func compileCompare(node griddata.CompareFilter) (bson.D, error) {
	field, err := fieldName(node.Field)
	if err != nil {
		return nil, err
	}

	if op, ok := comparisonOperators[node.Op]; ok {
		if operand, isTime := node.Value.(time.Time); isTime {
			return compileDateCompare(field, op, operand), nil
		}
		return bson.D{{Key: field, Value: bson.D{{Key: op, Value: node.Value}}}}, nil
	}

	operand, ok := node.Value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires a string operand", griddata.ErrFilterSyntax, node.Op)
	}
	quoted := regexp.QuoteMeta(operand)

	var pattern string
	switch node.Op {
	case griddata.OpStartsWith:
		pattern = "^" + quoted
	case griddata.OpEndsWith:
		pattern = quoted + "$"
	case griddata.OpContains:
		pattern = quoted
	case griddata.OpNotContains:
		pattern = "^((?!" + quoted + ").)*$"
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", griddata.ErrFilterSyntax, node.Op)
	}
	return bson.D{{Key: field, Value: primitive.Regex{Pattern: pattern, Options: "s"}}}, nil
}

// compileDateCompare compares BSON dates and ISO-8601 date strings with a
// time operand. Strings are converted inside the expression, so stored values
// keep their type. Strings that are not dates compare as null.
func compileDateCompare(field, op string, operand time.Time) bson.D {
	path := "$" + field
	asDate := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: path}}, "string"}}},
		bson.D{{Key: "$convert", Value: bson.D{
			{Key: "input", Value: path},
			{Key: "to", Value: "date"},
			{Key: "onError", Value: nil},
		}}},
		path,
	}}}

	compare := bson.D{{Key: op, Value: bson.A{"$$value", operand}}}
	if op != "$eq" && op != "$ne" {
		// Aggregation comparisons order across types; relational operators
		// only match dates.
		compare = bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$$value"}}, "date"}}},
			compare,
		}}}
	}

	return bson.D{{Key: "$expr", Value: bson.D{{Key: "$let", Value: bson.D{
		{Key: "vars", Value: bson.D{{Key: "value", Value: asDate}}},
		{Key: "in", Value: compare},
	}}}}}
}

func compileLogical(op string, children []griddata.Filter) (bson.D, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: %s requires at least one child", griddata.ErrFilterSyntax, op)
	}

	parts := make(bson.A, 0, len(children))
	for _, child := range children {
		if child == nil {
			return nil, fmt.Errorf("%w: %s contains nil child", griddata.ErrFilterSyntax, op)
		}
		compiled, err := compileNode(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, compiled)
	}
	return bson.D{{Key: op, Value: parts}}, nil
}

func fieldName(field string) (string, error) {
	path, err := griddata.FieldPath(field)
	if err != nil {
		return "", fmt.Errorf("%w: %v", griddata.ErrFilterSyntax, err)
	}
	return strings.Join(path, "."), nil
}
