package griddata

import (
	"fmt"
	"strings"
	"time"
)

// Matches evaluates filter against a single document in process. A nil
// filter matches every document.
func Matches(filter Filter, doc map[string]any) (bool, error) {
	if filter == nil {
		return true, nil
	}

	switch node := filter.(type) {
	case TruthyFilter:
		value, exists, err := resolveField(node.Field, doc)
		if err != nil {
			return false, err
		}
		flag, ok := value.(bool)
		return exists && ok && flag, nil
	case CompareFilter:
		return matchesCompare(node, doc)
	case AndFilter:
		if len(node.Children) == 0 {
			return false, fmt.Errorf("%w: AND requires at least one child", ErrFilterSyntax)
		}
		for _, child := range node.Children {
			if child == nil {
				return false, fmt.Errorf("%w: AND contains nil child", ErrFilterSyntax)
			}
			ok, err := Matches(child, doc)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case OrFilter:
		if len(node.Children) == 0 {
			return false, fmt.Errorf("%w: OR requires at least one child", ErrFilterSyntax)
		}
		for _, child := range node.Children {
			if child == nil {
				return false, fmt.Errorf("%w: OR contains nil child", ErrFilterSyntax)
			}
			ok, err := Matches(child, doc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case NotFilter:
		if node.Child == nil {
			return false, fmt.Errorf("%w: NOT requires a child", ErrFilterSyntax)
		}
		ok, err := Matches(node.Child, doc)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("%w: unsupported node type %T", ErrFilterSyntax, filter)
	}
}

func matchesCompare(node CompareFilter, doc map[string]any) (bool, error) {
	value, exists, err := resolveField(node.Field, doc)
	if err != nil {
		return false, err
	}
	value = dateForOperand(value, node.Value)

	switch node.Op {
	case OpEq:
		return equalsWithMissing(value, exists, node.Value), nil
	case OpNe:
		return !equalsWithMissing(value, exists, node.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		if !exists || !SameKind(value, node.Value) {
			return false, nil
		}
		cmp := CompareValues(value, node.Value)
		switch node.Op {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpStartsWith, OpEndsWith, OpContains, OpNotContains:
		text, ok := value.(string)
		if !exists || !ok {
			return false, nil
		}
		operand, ok := node.Value.(string)
		if !ok {
			return false, fmt.Errorf("%w: %s requires a string operand", ErrFilterSyntax, node.Op)
		}
		switch node.Op {
		case OpStartsWith:
			return strings.HasPrefix(text, operand), nil
		case OpEndsWith:
			return strings.HasSuffix(text, operand), nil
		case OpContains:
			return strings.Contains(text, operand), nil
		default:
			return !strings.Contains(text, operand), nil
		}
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrFilterSyntax, node.Op)
	}
}

// dateForOperand reads an ISO-8601 date string as a time when it is compared
// with a time operand. The document itself is left untouched.
func dateForOperand(value, operand any) any {
	if _, ok := operand.(time.Time); !ok {
		return value
	}
	if text, ok := value.(string); ok {
		if t, ok := ParseISODate(text); ok {
			return t
		}
	}
	return value
}

// equalsWithMissing treats a missing field as equal to null.
func equalsWithMissing(value any, exists bool, expected any) bool {
	if expected == nil {
		return !exists || value == nil
	}
	return exists && ValuesEqual(value, expected)
}

func resolveField(field string, doc map[string]any) (any, bool, error) {
	path, err := FieldPath(field)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrFilterSyntax, err)
	}
	value, exists := ResolvePath(doc, path)
	return value, exists, nil
}
