package griddata

import (
	"fmt"
	"strings"
)

// CompileFilter turns a decoded JSON filter expression into a Filter tree.
//
// Accepted shapes:
//
//	"field"                                  field equals true
//	["!", expr]                              negation
//	[expr, "and", expr, "and", expr, ...]    chain, one operator throughout
//	["field", op, value]                     comparison
//
// A nil expression compiles to a nil Filter, which matches every row.
func CompileFilter(raw any) (Filter, error) {
	if raw == nil {
		return nil, nil
	}
	return compileElement(raw)
}

func compileElement(element any) (Filter, error) {
	switch node := element.(type) {
	case string:
		field, err := compileFieldName(node, element)
		if err != nil {
			return nil, err
		}
		return TruthyFilter{Field: field}, nil
	case []any:
		return compileList(node)
	default:
		return nil, filterSyntaxErrorf(element, "element type unknown")
	}
}

func compileList(list []any) (Filter, error) {
	switch {
	case len(list) == 2:
		return compileUnary(list)
	case len(list) >= 3 && len(list)%2 == 1:
		token, ok := list[1].(string)
		if !ok {
			return nil, filterSyntaxErrorf(list, "operator must be a string")
		}
		op := strings.ToLower(strings.TrimSpace(token))
		if op == "and" || op == "or" {
			return compileChain(list, op)
		}
		if len(list) != 3 {
			return nil, filterSyntaxErrorf(list, "operator filter of unsupported length %d", len(list))
		}
		return compileCompare(list, CompareOp(op))
	default:
		return nil, filterSyntaxErrorf(list, "array element of unsupported length %d", len(list))
	}
}

func compileUnary(list []any) (Filter, error) {
	op, ok := list[0].(string)
	if !ok || op != "!" {
		return nil, filterSyntaxErrorf(list, "unsupported unary operator")
	}
	child, err := compileElement(list[1])
	if err != nil {
		return nil, err
	}
	return NotFilter{Child: child}, nil
}

func compileChain(list []any, op string) (Filter, error) {
	children := make([]Filter, 0, len(list)/2+1)
	for i, element := range list {
		if i%2 == 1 {
			token, ok := element.(string)
			if !ok || strings.ToLower(strings.TrimSpace(token)) != op {
				return nil, filterSyntaxErrorf(list, "operator chain had non-matching operators (should be %q)", op)
			}
			continue
		}
		child, err := compileElement(element)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if op == "and" {
		return AndFilter{Children: children}, nil
	}
	return OrFilter{Children: children}, nil
}

func compileCompare(list []any, op CompareOp) (Filter, error) {
	if !op.valid() {
		return nil, filterSyntaxErrorf(list, "unknown operator %q", string(op))
	}
	name, ok := list[0].(string)
	if !ok {
		return nil, filterSyntaxErrorf(list, "comparison field must be a string")
	}
	field, err := compileFieldName(name, list)
	if err != nil {
		return nil, err
	}
	value := list[2]
	if op.IsText() {
		text, err := textOperand(value, list)
		if err != nil {
			return nil, err
		}
		value = text
	}
	return CompareFilter{Field: field, Op: op, Value: value}, nil
}

func compileFieldName(name string, element any) (string, error) {
	if _, err := FieldPath(name); err != nil {
		return "", filterSyntaxErrorf(element, "invalid field name %q", name)
	}
	return strings.TrimSpace(name), nil
}

func textOperand(value any, element any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64, bool, int, int64:
		return fmt.Sprint(v), nil
	default:
		return "", filterSyntaxErrorf(element, "text operator requires a scalar operand")
	}
}
