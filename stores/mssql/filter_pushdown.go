package mssql

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabisonia/go-gridquery/griddata"
)

var errFilterPushdownUnsupported = errors.New("mssql filter pushdown unsupported")

// JSON_VALUE yields NULL for longer strings in lax mode.
const maxJSONValueLength = 4000

// compileFilterPushdown compiles filter into a WHERE fragment that accepts
// every row the filter accepts, and possibly more. Rows loaded through it are
// always re-checked with griddata.Matches. Conjuncts that cannot be expressed
// are left out; errFilterPushdownUnsupported means nothing could be pushed.
func compileFilterPushdown(filter griddata.Filter, startArg int) (sql string, args []any, nextArg int, err error) {
	if startArg < 1 {
		startArg = 1
	}
	if filter == nil {
		return "", nil, startArg, nil
	}

	c := &pushdownCompiler{
		nextArg: startArg,
	}
	out, err := c.compile(filter)
	if err != nil {
		return "", nil, startArg, err
	}
	return out, c.args, c.nextArg, nil
}

type pushdownCompiler struct {
	args    []any
	nextArg int
}

func (c *pushdownCompiler) compile(filter griddata.Filter) (string, error) {
	switch node := filter.(type) {
	case griddata.TruthyFilter:
		valueExpr, err := c.valueExpr(node.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s = N'true')", valueExpr), nil
	case griddata.CompareFilter:
		return c.compileCompare(node)
	case griddata.AndFilter:
		return c.compileAnd(node.Children)
	case griddata.OrFilter:
		return c.compileOr(node.Children)
	case griddata.NotFilter:
		return "", unsupportedPushdown("negation")
	default:
		return "", fmt.Errorf("%w: unsupported node type %T", griddata.ErrFilterSyntax, filter)
	}
}

func (c *pushdownCompiler) compileCompare(node griddata.CompareFilter) (string, error) {
	switch node.Op {
	case griddata.OpEq:
		return c.compileEq(node)
	case griddata.OpGt, griddata.OpGte, griddata.OpLt, griddata.OpLte:
		number, ok := griddata.ToFloat64(node.Value)
		if !ok {
			return "", unsupportedPushdown("%s only supports numeric values", node.Op)
		}
		valueExpr, err := c.valueExpr(node.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(TRY_CONVERT(float, %s) %s %s)", valueExpr, string(node.Op), c.bind(number)), nil
	default:
		return "", unsupportedPushdown("operator %q", node.Op)
	}
}

func (c *pushdownCompiler) compileEq(node griddata.CompareFilter) (string, error) {
	switch typed := node.Value.(type) {
	case nil:
		valueExpr, err := c.valueExpr(node.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s IS NULL)", valueExpr), nil
	case string:
		if utf8.RuneCountInString(typed) > maxJSONValueLength {
			return "", unsupportedPushdown("string operand longer than %d characters", maxJSONValueLength)
		}
		valueExpr, err := c.valueExpr(node.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s = %s)", valueExpr, c.bind(typed)), nil
	case bool:
		valueExpr, err := c.valueExpr(node.Field)
		if err != nil {
			return "", err
		}
		if typed {
			return fmt.Sprintf("(%s = N'true')", valueExpr), nil
		}
		return fmt.Sprintf("(%s = N'false')", valueExpr), nil
	default:
		number, ok := griddata.ToFloat64(node.Value)
		if !ok {
			return "", unsupportedPushdown("equality does not support value type %T", node.Value)
		}
		valueExpr, err := c.valueExpr(node.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(TRY_CONVERT(float, %s) = %s)", valueExpr, c.bind(number)), nil
	}
}

func (c *pushdownCompiler) compileAnd(children []griddata.Filter) (string, error) {
	if len(children) == 0 {
		return "", fmt.Errorf("%w: AND requires at least one child", griddata.ErrFilterSyntax)
	}

	parts := make([]string, 0, len(children))
	for _, child := range children {
		if child == nil {
			return "", fmt.Errorf("%w: AND contains nil child", griddata.ErrFilterSyntax)
		}
		mark := c.mark()
		childSQL, err := c.compile(child)
		if errors.Is(err, errFilterPushdownUnsupported) {
			c.reset(mark)
			continue
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, childSQL)
	}
	if len(parts) == 0 {
		return "", unsupportedPushdown("no conjunct can be pushed down")
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, " AND ")), nil
}

func (c *pushdownCompiler) compileOr(children []griddata.Filter) (string, error) {
	if len(children) == 0 {
		return "", fmt.Errorf("%w: OR requires at least one child", griddata.ErrFilterSyntax)
	}

	parts := make([]string, 0, len(children))
	for _, child := range children {
		if child == nil {
			return "", fmt.Errorf("%w: OR contains nil child", griddata.ErrFilterSyntax)
		}
		childSQL, err := c.compile(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, childSQL)
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, " OR ")), nil
}

func (c *pushdownCompiler) valueExpr(field string) (string, error) {
	path, err := griddata.FieldPath(field)
	if err != nil {
		return "", fmt.Errorf("%w: %v", griddata.ErrFilterSyntax, err)
	}
	return fmt.Sprintf("JSON_VALUE(%s, %s)", quoteIdent(docColumn), c.bind(documentPathLiteral(path))), nil
}

func (c *pushdownCompiler) bind(value any) string {
	placeholder := fmt.Sprintf("@p%d", c.nextArg)
	c.nextArg++
	c.args = append(c.args, value)
	return placeholder
}

func (c *pushdownCompiler) mark() int {
	return len(c.args)
}

func (c *pushdownCompiler) reset(mark int) {
	c.nextArg -= len(c.args) - mark
	c.args = c.args[:mark]
}

func documentPathLiteral(path []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, segment := range path {
		escaped := strings.ReplaceAll(segment, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		b.WriteString(`."`)
		b.WriteString(escaped)
		b.WriteString(`"`)
	}
	return b.String()
}

func unsupportedPushdown(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errFilterPushdownUnsupported, fmt.Sprintf(format, args...))
}
