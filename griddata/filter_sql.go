package griddata

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FilterSQLConfig configures filter compilation into PostgreSQL expressions.
type FilterSQLConfig struct {
	// DocumentExpr is the SQL expression of the jsonb document column.
	DocumentExpr string
}

// CompileFilterSQL compiles a Filter tree into a PostgreSQL WHERE fragment and args.
// Returned SQL does not include the WHERE keyword.
func CompileFilterSQL(filter Filter, cfg FilterSQLConfig, startArg int) (sql string, args []any, nextArg int, err error) {
	if startArg < 1 {
		startArg = 1
	}
	if filter == nil {
		return "", nil, startArg, nil
	}
	if cfg.DocumentExpr == "" {
		return "", nil, startArg, fmt.Errorf("%w: document expression not configured", ErrInvalidQuery)
	}

	c := filterCompiler{
		cfg:     cfg,
		nextArg: startArg,
	}
	out, err := c.compile(filter)
	if err != nil {
		return "", nil, startArg, err
	}
	return out, c.args, c.nextArg, nil
}

// DocumentPathSQL returns the jsonb expression addressing a dot-separated field.
func DocumentPathSQL(documentExpr, field string) (string, error) {
	path, err := FieldPath(field)
	if err != nil {
		return "", err
	}
	return documentPathJSONBExpr(documentExpr, path), nil
}

type filterCompiler struct {
	cfg     FilterSQLConfig
	args    []any
	nextArg int
}

func (c *filterCompiler) compile(f Filter) (string, error) {
	switch node := f.(type) {
	case TruthyFilter:
		fieldExpr, _, err := c.resolveField(node.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s = 'true'::jsonb)", fieldExpr), nil
	case CompareFilter:
		return c.compileCompare(node)
	case AndFilter:
		return c.compileLogical("AND", node.Children)
	case OrFilter:
		return c.compileLogical("OR", node.Children)
	case NotFilter:
		if node.Child == nil {
			return "", fmt.Errorf("%w: NOT requires a child", ErrFilterSyntax)
		}
		childSQL, err := c.compile(node.Child)
		if err != nil {
			return "", err
		}
		// A missing field yields NULL; COALESCE keeps NOT from turning "no match" into "unknown".
		return fmt.Sprintf("(NOT COALESCE(%s, false))", childSQL), nil
	default:
		return "", fmt.Errorf("%w: unsupported node type %T", ErrFilterSyntax, f)
	}
}

func (c *filterCompiler) compileCompare(node CompareFilter) (string, error) {
	fieldExpr, textExpr, err := c.resolveField(node.Field)
	if err != nil {
		return "", err
	}

	if operand, ok := node.Value.(time.Time); ok && !node.Op.IsText() {
		return c.compileDateCompare(node.Op, fieldExpr, textExpr, operand)
	}

	switch node.Op {
	case OpEq:
		if node.Value == nil {
			return fmt.Sprintf("(%s IS NULL OR %s = 'null'::jsonb)", fieldExpr, fieldExpr), nil
		}
		ph, err := c.bindJSONB(node.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s = %s::jsonb)", fieldExpr, ph), nil
	case OpNe:
		if node.Value == nil {
			return fmt.Sprintf("(%s IS NOT NULL AND %s <> 'null'::jsonb)", fieldExpr, fieldExpr), nil
		}
		ph, err := c.bindJSONB(node.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s IS DISTINCT FROM %s::jsonb)", fieldExpr, ph), nil
	case OpGt, OpGte, OpLt, OpLte:
		ph, err := c.bindJSONB(node.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(jsonb_typeof(%s) = jsonb_typeof(%s::jsonb) AND %s %s %s::jsonb)",
			fieldExpr, ph, fieldExpr, string(node.Op), ph), nil
	case OpStartsWith, OpEndsWith, OpContains, OpNotContains:
		operand, ok := node.Value.(string)
		if !ok {
			return "", fmt.Errorf("%w: %s requires a string operand", ErrFilterSyntax, node.Op)
		}
		ph := c.bind(operand)
		guard := fmt.Sprintf("jsonb_typeof(%s) = 'string'", fieldExpr)
		switch node.Op {
		case OpStartsWith:
			return fmt.Sprintf("(%s AND starts_with(%s, %s::text))", guard, textExpr, ph), nil
		case OpEndsWith:
			return fmt.Sprintf("(%s AND right(%s, char_length(%s::text)) = %s::text)", guard, textExpr, ph, ph), nil
		case OpContains:
			return fmt.Sprintf("(%s AND strpos(%s, %s::text) > 0)", guard, textExpr, ph), nil
		default:
			return fmt.Sprintf("(%s AND strpos(%s, %s::text) = 0)", guard, textExpr, ph), nil
		}
	default:
		return "", fmt.Errorf("%w: unknown operator %q", ErrFilterSyntax, node.Op)
	}
}

// Stored date strings with an explicit zone cast directly; zone-less ones
// are read as UTC, the way ParseISODate reads them.
const (
	zonedDatePattern = `^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])T([01]\d|2[0-3]):[0-5]\d:[0-5]\d(\.\d+)?(Z|[-+]\d{2}:\d{2})$`
	localDatePattern = `^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])(T([01]\d|2[0-3]):[0-5]\d:[0-5]\d(\.\d+)?)?$`
)

// compileDateCompare compares a time operand with the field read as a
// timestamp. Fields that are not ISO-8601 date strings read as NULL.
func (c *filterCompiler) compileDateCompare(op CompareOp, fieldExpr, textExpr string, operand time.Time) (string, error) {
	dateExpr := fmt.Sprintf(
		"(CASE WHEN jsonb_typeof(%s) <> 'string' THEN NULL WHEN %s ~ '%s' THEN (%s)::timestamptz WHEN %s ~ '%s' THEN ((%s)::timestamp AT TIME ZONE 'UTC') END)",
		fieldExpr,
		textExpr, zonedDatePattern, textExpr,
		textExpr, localDatePattern, textExpr,
	)
	ph := c.bind(operand.UTC())

	switch op {
	case OpEq:
		return fmt.Sprintf("(%s = %s::timestamptz)", dateExpr, ph), nil
	case OpNe:
		return fmt.Sprintf("(%s IS DISTINCT FROM %s::timestamptz)", dateExpr, ph), nil
	case OpGt, OpGte, OpLt, OpLte:
		return fmt.Sprintf("(%s %s %s::timestamptz)", dateExpr, string(op), ph), nil
	default:
		return "", fmt.Errorf("%w: unknown operator %q", ErrFilterSyntax, op)
	}
}

func (c *filterCompiler) compileLogical(op string, children []Filter) (string, error) {
	if len(children) == 0 {
		return "", fmt.Errorf("%w: %s requires at least one child", ErrFilterSyntax, op)
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		if child == nil {
			return "", fmt.Errorf("%w: %s contains nil child", ErrFilterSyntax, op)
		}
		childSQL, err := c.compile(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, childSQL)
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, fmt.Sprintf(" %s ", op))), nil
}

func (c *filterCompiler) resolveField(field string) (jsonbExpr string, textExpr string, err error) {
	path, err := FieldPath(field)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrFilterSyntax, err)
	}
	return documentPathJSONBExpr(c.cfg.DocumentExpr, path), documentPathTextExpr(c.cfg.DocumentExpr, path), nil
}

func (c *filterCompiler) bind(v any) string {
	ph := fmt.Sprintf("$%d", c.nextArg)
	c.nextArg++
	c.args = append(c.args, v)
	return ph
}

func (c *filterCompiler) bindJSONB(v any) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: JSON encode value: %v", ErrFilterSyntax, err)
	}
	ph := fmt.Sprintf("$%d", c.nextArg)
	c.nextArg++
	c.args = append(c.args, encoded)
	return ph, nil
}

func documentPathJSONBExpr(documentExpr string, path []string) string {
	return fmt.Sprintf("(%s #> ARRAY[%s])", documentExpr, pathArraySQL(path))
}

func documentPathTextExpr(documentExpr string, path []string) string {
	return fmt.Sprintf("(%s #>> ARRAY[%s])", documentExpr, pathArraySQL(path))
}

func pathArraySQL(path []string) string {
	parts := make([]string, 0, len(path))
	for _, p := range path {
		parts = append(parts, singleQuoted(p))
	}
	return strings.Join(parts, ", ")
}

func singleQuoted(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
