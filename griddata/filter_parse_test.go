package griddata

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestCompileFilter_BareFieldIsTruthy(t *testing.T) {
	filter, err := CompileFilter("flag")
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !reflect.DeepEqual(filter, TruthyFilter{Field: "flag"}) {
		t.Fatalf("unexpected filter: %#v", filter)
	}
}

func TestCompileFilter_NilMeansNoFilter(t *testing.T) {
	filter, err := CompileFilter(nil)
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if filter != nil {
		t.Fatalf("expected nil filter, got %#v", filter)
	}
}

func TestCompileFilter_Negation(t *testing.T) {
	filter, err := CompileFilter([]any{"!", "flag"})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	expected := NotFilter{Child: TruthyFilter{Field: "flag"}}
	if !reflect.DeepEqual(filter, expected) {
		t.Fatalf("unexpected filter: %#v", filter)
	}
}

func TestCompileFilter_ComparisonOperators(t *testing.T) {
	cases := map[string]CompareOp{
		"=":           OpEq,
		"<>":          OpNe,
		">":           OpGt,
		">=":          OpGte,
		"<":           OpLt,
		"<=":          OpLte,
		"startswith":  OpStartsWith,
		"EndsWith":    OpEndsWith,
		"contains":    OpContains,
		"notcontains": OpNotContains,
	}
	for token, op := range cases {
		filter, err := CompileFilter([]any{"name", token, "x"})
		if err != nil {
			t.Fatalf("CompileFilter(%q): %v", token, err)
		}
		expected := CompareFilter{Field: "name", Op: op, Value: "x"}
		if !reflect.DeepEqual(filter, expected) {
			t.Fatalf("operator %q: unexpected filter %#v", token, filter)
		}
	}
}

func TestCompileFilter_ChainOfNestedExpressions(t *testing.T) {
	raw := []any{
		[]any{"age", ">", float64(5)},
		"AND",
		[]any{[]any{"name", "=", "a"}, "or", "flag"},
		"and",
		[]any{"!", "archived"},
	}

	filter, err := CompileFilter(raw)
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}

	expected := AndFilter{Children: []Filter{
		CompareFilter{Field: "age", Op: OpGt, Value: float64(5)},
		OrFilter{Children: []Filter{
			CompareFilter{Field: "name", Op: OpEq, Value: "a"},
			TruthyFilter{Field: "flag"},
		}},
		NotFilter{Child: TruthyFilter{Field: "archived"}},
	}}
	if !reflect.DeepEqual(filter, expected) {
		t.Fatalf("unexpected filter\nwant: %#v\n got: %#v", expected, filter)
	}
}

func TestCompileFilter_MixedChainFails(t *testing.T) {
	raw := []any{"a", "and", "b", "or", "c"}

	_, err := CompileFilter(raw)
	if !errors.Is(err, ErrFilterSyntax) {
		t.Fatalf("expected ErrFilterSyntax, got %v", err)
	}
	var syntaxErr *FilterSyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected *FilterSyntaxError, got %T", err)
	}
	if !strings.Contains(syntaxErr.Reason, `"and"`) {
		t.Fatalf("expected reason to name the expected operator, got %q", syntaxErr.Reason)
	}
	if !reflect.DeepEqual(syntaxErr.Element, raw) {
		t.Fatalf("expected offending element to be carried, got %#v", syntaxErr.Element)
	}
}

func TestCompileFilter_Malformed(t *testing.T) {
	cases := []any{
		float64(12),
		map[string]any{"a": 1},
		[]any{},
		[]any{"a"},
		[]any{"?", "flag"},
		[]any{"a", "=", "b", "=", "c"},
		[]any{"a", "like", "b"},
		[]any{float64(1), "=", "b"},
		[]any{"a", float64(1), "b"},
		[]any{"", "=", "b"},
		[]any{"a..b", "=", "b"},
		[]any{"a", "contains", nil},
		[]any{"a", "and", []any{"b", "~", 1}},
	}
	for _, raw := range cases {
		_, err := CompileFilter(raw)
		if !errors.Is(err, ErrFilterSyntax) {
			t.Fatalf("CompileFilter(%#v): expected ErrFilterSyntax, got %v", raw, err)
		}
	}
}

func TestCompileFilter_TextOperandFromNumber(t *testing.T) {
	filter, err := CompileFilter([]any{"code", "startswith", float64(42)})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if filter.(CompareFilter).Value != "42" {
		t.Fatalf("expected text operand, got %#v", filter)
	}
}
