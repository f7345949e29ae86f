package griddata

// CompareOp is a binary comparison between a field and a literal value.
type CompareOp string

const (
	OpEq          CompareOp = "="
	OpNe          CompareOp = "<>"
	OpGt          CompareOp = ">"
	OpGte         CompareOp = ">="
	OpLt          CompareOp = "<"
	OpLte         CompareOp = "<="
	OpStartsWith  CompareOp = "startswith"
	OpEndsWith    CompareOp = "endswith"
	OpContains    CompareOp = "contains"
	OpNotContains CompareOp = "notcontains"
)

// IsText reports whether op is one of the substring operators.
func (op CompareOp) IsText() bool {
	switch op {
	case OpStartsWith, OpEndsWith, OpContains, OpNotContains:
		return true
	default:
		return false
	}
}

func (op CompareOp) valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return true
	default:
		return op.IsText()
	}
}

// Filter is the AST node interface.
type Filter interface {
	isFilter()
}

// TruthyFilter matches rows whose field equals boolean true.
type TruthyFilter struct {
	Field string
}

func (TruthyFilter) isFilter() {}

// CompareFilter compares a field against a value.
type CompareFilter struct {
	Field string
	Op    CompareOp
	Value any
}

func (CompareFilter) isFilter() {}

// AndFilter combines filters with AND.
type AndFilter struct {
	Children []Filter
}

func (AndFilter) isFilter() {}

// OrFilter combines filters with OR.
type OrFilter struct {
	Children []Filter
}

func (OrFilter) isFilter() {}

// NotFilter negates a child filter.
type NotFilter struct {
	Child Filter
}

func (NotFilter) isFilter() {}

// Truthy constructs a truthy filter.
func Truthy(field string) Filter {
	return TruthyFilter{Field: field}
}

// Compare constructs a comparison filter.
func Compare(field string, op CompareOp, value any) Filter {
	return CompareFilter{Field: field, Op: op, Value: value}
}

// Eq constructs an equality filter.
func Eq(field string, value any) Filter {
	return CompareFilter{Field: field, Op: OpEq, Value: value}
}

// And constructs an AND filter.
func And(children ...Filter) Filter {
	cp := make([]Filter, len(children))
	copy(cp, children)
	return AndFilter{Children: cp}
}

// Or constructs an OR filter.
func Or(children ...Filter) Filter {
	cp := make([]Filter, len(children))
	copy(cp, children)
	return OrFilter{Children: cp}
}

// Not constructs a NOT filter.
func Not(child Filter) Filter {
	return NotFilter{Child: child}
}
