package griddata

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("griddata: row not found")
	ErrUnknownIdentifier   = errors.New("griddata: unknown identifier")
	ErrFilterSyntax        = errors.New("griddata: filter syntax error")
	ErrInvalidQuery        = errors.New("griddata: invalid query")
	ErrStoreQuery          = errors.New("griddata: store query failed")
	ErrUnsupportedPipeline = errors.New("griddata: unsupported pipeline")
	ErrSchemaMismatch      = errors.New("griddata: schema mismatch")
)

// FilterSyntaxError reports a malformed filter expression together with the
// sub-expression that could not be compiled.
type FilterSyntaxError struct {
	Reason  string
	Element any
}

func (e *FilterSyntaxError) Error() string {
	return fmt.Sprintf("%s: %s (element: %s)", ErrFilterSyntax, e.Reason, describeElement(e.Element))
}

func (e *FilterSyntaxError) Is(target error) bool {
	return target == ErrFilterSyntax
}

func filterSyntaxErrorf(element any, format string, args ...any) error {
	return &FilterSyntaxError{Reason: fmt.Sprintf(format, args...), Element: element}
}

// StoreQueryError wraps a failed collection call. Path holds the group keys
// leading to the branch that issued the call; it is empty for root-level calls.
type StoreQueryError struct {
	Op       string
	Path     []any
	Pipeline Pipeline
	Err      error
}

func (e *StoreQueryError) Error() string {
	var b strings.Builder
	b.WriteString(ErrStoreQuery.Error())
	b.WriteString(": ")
	b.WriteString(e.Op)
	if len(e.Path) > 0 {
		b.WriteString(" at group path ")
		b.WriteString(describeElement(e.Path))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StoreQueryError) Is(target error) bool {
	return target == ErrStoreQuery
}

func (e *StoreQueryError) Unwrap() error {
	return e.Err
}
