package griddata

import "fmt"

// Validate checks the structural parts of a descriptor that do not depend
// on the filter expression.
func (q QueryDescriptor) Validate() error {
	if q.Skip < 0 {
		return fmt.Errorf("%w: skip must be >= 0, got %d", ErrInvalidQuery, q.Skip)
	}
	if q.Take < 0 {
		return fmt.Errorf("%w: take must be >= 0, got %d", ErrInvalidQuery, q.Take)
	}
	for i, s := range q.Sort {
		if _, err := FieldPath(s.Selector); err != nil {
			return fmt.Errorf("sort[%d]: %w", i, err)
		}
	}
	for i, g := range q.Group {
		if _, err := FieldPath(g.Selector); err != nil {
			return fmt.Errorf("group[%d]: %w", i, err)
		}
	}
	return nil
}
