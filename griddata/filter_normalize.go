package griddata

import (
	"fmt"
	"strings"
)

// FieldPath applies shared validation and canonicalization rules so every
// backend resolves dot-separated field names the same way.
func FieldPath(field string) ([]string, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, fmt.Errorf("%w: field name is empty", ErrInvalidQuery)
	}
	segments := strings.Split(field, ".")
	path := make([]string, len(segments))
	for i, segment := range segments {
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: field %q has an empty path segment", ErrInvalidQuery, field)
		}
		path[i] = trimmed
	}
	return path, nil
}
