package griddata

import (
	"regexp"
	"time"
)

var isoDatePattern = regexp.MustCompile(`^(\d{4}|\+\d{6})-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[-+]\d{2}:\d{2})?)?$`)

var isoDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseISODate converts an ISO-8601 date or date-time string into a time.
// Strings without a zone are read as UTC.
func ParseISODate(s string) (time.Time, bool) {
	if !isoDatePattern.MatchString(s) {
		return time.Time{}, false
	}
	for _, layout := range isoDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ReviveDates returns a copy of filter whose comparison values that look
// like ISO-8601 dates are replaced by time values. Text operators keep their
// string operands.
func ReviveDates(filter Filter) Filter {
	switch node := filter.(type) {
	case CompareFilter:
		if node.Op.IsText() {
			return node
		}
		if s, ok := node.Value.(string); ok {
			if t, ok := ParseISODate(s); ok {
				node.Value = t
			}
		}
		return node
	case AndFilter:
		return AndFilter{Children: reviveChildren(node.Children)}
	case OrFilter:
		return OrFilter{Children: reviveChildren(node.Children)}
	case NotFilter:
		return NotFilter{Child: ReviveDates(node.Child)}
	default:
		return filter
	}
}

func reviveChildren(children []Filter) []Filter {
	out := make([]Filter, len(children))
	for i, child := range children {
		out[i] = ReviveDates(child)
	}
	return out
}

// FormatISODate renders t the way JSON documents usually carry dates:
// UTC with millisecond precision.
func FormatISODate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// FormatDocumentDates returns a deep copy of doc with time values rendered by
// FormatISODate, for stores that persist documents as JSON text.
func FormatDocumentDates(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		out[key] = formatValue(value)
	}
	return out
}

func formatValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		return FormatISODate(v)
	case map[string]any:
		return FormatDocumentDates(v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = formatValue(elem)
		}
		return out
	default:
		return value
	}
}
