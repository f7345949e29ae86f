package griddata

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Value ranks follow the document-store ordering used for sorting group keys:
// null < numbers < strings < objects < arrays < booleans < times.
const (
	rankNull = iota
	rankNumber
	rankString
	rankObject
	rankArray
	rankBool
	rankTime
	rankOther
)

func valueRank(v any) int {
	if v == nil {
		return rankNull
	}
	if _, ok := ToFloat64(v); ok {
		return rankNumber
	}
	switch v.(type) {
	case string:
		return rankString
	case map[string]any:
		return rankObject
	case []any:
		return rankArray
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	default:
		return rankOther
	}
}

// SameKind reports whether two values belong to the same comparison bracket.
// Relational operators only match values of the same bracket.
func SameKind(left, right any) bool {
	return valueRank(left) == valueRank(right)
}

// ValuesEqual compares two decoded values, treating numbers of different Go
// types as equal when they hold the same quantity.
func ValuesEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	leftNumeric, leftIsNumeric := ToFloat64(left)
	rightNumeric, rightIsNumeric := ToFloat64(right)
	if leftIsNumeric && rightIsNumeric {
		return leftNumeric == rightNumeric
	}

	leftTime, leftIsTime := left.(time.Time)
	rightTime, rightIsTime := right.(time.Time)
	if leftIsTime && rightIsTime {
		return leftTime.Equal(rightTime)
	}

	return reflect.DeepEqual(left, right)
}

// CompareValues returns -1, 0 or 1. Values of different brackets are ordered
// by bracket rank.
func CompareValues(left, right any) int {
	leftRank, rightRank := valueRank(left), valueRank(right)
	if leftRank != rightRank {
		return compareInts(leftRank, rightRank)
	}

	switch leftRank {
	case rankNull:
		return 0
	case rankNumber:
		l, _ := ToFloat64(left)
		r, _ := ToFloat64(right)
		switch {
		case l < r:
			return -1
		case l > r:
			return 1
		default:
			return 0
		}
	case rankString:
		return strings.Compare(left.(string), right.(string))
	case rankBool:
		l, r := left.(bool), right.(bool)
		switch {
		case l == r:
			return 0
		case !l:
			return -1
		default:
			return 1
		}
	case rankTime:
		return left.(time.Time).Compare(right.(time.Time))
	default:
		return strings.Compare(canonicalText(left), canonicalText(right))
	}
}

// ResolvePath walks nested objects along path.
func ResolvePath(doc map[string]any, path []string) (value any, exists bool) {
	if doc == nil {
		return nil, false
	}
	var current any = doc
	for _, segment := range path {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := asMap[segment]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// ToFloat64 converts any Go numeric type, including json.Number.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		parsed, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func compareInts(left, right int) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}

func canonicalText(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(encoded)
}

func describeElement(v any) string {
	return canonicalText(v)
}

// KeyString returns a canonical identity for v such that two values share a
// key exactly when ValuesEqual reports them equal. Stores use it to bucket rows.
func KeyString(v any) string {
	rank := valueRank(v)
	switch rank {
	case rankNumber:
		n, _ := ToFloat64(v)
		return strconv.Itoa(rank) + ":" + strconv.FormatFloat(n, 'g', -1, 64)
	case rankTime:
		return strconv.Itoa(rank) + ":" + v.(time.Time).UTC().Format(time.RFC3339Nano)
	default:
		return strconv.Itoa(rank) + ":" + canonicalText(v)
	}
}
