package doctree

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Truthy reports whether a metadata value counts as present: nil, false,
// zero numbers, blank strings and empty collections do not.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case uint64:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case []string:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

// FormatValue renders a metadata value for display. Whole floats (as decoded
// from JSON) print without a fractional part.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// JoinValue renders lists comma-separated and anything else with FormatValue.
func JoinValue(v any) string {
	switch x := v.(type) {
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatValue(e)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(x, ", ")
	}
	return FormatValue(v)
}

// FirstTruthy returns the first present value among keys, or nil.
func FirstTruthy(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v := m[k]; Truthy(v) {
			return v
		}
	}
	return nil
}
