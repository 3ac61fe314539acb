package sb3

import (
	"encoding/json"
	"fmt"

	"github.com/keshon/sbvc/internal/util"
)

// Text renders a manifest value for display and comparison: strings and
// numbers as their literal text, everything else as compact JSON.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return fmt.Sprint(x)
	}
	b, err := util.CompactJSON(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// FieldText renders a field stored as [value, id] by its value.
func FieldText(v any) string {
	if arr, ok := v.([]any); ok && len(arr) > 0 {
		return Text(arr[0])
	}
	return Text(v)
}

// InputText renders an input slot [shadowType, value, shadow?]. A literal
// shadow renders as its literal, a plugged block as "@<id>".
func InputText(v any) string {
	arr, ok := v.([]any)
	if !ok || len(arr) < 2 {
		return Text(v)
	}
	switch val := arr[1].(type) {
	case string:
		return "@" + val
	case []any:
		if len(val) >= 2 {
			return Text(val[1])
		}
	case nil:
		return "null"
	}
	return Text(v)
}

// Equal compares two manifest values by their compact encoding.
func Equal(a, b any) bool {
	ea, errA := util.CompactJSON(a)
	eb, errB := util.CompactJSON(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ea) == string(eb)
}
