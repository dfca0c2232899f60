package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// Try string first
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Try number
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	// Try boolean
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}

// StringValue converts a decoded JSON value to its string form. Whole
// floats render without a decimal point, matching how FlexibleStringValue
// treats raw JSON numbers.
func StringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10), true
		}
		return strconv.FormatFloat(s, 'g', -1, 64), true
	case float32:
		return StringValue(float64(s))
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}

// FloatValue extracts a float64 from a decoded JSON value. Model parameters
// arrive as float64 after a JSONB round-trip but as int or float64 when built
// in-process, so both are accepted.
func FloatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// IntValue extracts an int from a decoded JSON value. Fractional floats are
// rejected rather than truncated.
func IntValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// BoolValue extracts a bool from a decoded JSON value.
func BoolValue(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	default:
		return false, false
	}
}
