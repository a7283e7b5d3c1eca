// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// NormalizeDocument turns a stored jsonb value into one canonical
// in-memory shape, tolerating heterogeneous writers: a native JSON
// object, a JSON string containing an encoded object, or any other
// scalar. Values that are not objects are wrapped under "_raw" so
// callers never branch on representation.
func NormalizeDocument(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{"_raw": string(raw)}
	}

	switch doc := v.(type) {
	case map[string]any:
		return doc
	case string:
		// A string writer may have double-encoded the document.
		if obj := parseObjectString(doc); obj != nil {
			return obj
		}
		return map[string]any{"_raw": doc}
	case nil:
		return map[string]any{}
	default:
		return map[string]any{"_raw": v}
	}
}

func parseObjectString(s string) map[string]any {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}
	return obj
}

// ToFloat coerces loosely typed document values into a float64.
// Strings may use a comma decimal separator.
func ToFloat(v any, fallback float64) float64 {
	switch x := v.(type) {
	case nil:
		return fallback
	case bool:
		if x {
			return 1.0
		}
		return 0.0
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return fallback
		}
		return f
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fallback
		}
		return f
	default:
		return fallback
	}
}

// Clamp01 clamps x into [0, 1].
func Clamp01(x float64) float64 {
	if x < 0.0 {
		return 0.0
	}
	if x > 1.0 {
		return 1.0
	}
	return x
}

// NormalizeConfidence coerces a raw confidence into [0, 1], treating
// values above 1 as percentages from legacy writers.
func NormalizeConfidence(v any) float64 {
	c := ToFloat(v, 0.0)
	if c > 1.0 {
		c = c / 100.0
	}
	return Clamp01(c)
}
