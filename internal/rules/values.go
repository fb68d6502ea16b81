/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Operand values come from JSON (float64, []any, map[string]any) or YAML
// (int, float64, []any, map[string]any); the helpers accept both.

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toFloatRange(value any) ([2]float64, bool) {
	var out [2]float64
	switch v := value.(type) {
	case []any:
		if len(v) != 2 {
			return out, false
		}
		lo, ok1 := toFloat(v[0])
		hi, ok2 := toFloat(v[1])
		out[0], out[1] = lo, hi
		return out, ok1 && ok2
	case []float64:
		if len(v) != 2 {
			return out, false
		}
		return [2]float64{v[0], v[1]}, true
	case map[string]any:
		lo, ok1 := toFloat(v["min"])
		hi, ok2 := toFloat(v["max"])
		out[0], out[1] = lo, hi
		return out, ok1 && ok2
	}
	return out, false
}

func toString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	}
	return "", false
}

func toStringSlice(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := toString(item)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		// Comma separated lists are accepted for convenience.
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, len(out) > 0
	}
	return nil, false
}

func containsFold(list []string, value string) bool {
	for _, candidate := range list {
		if strings.EqualFold(strings.TrimSpace(candidate), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}
