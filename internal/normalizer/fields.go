package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Field readers never fail: absent or mistyped values read as "", false or 0.

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func integer(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func optBool(m map[string]any, key string) (bool, bool) {
	switch v := m[key].(type) {
	case bool:
		return v, true
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n != 0, true
		}
	case float64:
		return v != 0, true
	}
	return false, false
}

func boolean(m map[string]any, key string) bool {
	b, _ := optBool(m, key)
	return b
}

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func objects(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, it := range list {
		if m, ok := object(it); ok {
			out = append(out, m)
		}
	}
	return out
}

func joinNonEmpty(values []string) string {
	keep := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			keep = append(keep, v)
		}
	}
	return strings.Join(keep, ", ")
}
