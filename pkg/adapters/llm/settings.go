package llm

import (
	"fmt"
	"strconv"
)

// Settings reads typed values from free-form agent settings, which come
// from YAML or JSON and may carry numbers as int, float64 or string.
type Settings map[string]interface{}

// String returns a non-empty string setting or fallback
func (s Settings) String(key, fallback string) string {
	if v, ok := s[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Int returns an integer setting or fallback
func (s Settings) Int(key string, fallback int) (int, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("setting %s must be an integer, got %g", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("setting %s: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("setting %s has unsupported type %T", key, v)
	}
}

// Float returns a numeric setting or fallback
func (s Settings) Float(key string, fallback float64) (float64, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("setting %s: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("setting %s has unsupported type %T", key, v)
	}
}
