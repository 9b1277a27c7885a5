package config

import (
	"time"
)

// Values wraps a decoded YAML or JSON document for type-tolerant value
// extraction. Accessors return the default when a key is missing or holds
// a value of the wrong type.
type Values map[string]any

// String returns the string value for key, or defaultVal.
func (v Values) String(key, defaultVal string) string {
	if s, ok := v[key].(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal.
func (v Values) Bool(key string, defaultVal bool) bool {
	if b, ok := v[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal.
//
// Accepts int, int64, and float64 without a fractional part (JSON numbers).
func (v Values) Int(key string, defaultVal int) int {
	switch val := v[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Duration returns the duration value for key, or defaultVal.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int, int64, float64: interpreted as seconds
func (v Values) Duration(key string, defaultVal time.Duration) time.Duration {
	switch val := v[key].(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case float64:
		return time.Duration(val * float64(time.Second))
	}
	return defaultVal
}

// Sub returns the nested section under key, or an empty Values.
func (v Values) Sub(key string) Values {
	switch val := v[key].(type) {
	case map[string]any:
		return Values(val)
	case Values:
		return val
	}
	return Values{}
}

// Has returns true if key is present.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}
