package rpc

import (
	"fmt"
	"math"
	"strings"
)

// paramError marks a failure that maps to the invalid-params error code.
// Its message is client-safe.
type paramError struct {
	msg string
}

func (e *paramError) Error() string {
	return e.msg
}

func paramErrorf(format string, args ...any) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

func assertNoUnknownArguments(args map[string]any, allowed map[string]struct{}) error {
	for key := range args {
		if _, ok := allowed[key]; !ok {
			return paramErrorf("unknown argument: %s", key)
		}
	}
	return nil
}

// requireString returns a required string argument verbatim. Empty strings
// are valid: file content may legitimately be empty.
func requireString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", paramErrorf("%s is required", key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", paramErrorf("%s must be a string", key)
	}
	return value, nil
}

// requirePath returns a required path argument, trimmed. Paths must be
// non-empty after trimming.
func requirePath(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", paramErrorf("%s is required", key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", paramErrorf("%s must be a string", key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", paramErrorf("%s must be a non-empty string", key)
	}
	return value, nil
}

func optionalString(args map[string]any, key, fallback string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return fallback, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", paramErrorf("%s must be a string", key)
	}
	return value, nil
}

func optionalBool(args map[string]any, key string, fallback bool) (bool, error) {
	raw, ok := args[key]
	if !ok {
		return fallback, nil
	}
	value, ok := raw.(bool)
	if !ok {
		return false, paramErrorf("%s must be a boolean", key)
	}
	return value, nil
}

// requireInt accepts the numeric shapes a decoded JSON body can carry.
func requireInt(args map[string]any, key string) (int, error) {
	raw, ok := args[key]
	if !ok {
		return 0, paramErrorf("%s is required", key)
	}
	switch v := raw.(type) {
	case float64:
		if math.Trunc(v) != v {
			return 0, paramErrorf("%s must be an integer", key)
		}
		if v < math.MinInt || v > math.MaxInt {
			return 0, paramErrorf("%s is out of range", key)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			return 0, paramErrorf("%s is out of range", key)
		}
		return int(v), nil
	default:
		return 0, paramErrorf("%s must be an integer", key)
	}
}

// requireStringSlice returns a required array-of-strings argument. Empty
// elements are valid: they are blank lines.
func requireStringSlice(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, paramErrorf("%s is required", key)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, paramErrorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for idx, item := range items {
		value, ok := item.(string)
		if !ok {
			return nil, paramErrorf("%s[%d] must be a string", key, idx)
		}
		out = append(out, value)
	}
	return out, nil
}
