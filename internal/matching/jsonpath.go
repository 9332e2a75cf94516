package matching

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/ohler55/ojg/jp"
)

var (
	jpCacheMu sync.RWMutex
	jpCache   = make(map[string]jp.Expr)
)

// MatchBody evaluates body conditions against a decoded JSON value.
// Keys starting with "$" are JSONPath expressions; other keys address a
// top-level field of a JSON object. An expected value of {exists: bool}
// checks presence instead of equality. All conditions must hold.
func MatchBody(conditions map[string]any, body any) bool {
	for key, expected := range conditions {
		var results []any
		if strings.HasPrefix(key, "$") {
			expr, err := compileJSONPath(key)
			if err != nil {
				return false
			}
			results = expr.Get(body)
		} else if obj, ok := body.(map[string]any); ok {
			if v, present := obj[key]; present {
				results = []any{v}
			}
		}

		if !matchResults(results, expected) {
			return false
		}
	}
	return true
}

func matchResults(results []any, expected any) bool {
	if exists, ok := existenceCheck(expected); ok {
		return exists == (len(results) > 0)
	}
	for _, r := range results {
		if valuesEqual(r, expected) {
			return true
		}
	}
	return false
}

func compileJSONPath(path string) (jp.Expr, error) {
	jpCacheMu.RLock()
	expr, ok := jpCache[path]
	jpCacheMu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, err
	}

	jpCacheMu.Lock()
	jpCache[path] = expr
	jpCacheMu.Unlock()
	return expr, nil
}

// ValidateJSONPath validates a JSONPath expression at load time.
func ValidateJSONPath(path string) error {
	if _, err := jp.ParseString(path); err != nil {
		return fmt.Errorf("invalid JSONPath expression %q: %w", path, err)
	}
	return nil
}

// existenceCheck recognises {exists: true|false}.
func existenceCheck(expected any) (bool, bool) {
	m, ok := expected.(map[string]any)
	if !ok || len(m) != 1 {
		return false, false
	}
	b, ok := m["exists"].(bool)
	return b, ok
}

// valuesEqual compares two values, treating all numeric types as equal when
// their float64 values are equal.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	if reflect.DeepEqual(actual, expected) {
		return true
	}

	actualNum, actualIsNum := toFloat64(actual)
	expectedNum, expectedIsNum := toFloat64(expected)
	if actualIsNum && expectedIsNum {
		return actualNum == expectedNum
	}

	return false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
