package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/getmockd/mockfleet/pkg/definition"
)

// store holds the mutable per-instance data. Committed maps are never
// mutated in place: a batch of side effects works on copies and swaps them
// in, so a snapshot taken under the lock stays valid after it is released.
type store struct {
	mu       sync.Mutex
	bucket   map[string]any
	fixtures map[string]any
	runtime  map[string]any
}

type snapshot struct {
	bucket   map[string]any
	fixtures map[string]any
	runtime  map[string]any
}

func newStore(def *definition.ServiceDefinition) (*store, error) {
	bucket, err := normalizeJSON(def.Bucket)
	if err != nil {
		return nil, invalidDefinition("bucket: %v", err)
	}
	fixtures, err := normalizeJSON(def.Fixtures)
	if err != nil {
		return nil, invalidDefinition("fixtures: %v", err)
	}
	return &store{bucket: bucket, fixtures: fixtures, runtime: map[string]any{}}, nil
}

func (s *store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{bucket: s.bucket, fixtures: s.fixtures, runtime: s.runtime}
}

// update runs fn on private copies while holding the lock and commits them
// if fn succeeds. The committed state is returned.
func (s *store) update(fn func(working *snapshot) error) (snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := snapshot{
		bucket:   cloneMap(s.bucket),
		fixtures: cloneMap(s.fixtures),
		runtime:  cloneMap(s.runtime),
	}
	if err := fn(&working); err != nil {
		return snapshot{bucket: s.bucket, fixtures: s.fixtures, runtime: s.runtime}, err
	}
	s.bucket, s.fixtures, s.runtime = working.bucket, working.fixtures, working.runtime
	return working, nil
}

// errSideEffect wraps failures of a side effect batch.
var errSideEffect = errors.New("side effect failed")

func applySideEffect(st *snapshot, se definition.SideEffect, value any) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s %s: %s", errSideEffect, se.Action, se.Target, fmt.Sprintf(format, args...))
	}

	switch se.Action {
	case definition.ActionSet:
		st.bucket[se.Target] = value
	case definition.ActionAppend:
		list, err := asList(st.bucket[se.Target])
		if err != nil {
			return fail("%v", err)
		}
		st.bucket[se.Target] = append(list, value)
	case definition.ActionDelete:
		delete(st.bucket, se.Target)
	case definition.ActionIncrement:
		step := 1.0
		if value != nil {
			n, ok := toNumber(value)
			if !ok {
				return fail("increment by non-numeric %v", value)
			}
			step = n
		}
		current := 0.0
		if existing, ok := st.bucket[se.Target]; ok && existing != nil {
			n, ok := toNumber(existing)
			if !ok {
				return fail("current value %v is not numeric", existing)
			}
			current = n
		}
		st.bucket[se.Target] = current + step
	case definition.ActionAddToFixture:
		list, err := asList(st.fixtures[se.Target])
		if err != nil {
			return fail("%v", err)
		}
		st.fixtures[se.Target] = append(list, value)
	case definition.ActionUpdateFixture:
		st.fixtures[se.Target] = value
	case definition.ActionRemoveFromFixture:
		delete(st.fixtures, se.Target)
	case definition.ActionSetRuntimeData:
		st.runtime[se.Target] = value
	case definition.ActionRemoveRuntimeData:
		delete(st.runtime, se.Target)
	default:
		return fail("unknown action")
	}
	return nil
}

// parseValue turns a rendered side-effect value into a JSON value. Text
// that is not JSON is kept as a string; empty text is nil.
func parseValue(rendered string) any {
	trimmed := strings.TrimSpace(rendered)
	if trimmed == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return rendered
	}
	return v
}

func asList(v any) ([]any, error) {
	switch l := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return l, nil
	default:
		return nil, fmt.Errorf("existing value is %T, not a list", v)
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// normalizeJSON converts YAML-decoded data to the shapes encoding/json
// produces, so state compares and renders the same whether it came from a
// definition or a request.
func normalizeJSON(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// cloneMap deep-copies JSON-shaped values.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
