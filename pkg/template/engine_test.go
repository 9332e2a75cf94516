package template

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() map[string]any {
	return map[string]any{
		"request": map[string]any{
			"method":  "POST",
			"path":    "/users/42",
			"query":   map[string]string{"name": "ada"},
			"headers": map[string]string{"x-tenant": "acme"},
			"body":    map[string]any{"kind": "order", "qty": float64(3)},
		},
		"params":   map[string]string{"id": "42"},
		"bucket":   map[string]any{"counter": float64(5)},
		"fixtures": map[string]any{"users": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}}},
	}
}

func TestEngine_Render(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"plain text is untouched", "pong", "pong"},
		{"param", "user {{ params.id }}", "user 42"},
		{"no spaces", "{{params.id}}", "42"},
		{"query", "hello {{ request.query.name }}", "hello ada"},
		{"body field", `{"kind":"{{ request.body.kind }}"}`, `{"kind":"order"}`},
		{"arithmetic keeps integers clean", "{{ bucket.counter + 1 }}", "6"},
		{"float", "{{ request.body.qty / 2 }}", "1.5"},
		{"ternary", `{{ len(fixtures.users) > 1 ? "many" : "few" }}`, "many"},
		{"several sections", "{{ request.method }} {{ request.path }}", "POST /users/42"},
		{"map literal rendered as json", "{{ { id: params.id } }}", `{"id":"42"}`},
		{"slice rendered as json", "{{ map(fixtures.users, .name) }}", `["a","b"]`},
		{"missing key is empty", "[{{ request.query.missing }}]", "[]"},
		{"braces inside strings", `{{ "}}" + "x" }}`, "}}x"},
		{"bool", "{{ params.id == '42' }}", "true"},
		{"title helper", `{{ title("hello world") }}`, "Hello World"},
		{"default helper", `{{ default(request.query.missing, "none") }}`, "none"},
		{"json helper", `{{ json(request.body) }}`, `{"kind":"order","qty":3}`},
		{"upper builtin", `{{ upper(request.query.name) }}`, "ADA"},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Render(tt.tmpl, testContext())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_RenderErrors(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
	}{
		{"unterminated section", "hello {{ params.id"},
		{"syntax error", "{{ params.id + }}"},
		{"empty section", "{{ }}"},
		{"unknown function", "{{ nope(1) }}"},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Render(tt.tmpl, testContext())
			require.Error(t, err)
			var renderErr *RenderError
			assert.True(t, errors.As(err, &renderErr))
			assert.Equal(t, tt.tmpl, renderErr.Template)
		})
	}
}

func TestEngine_UUIDIsUnique(t *testing.T) {
	e := New()
	a, err := e.Render("{{ uuid() }}", nil)
	require.NoError(t, err)
	b, err := e.Render("{{ uuid() }}", nil)
	require.NoError(t, err)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestEngine_ConcurrentRender(t *testing.T) {
	e := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.Render("{{ params.id }}-{{ bucket.counter }}", testContext())
			assert.NoError(t, err)
			assert.Equal(t, "42-5", out)
		}()
	}
	wg.Wait()
}

func TestIsTruthy(t *testing.T) {
	for _, s := range []string{"", " ", "false", "null", "0", "undefined", " false "} {
		assert.False(t, IsTruthy(s), "%q", s)
	}
	for _, s := range []string{"true", "1", "yes", "anything", "False"} {
		assert.True(t, IsTruthy(s), "%q", s)
	}
}

func TestWrapExpression(t *testing.T) {
	assert.Equal(t, "{{ params.id == '1' }}", WrapExpression("params.id == '1'"))
	assert.Equal(t, "{{ x }}", WrapExpression("{{ x }}"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "", Format(nil))
	assert.Equal(t, "3", Format(float64(3)))
	assert.Equal(t, "2.25", Format(2.25))
	assert.Equal(t, "7", Format(7))
	assert.Equal(t, "false", Format(false))
	assert.Equal(t, `{"a":1}`, Format(map[string]any{"a": 1}))
	assert.Equal(t, `[1,"x"]`, Format([]any{1, "x"}))
}
