package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Renderer renders a template string against a data context.
type Renderer interface {
	Render(tmpl string, data map[string]any) (string, error)
}

// RenderError reports a template that could not be rendered.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return "render: " + e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Engine is the default Renderer. Compiled expressions are cached, so an
// Engine should be shared by all services of a process. It is safe for
// concurrent use.
type Engine struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
	options  []expr.Option
}

// New creates an Engine with the built-in helper functions.
func New() *Engine {
	opts := []expr.Option{expr.AllowUndefinedVariables()}
	opts = append(opts, helperFunctions()...)
	return &Engine{
		programs: make(map[string]*vm.Program),
		options:  opts,
	}
}

// Render replaces every {{ expression }} section of tmpl with its value.
// Templates without sections are returned unchanged.
func (e *Engine) Render(tmpl string, data map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])

		end := sectionEnd(rest, start+2)
		if end < 0 {
			return "", &RenderError{Template: tmpl, Err: errors.New("unterminated {{ section")}
		}

		val, err := e.Eval(strings.TrimSpace(rest[start+2:end]), data)
		if err != nil {
			return "", &RenderError{Template: tmpl, Err: err}
		}
		b.WriteString(Format(val))
		rest = rest[end+2:]
	}
	return b.String(), nil
}

// Eval evaluates a single expression against data.
func (e *Engine) Eval(source string, data map[string]any) (any, error) {
	if source == "" {
		return nil, errors.New("empty expression")
	}
	program, err := e.compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	out, err := expr.Run(program, data)
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", source, err)
	}
	return out, nil
}

func (e *Engine) compile(source string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[source]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(source, e.options...)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[source] = program
	e.mu.Unlock()
	return program, nil
}

// sectionEnd returns the index of the "}}" closing the section whose body
// starts at i. Braces of map literals and braces inside quoted strings are
// skipped. Returns -1 when the section is not closed.
func sectionEnd(s string, i int) int {
	depth := 0
	var quote byte
	for ; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			if depth == 0 {
				if i+1 < len(s) && s[i+1] == '}' {
					return i
				}
				return -1
			}
			depth--
		}
	}
	return -1
}

// Format converts an evaluated value to the text inserted into a template.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any, map[string]string, []string:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		if b, err := json.Marshal(val); err == nil && len(b) > 0 && (b[0] == '{' || b[0] == '[') {
			return string(b)
		}
		return fmt.Sprint(val)
	}
}

// IsTruthy reports whether a rendered condition counts as true.
func IsTruthy(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "false", "null", "0", "undefined", "<nil>":
		return false
	default:
		return true
	}
}

// WrapExpression turns a bare expression into a single-section template.
// Strings that already contain a {{ section are returned unchanged.
func WrapExpression(s string) string {
	if strings.Contains(s, "{{") {
		return s
	}
	return "{{ " + s + " }}"
}
