package template

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// helperFunctions are available in every expression in addition to the
// expr-lang builtins (upper, lower, trim, len, now, toJSON, fromJSON, ...).
func helperFunctions() []expr.Option {
	return []expr.Option{
		expr.Function("uuid", func(params ...any) (any, error) {
			return uuid.NewString(), nil
		}, new(func() string)),

		expr.Function("title", func(params ...any) (any, error) {
			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("title: expected string, got %T", params[0])
			}
			// A Caser is stateful, so each call gets its own.
			return cases.Title(language.Und).String(s), nil
		}, new(func(string) string)),

		expr.Function("json", func(params ...any) (any, error) {
			b, err := json.Marshal(params[0])
			if err != nil {
				return nil, fmt.Errorf("json: %w", err)
			}
			return string(b), nil
		}),

		expr.Function("default", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, errors.New("default: expected 2 arguments")
			}
			if params[0] == nil || params[0] == "" {
				return params[1], nil
			}
			return params[0], nil
		}),
	}
}
