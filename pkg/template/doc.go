// Package template renders response bodies, headers, conditions and scripts.
//
// The dispatch pipeline only depends on the Renderer interface. The default
// implementation, Engine, replaces every {{ expression }} section of a
// template with the result of evaluating the expression with expr-lang
// against the request context:
//
//	{{ request.query.name }}
//	{{ params.id }}
//	{{ bucket.counter + 1 }}
//	{{ len(fixtures.users) > 0 ? "some" : "none" }}
//	{{ json({ id: uuid(), at: now().Unix() }) }}
//
// Strings are inserted as-is, maps and slices as compact JSON, nil as an
// empty string.
//
// Conditions are truthy unless they render to "", "false", "null", "0" or
// "undefined"; see IsTruthy.
package template
