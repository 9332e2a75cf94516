// Package matching holds the request predicates used by service dispatch:
// endpoint path patterns, header_match, and scenario query/header/body
// conditions.
//
// Path patterns come in three shapes:
//
//   - literal: "/users" matches only "/users"
//   - template: "/users/{id}" captures one segment per {name}
//   - raw: "^/users/(?P<id>\d+)$" is compiled as an RE2 expression
//
// Body conditions accept JSONPath keys ("$.user.name") evaluated with ojg,
// and plain keys that address top-level fields of a JSON object.
package matching
