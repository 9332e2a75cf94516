package matching

import (
	"net/http"
	"strings"
)

// MatchHeaders reports whether every expected header is present with a
// value equal to the expected one, ignoring case in both name and value.
func MatchHeaders(expected map[string]string, headers http.Header) bool {
	for name, want := range expected {
		values := headers.Values(name)
		if len(values) == 0 {
			return false
		}
		found := false
		for _, v := range values {
			if strings.EqualFold(strings.TrimSpace(v), want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MatchHeadersExact is like MatchHeaders but compares values exactly.
// Header names remain case-insensitive.
func MatchHeadersExact(expected map[string]string, headers http.Header) bool {
	for name, want := range expected {
		if headers.Get(name) != want {
			return false
		}
	}
	return true
}
