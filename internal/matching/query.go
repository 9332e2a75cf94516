package matching

import (
	"net/url"
)

// MatchQuery checks that every expected query parameter is present with the
// expected value. Returns true only if ALL parameters match.
func MatchQuery(expected map[string]string, params url.Values) bool {
	for name, want := range expected {
		values, ok := params[name]
		if !ok {
			return false
		}
		found := false
		for _, v := range values {
			if v == want {
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
