package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/getmockd/mockfleet/pkg/httputil"
)

// requireToken enforces the bearer token. Missing or malformed credentials
// get 401. Anything else that is not the token gets 403, which includes
// every request when no token is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="mockfleet-admin"`)
			httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "bearer token required")
			return
		}
		if s.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			httputil.WriteError(w, http.StatusForbidden, "forbidden", "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
