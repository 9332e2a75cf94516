package service

import (
	"net/http"
	"slices"
	"strings"

	"github.com/getmockd/mockfleet/pkg/definition"
)

const (
	defaultCORSMethods = "GET, POST, PUT, DELETE, PATCH, OPTIONS"
	defaultCORSHeaders = "Content-Type, Authorization"
	corsMaxAge         = "86400"
)

// applyCORS sets the CORS response headers. It reports whether the request
// was a preflight that has been answered.
func applyCORS(cfg *definition.CORSConfig, w http.ResponseWriter, r *http.Request) bool {
	if cfg == nil || !cfg.Enabled {
		return false
	}

	origin := "*"
	if o := r.Header.Get("Origin"); o != "" && slices.Contains(cfg.Origins, o) {
		origin = o
		w.Header().Add("Vary", "Origin")
	}
	methods := defaultCORSMethods
	if len(cfg.Methods) > 0 {
		methods = strings.Join(cfg.Methods, ", ")
	}
	headers := defaultCORSHeaders
	if len(cfg.Headers) > 0 {
		headers = strings.Join(cfg.Headers, ", ")
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", methods)
	h.Set("Access-Control-Allow-Headers", headers)
	h.Set("Access-Control-Max-Age", corsMaxAge)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}
