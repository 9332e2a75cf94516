package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getmockd/mockfleet/pkg/httputil"
	"github.com/getmockd/mockfleet/pkg/registry"
	"github.com/getmockd/mockfleet/pkg/requestlog"
	"github.com/getmockd/mockfleet/pkg/storage"
)

// DefaultLogLimit is the per-service entry count of the logs route.
const DefaultLogLimit = 100

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(s.Uptime().Seconds()),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.WriteBadRequest(w, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries := s.reg.Logs(limit)
	if entries == nil {
		entries = []*requestlog.Entry{}
	}
	httputil.WriteOK(w, entries)
}

// handleHistory reads persisted entries. Query parameters: service, route,
// method, status, limit.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	q := storage.LogQuery{
		Service: v.Get("service"),
		Route:   v.Get("route"),
		Method:  v.Get("method"),
		Limit:   DefaultLogLimit,
	}
	for key, dst := range map[string]*int{"status": &q.Status, "limit": &q.Limit} {
		raw := v.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteBadRequest(w, "invalid_"+key, key+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	entries, err := s.reg.History(r.Context(), q)
	if err != nil {
		httputil.WriteInternalError(w, "storage_error", err.Error())
		return
	}
	if entries == nil {
		entries = []*requestlog.Entry{}
	}
	httputil.WriteOK(w, entries)
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.ClearLogs(r.Context()); err != nil {
		httputil.WriteInternalError(w, "storage_error", err.Error())
		return
	}
	s.log.Info("request logs cleared")
	httputil.WriteNoContent(w)
}

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, s.reg.Status())
}

type scenarioRequest struct {
	Scenario *string `json:"scenario"`
}

func (s *Server) handleSetScenario(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req scenarioRequest
	if err := httputil.DecodeJSON(w, r, &req, 0); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", `expected {"scenario": "<name>"} or {"scenario": null}`)
		return
	}
	if err := s.reg.SetScenario(name, req.Scenario); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteNotFound(w, "not_found", "service "+name+" is not running")
			return
		}
		httputil.WriteInternalError(w, "internal", err.Error())
		return
	}
	httputil.WriteOK(w, map[string]any{"service": name, "scenario": req.Scenario})
}

func (s *Server) handleStoredDefinition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, err := s.reg.StoredDefinition(r.Context(), name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFound(w, "not_found", "no stored definition for "+name)
	case err != nil:
		httputil.WriteInternalError(w, "internal", err.Error())
	default:
		httputil.WriteOK(w, def)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.gatherer == nil {
		httputil.WriteNotFound(w, "metrics_disabled", "metrics are not enabled")
		return
	}
	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
