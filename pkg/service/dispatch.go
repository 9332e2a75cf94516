package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/mockfleet/internal/matching"
	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/httputil"
	"github.com/getmockd/mockfleet/pkg/requestlog"
	"github.com/getmockd/mockfleet/pkg/template"
)

// maxBodySize bounds how much of a request body is read.
const maxBodySize = 10 << 20

// exchange carries one request through the pipeline.
type exchange struct {
	w     http.ResponseWriter
	r     *http.Request
	start time.Time

	// path is the request path with the base path stripped; inBase is
	// false when the request lies outside the base path.
	path   string
	inBase bool

	raw  []byte
	body any

	entry *requestlog.Entry
}

// ServeHTTP answers a request according to the definition.
func (i *Instance) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	x := &exchange{w: w, r: r, start: time.Now()}
	x.path, x.inBase = matching.StripBasePath(i.def.Server.BasePath, r.URL.Path)

	if x.inBase && x.path == logsPath && r.Method == http.MethodGet {
		i.serveLogs(w, r)
		return
	}
	if applyCORS(i.def.Server.CORS, w, r) {
		return
	}

	x.entry = requestlog.NewEntry(i.def.Name, r.Method, r.URL.Path)
	x.entry.Query = r.URL.RawQuery

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		i.record(x, http.StatusRequestEntityTooLarge, nil)
		return
	}
	x.raw = raw
	x.body = decodeBody(raw)
	x.entry.SetPayload(raw)

	if !i.applyBehavior(x) {
		return
	}

	if i.graphql != nil && x.inBase && x.path == i.graphql.path {
		status := i.serveGraphQL(x)
		i.record(x, status, nil)
		return
	}

	var ep *endpoint
	var params map[string]string
	if x.inBase {
		ep, params = match(i.endpoints, r, x.path)
	}
	if ep == nil {
		i.unmatched(x)
		return
	}
	i.dispatch(x, ep, params)
}

// applyBehavior runs rate limiting, error injection and latency. It reports
// whether the request should continue.
func (i *Instance) applyBehavior(x *exchange) bool {
	b := i.behavior
	if b.limiter != nil && !b.limiter.Allow() {
		retry := b.limiter.RetryAfter()
		x.w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retry.Seconds())+1))
		httputil.WriteTooManyRequests(x.w, "rate_limited", "rate limit exceeded")
		i.record(x, http.StatusTooManyRequests, nil)
		return false
	}
	if b.chaos == nil {
		return true
	}
	if status, fail := b.chaos.Fault(); fail {
		httputil.WriteError(x.w, status, "simulated_error", "simulated failure")
		i.record(x, status, nil)
		return false
	}
	if err := b.chaos.Delay(x.r.Context()); err != nil {
		httputil.WriteServiceUnavailable(x.w, "cancelled", "request cancelled during simulated latency")
		i.record(x, http.StatusServiceUnavailable, nil)
		return false
	}
	return true
}

func (i *Instance) dispatch(x *exchange, ep *endpoint, params map[string]string) {
	if status, code, msg := validateBody(ep, x); status != 0 {
		httputil.WriteError(x.w, status, code, msg)
		i.record(x, status, ep)
		return
	}

	responses, scenarioName := i.resolveScenario(ep, x)
	x.entry.Scenario = scenarioName

	data := i.renderContext(x, params, i.data.snapshot())
	status, resp, ok := i.selectResponse(responses, data)
	if !ok {
		httputil.WriteInternalError(x.w, "no_response",
			fmt.Sprintf("no response condition matched for %s %s", x.r.Method, x.r.URL.Path))
		i.record(x, http.StatusInternalServerError, ep)
		return
	}

	if len(resp.SideEffects) > 0 {
		snap, err := i.data.update(func(working *snapshot) error {
			for _, se := range resp.SideEffects {
				ctx := i.renderContext(x, params, *working)
				rendered, err := i.renderer.Render(se.Value, ctx)
				if err != nil {
					return fmt.Errorf("%w: %s %s: %w", errSideEffect, se.Action, se.Target, err)
				}
				if err := applySideEffect(working, se, parseValue(rendered)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			i.log.Warn("side effects failed", "endpoint", ep.index, "error", err)
			httputil.WriteInternalError(x.w, "side_effect_failed", err.Error())
			i.record(x, http.StatusInternalServerError, ep)
			return
		}
		data = i.renderContext(x, params, snap)
	}

	if resp.Script != "" {
		if err := i.runScript(resp.Script, data); err != nil {
			i.renderFailed(x, ep, err)
			return
		}
	}

	headers := make(map[string]string, len(resp.Headers))
	for name, tmpl := range resp.Headers {
		v, err := i.renderer.Render(tmpl, data)
		if err != nil {
			i.renderFailed(x, ep, err)
			return
		}
		headers[name] = v
	}
	body, err := i.renderer.Render(resp.Body, data)
	if err != nil {
		i.renderFailed(x, ep, err)
		return
	}

	h := x.w.Header()
	h.Set("Content-Type", resp.ContentType)
	for name, v := range headers {
		h.Set(name, v)
	}
	x.w.WriteHeader(status)
	_, _ = io.WriteString(x.w, body)
	i.record(x, status, ep)
}

// runScript evaluates script and exposes its result as data["script"]. An
// object result is also merged into runtime data.
func (i *Instance) runScript(script string, data map[string]any) error {
	out, err := i.renderer.Render(template.WrapExpression(script), data)
	if err != nil {
		return err
	}
	value := parseValue(out)
	data["script"] = value

	obj, ok := value.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	snap, _ := i.data.update(func(working *snapshot) error {
		for k, v := range obj {
			working.runtime[k] = v
		}
		return nil
	})
	data["runtime"] = snap.runtime
	return nil
}

func (i *Instance) renderFailed(x *exchange, ep *endpoint, err error) {
	i.log.Warn("render failed", "endpoint", ep.index, "error", err)
	httputil.WriteInternalError(x.w, "render_error", err.Error())
	i.record(x, http.StatusInternalServerError, ep)
}

// unmatched proxies, records or rejects a request no endpoint answers.
func (i *Instance) unmatched(x *exchange) {
	switch {
	case i.proxy != nil:
		r := x.r.Clone(x.r.Context())
		r.Body = io.NopCloser(bytes.NewReader(x.raw))
		r.ContentLength = int64(len(x.raw))
		sr := &statusRecorder{ResponseWriter: x.w, status: http.StatusOK}
		i.proxy.ServeHTTP(sr, r)
		i.record(x, sr.status, nil)
	case i.def.Server.RecordUnknown:
		i.recordUnknown(x)
		i.notFound(x)
		i.record(x, http.StatusNotFound, nil)
	default:
		i.notFound(x)
	}
}

func (i *Instance) notFound(x *exchange) {
	httputil.WriteNotFound(x.w, "not_found",
		fmt.Sprintf("no endpoint matches %s %s", x.r.Method, x.r.URL.Path))
}

// recordUnknown persists a placeholder endpoint for an unmatched request.
func (i *Instance) recordUnknown(x *exchange) {
	if i.storage == nil || !x.inBase {
		return
	}

	i.recordMu.Lock()
	defer i.recordMu.Unlock()

	key := x.r.Method + " " + x.path
	if i.recorded[key] {
		return
	}
	def, err := definition.Clone(i.def)
	if err != nil {
		i.log.Warn("record unknown endpoint", "error", err)
		return
	}
	def.Endpoints = append(def.Endpoints, i.placeholders...)
	placeholder := definition.EndpointDefinition{
		Kind:   definition.KindHTTP,
		Method: x.r.Method,
		Path:   x.path,
		Responses: map[int]definition.ResponseDefinition{
			http.StatusOK: {ContentType: definition.DefaultContentType, Body: "{}"},
		},
	}
	def.Endpoints = append(def.Endpoints, placeholder)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(x.r.Context()), 5*time.Second)
	defer cancel()
	if err := i.storage.SaveService(ctx, def); err != nil {
		i.log.Warn("record unknown endpoint", "method", x.r.Method, "path", x.path, "error", err)
		return
	}
	i.recorded[key] = true
	i.placeholders = append(i.placeholders, placeholder)
	i.log.Info("recorded unknown endpoint", "method", x.r.Method, "path", x.path)
}

// record publishes the log entry for x and observes metrics.
func (i *Instance) record(x *exchange, status int, ep *endpoint) {
	elapsed := time.Since(x.start)
	e := x.entry
	e.Status = status
	e.DurationMs = elapsed.Milliseconds()
	if ep != nil {
		idx := ep.index
		e.Endpoint = &idx
	}

	i.ring.Add(e)
	if i.sink != nil {
		i.sink.Publish(e)
	}
	if i.storage != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(x.r.Context()), 5*time.Second)
		if err := i.storage.AppendLog(ctx, e); err != nil {
			i.log.Warn("persist request log", "error", err)
		}
		cancel()
	}
	if i.metrics != nil {
		i.metrics.ObserveRequest(i.def.Name, x.r.Method, status, elapsed)
	}
	i.log.Debug("request", "method", e.Method, "path", e.Path, "status", status, "duration", elapsed)
}

func validateBody(ep *endpoint, x *exchange) (int, string, string) {
	rb := ep.def.RequestBody
	if rb == nil {
		return 0, "", ""
	}
	if len(bytes.TrimSpace(x.raw)) == 0 {
		if rb.Required {
			return http.StatusBadRequest, "missing_body", "request body is required"
		}
		return 0, "", ""
	}
	if ep.body == nil || !json.Valid(x.raw) {
		return 0, "", ""
	}
	if err := ep.body.Validate(x.body); err != nil {
		return http.StatusBadRequest, "validation_failed", err.Error()
	}
	return 0, "", ""
}

// decodeBody returns the JSON value of raw, or raw as a string when it is
// not JSON. An empty body is nil.
func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// statusRecorder captures the status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func lowerHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[strings.ToLower(name)] = values[0]
		}
	}
	return out
}
