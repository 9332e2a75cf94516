package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/requestlog"
	"github.com/getmockd/mockfleet/pkg/storage"
)

const pingService = `
name: svc
server:
  base_path: /api
endpoints:
  - method: GET
    path: /ping
    responses:
      200:
        content_type: text/plain
        body: pong
`

func TestServeHTTP_DefaultResponse(t *testing.T) {
	inst := newTestInstance(t, pingService)

	rec := serve(inst, http.MethodGet, "/api/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, serve(inst, http.MethodGet, "/ping", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(inst, http.MethodPost, "/api/ping", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(inst, http.MethodGet, "/api/pong", "").Code)
}

func TestServeHTTP_ResponseSelection(t *testing.T) {
	inst := newTestInstance(t, `
name: users
endpoints:
  - method: GET
    path: /users/{id}
    responses:
      200:
        condition: "params.id == '1'"
        body: '{"id": "{{ params.id }}"}'
      201:
        condition: "{{ params.id == '1' || params.id == '2' }}"
        body: two
      404:
        body: '{"missing": "{{ params.id }}"}'
  - method: GET
    path: /strict
    responses:
      200:
        condition: "request.query.ok == 'yes'"
        body: ok
  - method: GET
    path: /broken
    responses:
      200:
        body: "{{ nope( }}"
  - method: GET
    path: /bad-condition
    responses:
      200:
        condition: "{{ nope( }}"
        body: never
      204:
        body: ""
`)

	tests := []struct {
		name   string
		target string
		status int
		body   string
	}{
		{"lowest true condition wins", "/users/1", 200, `{"id": "1"}`},
		{"second condition", "/users/2", 201, "two"},
		{"default without condition", "/users/9", 404, `{"missing": "9"}`},
		{"condition holds", "/strict?ok=yes", 200, "ok"},
		{"condition render error counts as false", "/bad-condition", 204, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(inst, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}

	t.Run("no qualifying response", func(t *testing.T) {
		rec := serve(inst, http.MethodGet, "/strict", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "no_response")
	})

	t.Run("render error is surfaced", func(t *testing.T) {
		rec := serve(inst, http.MethodGet, "/broken", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "render_error")
	})
}

const scenarioService = `
name: orders
endpoints:
  - method: GET
    path: /orders
    responses:
      200:
        body: normal
    scenarios:
      - name: outage
        response:
          status: 503
          body: down
      - name: eu-only
        conditions:
          query: {region: eu}
        responses:
          202:
            body: eu
`

func TestServeHTTP_ActiveScenario(t *testing.T) {
	inst := newTestInstance(t, scenarioService)
	outage := "outage"

	assert.Equal(t, "normal", serve(inst, http.MethodGet, "/orders", "").Body.String())

	inst.SetScenario(&outage)
	inst.SetScenario(&outage)
	rec := serve(inst, http.MethodGet, "/orders", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", rec.Body.String())

	inst.SetScenario(nil)
	rec = serve(inst, http.MethodGet, "/orders", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "normal", rec.Body.String())

	eu := "eu-only"
	inst.SetScenario(&eu)
	assert.Equal(t, "eu", serve(inst, http.MethodGet, "/orders?region=eu", "").Body.String())
	assert.Equal(t, "normal", serve(inst, http.MethodGet, "/orders?region=us", "").Body.String())

	inst.SetScenario(&outage)
	serve(inst, http.MethodGet, "/orders", "")
	entries := inst.Logs(requestlog.Filter{})
	assert.Equal(t, "outage", entries[len(entries)-1].Scenario)
}

func TestServeHTTP_UnnamedScenarios(t *testing.T) {
	inst := newTestInstance(t, `
name: flaky
endpoints:
  - method: GET
    path: /rotate
    responses:
      200:
        body: default
    scenarios:
      - strategy: sequential
        response: {status: 200, body: a}
      - response: {status: 200, body: b}
      - conditions:
          headers: {X-Mode: beta}
        response: {status: 200, body: beta}
      - conditions:
          body: {"$.kind": order}
        response: {status: 201, body: order}
`)

	var got []string
	for n := 0; n < 3; n++ {
		got = append(got, serve(inst, http.MethodGet, "/rotate", "").Body.String())
	}
	assert.Equal(t, []string{"a", "b", "a"}, got)

	assert.Equal(t, "beta", serve(inst, http.MethodGet, "/rotate", "", "x-mode", "beta").Body.String())

	rec := serve(inst, http.MethodGet, "/rotate", `{"kind":"order"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "order", rec.Body.String())
}

const counterService = `
name: counter
bucket:
  counter: 0
fixtures:
  users: [{name: ada}]
endpoints:
  - method: POST
    path: /hit
    responses:
      200:
        body: "{{ bucket.counter }}"
        side_effects:
          - {action: increment, target: counter}
  - method: POST
    path: /users
    responses:
      201:
        body: "{{ len(fixtures.users) }}"
        side_effects:
          - {action: add_to_fixture, target: users, value: "{{ request.body }}"}
          - {action: set, target: last, value: "{{ request.body.name }}"}
  - method: POST
    path: /broken
    responses:
      200:
        body: unreachable
        side_effects:
          - {action: set, target: touched, value: "yes"}
          - {action: append, target: counter, value: "1"}
  - method: GET
    path: /stats
    responses:
      200:
        script: "{ n: len(fixtures.users), who: bucket.last }"
        headers:
          X-Count: "{{ script.n }}"
        body: "{{ runtime.who }}"
`

func TestServeHTTP_SideEffects(t *testing.T) {
	inst := newTestInstance(t, counterService)

	assert.Equal(t, "1", serve(inst, http.MethodPost, "/hit", "").Body.String())
	assert.Equal(t, "2", serve(inst, http.MethodPost, "/hit", "").Body.String())

	rec := serve(inst, http.MethodPost, "/users", `{"name":"grace"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2", rec.Body.String())
	assert.Equal(t, "grace", inst.Bucket()["last"])

	rec = serve(inst, http.MethodGet, "/stats", "")
	assert.Equal(t, "2", rec.Header().Get("X-Count"))
	assert.Equal(t, "grace", rec.Body.String())
}

func TestServeHTTP_FailedSideEffectLeavesStateUnchanged(t *testing.T) {
	inst := newTestInstance(t, counterService)
	before := inst.Bucket()

	rec := serve(inst, http.MethodPost, "/broken", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "side_effect_failed")
	assert.Equal(t, before, inst.Bucket())
	assert.NotContains(t, inst.Bucket(), "touched")
}

func TestServeHTTP_ConcurrentIncrementsAreSerialized(t *testing.T) {
	inst := newTestInstance(t, counterService)
	const n = 64

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(inst, http.MethodPost, "/hit", "")
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(n), inst.Bucket()["counter"])
}

func TestServeHTTP_HeaderMatchAndBodyValidation(t *testing.T) {
	inst := newTestInstance(t, `
name: tenants
models:
  User:
    type: object
    required: [name]
    properties:
      name: {type: string}
endpoints:
  - method: GET
    path: /whoami
    header_match: {X-Tenant: acme}
    responses:
      200: {body: acme}
  - method: GET
    path: /whoami
    responses:
      200: {body: anyone}
  - method: POST
    path: /users
    request_body: {required: true, schema: User}
    responses:
      201: {body: created}
`)

	assert.Equal(t, "acme", serve(inst, http.MethodGet, "/whoami", "", "X-Tenant", "ACME").Body.String())
	assert.Equal(t, "anyone", serve(inst, http.MethodGet, "/whoami", "").Body.String())

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing body", "", http.StatusBadRequest, "missing_body"},
		{"schema violation", `{"age": 3}`, http.StatusBadRequest, "validation_failed"},
		{"valid", `{"name": "ada"}`, http.StatusCreated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(inst, http.MethodPost, "/users", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Contains(t, rec.Body.String(), tt.code)
			}
		})
	}
}

func TestServeHTTP_CORS(t *testing.T) {
	inst := newTestInstance(t, `
name: web
server:
  cors:
    enabled: true
    origins: [https://app.example]
endpoints:
  - method: GET
    path: /data
    responses:
      200: {body: "[]"}
`)

	rec := serve(inst, http.MethodOptions, "/anything", "", "Origin", "https://app.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, defaultCORSMethods, rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))

	rec = serve(inst, http.MethodGet, "/data", "", "Origin", "https://other.example")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeHTTP_UnmatchedRequests(t *testing.T) {
	t.Run("not logged by default", func(t *testing.T) {
		inst := newTestInstance(t, pingService)
		assert.Equal(t, http.StatusNotFound, serve(inst, http.MethodGet, "/api/nope", "").Code)
		assert.Empty(t, inst.Logs(requestlog.Filter{}))
	})

	t.Run("record unknown persists a placeholder", func(t *testing.T) {
		store := storage.NewMemory()
		inst := newTestInstance(t, `
name: svc
server:
  base_path: /api
  record_unknown: true
endpoints:
  - method: GET
    path: /ping
    responses:
      200: {body: pong}
`, WithStorage(store))

		assert.Equal(t, http.StatusNotFound, serve(inst, http.MethodGet, "/api/nope", "").Code)
		assert.Equal(t, http.StatusNotFound, serve(inst, http.MethodGet, "/api/nope", "").Code)

		logs := inst.Logs(requestlog.Filter{})
		require.Len(t, logs, 2)
		assert.Nil(t, logs[0].Endpoint)

		saved, err := store.LoadService(context.Background(), "svc")
		require.NoError(t, err)
		require.Len(t, saved.Endpoints, 2)
		assert.Equal(t, "/nope", saved.Endpoints[1].Path)
		assert.Equal(t, "{}", saved.Endpoints[1].Responses[200].Body)
	})

	t.Run("proxied to upstream", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			fmt.Fprintf(w, "upstream %s", r.URL.Path)
		}))
		defer upstream.Close()

		inst := newTestInstance(t, fmt.Sprintf(`
name: edge
server:
  proxy_base_url: %s
endpoints:
  - method: GET
    path: /local
    responses:
      200: {body: local}
`, upstream.URL))

		assert.Equal(t, "local", serve(inst, http.MethodGet, "/local", "").Body.String())
		rec := serve(inst, http.MethodGet, "/remote", "")
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, "upstream /remote", rec.Body.String())

		logs := inst.Logs(requestlog.Filter{Route: "/remote"})
		require.Len(t, logs, 1)
		assert.Equal(t, http.StatusTeapot, logs[0].Status)
	})
}

func TestServeHTTP_Logging(t *testing.T) {
	sink := &sinkSpy{}
	metrics := &recorderSpy{}
	store := storage.NewMemory()
	inst := newTestInstance(t, pingService, WithLogSink(sink), WithMetrics(metrics), WithStorage(store))

	serve(inst, http.MethodGet, "/api/ping?x=1", "hello")
	serve(inst, http.MethodGet, "/api/ping", "")

	entries := sink.all()
	require.Len(t, entries, 2)
	first := entries[0]
	assert.Equal(t, "svc", first.Service)
	assert.Equal(t, "/api/ping", first.Path)
	assert.Equal(t, "x=1", first.Query)
	assert.Equal(t, "hello", first.Payload)
	require.NotNil(t, first.Endpoint)
	assert.Equal(t, 0, *first.Endpoint)
	assert.Equal(t, []int{200, 200}, metrics.statuses)

	persisted, err := store.QueryLogs(context.Background(), storage.LogQuery{Service: "svc"})
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	rec := serve(inst, http.MethodGet, "/api/__mockfleet/logs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []requestlog.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, entries[1].ID, listed[0].ID)

	assert.Len(t, inst.Logs(requestlog.Filter{}), 2, "the logs endpoint does not log itself")
	assert.Equal(t, http.StatusBadRequest, serve(inst, http.MethodGet, "/api/__mockfleet/logs?limit=x", "").Code)
}

func TestServeHTTP_OversizedBodyIsLogged(t *testing.T) {
	sink := &sinkSpy{}
	inst := newTestInstance(t, pingService, WithLogSink(sink))

	rec := serve(inst, http.MethodPost, "/api/ping", strings.Repeat("x", maxBodySize+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "body_too_large")

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusRequestEntityTooLarge, entries[0].Status)
	assert.Equal(t, "/api/ping", entries[0].Path)
	assert.Nil(t, entries[0].Endpoint)
	assert.Empty(t, entries[0].Payload)
	assert.Len(t, inst.Logs(requestlog.Filter{}), 1)
}

func TestServeHTTP_Behavior(t *testing.T) {
	t.Run("rate limiting", func(t *testing.T) {
		inst := newTestInstance(t, pingService+`
behavior:
  rate_limiting: {enabled: true, requests_per_minute: 1}
`)
		assert.Equal(t, http.StatusOK, serve(inst, http.MethodGet, "/api/ping", "").Code)
		rec := serve(inst, http.MethodGet, "/api/ping", "")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("error simulation", func(t *testing.T) {
		inst := newTestInstance(t, pingService+`
behavior:
  error_simulation: {enabled: true, rate: 1, status_codes: [503]}
`)
		assert.Equal(t, http.StatusServiceUnavailable, serve(inst, http.MethodGet, "/api/ping", "").Code)
	})

	t.Run("global behavior applies when the service has none", func(t *testing.T) {
		global := &definition.BehaviorConfig{
			ErrorSimulation: &definition.ErrorSimulationConfig{Enabled: true, Rate: 1, StatusCodes: []int{502}},
		}
		inst := newTestInstance(t, pingService, WithGlobalBehavior(global))
		assert.Equal(t, http.StatusBadGateway, serve(inst, http.MethodGet, "/api/ping", "").Code)
	})
}

func TestServeHTTP_GraphQL(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.graphql"), []byte(`
type Query {
  user(id: ID!): User
}
type User {
  id: ID!
  name: String
}
`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mocks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mocks", "get_user.json"),
		[]byte(`{"data":{"user":{"id":"{{ variables.id }}","name":"Ada"}}}`), 0o644))
	defPath := filepath.Join(dir, "gql.yaml")
	require.NoError(t, os.WriteFile(defPath, []byte(`
name: gql
endpoints: []
graphql:
  schema_path: schema.graphql
  mocks:
    GetUser: mocks/get_user.json
`), 0o644))

	def, err := definition.LoadFile(defPath)
	require.NoError(t, err)
	inst, err := New(def, 0)
	require.NoError(t, err)

	rec := serve(inst, http.MethodGet, "/graphql", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "type Query")

	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"named operation", `{"query":"query GetUser($id: ID!) { user(id: $id) { id name } }","variables":{"id":"7"}}`,
			200, `{"data":{"user":{"id":"7","name":"Ada"}}}`},
		{"invalid query", `{"query":"{ nope }"}`, 400, "errors"},
		{"anonymous operation", `{"query":"{ user(id: 1) { id } }"}`, 400, "operation name is required"},
		{"unknown operation", `{"query":"query Other { user(id: 1) { id } }"}`, 400, "no mock for operation"},
		{"not json", `query`, 400, "errors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(inst, http.MethodPost, "/graphql", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}
