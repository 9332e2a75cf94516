package definition

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pingYAML = `
name: svc
server:
  port: 9001
  base_path: /api
endpoints:
  - method: get
    path: /ping
    responses:
      200:
        body: pong
`

func TestParse_AppliesDefaults(t *testing.T) {
	def, err := Parse([]byte(pingYAML), "svc.yaml")
	require.NoError(t, err)

	assert.Equal(t, "svc", def.Name)
	assert.Equal(t, 9001, def.Server.Port)
	assert.Equal(t, "/api", def.Server.BasePath)
	require.Len(t, def.Endpoints, 1)

	ep := def.Endpoints[0]
	assert.Equal(t, "GET", ep.Method)
	assert.Equal(t, KindHTTP, ep.Kind)
	assert.Equal(t, DefaultContentType, ep.Responses[200].ContentType)
	assert.Equal(t, "pong", ep.Responses[200].Body)
	assert.Equal(t, "svc.yaml", def.SourcePath)
}

func TestParse_BasePathDefaultsToRoot(t *testing.T) {
	def, err := Parse([]byte("name: a\nendpoints: []\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "/", def.Server.BasePath)
}

func TestParse_ScenarioShorthand(t *testing.T) {
	src := `
name: svc
endpoints:
  - method: GET
    path: /status
    responses:
      200: {body: up}
    scenarios:
      - name: outage
        response:
          status: 503
          body: down
`
	def, err := Parse([]byte(src), "")
	require.NoError(t, err)

	sc := def.Endpoints[0].Scenarios[0]
	assert.Nil(t, sc.Response)
	require.Contains(t, sc.Responses, 503)
	assert.Equal(t, "down", sc.Responses[503].Body)
	assert.Equal(t, DefaultContentType, sc.Responses[503].ContentType)
}

func TestParse_ResolvesFileReferences(t *testing.T) {
	src := `
name: secure
server:
  cert: certs/server.crt
  key: /etc/abs.key
graphql:
  schema_path: schema.graphql
endpoints: []
`
	def, err := Parse([]byte(src), filepath.Join("defs", "secure.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("defs", "certs", "server.crt"), def.Server.Cert)
	assert.Equal(t, "/etc/abs.key", def.Server.Key)
	assert.Equal(t, filepath.Join("defs", "schema.graphql"), def.GraphQL.SchemaPath)
	assert.Equal(t, DefaultGraphQLPath, def.GraphQL.Path)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing name", "endpoints: []", "name"},
		{"relative base path", "name: a\nserver: {base_path: api}", "server.base_path"},
		{"privileged port", "name: a\nserver: {port: 80}", "server.port"},
		{"bad proxy url", "name: a\nserver: {proxy_base_url: 'localhost:8080'}", "server.proxy_base_url"},
		{"cert without key", "name: a\nserver: {cert: a.pem}", "server.cert"},
		{"bad method", "name: a\nendpoints: [{method: FETCH, path: /x, responses: {200: {body: x}}}]", "endpoints[0].method"},
		{"bad path", "name: a\nendpoints: [{method: GET, path: x, responses: {200: {body: x}}}]", "endpoints[0].path"},
		{"unclosed param", "name: a\nendpoints: [{method: GET, path: '/x/{id', responses: {200: {body: x}}}]", "endpoints[0].path"},
		{"bad regex", "name: a\nendpoints: [{method: GET, path: '^/x(', responses: {200: {body: x}}}]", "endpoints[0].path"},
		{"no responses", "name: a\nendpoints: [{method: GET, path: /x}]", "endpoints[0].responses"},
		{"status out of range", "name: a\nendpoints: [{method: GET, path: /x, responses: {700: {body: x}}}]", "endpoints[0].responses[700]"},
		{"unknown model", "name: a\nendpoints: [{method: POST, path: /x, request_body: {schema: User}, responses: {200: {body: x}}}]", "endpoints[0].request_body.schema"},
		{"unknown action", "name: a\nendpoints: [{method: GET, path: /x, responses: {200: {side_effects: [{action: explode, target: k}]}}}]", "endpoints[0].responses[200].side_effects[0].action"},
		{"bad strategy", "name: a\nendpoints: [{method: GET, path: /x, responses: {200: {}}, scenarios: [{name: s, strategy: shuffle, responses: {500: {}}}]}]", "endpoints[0].scenarios[0].strategy"},
		{"unknown kind", "name: a\nendpoints: [{kind: grpc, method: GET, path: /x, responses: {200: {}}}]", "endpoints[0].kind"},
		{"bad error rate", "name: a\nbehavior: {error_simulation: {enabled: true, rate: 2}}", "behavior.error_simulation.rate"},
		{"inverted latency", "name: a\nbehavior: {latency: {min_ms: 50, max_ms: 10}}", "behavior.latency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.yaml")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDefinition))

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "bad.yaml", cfgErr.Path)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("name: [unterminated"), "broken.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDefinition))
	assert.Contains(t, err.Error(), "broken.yaml")

	_, err = Parse(nil, "empty.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty definition")
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{"endpoint key", `
name: svc
endpoints:
  - method: GET
    path: /a
    header_mach: {X-Tenant: acme}
    responses:
      200: {body: ok}
`, "header_mach"},
		{"response key", `
name: svc
endpoints:
  - method: POST
    path: /a
    responses:
      201:
        body: ok
        side_efects:
          - {action: set, target: k, value: v}
`, "side_efects"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "svc.yaml")
			require.Error(t, err)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Contains(t, err.Error(), tt.key)
			assert.Contains(t, err.Error(), "svc.yaml")
		})
	}
}

func TestParse_ModelsCompile(t *testing.T) {
	src := `
name: users
models:
  User:
    type: object
    required: [name]
    properties:
      name: {type: string}
endpoints:
  - method: POST
    path: /users
    request_body: {required: true, schema: User}
    responses:
      201: {schema: User, body: '{}'}
`
	def, err := Parse([]byte(src), "")
	require.NoError(t, err)

	schema, err := CompileModel("User", def.Models["User"])
	require.NoError(t, err)
	assert.NoError(t, schema.Validate(map[string]any{"name": "ada"}))
	assert.Error(t, schema.Validate(map[string]any{}))
}

func TestLint(t *testing.T) {
	src := `
name: dup
endpoints:
  - {method: GET, path: /a, responses: {200: {body: first}}}
  - {method: GET, path: /a, responses: {200: {body: second}}}
  - {method: POST, path: /a, responses: {200: {}}}
  - {kind: websocket, method: GET, path: /ws, responses: {101: {}}}
`
	def, err := Parse([]byte(src), "")
	require.NoError(t, err)

	warnings := Lint(def)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "endpoints[1] GET /a shadowed by endpoints[0]")
	assert.Contains(t, warnings[1], "websocket")
}

func TestEqual(t *testing.T) {
	a, err := Parse([]byte(pingYAML), "one.yaml")
	require.NoError(t, err)
	b, err := Parse([]byte(pingYAML), "two.yaml")
	require.NoError(t, err)

	assert.True(t, Equal(a, b), "source path must not matter")
	assert.Empty(t, Diff(a, b))

	c, err := Clone(a)
	require.NoError(t, err)
	c.Endpoints[0].Path = "/pong"
	assert.False(t, Equal(a, c))
	assert.Contains(t, Diff(a, c), "/pong")
	assert.Equal(t, "/ping", a.Endpoints[0].Path, "clone must not alias")

	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(a, nil))
}

func TestEqual_EmptyCollections(t *testing.T) {
	a := &ServiceDefinition{Name: "x", Bucket: map[string]any{}}
	b := &ServiceDefinition{Name: "x"}
	assert.True(t, Equal(a, b))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStore_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", pingYAML)
	writeFile(t, dir, "nested/b.yml", "name: other\nendpoints: []\n")
	bad := writeFile(t, dir, "broken.yaml", "name: x\nserver: {port: 1}\n")
	dup := writeFile(t, dir, "z-dup.yaml", "name: svc\nendpoints: []\n")
	writeFile(t, dir, "notes.txt", "ignored")

	store := NewStore(dir)
	result, err := store.Load()
	require.NoError(t, err)

	names := make([]string, 0, len(result.Definitions))
	for _, d := range result.Definitions {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"svc", "other"}, names)

	require.Len(t, result.Errors, 2)
	assert.ElementsMatch(t, []string{bad, dup}, result.FailedPaths())
	for _, e := range result.Errors {
		if e.Path == dup {
			assert.Contains(t, e.Error(), "duplicate service name")
		}
	}

	snap := store.Snapshot()
	assert.Len(t, snap, 4)
	assert.Contains(t, snap, filepath.Join(dir, "nested", "b.yml"))
}

func TestStore_MissingDirectory(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "nope")).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_Scan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", pingYAML)

	snap, err := NewStore(dir).Scan()
	require.NoError(t, err)
	assert.Len(t, snap, 1)
}

func TestIsDefinitionFile(t *testing.T) {
	assert.True(t, IsDefinitionFile("/x/svc.yaml"))
	assert.True(t, IsDefinitionFile("svc.yml"))
	assert.False(t, IsDefinitionFile("svc.json"))
	assert.False(t, IsDefinitionFile("svc.yaml.swp"))
}
