// Package definition loads, validates and compares service definitions.
//
// A definition is one YAML document describing a mock HTTP service: where
// it listens, which endpoints it answers, how responses are chosen and
// which state it carries between requests.
package definition

// ServiceDefinition describes one mock service. It is treated as immutable
// once loaded.
type ServiceDefinition struct {
	Name        string               `yaml:"name" json:"name"`
	Version     string               `yaml:"version,omitempty" json:"version,omitempty"`
	Description string               `yaml:"description,omitempty" json:"description,omitempty"`
	Server      ServerConfig         `yaml:"server" json:"server"`
	Models      map[string]any       `yaml:"models,omitempty" json:"models,omitempty"`
	Fixtures    map[string]any       `yaml:"fixtures,omitempty" json:"fixtures,omitempty"`
	Bucket      map[string]any       `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Endpoints   []EndpointDefinition `yaml:"endpoints" json:"endpoints"`
	GraphQL     *GraphQLConfig       `yaml:"graphql,omitempty" json:"graphql,omitempty"`
	Behavior    *BehaviorConfig      `yaml:"behavior,omitempty" json:"behavior,omitempty"`
	Twin        map[string]any       `yaml:"twin,omitempty" json:"twin,omitempty"`

	// SourcePath is the file the definition was loaded from.
	SourcePath string `yaml:"-" json:"-"`
}

// ServerConfig controls how a service is exposed.
type ServerConfig struct {
	Port           int         `yaml:"port,omitempty" json:"port,omitempty"`
	BasePath       string      `yaml:"base_path" json:"base_path"`
	ProxyBaseURL   string      `yaml:"proxy_base_url,omitempty" json:"proxy_base_url,omitempty"`
	CORS           *CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty"`
	RecordUnknown  bool        `yaml:"record_unknown,omitempty" json:"record_unknown,omitempty"`
	MaxConnections int         `yaml:"max_connections,omitempty" json:"max_connections,omitempty"`
	Cert           string      `yaml:"cert,omitempty" json:"cert,omitempty"`
	Key            string      `yaml:"key,omitempty" json:"key,omitempty"`
}

// TLSEnabled reports whether both certificate and key are configured.
func (s ServerConfig) TLSEnabled() bool {
	return s.Cert != "" && s.Key != ""
}

// CORSConfig configures cross-origin headers and preflight handling.
type CORSConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Origins []string `yaml:"origins,omitempty" json:"origins,omitempty"`
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`
	Headers []string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// EndpointKind is the transport an endpoint is served over.
type EndpointKind string

// Endpoint kinds. Only HTTP endpoints are dispatched.
const (
	KindHTTP      EndpointKind = "http"
	KindWebSocket EndpointKind = "websocket"
	KindSSE       EndpointKind = "sse"
)

// EndpointDefinition declares one route and its candidate responses.
type EndpointDefinition struct {
	Kind        EndpointKind               `yaml:"kind,omitempty" json:"kind,omitempty"`
	Method      string                     `yaml:"method" json:"method"`
	Path        string                     `yaml:"path" json:"path"`
	HeaderMatch map[string]string          `yaml:"header_match,omitempty" json:"header_match,omitempty"`
	Description string                     `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters  []ParameterDefinition      `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	RequestBody *RequestBodyDefinition     `yaml:"request_body,omitempty" json:"request_body,omitempty"`
	Responses   map[int]ResponseDefinition `yaml:"responses" json:"responses"`
	Scenarios   []ScenarioDefinition       `yaml:"scenarios,omitempty" json:"scenarios,omitempty"`
	Stream      *StreamConfig              `yaml:"stream,omitempty" json:"stream,omitempty"`
}

// ParameterDefinition documents a request parameter.
type ParameterDefinition struct {
	Name        string `yaml:"name" json:"name"`
	In          string `yaml:"in" json:"in"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// RequestBodyDefinition constrains the request body. Schema names a model.
type RequestBodyDefinition struct {
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Schema      string `yaml:"schema,omitempty" json:"schema,omitempty"`
	ContentType string `yaml:"content_type,omitempty" json:"content_type,omitempty"`
}

// ResponseDefinition is one candidate response of an endpoint.
type ResponseDefinition struct {
	Condition   string            `yaml:"condition,omitempty" json:"condition,omitempty"`
	ContentType string            `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	Body        string            `yaml:"body,omitempty" json:"body,omitempty"`
	Schema      string            `yaml:"schema,omitempty" json:"schema,omitempty"`
	Script      string            `yaml:"script,omitempty" json:"script,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	SideEffects []SideEffect      `yaml:"side_effects,omitempty" json:"side_effects,omitempty"`
}

// SideEffect mutates service state when its response is selected.
type SideEffect struct {
	Action string `yaml:"action" json:"action"`
	Target string `yaml:"target" json:"target"`
	Value  string `yaml:"value,omitempty" json:"value,omitempty"`
}

// Side-effect actions.
const (
	ActionSet               = "set"
	ActionAppend            = "append"
	ActionDelete            = "delete"
	ActionIncrement         = "increment"
	ActionAddToFixture      = "add_to_fixture"
	ActionUpdateFixture     = "update_fixture"
	ActionRemoveFromFixture = "remove_from_fixture"
	ActionSetRuntimeData    = "set_runtime_data"
	ActionRemoveRuntimeData = "remove_runtime_data"
)

var knownActions = map[string]bool{
	ActionSet: true, ActionAppend: true, ActionDelete: true, ActionIncrement: true,
	ActionAddToFixture: true, ActionUpdateFixture: true, ActionRemoveFromFixture: true,
	ActionSetRuntimeData: true, ActionRemoveRuntimeData: true,
}

// ScenarioStrategy selects among unconditioned, unnamed scenarios.
type ScenarioStrategy string

// Scenario strategies.
const (
	StrategySequential ScenarioStrategy = "sequential"
	StrategyRandom     ScenarioStrategy = "random"
)

// ScenarioDefinition overrides an endpoint's responses when it applies.
// Response is shorthand for a single entry of Responses and is folded into
// it during normalization.
type ScenarioDefinition struct {
	Name       string                     `yaml:"name,omitempty" json:"name,omitempty"`
	Strategy   ScenarioStrategy           `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Conditions *ScenarioConditions        `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Responses  map[int]ResponseDefinition `yaml:"responses,omitempty" json:"responses,omitempty"`
	Response   *ScenarioResponse          `yaml:"response,omitempty" json:"response,omitempty"`
}

// HasConditions reports whether any condition is declared.
func (s ScenarioDefinition) HasConditions() bool {
	c := s.Conditions
	return c != nil && (len(c.Query) > 0 || len(c.Headers) > 0 || len(c.Body) > 0)
}

// ScenarioConditions must all hold for a scenario to apply.
type ScenarioConditions struct {
	Query   map[string]string `yaml:"query,omitempty" json:"query,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    map[string]any    `yaml:"body,omitempty" json:"body,omitempty"`
}

// ScenarioResponse is a status plus an inlined response definition.
type ScenarioResponse struct {
	Status             int `yaml:"status" json:"status"`
	ResponseDefinition `yaml:",inline"`
}

// StreamConfig belongs to non-HTTP endpoint kinds and is carried but unused.
type StreamConfig struct {
	Initial  []string         `yaml:"initial,omitempty" json:"initial,omitempty"`
	Periodic *PeriodicMessage `yaml:"periodic,omitempty" json:"periodic,omitempty"`
}

// PeriodicMessage is a message repeated on a stream.
type PeriodicMessage struct {
	IntervalMS int    `yaml:"interval_ms" json:"interval_ms"`
	Message    string `yaml:"message" json:"message"`
}

// GraphQLConfig mounts a mock GraphQL endpoint answering by operation name.
type GraphQLConfig struct {
	Path       string            `yaml:"path,omitempty" json:"path,omitempty"`
	SchemaPath string            `yaml:"schema_path" json:"schema_path"`
	Mocks      map[string]string `yaml:"mocks,omitempty" json:"mocks,omitempty"`
}

// BehaviorConfig simulates latency, failures and throttling.
type BehaviorConfig struct {
	Latency         *LatencyConfig         `yaml:"latency,omitempty" json:"latency,omitempty"`
	ErrorSimulation *ErrorSimulationConfig `yaml:"error_simulation,omitempty" json:"error_simulation,omitempty"`
	RateLimiting    *RateLimitingConfig    `yaml:"rate_limiting,omitempty" json:"rate_limiting,omitempty"`
}

// LatencyConfig adds a uniform random delay in [MinMS, MaxMS].
type LatencyConfig struct {
	MinMS int `yaml:"min_ms" json:"min_ms"`
	MaxMS int `yaml:"max_ms" json:"max_ms"`
}

// ErrorSimulationConfig fails a fraction of requests.
type ErrorSimulationConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	Rate        float64 `yaml:"rate" json:"rate"`
	StatusCodes []int   `yaml:"status_codes,omitempty" json:"status_codes,omitempty"`
}

// RateLimitingConfig throttles requests per service.
type RateLimitingConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
}
