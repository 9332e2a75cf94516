package definition

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/getmockd/mockfleet/internal/matching"
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// Validate checks a normalized definition. All problems are reported,
// joined into one error; each is a *ConfigError.
func Validate(def *ServiceDefinition) error {
	v := &validator{path: def.SourcePath, def: def}
	v.run()
	return errors.Join(v.errs...)
}

type validator struct {
	path string
	def  *ServiceDefinition
	errs []error
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, fieldErr(v.path, field, format, args...))
}

func (v *validator) run() {
	def := v.def
	if strings.TrimSpace(def.Name) == "" {
		v.add("name", "is required")
	}
	v.server(def.Server)

	for name, schema := range def.Models {
		if _, err := CompileModel(name, schema); err != nil {
			v.add("models."+name, "%v", err)
		}
	}

	for i, ep := range def.Endpoints {
		v.endpoint(fmt.Sprintf("endpoints[%d]", i), ep)
	}

	if g := def.GraphQL; g != nil {
		if g.SchemaPath == "" {
			v.add("graphql.schema_path", "is required")
		}
		if !strings.HasPrefix(g.Path, "/") {
			v.add("graphql.path", "must start with /")
		}
	}

	if b := def.Behavior; b != nil {
		v.behavior("behavior", b)
	}
}

func (v *validator) server(s ServerConfig) {
	if !strings.HasPrefix(s.BasePath, "/") {
		v.add("server.base_path", "must start with /")
	}
	if s.Port != 0 && (s.Port < 1024 || s.Port > 65535) {
		v.add("server.port", "must be between 1024 and 65535, got %d", s.Port)
	}
	if s.ProxyBaseURL != "" {
		u, err := url.Parse(s.ProxyBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.add("server.proxy_base_url", "must be an absolute http(s) URL")
		}
	}
	if (s.Cert == "") != (s.Key == "") {
		v.add("server.cert", "cert and key must be set together")
	}
	if s.MaxConnections < 0 {
		v.add("server.max_connections", "must not be negative")
	}
}

func (v *validator) endpoint(field string, ep EndpointDefinition) {
	if ep.Kind != KindHTTP && ep.Kind != KindWebSocket && ep.Kind != KindSSE {
		v.add(field+".kind", "unknown kind %q", ep.Kind)
	}
	if !allowedMethods[ep.Method] {
		v.add(field+".method", "unsupported method %q", ep.Method)
	}
	if !strings.HasPrefix(ep.Path, "/") && !strings.HasPrefix(ep.Path, "^") {
		v.add(field+".path", "must start with / or ^")
	} else if _, err := matching.CompilePath(ep.Path); err != nil {
		v.add(field+".path", "%v", err)
	}

	if len(ep.Responses) == 0 {
		v.add(field+".responses", "at least one response is required")
	}
	v.responses(field+".responses", ep.Responses)

	if rb := ep.RequestBody; rb != nil && rb.Schema != "" {
		v.modelRef(field+".request_body.schema", rb.Schema)
	}

	for i, sc := range ep.Scenarios {
		sf := fmt.Sprintf("%s.scenarios[%d]", field, i)
		switch sc.Strategy {
		case "", StrategySequential, StrategyRandom:
		default:
			v.add(sf+".strategy", "must be sequential or random, got %q", sc.Strategy)
		}
		if len(sc.Responses) == 0 {
			v.add(sf+".responses", "at least one response is required")
		}
		v.responses(sf+".responses", sc.Responses)
		if sc.Conditions != nil {
			for key := range sc.Conditions.Body {
				if strings.HasPrefix(key, "$") {
					if err := matching.ValidateJSONPath(key); err != nil {
						v.add(sf+".conditions.body", "%v", err)
					}
				}
			}
		}
	}
}

func (v *validator) responses(field string, responses map[int]ResponseDefinition) {
	for status, resp := range responses {
		rf := fmt.Sprintf("%s[%d]", field, status)
		if status < 100 || status > 599 {
			v.add(rf, "status code must be between 100 and 599")
		}
		if strings.TrimSpace(resp.ContentType) == "" {
			v.add(rf+".content_type", "must not be empty")
		}
		if resp.Schema != "" {
			v.modelRef(rf+".schema", resp.Schema)
		}
		for i, se := range resp.SideEffects {
			sf := fmt.Sprintf("%s.side_effects[%d]", rf, i)
			if !knownActions[se.Action] {
				v.add(sf+".action", "unknown action %q", se.Action)
			}
			if se.Target == "" {
				v.add(sf+".target", "is required")
			}
		}
	}
}

func (v *validator) modelRef(field, name string) {
	if _, ok := v.def.Models[name]; !ok {
		v.add(field, "references unknown model %q", name)
	}
}

func (v *validator) behavior(field string, b *BehaviorConfig) {
	if l := b.Latency; l != nil && (l.MinMS < 0 || l.MaxMS < l.MinMS) {
		v.add(field+".latency", "requires 0 <= min_ms <= max_ms")
	}
	if e := b.ErrorSimulation; e != nil {
		if e.Rate < 0 || e.Rate > 1 {
			v.add(field+".error_simulation.rate", "must be between 0 and 1")
		}
		for _, code := range e.StatusCodes {
			if code < 100 || code > 599 {
				v.add(field+".error_simulation.status_codes", "invalid status %d", code)
			}
		}
	}
	if r := b.RateLimiting; r != nil && r.Enabled && r.RequestsPerMinute <= 0 {
		v.add(field+".rate_limiting.requests_per_minute", "must be positive")
	}
}

// ValidateBehavior checks a behavior block outside of a definition, such as
// the process-wide default.
func ValidateBehavior(b *BehaviorConfig) error {
	if b == nil {
		return nil
	}
	v := &validator{def: &ServiceDefinition{}}
	v.behavior("global_behavior", b)
	return errors.Join(v.errs...)
}

// Lint returns non-fatal findings. Endpoints sharing a method and path are
// legal (the first declared wins) but usually a mistake.
func Lint(def *ServiceDefinition) []string {
	var warnings []string
	seen := make(map[string]int)
	for i, ep := range def.Endpoints {
		key := ep.Method + " " + ep.Path
		if first, dup := seen[key]; dup {
			warnings = append(warnings, fmt.Sprintf(
				"endpoints[%d] %s shadowed by endpoints[%d]", i, key, first))
			continue
		}
		seen[key] = i
	}
	for i, ep := range def.Endpoints {
		if ep.Kind != KindHTTP {
			warnings = append(warnings, fmt.Sprintf(
				"endpoints[%d] kind %q is not served", i, ep.Kind))
		}
	}
	return warnings
}
