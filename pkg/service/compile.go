package service

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/getmockd/mockfleet/internal/matching"
	"github.com/getmockd/mockfleet/pkg/definition"
)

// endpoint is an EndpointDefinition prepared for matching.
type endpoint struct {
	index   int
	def     *definition.EndpointDefinition
	pattern *matching.PathPattern
	body    *jsonschema.Schema

	// rotation counts requests answered by unnamed, unconditioned scenarios.
	rotation atomic.Uint64
}

func compileEndpoints(def *definition.ServiceDefinition, models map[string]*jsonschema.Schema) ([]*endpoint, error) {
	out := make([]*endpoint, 0, len(def.Endpoints))
	for i := range def.Endpoints {
		ep := &def.Endpoints[i]
		if ep.Kind != "" && ep.Kind != definition.KindHTTP {
			continue
		}
		pattern, err := matching.CompilePath(ep.Path)
		if err != nil {
			return nil, invalidDefinition("endpoints[%d]: %v", i, err)
		}
		if len(ep.Responses) == 0 {
			return nil, invalidDefinition("endpoints[%d] %s %s has no responses", i, ep.Method, ep.Path)
		}
		c := &endpoint{index: i, def: ep, pattern: pattern}
		if rb := ep.RequestBody; rb != nil && rb.Schema != "" {
			schema, ok := models[rb.Schema]
			if !ok {
				return nil, invalidDefinition("endpoints[%d]: unknown model %q", i, rb.Schema)
			}
			c.body = schema
		}
		out = append(out, c)
	}
	return out, nil
}

func compileModels(def *definition.ServiceDefinition) (map[string]*jsonschema.Schema, error) {
	models := make(map[string]*jsonschema.Schema, len(def.Models))
	for name, raw := range def.Models {
		schema, err := definition.CompileModel(name, raw)
		if err != nil {
			return nil, invalidDefinition("%v", err)
		}
		models[name] = schema
	}
	return models, nil
}

// match returns the first endpoint answering method and path, with the
// captured path parameters.
func match(endpoints []*endpoint, r *http.Request, path string) (*endpoint, map[string]string) {
	for _, ep := range endpoints {
		if ep.def.Method != r.Method {
			continue
		}
		params, ok := ep.pattern.Match(path)
		if !ok {
			continue
		}
		if len(ep.def.HeaderMatch) > 0 && !matching.MatchHeaders(ep.def.HeaderMatch, r.Header) {
			continue
		}
		if params == nil {
			params = map[string]string{}
		}
		return ep, params
	}
	return nil, nil
}

// graphqlMock serves the graphql block of a definition.
type graphqlMock struct {
	path   string
	sdl    string
	schema *ast.Schema
	mocks  map[string]string
}

func loadGraphQL(cfg *definition.GraphQLConfig) (*graphqlMock, error) {
	data, err := os.ReadFile(cfg.SchemaPath)
	if err != nil {
		return nil, invalidDefinition("read graphql schema: %v", err)
	}
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: cfg.SchemaPath, Input: string(data)})
	if err != nil {
		return nil, invalidDefinition("parse graphql schema %s: %v", cfg.SchemaPath, err)
	}

	mocks := make(map[string]string, len(cfg.Mocks))
	for op, file := range cfg.Mocks {
		tmpl, err := os.ReadFile(file)
		if err != nil {
			return nil, invalidDefinition("read graphql mock %s: %v", op, err)
		}
		mocks[op] = string(tmpl)
	}

	path := cfg.Path
	if path == "" {
		path = definition.DefaultGraphQLPath
	}
	return &graphqlMock{path: path, sdl: string(data), schema: schema, mocks: mocks}, nil
}

func newProxy(rawURL string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, invalidDefinition("proxy_base_url: %v", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, invalidDefinition("proxy_base_url %q is not absolute", rawURL)
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
	}, nil
}

