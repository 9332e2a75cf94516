package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied during normalization.
const (
	DefaultContentType = "application/json"
	DefaultGraphQLPath = "/graphql"
)

// LoadFile reads, normalizes and validates a definition file.
func LoadFile(path string) (*ServiceDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return Parse(data, path)
}

// Parse decodes a YAML definition, applies defaults and validates it.
// source names the origin in errors and anchors relative file references.
func Parse(data []byte, source string) (*ServiceDefinition, error) {
	def, err := decode(data, source)
	if err != nil {
		return nil, err
	}
	Normalize(def)
	if err := Validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

func decode(data []byte, source string) (*ServiceDefinition, error) {
	var def ServiceDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ConfigError{Path: source, Err: errors.New("empty definition")}
		}
		return nil, &ConfigError{Path: source, Err: fmt.Errorf("parse yaml: %w", err)}
	}
	def.SourcePath = source
	return &def, nil
}

// Normalize fills defaults in place: upper-case methods, http endpoint kind,
// "/" base path, JSON content type, the scenario response shorthand folded
// into Responses, and file references resolved against SourcePath.
func Normalize(def *ServiceDefinition) {
	if def.Server.BasePath == "" {
		def.Server.BasePath = "/"
	}
	def.Server.Cert = resolve(def.SourcePath, def.Server.Cert)
	def.Server.Key = resolve(def.SourcePath, def.Server.Key)

	for i := range def.Endpoints {
		ep := &def.Endpoints[i]
		if ep.Kind == "" {
			ep.Kind = KindHTTP
		}
		ep.Method = strings.ToUpper(strings.TrimSpace(ep.Method))
		defaultContentTypes(ep.Responses)

		for j := range ep.Scenarios {
			sc := &ep.Scenarios[j]
			if sc.Response != nil {
				if sc.Responses == nil {
					sc.Responses = make(map[int]ResponseDefinition)
				}
				sc.Responses[sc.Response.Status] = sc.Response.ResponseDefinition
				sc.Response = nil
			}
			defaultContentTypes(sc.Responses)
		}
	}

	if def.GraphQL != nil {
		if def.GraphQL.Path == "" {
			def.GraphQL.Path = DefaultGraphQLPath
		}
		def.GraphQL.SchemaPath = resolve(def.SourcePath, def.GraphQL.SchemaPath)
		for op, file := range def.GraphQL.Mocks {
			def.GraphQL.Mocks[op] = resolve(def.SourcePath, file)
		}
	}
}

func defaultContentTypes(responses map[int]ResponseDefinition) {
	for status, resp := range responses {
		if resp.ContentType == "" {
			resp.ContentType = DefaultContentType
			responses[status] = resp
		}
	}
}

func resolve(source, ref string) string {
	if ref == "" || filepath.IsAbs(ref) || source == "" {
		return ref
	}
	return filepath.Join(filepath.Dir(source), ref)
}

// Marshal encodes a definition as YAML.
func Marshal(def *ServiceDefinition) ([]byte, error) {
	return yaml.Marshal(def)
}

// Clone returns a deep copy of def.
func Clone(def *ServiceDefinition) (*ServiceDefinition, error) {
	data, err := Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", def.Name, err)
	}
	clone, err := decode(data, def.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", def.Name, err)
	}
	return clone, nil
}

// Unmarshal decodes YAML produced by Marshal. Unlike Parse it applies no
// defaults and no validation.
func Unmarshal(data []byte) (*ServiceDefinition, error) {
	return decode(data, "")
}
