package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePath_Match(t *testing.T) {
	tests := []struct {
		name       string
		pattern    string
		path       string
		wantMatch  bool
		wantParams map[string]string
	}{
		{name: "literal match", pattern: "/ping", path: "/ping", wantMatch: true},
		{name: "literal mismatch", pattern: "/ping", path: "/pong"},
		{name: "literal is not a prefix", pattern: "/ping", path: "/ping/1"},
		{name: "literal with regex metachar", pattern: "/a.b", path: "/axb"},
		{
			name: "template single param", pattern: "/users/{id}", path: "/users/42",
			wantMatch: true, wantParams: map[string]string{"id": "42"},
		},
		{
			name: "template multiple params", pattern: "/users/{uid}/posts/{pid}", path: "/users/7/posts/9",
			wantMatch: true, wantParams: map[string]string{"uid": "7", "pid": "9"},
		},
		{name: "template param does not cross segments", pattern: "/users/{id}", path: "/users/1/2"},
		{name: "template is anchored", pattern: "/users/{id}", path: "/api/users/1"},
		{name: "template escapes literal dots", pattern: "/files/{name}.json", path: "/files/readmexjson"},
		{
			name: "template with literal suffix", pattern: "/files/{name}.json", path: "/files/readme.json",
			wantMatch: true, wantParams: map[string]string{"name": "readme"},
		},
		{
			name: "raw regex with named group", pattern: `^/orders/(?P<id>\d+)$`, path: "/orders/123",
			wantMatch: true, wantParams: map[string]string{"id": "123"},
		},
		{name: "raw regex mismatch", pattern: `^/orders/(?P<id>\d+)$`, path: "/orders/abc"},
		{
			name: "raw regex without groups", pattern: `^/health(z)?$`, path: "/healthz",
			wantMatch: true, wantParams: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CompilePath(tt.pattern)
			require.NoError(t, err)

			params, ok := p.Match(tt.path)
			assert.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				assert.Equal(t, tt.wantParams, params)
			}
			assert.Equal(t, tt.pattern, p.String())
		})
	}
}

func TestCompilePath_Errors(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"unclosed parameter", "/users/{id"},
		{"invalid parameter name", "/users/{user-id}"},
		{"empty parameter name", "/users/{}"},
		{"duplicate parameter", "/a/{id}/b/{id}"},
		{"invalid raw regex", "^/users/(["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompilePath(tt.pattern)
			assert.Error(t, err)
		})
	}
}

func TestCompilePath_IsLiteral(t *testing.T) {
	lit, err := CompilePath("/ping")
	require.NoError(t, err)
	assert.True(t, lit.IsLiteral())

	tmpl, err := CompilePath("/users/{id}")
	require.NoError(t, err)
	assert.False(t, tmpl.IsLiteral())
}

func TestStripBasePath(t *testing.T) {
	tests := []struct {
		basePath string
		path     string
		want     string
		wantOK   bool
	}{
		{"/api", "/api/ping", "/ping", true},
		{"/api", "/api", "/", true},
		{"/api/", "/api/ping", "/ping", true},
		{"/api", "/apix/ping", "", false},
		{"/api", "/ping", "", false},
		{"/", "/ping", "/ping", true},
		{"", "/ping", "/ping", true},
	}

	for _, tt := range tests {
		t.Run(tt.basePath+"|"+tt.path, func(t *testing.T) {
			got, ok := StripBasePath(tt.basePath, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
