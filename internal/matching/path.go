package matching

import (
	"fmt"
	"regexp"
	"strings"
)

// PathPattern is a compiled endpoint path.
type PathPattern struct {
	raw     string
	literal bool
	re      *regexp.Regexp
}

var paramNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CompilePath compiles an endpoint path. Paths starting with "^" are raw
// regular expressions; paths containing {name} segments become anchored
// patterns; everything else is matched literally.
func CompilePath(pattern string) (*PathPattern, error) {
	if strings.HasPrefix(pattern, "^") {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
		}
		return &PathPattern{raw: pattern, re: re}, nil
	}

	if !strings.Contains(pattern, "{") {
		return &PathPattern{raw: pattern, literal: true}, nil
	}

	expr, err := templateToRegex(pattern)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid path template %q: %w", pattern, err)
	}
	return &PathPattern{raw: pattern, re: re}, nil
}

// templateToRegex turns "/users/{id}/posts" into ^/users/(?P<id>[^/]+)/posts$.
func templateToRegex(pattern string) (string, error) {
	var b strings.Builder
	b.WriteString("^")
	rest := pattern
	seen := make(map[string]bool)
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("unclosed parameter in path %q", pattern)
		}
		name := rest[open+1 : open+end]
		if !paramNameRe.MatchString(name) {
			return "", fmt.Errorf("invalid parameter name %q in path %q", name, pattern)
		}
		if seen[name] {
			return "", fmt.Errorf("duplicate parameter %q in path %q", name, pattern)
		}
		seen[name] = true
		b.WriteString(regexp.QuoteMeta(rest[:open]))
		b.WriteString("(?P<" + name + ">[^/]+)")
		rest = rest[open+end+1:]
	}
	b.WriteString("$")
	return b.String(), nil
}

// Match reports whether path matches and returns the captured parameters.
// Literal patterns return a nil map on success.
func (p *PathPattern) Match(path string) (map[string]string, bool) {
	if p.literal {
		return nil, p.raw == path
	}

	match := p.re.FindStringSubmatch(path)
	if match == nil {
		return nil, false
	}

	params := make(map[string]string)
	for i, name := range p.re.SubexpNames() {
		if i > 0 && name != "" {
			params[name] = match[i]
		}
	}
	return params, true
}

// IsLiteral reports whether the pattern is matched by string equality.
func (p *PathPattern) IsLiteral() bool { return p.literal }

// String returns the source pattern.
func (p *PathPattern) String() string { return p.raw }

// StripBasePath removes basePath from path. The second result is false when
// path lies outside basePath. A base path of "" or "/" strips nothing.
func StripBasePath(basePath, path string) (string, bool) {
	basePath = strings.TrimSuffix(basePath, "/")
	if basePath == "" {
		return path, true
	}
	if path == basePath {
		return "/", true
	}
	if strings.HasPrefix(path, basePath+"/") {
		return path[len(basePath):], true
	}
	return "", false
}
