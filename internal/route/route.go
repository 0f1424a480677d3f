// Package route matches replayed requests to registered template routes and
// builds the render context for matched routes.
package route

import (
	"fmt"
	"strings"

	"github.com/replayproof/engine/internal/template"
	"github.com/replayproof/engine/pkg/types"
)

// MethodAny matches every HTTP method.
const MethodAny = "*"

// Route binds a path pattern and method to a response template. Patterns
// use ":name" segments for path parameters ("/api/products/:id").
//
// Source is the raw template value; compilation happens lazily on first
// render (or eagerly via the engine's preload pass) and is cached for the
// route's lifetime.
type Route struct {
	Pattern    string
	Method     string
	StatusCode int
	Headers    map[string]string
	Source     any

	compiled *template.Template
	segments []segment
}

// EnsureCompiled returns the route's compiled template, compiling the
// source on first use.
func (r *Route) EnsureCompiled(c *template.Compiler) (*template.Template, error) {
	if r.compiled != nil {
		return r.compiled, nil
	}
	tmpl, err := c.Compile(r.Source)
	if err != nil {
		return nil, fmt.Errorf("route '%s %s': %w", r.Method, r.Pattern, err)
	}
	r.compiled = tmpl
	return tmpl, nil
}

type segment struct {
	literal string
	param   string // non-empty for ":name" segments
}

// NewRoute compiles a route pattern. Method is stored uppercased; "*"
// matches any method.
func NewRoute(pattern, method string, statusCode int, headers map[string]string, source any) (*Route, error) {
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: route pattern must start with '/': '%s'", types.ErrInput, pattern)
	}

	r := &Route{
		Pattern:    pattern,
		Method:     strings.ToUpper(method),
		StatusCode: statusCode,
		Headers:    headers,
		Source:     source,
	}
	if method == MethodAny {
		r.Method = MethodAny
	}

	trimmed := strings.Trim(pattern, "/")
	var parts []string
	if trimmed != "" {
		parts = strings.Split(trimmed, "/")
	}
	for _, part := range parts {
		switch {
		case strings.HasPrefix(part, ":"):
			name := part[1:]
			if name == "" {
				return nil, fmt.Errorf("%w: unnamed path parameter in pattern '%s'", types.ErrInput, pattern)
			}
			r.segments = append(r.segments, segment{param: name})
		// OpenAPI-style "{name}" parameters are accepted for contract-
		// imported routes.
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) > 2:
			r.segments = append(r.segments, segment{param: part[1 : len(part)-1]})
		default:
			r.segments = append(r.segments, segment{literal: part})
		}
	}

	return r, nil
}

// MatchMethod reports whether the route accepts the request method
// (case-insensitive, "*" is a wildcard).
func (r *Route) MatchMethod(method string) bool {
	return r.Method == MethodAny || strings.EqualFold(r.Method, method)
}

// MatchPath matches a request path against the pattern, extracting path
// parameters. Returns nil, false when the path does not match.
func (r *Route) MatchPath(path string) (map[string]string, bool) {
	trimmed := strings.Trim(path, "/")

	var parts []string
	if trimmed != "" {
		parts = strings.Split(trimmed, "/")
	}
	if len(parts) != len(r.segments) {
		return nil, false
	}

	params := make(map[string]string)
	for i, seg := range r.segments {
		if seg.param != "" {
			params[seg.param] = parts[i]
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}
