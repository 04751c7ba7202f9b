// Package routes declares the inventory application's pages and the
// permission each one requires.
package routes

import (
	"fmt"
	"strings"

	"github.com/stockroom-labs/inventory-gate/auth"
)

// Route is one protected page. Path segments starting with ':' match any
// single segment.
type Route struct {
	Name        string           `json:"name"`
	Path        string           `json:"path"`
	Requirement auth.Requirement `json:"requirement"`
	// Fallback, when set, is where a denied user is redirected instead of
	// seeing the no-access message.
	Fallback string `json:"fallback,omitempty"`
}

// Table is an ordered set of routes. A path matches the route with the most
// literal segments; among equals the first declared wins.
type Table struct {
	routes []Route
}

// NewTable validates and collects routes.
func NewTable(routes ...Route) (*Table, error) {
	t := &Table{}
	for _, r := range routes {
		if err := t.Add(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add appends a route, or replaces the route with the same path.
func (t *Table) Add(r Route) error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("route path %q must start with /", r.Path)
	}
	if err := r.Requirement.Validate(); err != nil {
		return fmt.Errorf("route %s: %w", r.Path, err)
	}
	r.Path = normalize(r.Path)
	if r.Name == "" {
		r.Name = r.Path
	}
	for i := range t.routes {
		if t.routes[i].Path == r.Path {
			t.routes[i] = r
			return nil
		}
	}
	t.routes = append(t.routes, r)
	return nil
}

// SetFallback sets the denial fallback of the route declared at path.
func (t *Table) SetFallback(path, fallback string) error {
	path = normalize(path)
	for i := range t.routes {
		if t.routes[i].Path == path {
			t.routes[i].Fallback = fallback
			return nil
		}
	}
	return fmt.Errorf("no route declared at %s", path)
}

// Routes returns the declared routes in order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Match finds the route for a request path.
func (t *Table) Match(path string) (Route, bool) {
	segments := split(normalize(path))
	best, bestScore := -1, -1
	for i, r := range t.routes {
		score, ok := matchSegments(split(r.Path), segments)
		if ok && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Route{}, false
	}
	return t.routes[best], true
}

// matchSegments reports whether path fits pattern and how many literal
// segments matched.
func matchSegments(pattern, path []string) (int, bool) {
	if len(pattern) != len(path) {
		return 0, false
	}
	literal := 0
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if path[i] == "" {
				return 0, false
			}
			continue
		}
		if p != path[i] {
			return 0, false
		}
		literal++
	}
	return literal, true
}

func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}

func split(path string) []string {
	if path == "/" {
		return []string{}
	}
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}
