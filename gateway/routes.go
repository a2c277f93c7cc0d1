package gateway

import (
	"net/url"
	"sort"
	"strings"
)

// AuthPolicy says whether a route demands a verified bearer credential.
type AuthPolicy string

const (
	AuthRequired AuthPolicy = "required"
	AuthNone     AuthPolicy = "none"
)

// Route maps an inbound prefix (optionally narrowed to one method) to a
// target service, with a path rewrite and an authentication policy.
type Route struct {
	// Method restricts the route to one HTTP method; empty matches all.
	Method string
	// Prefix is the inbound path prefix, e.g. "/api/posts".
	Prefix string
	// Target is the upstream base URL, e.g. "http://post-service:8080".
	Target *url.URL
	// Rewrite replaces Prefix on the upstream path, e.g. "/post/v1/posts".
	// Empty keeps the inbound path unchanged.
	Rewrite string
	// Auth is the credential policy for this route.
	Auth AuthPolicy
}

// RewritePath maps an inbound path onto the upstream path.
func (rt *Route) RewritePath(path string) string {
	if rt.Rewrite == "" {
		return path
	}
	return rt.Rewrite + strings.TrimPrefix(path, rt.Prefix)
}

// Table is the route table. It is built once at startup and read-only
// afterwards, so matching needs no locking.
type Table struct {
	routes []Route
}

// NewTable builds a table. Longer prefixes win over shorter ones, so
// "/api/posts/media" shadows "/api/posts" regardless of insertion order.
func NewTable(routes []Route) *Table {
	sorted := make([]Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Table{routes: sorted}
}

// Match finds the route for the given method and path.
func (t *Table) Match(method, path string) (*Route, bool) {
	for i := range t.routes {
		rt := &t.routes[i]
		if rt.Method != "" && rt.Method != method {
			continue
		}
		if !matchesPrefix(path, rt.Prefix) {
			continue
		}
		return rt, true
	}
	return nil, false
}

// Routes returns a copy of the table, for diagnostics.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// matchesPrefix requires a segment boundary after the prefix, so
// "/api/posts" matches "/api/posts" and "/api/posts/42" but not
// "/api/postscript".
func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := strings.TrimPrefix(path, prefix)
	return rest == "" || strings.HasPrefix(rest, "/")
}
