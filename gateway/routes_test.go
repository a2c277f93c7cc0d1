package gateway

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestTableMatchesLongestPrefix(t *testing.T) {
	table := NewTable([]Route{
		{Prefix: "/api/posts", Target: mustURL(t, "http://post-service:8080"), Auth: AuthRequired},
		{Prefix: "/api/posts/media", Target: mustURL(t, "http://media-service:8080"), Auth: AuthRequired},
	})

	rt, ok := table.Match(http.MethodGet, "/api/posts/media/7")
	require.True(t, ok)
	assert.Equal(t, "/api/posts/media", rt.Prefix)

	rt, ok = table.Match(http.MethodGet, "/api/posts/42")
	require.True(t, ok)
	assert.Equal(t, "/api/posts", rt.Prefix)
}

func TestTableRequiresSegmentBoundary(t *testing.T) {
	table := NewTable([]Route{
		{Prefix: "/api/posts", Target: mustURL(t, "http://post-service:8080")},
	})

	_, ok := table.Match(http.MethodGet, "/api/postscript")
	assert.False(t, ok)

	_, ok = table.Match(http.MethodGet, "/api/posts")
	assert.True(t, ok)
}

func TestTableFiltersByMethod(t *testing.T) {
	table := NewTable([]Route{
		{Method: http.MethodPost, Prefix: "/api/posts", Target: mustURL(t, "http://post-service:8080")},
	})

	_, ok := table.Match(http.MethodGet, "/api/posts")
	assert.False(t, ok)

	_, ok = table.Match(http.MethodPost, "/api/posts")
	assert.True(t, ok)
}

func TestRouteRewritePath(t *testing.T) {
	rt := &Route{Prefix: "/api/search", Rewrite: "/search/v1"}
	assert.Equal(t, "/search/v1/posts", rt.RewritePath("/api/search/posts"))

	noRewrite := &Route{Prefix: "/api/search"}
	assert.Equal(t, "/api/search/posts", noRewrite.RewritePath("/api/search/posts"))
}

func TestBuildTableRejectsBadTargets(t *testing.T) {
	_, err := Config{Routes: []RouteConfig{{Prefix: "/api/x", Target: "not-a-url"}}}.BuildTable()
	require.Error(t, err)

	_, err = Config{Routes: []RouteConfig{{Target: "http://x:1"}}}.BuildTable()
	require.Error(t, err)
}

func TestBuildTableDefaultsToAuthRequired(t *testing.T) {
	table, err := Config{Routes: []RouteConfig{{Prefix: "/api/x", Target: "http://x:1"}}}.BuildTable()
	require.NoError(t, err)

	rt, ok := table.Match(http.MethodGet, "/api/x")
	require.True(t, ok)
	assert.Equal(t, AuthRequired, rt.Auth)
}
