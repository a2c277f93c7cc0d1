package gateway

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// RouteConfig is the static, pre-parse form of a Route.
type RouteConfig struct {
	Method  string
	Prefix  string
	Target  string
	Rewrite string
	Auth    AuthPolicy
}

// Config holds everything the gateway needs at startup. Routes are
// fixed for the process lifetime.
type Config struct {
	Addr          string
	JWTSecret     string
	Routes        []RouteConfig
	ProbeInterval time.Duration
}

// LoadConfig reads process settings from the environment; the route
// table itself is supplied by the caller.
func LoadConfig(routes []RouteConfig) Config {
	return Config{
		Addr:          getEnv("GATEWAY_ADDR", ":8080"),
		JWTSecret:     getEnv("GATEWAY_JWT_SECRET", "change-me-secret"),
		Routes:        routes,
		ProbeInterval: 10 * time.Second,
	}
}

// BuildTable parses the configured routes into the immutable table.
func (c Config) BuildTable() (*Table, error) {
	routes := make([]Route, 0, len(c.Routes))
	for _, rc := range c.Routes {
		if rc.Prefix == "" {
			return nil, fmt.Errorf("route with target %q has no prefix", rc.Target)
		}
		target, err := url.Parse(rc.Target)
		if err != nil {
			return nil, fmt.Errorf("route %s: bad target %q: %w", rc.Prefix, rc.Target, err)
		}
		if target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("route %s: target %q must be an absolute URL", rc.Prefix, rc.Target)
		}
		auth := rc.Auth
		if auth == "" {
			auth = AuthRequired
		}
		routes = append(routes, Route{
			Method:  rc.Method,
			Prefix:  rc.Prefix,
			Target:  target,
			Rewrite: rc.Rewrite,
			Auth:    auth,
		})
	}
	return NewTable(routes), nil
}

// Targets lists the distinct upstream base URLs, for health probing.
func (c Config) Targets() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(c.Routes))
	for _, rc := range c.Routes {
		if !seen[rc.Target] {
			seen[rc.Target] = true
			out = append(out, rc.Target)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
