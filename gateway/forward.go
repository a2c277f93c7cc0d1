package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"

	"github.com/rs/zerolog"
)

// HeaderUserID carries the verified caller identity to upstream services.
const HeaderUserID = "X-User-Id"

// Forwarder proxies matched requests to their target service. One
// reverse proxy is built per route at startup; the table is immutable so
// the map needs no locking afterwards.
type Forwarder struct {
	proxies    map[*Route]*httputil.ReverseProxy
	health     HealthChecker
	normalizer Normalizer
	logger     zerolog.Logger
}

type ForwarderOptions struct {
	Health     HealthChecker
	Normalizer Normalizer
	Logger     zerolog.Logger
	Transport  http.RoundTripper
}

func NewForwarder(table *Table, opts ForwarderOptions) *Forwarder {
	health := opts.Health
	if health == nil {
		health = alwaysHealthy{}
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = &JSONNormalizer{Logger: opts.Logger}
	}

	f := &Forwarder{
		proxies:    make(map[*Route]*httputil.ReverseProxy, len(table.routes)),
		health:     health,
		normalizer: normalizer,
		logger:     opts.Logger,
	}

	// Match hands out pointers into the table's own slice, so key the
	// live routes rather than a copy.
	for i := range table.routes {
		rt := &table.routes[i]
		f.proxies[rt] = f.buildProxy(rt, opts.Transport)
	}
	return f
}

func (f *Forwarder) buildProxy(rt *Route, transport http.RoundTripper) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(rt.Target)
	if transport != nil {
		proxy.Transport = transport
	}

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)

		// Upstream should see itself as the addressed host.
		req.Host = rt.Target.Host

		req.URL.Path = rt.RewritePath(req.URL.Path)

		if id := GetCorrelationID(req.Context()); id != "" {
			req.Header.Set(HeaderCorrelationID, id)
		}

		// Credentials never reach services that did not ask for them.
		if rt.Auth == AuthNone {
			req.Header.Del("Authorization")
		}
	}

	// A downstream error body never reaches the client verbatim; 5xx
	// responses are swallowed here and re-rendered as the envelope.
	proxy.ModifyResponse = func(resp *http.Response) error {
		if resp.StatusCode < http.StatusInternalServerError {
			return nil
		}
		// The proxy closes the body before invoking ErrorHandler.
		return &downstreamError{status: resp.StatusCode}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		fail := &Failure{
			Kind:    KindUpstream,
			Status:  http.StatusBadGateway,
			Message: "upstream service unreachable",
			Err:     err,
		}
		var de *downstreamError
		if errors.As(err, &de) {
			fail.Message = "upstream service error"
		}
		f.normalizer.Write(w, fail, GetCorrelationID(r.Context()))
	}

	return proxy
}

// downstreamError marks a 5xx response from the target service, as
// opposed to a transport failure reaching it.
type downstreamError struct {
	status int
}

func (e *downstreamError) Error() string {
	return fmt.Sprintf("upstream responded %d", e.status)
}

// Forward proxies the request to the route's target. A target the health
// checker reports down fails before any bytes are sent upstream; errors
// that surface mid-proxy are normalized by the proxy's error handler, so
// Forward returns nil for them.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, rt *Route, auth AuthResult) *Failure {
	target := rt.Target.String()
	if !f.health.Healthy(target) {
		return &Failure{
			Kind:    KindUnavailable,
			Status:  http.StatusServiceUnavailable,
			Message: fmt.Sprintf("no healthy backend for %s", rt.Prefix),
		}
	}

	if auth.Authenticated && auth.Claims.UserID != "" {
		r.Header.Set(HeaderUserID, auth.Claims.UserID)
	} else {
		r.Header.Del(HeaderUserID)
	}

	proxy, ok := f.proxies[rt]
	if !ok {
		return &Failure{
			Kind:    KindInternal,
			Status:  http.StatusInternalServerError,
			Message: "no proxy built for matched route",
		}
	}

	proxy.ServeHTTP(w, r)
	return nil
}
