// Package gateway is the single HTTP entry point in front of the
// services. Every inbound request runs through an ordered pipeline of
// stages (authenticate, route, forward) and every failure, whatever its
// origin, reaches the client as one uniform JSON error envelope.
package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Gateway wires the route table, verifier, health prober and pipeline
// behind one http.Handler.
type Gateway struct {
	cfg      Config
	table    *Table
	pipeline *Pipeline
	health   *HealthRegistry
	logger   zerolog.Logger
}

// Dependencies are the injectable collaborators. Zero values get
// production defaults.
type Dependencies struct {
	Verifier   Verifier
	Normalizer Normalizer
	Health     *HealthRegistry
	Transport  http.RoundTripper
	Logger     zerolog.Logger
}

func New(cfg Config, deps Dependencies) (*Gateway, error) {
	table, err := cfg.BuildTable()
	if err != nil {
		return nil, err
	}

	verifier := deps.Verifier
	if verifier == nil {
		verifier = NewJWTVerifier(cfg.JWTSecret)
	}
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = &JSONNormalizer{Logger: deps.Logger}
	}
	health := deps.Health
	if health == nil {
		health = NewHealthRegistry(HealthRegistryOptions{Logger: deps.Logger})
	}

	forwarder := NewForwarder(table, ForwarderOptions{
		Health:     health,
		Normalizer: normalizer,
		Logger:     deps.Logger,
		Transport:  deps.Transport,
	})
	pipeline := NewPipeline(PipelineOptions{
		Table:      table,
		Verifier:   verifier,
		Forwarder:  forwarder,
		Normalizer: normalizer,
		Logger:     deps.Logger,
	})

	return &Gateway{
		cfg:      cfg,
		table:    table,
		pipeline: pipeline,
		health:   health,
		logger:   deps.Logger,
	}, nil
}

// Handler returns the root handler: chi router, cross-cutting
// middleware, the gateway's own health endpoint, metrics, and the
// dispatch pipeline for everything else.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(CorrelationID)
	r.Use(RequestLogger(g.logger))
	r.Use(Metrics)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(g.pipeline.ServeHTTP)
	r.MethodNotAllowed(g.pipeline.ServeHTTP)

	return r
}

// Run serves until the context is cancelled, probing target health in
// the background.
func (g *Gateway) Run(ctx context.Context) error {
	go g.health.Probe(ctx, g.cfg.Targets(), g.cfg.ProbeInterval)

	srv := &http.Server{Addr: g.cfg.Addr, Handler: g.Handler()}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	g.logger.Info().Str("addr", g.cfg.Addr).Msg("gateway listening")
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Health exposes the registry so operators can mark targets manually.
func (g *Gateway) Health() *HealthRegistry { return g.health }
