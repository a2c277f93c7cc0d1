package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// HealthChecker reports whether a target service is currently reachable.
type HealthChecker interface {
	Healthy(target string) bool
}

// alwaysHealthy is the default when no prober is configured.
type alwaysHealthy struct{}

func (alwaysHealthy) Healthy(string) bool { return true }

// HealthRegistry tracks per-target health. Targets start healthy; marks
// come from the background prober or from manual operator calls.
type HealthRegistry struct {
	mu     sync.RWMutex
	down   map[string]bool
	client *http.Client
	clock  clockwork.Clock
	logger zerolog.Logger
}

type HealthRegistryOptions struct {
	Client *http.Client
	Clock  clockwork.Clock
	Logger zerolog.Logger
}

func NewHealthRegistry(opts HealthRegistryOptions) *HealthRegistry {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthRegistry{
		down:   make(map[string]bool),
		client: client,
		clock:  clock,
		logger: opts.Logger,
	}
}

func (h *HealthRegistry) Healthy(target string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.down[target]
}

// MarkDown records a target as unreachable until MarkUp or a successful probe.
func (h *HealthRegistry) MarkDown(target string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.down[target] = true
}

func (h *HealthRegistry) MarkUp(target string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.down, target)
}

// Probe polls each target's health endpoint until the context is
// cancelled, flipping marks as targets come and go.
func (h *HealthRegistry) Probe(ctx context.Context, targets []string, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := h.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			for _, target := range targets {
				h.probeOne(ctx, target)
			}
		}
	}
}

func (h *HealthRegistry) probeOne(ctx context.Context, target string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"/healthz", nil)
	if err != nil {
		return
	}
	resp, err := h.client.Do(req)
	if err != nil || resp.StatusCode >= 500 {
		if resp != nil {
			resp.Body.Close()
		}
		if h.Healthy(target) {
			h.logger.Warn().Str("target", target).Err(err).Msg("target unhealthy")
		}
		h.MarkDown(target)
		return
	}
	resp.Body.Close()
	if !h.Healthy(target) {
		h.logger.Info().Str("target", target).Msg("target recovered")
	}
	h.MarkUp(target)
}
