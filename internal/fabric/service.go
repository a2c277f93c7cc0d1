// Package fabric implements the consumer runtime and producer side of the
// event propagation fabric: a watermill router with an ordered middleware
// chain, envelope-typed handler registration, and outbox-backed publishing
// through a connection-owning broker client.
package fabric

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/jonboulle/clockwork"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/broker"
	configpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/config"
	loggingpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/logging"
	transportpkg "github.com/VISHALGAURAV95/backend-microservices/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to use the defaults.
type ServiceDependencies struct {
	Outbox                    OutboxStore
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportRegistry         *transportpkg.Registry
	ErrorClassifier           ErrorClassifier
	Clock                     clockwork.Clock
}

// Service wires the broker client, a Watermill router, and the middleware
// chain. Register handlers on the returned Service before calling Start.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	client *broker.Client
	router *message.Router

	outbox OutboxStore

	handlers   []*HandlerInfo
	handlersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	errorClassifier ErrorClassifier
	dlqMetrics      *DeadLetterMetrics
	clock           clockwork.Clock
}

// NewService constructs a Service for the supplied configuration and
// connects to the broker.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating event service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Service{
		Conf:       conf,
		Logger:     log,
		outbox:     deps.Outbox,
		clock:      clock,
		dlqMetrics: NewDeadLetterMetrics(nil),
	}

	if deps.ErrorClassifier != nil {
		s.errorClassifier = deps.ErrorClassifier
	} else {
		s.errorClassifier = defaultErrorClassifier
	}

	registry := deps.TransportRegistry
	if registry == nil {
		registry = transportpkg.DefaultRegistry
	}

	client, err := broker.New(broker.Options{
		Connect: func(ctx context.Context) (transportpkg.Transport, error) {
			return registry.Build(ctx, conf, wmLogger)
		},
		Logger:                   log,
		Clock:                    clock,
		PublishTimeout:           conf.PublishTimeout,
		ReconnectInitialInterval: conf.ReconnectInitialInterval,
		ReconnectMaxInterval:     conf.ReconnectMaxInterval,
		ReconnectMaxAttempts:     conf.ReconnectMaxAttempts,
	})
	if err != nil {
		panic(err)
	}
	if err := client.Connect(ctx); err != nil {
		panic(err)
	}
	s.client = client

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		panic(err)
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	s.registerConfiguredMiddlewares(deps)

	return s
}

// Start runs the broker reconnect loop and the Watermill router until the
// provided context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.startHTTPServers()
	go func() {
		if err := s.client.Run(ctx); err != nil && ctx.Err() == nil {
			s.Logger.Error("Broker connection permanently lost", err, nil)
		}
	}()
	return routerRun(s.router, ctx)
}

// Broker exposes the connection-owning client for health checks and
// producer wiring.
func (s *Service) Broker() *broker.Client {
	return s.client
}

// Publisher returns the publisher handlers and producers should use. It
// fails fast while the broker connection is down.
func (s *Service) Publisher() message.Publisher {
	return s.client
}

// Healthy reports whether the broker connection is within its reconnect
// ceiling.
func (s *Service) Healthy() bool {
	return s.client.Healthy()
}

// Handlers returns a snapshot of the registered handlers and their stats.
func (s *Service) Handlers() []*HandlerInfo {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	clone := make([]*HandlerInfo, len(s.handlers))
	copy(clone, s.handlers)
	return clone
}

// DeadLetters exposes the dead-letter metrics collector.
func (s *Service) DeadLetters() *DeadLetterMetrics {
	return s.dlqMetrics
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			panic(fmt.Sprintf("failed to register middleware %s: %v", name, err))
		}
	}
}

func (s *Service) getErrorClassifier() ErrorClassifier {
	if s.errorClassifier == nil {
		return defaultErrorClassifier
	}
	return s.errorClassifier
}

// RegisterHTTPHandler mounts an HTTP handler (metrics, health) on the given
// port. Servers start with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
