package fabric

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/ids"
	loggingpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/logging"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/metadata"
)

// MiddlewareRegistration couples a router middleware with a stable name so
// registrations are observable in logs. Set either Middleware (stateless) or
// Builder (needs access to the Service, e.g. for the dead-letter publisher).
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    func(s *Service) (message.HandlerMiddleware, error)
}

// DefaultMiddlewares returns the standard middleware chain in registration
// order. The first entry is the outermost wrapper, so the order here decides
// semantics: dead-lettering wraps retry, which means a handler error is
// retried up to the configured cap and only the final failure is routed to
// the dead-letter queue. Decode failures skip retry entirely.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(),
		MetricsMiddleware(),
		TracerMiddleware(),
		DeadLetterMiddleware(),
		DeadLetterObserverMiddleware(),
		RetryMiddleware(),
		RecovererMiddleware(),
	}
}

// RegisterMiddleware adds a middleware to the router. Registrations with
// neither a Middleware nor a Builder are skipped with a warning rather than
// failing startup.
func (s *Service) RegisterMiddleware(reg MiddlewareRegistration) error {
	name := reg.Name
	if name == "" {
		name = "anonymous_middleware"
	}

	switch {
	case reg.Middleware != nil:
		s.router.AddMiddleware(reg.Middleware)
	case reg.Builder != nil:
		mw, err := reg.Builder(s)
		if err != nil {
			return fmt.Errorf("building middleware %s: %w", name, err)
		}
		if mw == nil {
			// Builders opt out by returning nil (e.g. metrics disabled).
			s.Logger.Debug("Middleware builder opted out", loggingpkg.LogFields{"middleware": name})
			return nil
		}
		s.router.AddMiddleware(mw)
	default:
		s.Logger.Info("Skipping middleware registration without middleware or builder", loggingpkg.LogFields{
			"middleware": name,
		})
		return nil
	}

	s.Logger.Debug("Registered middleware", loggingpkg.LogFields{"middleware": name})
	return nil
}

// CorrelationIDMiddleware stamps messages that arrive without a correlation
// id so every hop downstream can be tied back to one flow.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Middleware: func(h message.HandlerFunc) message.HandlerFunc {
			return func(msg *message.Message) ([]*message.Message, error) {
				if msg.Metadata.Get(metadata.KeyCorrelationID) == "" {
					msg.Metadata.Set(metadata.KeyCorrelationID, ids.NewEnvelopeID())
				}
				producedMessages, err := h(msg)
				for _, produced := range producedMessages {
					if produced.Metadata.Get(metadata.KeyCorrelationID) == "" {
						produced.Metadata.Set(metadata.KeyCorrelationID, msg.Metadata.Get(metadata.KeyCorrelationID))
					}
				}
				return producedMessages, err
			}
		},
	}
}

// LogMessagesMiddleware logs each delivery with its correlation id and the
// outcome of the handler.
func LogMessagesMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return func(h message.HandlerFunc) message.HandlerFunc {
				return func(msg *message.Message) ([]*message.Message, error) {
					fields := loggingpkg.LogFields{
						"message_uuid":   msg.UUID,
						"correlation_id": msg.Metadata.Get(metadata.KeyCorrelationID),
						"event_type":     msg.Metadata.Get(metadata.KeyEventType),
						"handler":        msg.Metadata.Get(metadata.KeyHandler),
					}
					s.Logger.Debug("Handling message", fields)
					producedMessages, err := h(msg)
					if err != nil {
						s.Logger.Error("Handler returned error", err, fields)
					}
					return producedMessages, err
				}
			}, nil
		},
	}
}

// MetricsMiddleware exposes per-handler throughput and latency through the
// Watermill Prometheus bridge and mounts the /metrics endpoint when a
// metrics port is configured.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}

			metricsBuilder := metrics.NewPrometheusMetricsBuilder(
				prometheus.DefaultRegisterer,
				"fabric",
				s.Conf.PubSubSystem,
			)

			metricsBuilder.AddPrometheusRouterMetrics(s.router)

			if s.Conf.MetricsPort > 0 {
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.Handler())
			}

			return metricsBuilder.NewRouterMiddleware().Middleware, nil
		},
	}
}

// TracerMiddleware opens an OpenTelemetry span per delivery, recording the
// handler name, topic, and event type as attributes.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Middleware: func(h message.HandlerFunc) message.HandlerFunc {
			tracer := otel.Tracer("fabric")
			return func(msg *message.Message) ([]*message.Message, error) {
				ctx, span := tracer.Start(msg.Context(), "fabric.handle")
				span.SetAttributes(
					attribute.String("messaging.message.id", msg.UUID),
					attribute.String("messaging.destination.name", msg.Metadata.Get(metadata.KeyTopic)),
					attribute.String("fabric.event_type", msg.Metadata.Get(metadata.KeyEventType)),
					attribute.String("fabric.handler", msg.Metadata.Get(metadata.KeyHandler)),
				)
				msg.SetContext(ctx)
				producedMessages, err := h(msg)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(otelcodes.Error, err.Error())
				}
				span.End()
				return producedMessages, err
			}
		},
	}
}

// DeadLetterMiddleware routes failed deliveries to the configured dead-letter
// topic instead of dropping them. Combined with the retry middleware inside
// it, only messages whose retries are exhausted (or that are unprocessable)
// reach the queue.
func DeadLetterMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "dead_letter",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if s.Conf.DeadLetterQueue == "" {
				return nil, nil
			}
			poison, err := middleware.PoisonQueue(s.Publisher(), s.Conf.DeadLetterQueue)
			if err != nil {
				return nil, fmt.Errorf("creating dead letter middleware: %w", err)
			}
			return poison, nil
		},
	}
}

// DeadLetterObserverMiddleware records dead-letter metrics. It sits between
// the dead-letter and retry middlewares, so every error it observes is about
// to be routed to the dead-letter queue by the wrapper outside it.
func DeadLetterObserverMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "dead_letter_observer",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return func(h message.HandlerFunc) message.HandlerFunc {
				return func(msg *message.Message) ([]*message.Message, error) {
					producedMessages, err := h(msg)
					if err != nil {
						s.dlqMetrics.RecordDeadLetter(DeadLetterRecord{
							Topic:      msg.Metadata.Get(metadata.KeyTopic),
							Handler:    msg.Metadata.Get(metadata.KeyHandler),
							EventType:  msg.Metadata.Get(metadata.KeyEventType),
							RetryCount: parseRetryCount(msg.Metadata.Get(metadata.KeyRetryCount)),
							Category:   s.getErrorClassifier()(err),
						})
					}
					return producedMessages, err
				}
			}, nil
		},
	}
}

// RetryMiddleware retries failed deliveries with exponential backoff up to
// the configured cap. Unprocessable events (malformed payloads, unknown
// types) are not retried; they fall straight through to dead-lettering.
func RetryMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "retry",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			maxRetries := s.Conf.RetryMaxRetries
			if maxRetries <= 0 {
				maxRetries = 3
			}
			initialInterval := s.Conf.RetryInitialInterval
			if initialInterval <= 0 {
				initialInterval = 100 * time.Millisecond
			}
			maxInterval := s.Conf.RetryMaxInterval
			if maxInterval <= 0 {
				maxInterval = 10 * time.Second
			}
			retry := middleware.Retry{
				MaxRetries:      maxRetries,
				InitialInterval: initialInterval,
				MaxInterval:     maxInterval,
				Multiplier:      2,
				ShouldRetry: func(params middleware.RetryParams) bool {
					return !IsUnprocessable(params.Err)
				},
				Logger: loggingpkg.NewWatermillAdapter(s.Logger),
			}
			return retry.Middleware, nil
		},
	}
}

// RecovererMiddleware converts handler panics into errors so a single bad
// message cannot take the router down.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}
