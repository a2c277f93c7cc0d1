package fabric

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/logging"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/metadata"
)

// DeliveryContext provides information about one delivery to hooks.
type DeliveryContext struct {
	// HandlerName is the name of the handler processing the delivery.
	HandlerName string
	// Topic is the topic the message was received from.
	Topic string
	// MessageUUID is the envelope id of the delivery.
	MessageUUID string
	// EventType is the domain event kind, when known.
	EventType string
	// Metadata contains the message metadata.
	Metadata message.Metadata
	// Context is the context associated with the message.
	Context context.Context
	// StartedAt is when processing began.
	StartedAt time.Time
	// Duration is how long processing took (set in OnDone and OnError).
	Duration time.Duration
	// RetryCount is the number of times this delivery has been retried.
	RetryCount int
}

// DeliveryHooks defines callbacks for delivery lifecycle events. All hooks
// are optional; nil hooks are simply not called.
type DeliveryHooks struct {
	// OnStart is called before the handler function is invoked.
	OnStart func(ctx DeliveryContext)

	// OnDone is called when a handler successfully completes.
	OnDone func(ctx DeliveryContext)

	// OnError is called when a handler returns an error.
	OnError func(ctx DeliveryContext, err error)
}

// Merge combines two DeliveryHooks into one that calls both. The hooks from
// other run after the hooks from h.
func (h DeliveryHooks) Merge(other DeliveryHooks) DeliveryHooks {
	return DeliveryHooks{
		OnStart: chainHooks(h.OnStart, other.OnStart),
		OnDone:  chainHooks(h.OnDone, other.OnDone),
		OnError: chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainHooks(a, b func(DeliveryContext)) func(DeliveryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DeliveryContext, error)) func(DeliveryContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// DeliveryHooksMiddleware invokes the provided hooks around every delivery.
func DeliveryHooksMiddleware(hooks DeliveryHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "delivery_hooks",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return deliveryHooksMiddleware(hooks), nil
		},
	}
}

func deliveryHooksMiddleware(hooks DeliveryHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			startTime := time.Now()

			deliveryCtx := DeliveryContext{
				HandlerName: msg.Metadata.Get(metadata.KeyHandler),
				Topic:       msg.Metadata.Get(metadata.KeyTopic),
				MessageUUID: msg.UUID,
				EventType:   msg.Metadata.Get(metadata.KeyEventType),
				Metadata:    msg.Metadata,
				Context:     msg.Context(),
				StartedAt:   startTime,
				RetryCount:  parseRetryCount(msg.Metadata.Get(metadata.KeyRetryCount)),
			}

			if hooks.OnStart != nil {
				hooks.OnStart(deliveryCtx)
			}

			msgs, err := h(msg)

			deliveryCtx.Duration = time.Since(startTime)

			if err != nil {
				if hooks.OnError != nil {
					hooks.OnError(deliveryCtx, err)
				}
			} else if hooks.OnDone != nil {
				hooks.OnDone(deliveryCtx)
			}

			return msgs, err
		}
	}
}

// LoggingHooks returns pre-built hooks that log delivery lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) DeliveryHooks {
	return DeliveryHooks{
		OnStart: func(ctx DeliveryContext) {
			logger.Debug("Delivery started", loggingpkg.LogFields{
				"handler":      ctx.HandlerName,
				"topic":        ctx.Topic,
				"message_uuid": ctx.MessageUUID,
				"event_type":   ctx.EventType,
				"retry_count":  ctx.RetryCount,
			})
		},
		OnDone: func(ctx DeliveryContext) {
			logger.Info("Delivery completed", loggingpkg.LogFields{
				"handler":      ctx.HandlerName,
				"topic":        ctx.Topic,
				"message_uuid": ctx.MessageUUID,
				"duration_ms":  ctx.Duration.Milliseconds(),
			})
		},
		OnError: func(ctx DeliveryContext, err error) {
			logger.Error("Delivery failed", err, loggingpkg.LogFields{
				"handler":      ctx.HandlerName,
				"topic":        ctx.Topic,
				"message_uuid": ctx.MessageUUID,
				"duration_ms":  ctx.Duration.Milliseconds(),
				"retry_count":  ctx.RetryCount,
			})
		},
	}
}

// MetricsHooks returns pre-built hooks that feed per-handler counters.
func MetricsHooks(onStart, onDone, onError func(handlerName, topic string)) DeliveryHooks {
	return DeliveryHooks{
		OnStart: func(ctx DeliveryContext) {
			if onStart != nil {
				onStart(ctx.HandlerName, ctx.Topic)
			}
		},
		OnDone: func(ctx DeliveryContext) {
			if onDone != nil {
				onDone(ctx.HandlerName, ctx.Topic)
			}
		},
		OnError: func(ctx DeliveryContext, err error) {
			if onError != nil {
				onError(ctx.HandlerName, ctx.Topic)
			}
		},
	}
}
