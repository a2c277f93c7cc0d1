package fabric

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/envelope"
	errspkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/errors"
	loggingpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/logging"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/metadata"
)

// Delivery exposes a decoded envelope and its transport metadata to a typed
// handler. The envelope id doubles as the idempotency key: redeliveries
// carry the same id and byte-identical payload.
type Delivery struct {
	Envelope envelope.Envelope
	Metadata metadata.Metadata
	Logger   loggingpkg.ServiceLogger
}

// CloneMetadata copies the metadata map so handlers can mutate headers
// safely.
func (d Delivery) CloneMetadata() metadata.Metadata {
	return d.Metadata.Clone()
}

// EnvelopeHandler processes one decoded envelope and returns the envelopes
// to publish downstream.
type EnvelopeHandler func(ctx context.Context, d Delivery) ([]envelope.Envelope, error)

// EnvelopeHandlerRegistration wires a typed envelope handler to the router.
// Types filters which event kinds reach the handler; envelopes of other
// kinds on the same topic are acknowledged without processing. An empty
// Types slice delivers everything.
type EnvelopeHandlerRegistration struct {
	Name         string
	ConsumeTopic string
	PublishTopic string
	Types        []envelope.Type
	Handler      EnvelopeHandler
	Subscriber   message.Subscriber
	Publisher    message.Publisher
}

// RegisterEnvelopeHandler converts the typed handler into a Watermill
// handler and registers it. Payloads that fail decoding are reported as
// unprocessable, which routes them to the dead-letter queue without retry.
func RegisterEnvelopeHandler(svc *Service, cfg EnvelopeHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	wrapped, err := buildEnvelopeHandler(cfg.Handler, cfg.Types, svc.Logger)
	if err != nil {
		return err
	}

	return svc.registerHandler(handlerRegistration{
		Name:         cfg.Name,
		ConsumeTopic: cfg.ConsumeTopic,
		PublishTopic: cfg.PublishTopic,
		Subscriber:   cfg.Subscriber,
		Publisher:    cfg.Publisher,
		Handler:      wrapped,
	})
}

func buildEnvelopeHandler(handler EnvelopeHandler, types []envelope.Type, logger loggingpkg.ServiceLogger) (message.HandlerFunc, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	var typeFilter map[envelope.Type]struct{}
	if len(types) > 0 {
		typeFilter = make(map[envelope.Type]struct{}, len(types))
		for _, t := range types {
			typeFilter[t] = struct{}{}
		}
	}

	return func(msg *message.Message) ([]*message.Message, error) {
		env, err := envelope.Decode(msg.Payload)
		if err != nil {
			return nil, NewUnprocessableEventError(msg.Payload, err)
		}

		msg.Metadata.Set(metadata.KeyEventType, string(env.Type))
		if typeFilter != nil {
			if _, subscribed := typeFilter[env.Type]; !subscribed {
				// Not an event this handler cares about; ack and move on.
				return nil, nil
			}
		}

		if env.CorrelationID == "" {
			env.CorrelationID = msg.Metadata.Get(metadata.KeyCorrelationID)
		}

		delivery := Delivery{
			Envelope: env,
			Metadata: metadata.FromWatermill(msg.Metadata),
			Logger:   logger,
		}

		outgoing, err := handler(msg.Context(), delivery)
		if err != nil {
			return nil, err
		}

		return convertOutgoingEnvelopes(outgoing, env, msg)
	}, nil
}

func convertOutgoingEnvelopes(outgoing []envelope.Envelope, incoming envelope.Envelope, msg *message.Message) ([]*message.Message, error) {
	if len(outgoing) == 0 {
		return nil, nil
	}

	result := make([]*message.Message, len(outgoing))
	for i, env := range outgoing {
		if env.CorrelationID == "" {
			env.CorrelationID = incoming.CorrelationID
		}
		out, err := NewMessageFromEnvelope(env)
		if err != nil {
			return nil, err
		}
		if key := msg.Metadata.Get(metadata.KeyPartitionKey); key != "" && out.Metadata.Get(metadata.KeyPartitionKey) == "" {
			out.Metadata.Set(metadata.KeyPartitionKey, key)
		}
		result[i] = out
	}
	return result, nil
}
