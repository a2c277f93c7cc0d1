package fabric

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/envelope"
	errspkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/errors"
	loggingpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/logging"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/metadata"
)

// WriteResult describes a locally committed write that must be announced to
// the rest of the system. The owning service calls Producer.OnCommitted with
// one of these after its own transaction has committed.
type WriteResult struct {
	EntityID      string
	EntityVersion int64
	EventType     envelope.Type
	Payload       any
	CorrelationID string
}

// ProducerOptions configures a Producer.
type ProducerOptions struct {
	// Topic is the destination for all envelopes this producer emits.
	Topic string
	// SourceService stamps envelope provenance.
	SourceService string
	// Outbox receives envelopes whose publish failed. Optional; without an
	// outbox a failed publish surfaces as an error to the caller.
	Outbox OutboxStore
	Logger loggingpkg.ServiceLogger
}

// Producer turns committed writes into envelopes and publishes them. A
// publish failure never blocks or fails the caller's write path: the encoded
// envelope is parked in the outbox and retried with the identical bytes, so
// consumers can rely on the envelope id for deduplication.
type Producer struct {
	publisher message.Publisher
	topic     string
	source    string
	outbox    OutboxStore
	logger    loggingpkg.ServiceLogger
}

// NewProducer wires a producer onto the given publisher, typically the
// service's broker client.
func NewProducer(publisher message.Publisher, opts ProducerOptions) (*Producer, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if opts.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = loggingpkg.NewNopServiceLogger()
	}
	return &Producer{
		publisher: publisher,
		topic:     opts.Topic,
		source:    opts.SourceService,
		outbox:    opts.Outbox,
		logger:    logger,
	}, nil
}

// NewMessageFromEnvelope encodes the envelope exactly once and wraps it in a
// Watermill message. The message UUID is the envelope id, and the standard
// metadata headers are stamped from the envelope fields.
func NewMessageFromEnvelope(env envelope.Envelope) (*message.Message, error) {
	payload, err := envelope.Encode(env)
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(env.ID, payload)
	msg.Metadata.Set(metadata.KeyEventType, string(env.Type))
	msg.Metadata.Set(metadata.KeySchemaVersion, strconv.Itoa(env.SchemaVersion))
	msg.Metadata.Set(metadata.KeySourceService, env.SourceService)
	if env.CorrelationID != "" {
		msg.Metadata.Set(metadata.KeyCorrelationID, env.CorrelationID)
	}
	return msg, nil
}

// OnCommitted builds an envelope for the committed write and publishes it.
// Exactly one publish attempt is made inline; on failure the envelope is
// stored in the outbox and nil is returned, so the caller's write path never
// degrades into an error because the broker is down.
func (p *Producer) OnCommitted(ctx context.Context, wr WriteResult) error {
	env, err := envelope.New(wr.EventType, p.source, wr.Payload)
	if err != nil {
		return err
	}
	if wr.CorrelationID != "" {
		env = env.WithCorrelationID(wr.CorrelationID)
	}

	return p.publishOrPark(ctx, env, wr.EntityID)
}

// Publish sends an already constructed envelope through the same
// publish-or-park path as OnCommitted.
func (p *Producer) Publish(ctx context.Context, env envelope.Envelope, partitionKey string) error {
	if err := env.Validate(); err != nil {
		return err
	}
	return p.publishOrPark(ctx, env, partitionKey)
}

func (p *Producer) publishOrPark(ctx context.Context, env envelope.Envelope, partitionKey string) error {
	msg, err := NewMessageFromEnvelope(env)
	if err != nil {
		return err
	}
	if partitionKey != "" {
		msg.Metadata.Set(metadata.KeyPartitionKey, partitionKey)
	}
	msg.SetContext(ctx)

	publishErr := p.publisher.Publish(p.topic, msg)
	if publishErr == nil {
		return nil
	}

	if p.outbox == nil {
		return fmt.Errorf("publishing envelope %s: %w", env.ID, publishErr)
	}

	p.logger.Error("Publish failed, parking envelope in outbox", publishErr, loggingpkg.LogFields{
		"envelope_id": env.ID,
		"event_type":  string(env.Type),
		"topic":       p.topic,
	})

	record := OutboxRecord{
		ID:           env.ID,
		Topic:        p.topic,
		EventType:    string(env.Type),
		Payload:      msg.Payload,
		Metadata:     metadata.FromWatermill(msg.Metadata),
		PartitionKey: partitionKey,
		LastError:    publishErr.Error(),
	}
	if storeErr := p.outbox.Store(ctx, record); storeErr != nil {
		// No durable copy exists; the caller has to know.
		return fmt.Errorf("publishing envelope %s failed (%v) and outbox store failed: %w", env.ID, publishErr, storeErr)
	}
	return nil
}
