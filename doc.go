// Package fabric is the event propagation layer between the services:
// it carries a committed write in one service to the projections other
// services derive from it, without synchronous coupling between them.
//
// The building blocks are a versioned Envelope with a deterministic
// codec and schema upgraders, a broker client that reconnects with
// backoff and fails publishes fast while disconnected, a Producer that
// attempts exactly one publish per committed write and parks failures
// in an outbox for a background Retrier, and a consumer runtime on the
// Watermill router that decodes, dispatches, retries with backoff and
// dead-letters. Idempotent projection handlers in the projection
// subpackages make the at-least-once delivery safe: duplicates and
// stale versions are acknowledged without touching state.
//
// A service fills Config, creates a Service, registers envelope
// handlers, and calls Start. The transport is chosen by Config and
// registered by importing one of the transport subpackages:
//
//	import _ "github.com/VISHALGAURAV95/backend-microservices/transport/kafka"
//
// Kafka, RabbitMQ, NATS (core and JetStream), PostgreSQL, and in-memory
// Go channels are supported. The gateway package, in front of all of
// this, is a separate HTTP concern and is documented there.
package fabric
