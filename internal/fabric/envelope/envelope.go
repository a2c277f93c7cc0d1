// Package envelope defines the immutable message unit exchanged between
// services and its serialization contract. An envelope is encoded exactly
// once at publish time; redeliveries carry the identical bytes so the id
// stays usable as an idempotency key.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/ids"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/jsoncodec"
)

// SchemaVersion is the newest envelope schema this build understands.
// Decoding rejects envelopes with a higher version; older versions are
// accepted only when an upgrader chain reaches the current version.
const SchemaVersion = 2

// Type enumerates the domain event kinds carried across services.
// Format: <resource>.<action>.
type Type string

const (
	PostCreated   Type = "post.created"
	PostUpdated   Type = "post.updated"
	PostDeleted   Type = "post.deleted"
	MediaAttached Type = "media.attached"
	MediaRemoved  Type = "media.removed"
)

var knownTypes = map[Type]struct{}{
	PostCreated:   {},
	PostUpdated:   {},
	PostDeleted:   {},
	MediaAttached: {},
	MediaRemoved:  {},
}

// KnownType reports whether t is a registered domain event kind.
func KnownType(t Type) bool {
	_, ok := knownTypes[t]
	return ok
}

// Envelope is the unit of cross-service communication. Field order is fixed;
// together with the stdlib-compatible JSON codec this makes encoding
// deterministic for a given value.
type Envelope struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	SchemaVersion int             `json:"schemaVersion"`
	OccurredAt    time.Time       `json:"occurredAt"`
	SourceService string          `json:"sourceService"`
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
}

// PostEvent is the payload carried by the post.* event family. Version is
// the post's logical version and drives stale-event suppression in the
// consuming projections.
type PostEvent struct {
	PostID   string `json:"postId"`
	AuthorID string `json:"authorId"`
	Content  string `json:"content"`
	Version  int64  `json:"version"`
}

// MediaEvent is the payload carried by the media.* event family.
type MediaEvent struct {
	MediaID string `json:"mediaId"`
	PostID  string `json:"postId"`
	URL     string `json:"url"`
	Kind    string `json:"kind"`
	Version int64  `json:"version"`
}

// New constructs an envelope for the given event type with a fresh ULID id,
// the current schema version, and the payload marshalled once.
func New(eventType Type, sourceService string, payload any) (Envelope, error) {
	if !KnownType(eventType) {
		return Envelope{}, fmt.Errorf("envelope: unknown event type %q", eventType)
	}

	raw, err := jsoncodec.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: failed to marshal payload: %w", err)
	}

	return Envelope{
		ID:            ids.NewEnvelopeID(),
		Type:          eventType,
		SchemaVersion: SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		SourceService: sourceService,
		Payload:       raw,
	}, nil
}

// WithCorrelationID returns a copy carrying the request-tracing id.
func (e Envelope) WithCorrelationID(id string) Envelope {
	e.CorrelationID = id
	return e
}

// DecodePayload unmarshals the type-specific payload into v.
func (e Envelope) DecodePayload(v any) error {
	return jsoncodec.Unmarshal(e.Payload, v)
}

// Validate checks the invariants every published envelope must satisfy.
func (e Envelope) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("envelope: id is required")
	case !KnownType(e.Type):
		return fmt.Errorf("envelope: unknown event type %q", e.Type)
	case e.SchemaVersion <= 0:
		return fmt.Errorf("envelope: schema version must be positive, got %d", e.SchemaVersion)
	case e.SourceService == "":
		return fmt.Errorf("envelope: source service is required")
	case e.OccurredAt.IsZero():
		return fmt.Errorf("envelope: occurredAt is required")
	}
	return nil
}
