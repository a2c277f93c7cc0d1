// Package search maintains the search service's content index as a
// projection of the post event stream.
package search

import (
	"context"
	"fmt"

	fabric "github.com/VISHALGAURAV95/backend-microservices/internal/fabric"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/envelope"
	"github.com/VISHALGAURAV95/backend-microservices/projection"
)

// Document is one indexed post.
type Document struct {
	PostID   string `json:"postId"`
	AuthorID string `json:"authorId"`
	Content  string `json:"content"`
	Version  int64  `json:"version"`
}

// SubscribedTypes lists the event kinds this projection consumes.
var SubscribedTypes = []envelope.Type{
	envelope.PostCreated,
	envelope.PostUpdated,
	envelope.PostDeleted,
}

// Projection owns the search index. All mutation goes through Apply; reads
// go through Lookup.
type Projection struct {
	store   projection.Store[Document]
	applier *projection.Applier[Document]
}

// New builds the search projection over the given store. A nil store uses
// an in-memory one.
func New(store projection.Store[Document]) (*Projection, error) {
	if store == nil {
		store = projection.NewMemoryStore[Document]()
	}

	p := &Projection{store: store}
	applier, err := projection.NewApplier(store, postKey, p.applyEvent)
	if err != nil {
		return nil, err
	}
	p.applier = applier
	return p, nil
}

func postKey(env envelope.Envelope) (string, int64, error) {
	var payload envelope.PostEvent
	if err := env.DecodePayload(&payload); err != nil {
		return "", 0, err
	}
	return payload.PostID, payload.Version, nil
}

func (p *Projection) applyEvent(_ context.Context, prior projection.Record[Document], env envelope.Envelope) (projection.Record[Document], error) {
	var payload envelope.PostEvent
	if err := env.DecodePayload(&payload); err != nil {
		return prior, err
	}

	switch env.Type {
	case envelope.PostCreated, envelope.PostUpdated:
		prior.Tombstone = false
		prior.State = Document{
			PostID:   payload.PostID,
			AuthorID: payload.AuthorID,
			Content:  payload.Content,
			Version:  payload.Version,
		}
	case envelope.PostDeleted:
		prior.Tombstone = true
		prior.State = Document{PostID: payload.PostID, Version: payload.Version}
	default:
		return prior, fmt.Errorf("search: unsupported event type %q", env.Type)
	}
	return prior, nil
}

// Apply applies one envelope to the index, idempotently.
func (p *Projection) Apply(ctx context.Context, env envelope.Envelope) error {
	return p.applier.Apply(ctx, env)
}

// Lookup returns the indexed document for a post. Tombstoned posts report
// not found.
func (p *Projection) Lookup(ctx context.Context, postID string) (Document, bool, error) {
	record, found, err := p.store.Get(ctx, postID)
	if err != nil || !found || record.Tombstone {
		return Document{}, false, err
	}
	return record.State, true, nil
}

// Handler adapts the projection to the consumer runtime. Payloads that fail
// to decode become unprocessable so they dead-letter without retry; store
// and apply failures stay retryable.
func (p *Projection) Handler() fabric.EnvelopeHandler {
	return func(ctx context.Context, d fabric.Delivery) ([]envelope.Envelope, error) {
		if err := p.Apply(ctx, d.Envelope); err != nil {
			if _, _, keyErr := postKey(d.Envelope); keyErr != nil {
				return nil, fabric.NewUnprocessableEventError(d.Envelope.Payload, err)
			}
			return nil, err
		}
		return nil, nil
	}
}

// Registration wires the projection onto a service for the given topic.
func (p *Projection) Registration(consumeTopic string) fabric.EnvelopeHandlerRegistration {
	return fabric.EnvelopeHandlerRegistration{
		Name:         "search-index-projection",
		ConsumeTopic: consumeTopic,
		Types:        SubscribedTypes,
		Handler:      p.Handler(),
	}
}
