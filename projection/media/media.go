// Package media maintains the media service's metadata table as a
// projection of the media event stream.
package media

import (
	"context"
	"fmt"

	fabric "github.com/VISHALGAURAV95/backend-microservices/internal/fabric"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/envelope"
	"github.com/VISHALGAURAV95/backend-microservices/projection"
)

// Metadata is the derived state for one media asset.
type Metadata struct {
	MediaID string `json:"mediaId"`
	PostID  string `json:"postId"`
	URL     string `json:"url"`
	Kind    string `json:"kind"`
	Version int64  `json:"version"`
}

// SubscribedTypes lists the event kinds this projection consumes.
var SubscribedTypes = []envelope.Type{
	envelope.MediaAttached,
	envelope.MediaRemoved,
}

// Projection owns the media metadata table.
type Projection struct {
	store   projection.Store[Metadata]
	applier *projection.Applier[Metadata]
}

// New builds the media projection over the given store. A nil store uses an
// in-memory one.
func New(store projection.Store[Metadata]) (*Projection, error) {
	if store == nil {
		store = projection.NewMemoryStore[Metadata]()
	}

	p := &Projection{store: store}
	applier, err := projection.NewApplier(store, mediaKey, p.applyEvent)
	if err != nil {
		return nil, err
	}
	p.applier = applier
	return p, nil
}

func mediaKey(env envelope.Envelope) (string, int64, error) {
	var payload envelope.MediaEvent
	if err := env.DecodePayload(&payload); err != nil {
		return "", 0, err
	}
	return payload.MediaID, payload.Version, nil
}

func (p *Projection) applyEvent(_ context.Context, prior projection.Record[Metadata], env envelope.Envelope) (projection.Record[Metadata], error) {
	var payload envelope.MediaEvent
	if err := env.DecodePayload(&payload); err != nil {
		return prior, err
	}

	switch env.Type {
	case envelope.MediaAttached:
		prior.Tombstone = false
		prior.State = Metadata{
			MediaID: payload.MediaID,
			PostID:  payload.PostID,
			URL:     payload.URL,
			Kind:    payload.Kind,
			Version: payload.Version,
		}
	case envelope.MediaRemoved:
		prior.Tombstone = true
		prior.State = Metadata{MediaID: payload.MediaID, PostID: payload.PostID, Version: payload.Version}
	default:
		return prior, fmt.Errorf("media: unsupported event type %q", env.Type)
	}
	return prior, nil
}

// Apply applies one envelope to the metadata table, idempotently.
func (p *Projection) Apply(ctx context.Context, env envelope.Envelope) error {
	return p.applier.Apply(ctx, env)
}

// Lookup returns the metadata for a media asset. Removed assets report not
// found.
func (p *Projection) Lookup(ctx context.Context, mediaID string) (Metadata, bool, error) {
	record, found, err := p.store.Get(ctx, mediaID)
	if err != nil || !found || record.Tombstone {
		return Metadata{}, false, err
	}
	return record.State, true, nil
}

// Handler adapts the projection to the consumer runtime.
func (p *Projection) Handler() fabric.EnvelopeHandler {
	return func(ctx context.Context, d fabric.Delivery) ([]envelope.Envelope, error) {
		if err := p.Apply(ctx, d.Envelope); err != nil {
			if _, _, keyErr := mediaKey(d.Envelope); keyErr != nil {
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
		Name:         "media-metadata-projection",
		ConsumeTopic: consumeTopic,
		Types:        SubscribedTypes,
		Handler:      p.Handler(),
	}
}
