// Package projection implements the idempotent-consumer pattern for derived
// state. A Record tracks the last applied envelope id and logical version;
// the Applier suppresses duplicates and stale deliveries so that replaying
// an event stream in any at-least-once order converges on the same state.
package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/envelope"
	errspkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/errors"
)

// Record is one derived-state entry, owned exclusively by its consuming
// service. LastAppliedEventID and LastAppliedVersion gate every mutation.
// A tombstoned record keeps its version bookkeeping so stale updates cannot
// resurrect deleted state.
type Record[S any] struct {
	EntityID           string `json:"entityId"`
	LastAppliedEventID string `json:"lastAppliedEventId"`
	LastAppliedVersion int64  `json:"lastAppliedVersion"`
	Tombstone          bool   `json:"tombstone,omitempty"`
	State              S      `json:"state"`
}

// Store persists projection records. Put must replace the record and its
// bookkeeping fields atomically.
type Store[S any] interface {
	Get(ctx context.Context, entityID string) (Record[S], bool, error)
	Put(ctx context.Context, record Record[S]) error
}

// Key extracts the entity id and logical version an envelope applies to.
type Key func(env envelope.Envelope) (entityID string, version int64, err error)

// ApplyFunc mutates the prior record for one envelope. The prior record is
// zero-valued (except EntityID) when the entity has never been seen. The
// applier overwrites the bookkeeping fields afterwards, so implementations
// only deal with State and Tombstone.
type ApplyFunc[S any] func(ctx context.Context, prior Record[S], env envelope.Envelope) (Record[S], error)

// Applier wraps an ApplyFunc with duplicate and stale suppression.
type Applier[S any] struct {
	store Store[S]
	key   Key
	apply ApplyFunc[S]
}

// NewApplier builds an applier over the given store.
func NewApplier[S any](store Store[S], key Key, apply ApplyFunc[S]) (*Applier[S], error) {
	if store == nil {
		return nil, errors.New("projection: store is required")
	}
	if key == nil {
		return nil, errspkg.ErrProjectionKeyRequired
	}
	if apply == nil {
		return nil, errors.New("projection: apply function is required")
	}
	return &Applier[S]{store: store, key: key, apply: apply}, nil
}

// Apply applies the envelope to the projection exactly once logically:
// redelivery of an already-applied envelope and delivery of an envelope
// whose version is not newer than the record's are both acknowledged
// without mutating state.
func (a *Applier[S]) Apply(ctx context.Context, env envelope.Envelope) error {
	entityID, version, err := a.key(env)
	if err != nil {
		return fmt.Errorf("projection: extracting key from envelope %s: %w", env.ID, err)
	}
	if entityID == "" {
		return fmt.Errorf("projection: envelope %s has no entity id", env.ID)
	}

	record, found, err := a.store.Get(ctx, entityID)
	if err != nil {
		return fmt.Errorf("projection: loading record %s: %w", entityID, err)
	}

	if found {
		if record.LastAppliedEventID == env.ID {
			// Redelivery of an envelope we already applied.
			return nil
		}
		if version <= record.LastAppliedVersion {
			// Out-of-order delivery of an older write.
			return nil
		}
	} else {
		record = Record[S]{EntityID: entityID}
	}

	next, err := a.apply(ctx, record, env)
	if err != nil {
		return err
	}

	next.EntityID = entityID
	next.LastAppliedEventID = env.ID
	next.LastAppliedVersion = version

	if err := a.store.Put(ctx, next); err != nil {
		return fmt.Errorf("projection: persisting record %s: %w", entityID, err)
	}
	return nil
}
