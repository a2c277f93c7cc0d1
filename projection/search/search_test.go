package search

import (
	"context"
	"testing"

	fabric "github.com/VISHALGAURAV95/backend-microservices/internal/fabric"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/envelope"
)

func mustEnvelope(t *testing.T, typ envelope.Type, payload envelope.PostEvent) envelope.Envelope {
	t.Helper()
	env, err := envelope.New(typ, "post-service", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return env
}

func newProjection(t *testing.T) *Projection {
	t.Helper()
	p, err := New(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func TestPostCreatedIndexesContent(t *testing.T) {
	p := newProjection(t)
	env := mustEnvelope(t, envelope.PostCreated, envelope.PostEvent{PostID: "42", AuthorID: "a1", Content: "hello", Version: 1})

	if err := p.Apply(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, found, err := p.Lookup(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected document for post 42")
	}
	if doc.Content != "hello" {
		t.Fatalf("expected content %q, got %q", "hello", doc.Content)
	}
	if doc.AuthorID != "a1" {
		t.Fatalf("unexpected author %q", doc.AuthorID)
	}
}

func TestRepublishingIdenticalEnvelopeLeavesIndexUnchanged(t *testing.T) {
	p := newProjection(t)
	env := mustEnvelope(t, envelope.PostCreated, envelope.PostEvent{PostID: "42", Content: "hello", Version: 1})

	if err := p.Apply(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, _, _ := p.Lookup(context.Background(), "42")

	if err := p.Apply(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _, _ := p.Lookup(context.Background(), "42")

	if first != second {
		t.Fatalf("redelivery changed the index: %+v vs %+v", first, second)
	}
}

func TestOutOfOrderDeliveryConvergesToNewestVersion(t *testing.T) {
	v1 := func(t *testing.T) envelope.Envelope {
		return mustEnvelope(t, envelope.PostCreated, envelope.PostEvent{PostID: "42", Content: "first", Version: 1})
	}
	v2 := func(t *testing.T) envelope.Envelope {
		return mustEnvelope(t, envelope.PostUpdated, envelope.PostEvent{PostID: "42", Content: "second", Version: 2})
	}

	// Update arrives before the create.
	p := newProjection(t)
	if err := p.Apply(context.Background(), v2(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Apply(context.Background(), v1(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, found, _ := p.Lookup(context.Background(), "42")
	if !found {
		t.Fatal("expected document for post 42")
	}
	if doc.Content != "second" || doc.Version != 2 {
		t.Fatalf("expected convergence on version 2, got %+v", doc)
	}
}

func TestPostDeletedTombstonesDocument(t *testing.T) {
	p := newProjection(t)
	created := mustEnvelope(t, envelope.PostCreated, envelope.PostEvent{PostID: "42", Content: "hello", Version: 1})
	deleted := mustEnvelope(t, envelope.PostDeleted, envelope.PostEvent{PostID: "42", Version: 2})

	if err := p.Apply(context.Background(), created); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Apply(context.Background(), deleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, found, _ := p.Lookup(context.Background(), "42"); found {
		t.Fatal("expected deleted post to be absent from lookups")
	}

	// A late create for an older version must not resurrect the document.
	stale := mustEnvelope(t, envelope.PostUpdated, envelope.PostEvent{PostID: "42", Content: "zombie", Version: 1})
	if err := p.Apply(context.Background(), stale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, found, _ := p.Lookup(context.Background(), "42"); found {
		t.Fatal("stale update resurrected a deleted post")
	}
}

func TestHandlerMarksUndecodablePayloadsUnprocessable(t *testing.T) {
	p := newProjection(t)
	handler := p.Handler()

	env := mustEnvelope(t, envelope.PostCreated, envelope.PostEvent{PostID: "42", Version: 1})
	env.Payload = []byte(`"not an object"`)

	_, err := handler(context.Background(), fabric.Delivery{Envelope: env})
	if !fabric.IsUnprocessable(err) {
		t.Fatalf("expected unprocessable error, got %v", err)
	}
}

func TestRegistrationSubscribesPostTypes(t *testing.T) {
	p := newProjection(t)
	reg := p.Registration("events.posts")

	if reg.ConsumeTopic != "events.posts" {
		t.Fatalf("unexpected topic %q", reg.ConsumeTopic)
	}
	if reg.Name == "" {
		t.Fatal("expected a handler name")
	}
	if len(reg.Types) != 3 {
		t.Fatalf("expected 3 subscribed types, got %d", len(reg.Types))
	}
	if reg.Handler == nil {
		t.Fatal("expected a handler")
	}
}
