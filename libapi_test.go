package fabric

import (
	"context"
	"errors"
	"testing"
)

func TestHandlerExportsPropagateErrors(t *testing.T) {
	if err := RegisterMessageHandler(nil, MessageHandlerRegistration{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}

	if err := RegisterEnvelopeHandler(nil, EnvelopeHandlerRegistration{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}
}

func TestEnvelopeExportAliases(t *testing.T) {
	env, err := NewEnvelope(PostCreated, "post-service", PostEvent{PostID: "1", Content: "hello", Version: 1})
	if err != nil {
		t.Fatalf("unexpected error building envelope: %v", err)
	}
	if env.SchemaVersion != EnvelopeSchemaVersion {
		t.Fatalf("expected schema version %d, got %d", EnvelopeSchemaVersion, env.SchemaVersion)
	}

	raw, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.ID != env.ID {
		t.Fatalf("expected id %q, got %q", env.ID, decoded.ID)
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata("key", "value")
	if md["key"] != "value" {
		t.Fatalf("expected metadata to contain key, got %#v", md)
	}
}

func TestUnprocessableExport(t *testing.T) {
	err := NewUnprocessableEventError([]byte("{"), errors.New("bad payload"))
	if !IsUnprocessable(err) {
		t.Fatalf("expected error to classify as unprocessable: %v", err)
	}
}

func TestOutboxExportAliases(t *testing.T) {
	outbox := NewMemoryOutbox(nil)

	env, err := NewEnvelope(PostCreated, "post-service", PostEvent{PostID: "1", Version: 1})
	if err != nil {
		t.Fatalf("unexpected error building envelope: %v", err)
	}
	raw, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	ctx := context.Background()
	if err := outbox.Store(ctx, OutboxRecord{ID: env.ID, Topic: "posts.events", Payload: raw}); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	pending, err := outbox.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != env.ID {
		t.Fatalf("expected one pending record for %q, got %#v", env.ID, pending)
	}
}

func TestEventTypeExports(t *testing.T) {
	for _, typ := range []EventType{PostCreated, PostUpdated, PostDeleted, MediaAttached, MediaRemoved} {
		if !KnownEventType(typ) {
			t.Fatalf("expected %q to be known", typ)
		}
	}
	if KnownEventType(EventType("post.archived")) {
		t.Fatal("expected unknown type to be rejected")
	}
}
