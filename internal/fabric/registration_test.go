package fabric

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/errors"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/metadata"
)

func TestRegisterMessageHandlerRequiresService(t *testing.T) {
	err := RegisterMessageHandler(nil, MessageHandlerRegistration{})
	if !errors.Is(err, errspkg.ErrServiceRequired) {
		t.Fatalf("expected ErrServiceRequired, got %v", err)
	}
}

func TestRegisterMessageHandlerRegistersHandler(t *testing.T) {
	svc := newTestService(t)
	err := RegisterMessageHandler(svc, MessageHandlerRegistration{
		Name:         "raw",
		ConsumeTopic: "input",
		PublishTopic: "output",
		Handler: func(msg *message.Message) ([]*message.Message, error) {
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := svc.router.Handlers()["raw"]; !ok {
		t.Fatal("handler not registered")
	}
}

func TestRegisterMessageHandlerValidatesInput(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name string
		reg  MessageHandlerRegistration
		want error
	}{
		{
			name: "missing handler",
			reg: MessageHandlerRegistration{
				Name:         "test",
				ConsumeTopic: "topic",
			},
			want: errspkg.ErrHandlerRequired,
		},
		{
			name: "missing consume topic",
			reg: MessageHandlerRegistration{
				Name:    "test",
				Handler: func(msg *message.Message) ([]*message.Message, error) { return nil, nil },
			},
			want: errspkg.ErrTopicRequired,
		},
		{
			name: "missing name",
			reg: MessageHandlerRegistration{
				ConsumeTopic: "topic",
				Handler:      func(msg *message.Message) ([]*message.Message, error) { return nil, nil },
			},
			want: errspkg.ErrHandlerNameRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RegisterMessageHandler(svc, tt.reg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRegisterMessageHandlerTracksStats(t *testing.T) {
	svc := newTestService(t)
	err := RegisterMessageHandler(svc, MessageHandlerRegistration{
		Name:         "tracked",
		ConsumeTopic: "input",
		Handler: func(msg *message.Message) ([]*message.Message, error) {
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handlers := svc.Handlers()
	if len(handlers) != 1 {
		t.Fatalf("expected 1 handler info, got %d", len(handlers))
	}
	if handlers[0].Name != "tracked" {
		t.Fatalf("unexpected handler name %q", handlers[0].Name)
	}
	if handlers[0].Stats == nil {
		t.Fatal("expected stats to be initialised")
	}
}

func TestWrapHandlerRecordsOutcomes(t *testing.T) {
	stats := newDeliveryStats("wrapped", "input")
	info := &HandlerInfo{Name: "wrapped", ConsumeTopic: "input", Stats: stats}

	failure := errors.New("boom")
	calls := 0
	wrapped := wrapHandler(func(msg *message.Message) ([]*message.Message, error) {
		calls++
		if calls == 1 {
			return nil, failure
		}
		return nil, nil
	}, info, stats, defaultErrorClassifier)

	msg := message.NewMessage("uuid-1", []byte("{}"))
	if _, err := wrapped(msg); !errors.Is(err, failure) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if _, err := wrapped(msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := msg.Metadata.Get(metadata.KeyHandler); got != "wrapped" {
		t.Fatalf("expected handler metadata to be set, got %q", got)
	}
	if got := msg.Metadata.Get(metadata.KeyTopic); got != "input" {
		t.Fatalf("expected topic metadata to be set, got %q", got)
	}
	if stats.MessagesProcessed != 2 {
		t.Fatalf("expected 2 processed messages, got %d", stats.MessagesProcessed)
	}
	if stats.MessagesFailed != 1 {
		t.Fatalf("expected 1 failed message, got %d", stats.MessagesFailed)
	}
}
