package fabric

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/broker"
	configpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/config"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/envelope"
	channeltransport "github.com/VISHALGAURAV95/backend-microservices/transport/channel"
)

func newChannelConfig() *configpkg.Config {
	return &configpkg.Config{
		PubSubSystem:    "channel",
		SourceService:   "search-service",
		DeadLetterQueue: "events.dlq",
	}
}

func TestNewServiceWithChannelTransport(t *testing.T) {
	channeltransport.Register()

	svc := NewService(newChannelConfig(), newTestLogger(), context.Background(), ServiceDependencies{})
	if svc.Broker() == nil {
		t.Fatal("expected broker client to be wired")
	}
	if !svc.Healthy() {
		t.Fatal("expected a fresh service to be healthy")
	}
	if svc.Broker().State() != broker.StateConnected {
		t.Fatalf("expected connected state, got %s", svc.Broker().State())
	}
}

func TestNewServiceDisableDefaultMiddlewares(t *testing.T) {
	channeltransport.Register()

	svc := NewService(newChannelConfig(), newTestLogger(), context.Background(), ServiceDependencies{
		DisableDefaultMiddlewares: true,
		Middlewares: []MiddlewareRegistration{
			{
				Name: "probe",
				Middleware: func(h message.HandlerFunc) message.HandlerFunc {
					return h
				},
			},
		},
	})
	if svc.Broker() == nil {
		t.Fatal("expected broker client to be wired")
	}
}

func TestServiceStartRunsRouter(t *testing.T) {
	channeltransport.Register()

	origRun := routerRun
	t.Cleanup(func() { routerRun = origRun })

	ran := make(chan struct{})
	routerRun = func(router *message.Router, ctx context.Context) error {
		close(ran)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewService(newChannelConfig(), newTestLogger(), ctx, ServiceDependencies{})
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-ran:
	default:
		t.Fatal("expected router run to be invoked")
	}
}

func TestServiceRegisterHTTPHandler(t *testing.T) {
	svc := newTestService(t)
	svc.RegisterHTTPHandler(9090, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	mux, ok := svc.httpServers[9090]
	if !ok {
		t.Fatal("expected mux for port 9090")
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestServiceDeliversEnvelopeEndToEnd(t *testing.T) {
	channeltransport.Register()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc := NewService(newChannelConfig(), newTestLogger(), ctx, ServiceDependencies{})

	received := make(chan envelope.Envelope, 1)
	err := RegisterEnvelopeHandler(svc, EnvelopeHandlerRegistration{
		Name:         "post-created-probe",
		ConsumeTopic: "events.posts",
		Types:        []envelope.Type{envelope.PostCreated},
		Handler: func(ctx context.Context, d Delivery) ([]envelope.Envelope, error) {
			select {
			case received <- d.Envelope:
			default:
			}
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	go func() {
		if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("service stopped: %v", err)
		}
	}()

	select {
	case <-svc.router.Running():
	case <-ctx.Done():
		t.Fatal("router did not start")
	}

	producer, err := NewProducer(svc.Publisher(), ProducerOptions{
		Topic:         "events.posts",
		SourceService: "post-service",
		Logger:        newTestLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = producer.OnCommitted(ctx, WriteResult{
		EntityID:  "42",
		EventType: envelope.PostCreated,
		Payload:   envelope.PostEvent{PostID: "42", Content: "hello", Version: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case env := <-received:
		if env.Type != envelope.PostCreated {
			t.Fatalf("unexpected type %q", env.Type)
		}
		var payload envelope.PostEvent
		if err := env.DecodePayload(&payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if payload.PostID != "42" || payload.Content != "hello" {
			t.Fatalf("unexpected payload %+v", payload)
		}
	case <-ctx.Done():
		t.Fatal("envelope was not delivered")
	}
}
