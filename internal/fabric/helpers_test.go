package fabric

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/broker"
	configpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/config"
	loggingpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/logging"
	transportpkg "github.com/VISHALGAURAV95/backend-microservices/transport"
)

type testPublisher struct {
	mu        sync.Mutex
	published map[string][]*message.Message
	err       error
}

func newTestPublisher() *testPublisher {
	return &testPublisher{published: make(map[string][]*message.Message)}
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published[topic] = append(p.published[topic], messages...)
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Published(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]*message.Message, len(p.published[topic]))
	copy(clone, p.published[topic])
	return clone
}

func (p *testPublisher) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type testSubscriber struct {
	err error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.DiscardHandler))
}

func newTestClient(t *testing.T, pub *testPublisher) *broker.Client {
	t.Helper()
	client, err := broker.New(broker.Options{
		Connect: func(ctx context.Context) (transportpkg.Transport, error) {
			return transportpkg.Transport{Publisher: pub, Subscriber: &testSubscriber{}}, nil
		},
		Logger: newTestLogger(),
	})
	if err != nil {
		t.Fatalf("broker client init failed: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("broker client connect failed: %v", err)
	}
	return client
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return newTestServiceWithPublisher(t, newTestPublisher())
}

func newTestServiceWithPublisher(t *testing.T, pub *testPublisher) *Service {
	t.Helper()
	log := newTestLogger()
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		t.Fatalf("router init failed: %v", err)
	}
	return &Service{
		Conf:            &configpkg.Config{},
		Logger:          log,
		router:          router,
		client:          newTestClient(t, pub),
		errorClassifier: defaultErrorClassifier,
		dlqMetrics:      NewDeadLetterMetrics(nil),
	}
}
