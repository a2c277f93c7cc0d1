package fabric

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/errors"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/metadata"
)

type handlerRegistration struct {
	Name         string
	ConsumeTopic string
	Subscriber   message.Subscriber
	PublishTopic string
	Publisher    message.Publisher
	Handler      message.HandlerFunc
}

// MessageHandlerRegistration wires a raw Watermill handler without envelope
// decoding. Most callers want RegisterEnvelopeHandler instead.
type MessageHandlerRegistration struct {
	Name         string
	ConsumeTopic string
	PublishTopic string
	Handler      message.HandlerFunc
	Subscriber   message.Subscriber
	Publisher    message.Publisher
}

// RegisterMessageHandler attaches the provided handler to the service router.
func RegisterMessageHandler(svc *Service, cfg MessageHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	return svc.registerHandler(handlerRegistration{
		Name:         cfg.Name,
		ConsumeTopic: cfg.ConsumeTopic,
		PublishTopic: cfg.PublishTopic,
		Subscriber:   cfg.Subscriber,
		Publisher:    cfg.Publisher,
		Handler:      cfg.Handler,
	})
}

func (s *Service) registerHandler(cfg handlerRegistration) error {
	if cfg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if cfg.Name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if cfg.ConsumeTopic == "" {
		return errspkg.ErrTopicRequired
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.client
	}
	if cfg.Publisher == nil {
		cfg.Publisher = s.client
	}

	stats := newDeliveryStats(cfg.Name, cfg.ConsumeTopic)
	info := &HandlerInfo{
		Name:         cfg.Name,
		ConsumeTopic: cfg.ConsumeTopic,
		PublishTopic: cfg.PublishTopic,
		Stats:        stats,
	}

	s.handlersMu.Lock()
	s.handlers = append(s.handlers, info)
	s.handlersMu.Unlock()

	cfg.Handler = wrapHandler(cfg.Handler, info, stats, s.getErrorClassifier())

	s.router.AddHandler(
		cfg.Name,
		cfg.ConsumeTopic,
		cfg.Subscriber,
		cfg.PublishTopic,
		cfg.Publisher,
		cfg.Handler,
	)

	return nil
}

// wrapHandler tags each delivery with the handler name and topic so the
// middleware chain can attribute failures, and feeds the per-handler stats.
func wrapHandler(handler message.HandlerFunc, info *HandlerInfo, stats *DeliveryStats, classifier ErrorClassifier) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		msg.Metadata.Set(metadata.KeyHandler, info.Name)
		msg.Metadata.Set(metadata.KeyTopic, info.ConsumeTopic)

		stats.onMessageStart()
		start := time.Now()
		msgs, err := handler(msg)
		duration := time.Since(start)

		stats.onMessageFinish(duration, err, classifier)

		return msgs, err
	}
}
