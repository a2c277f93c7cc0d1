// Package kafka provides the Kafka transport. Messages are partitioned by
// the partition_key metadata so events for one entity stay ordered.
package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/metadata"
	"github.com/VISHALGAURAV95/backend-microservices/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a new Kafka transport. The subscriber joins the configured
// consumer group so competing consumers share the subscription.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()

	marshaler := kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
		if key := msg.Metadata.Get(metadata.KeyPartitionKey); key != "" {
			return key, nil
		}
		return msg.UUID, nil
	})

	publisherConfig := kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: marshaler,
	}
	subscriberConfig := kafka.SubscriberConfig{
		Brokers:       brokers,
		Unmarshaler:   marshaler,
		ConsumerGroup: cfg.GetConsumerGroup(),
	}

	if clientID := cfg.GetKafkaClientID(); clientID != "" {
		pubSarama := kafka.DefaultSaramaSyncPublisherConfig()
		pubSarama.ClientID = clientID
		publisherConfig.OverwriteSaramaConfig = pubSarama

		subSarama := kafka.DefaultSaramaSubscriberConfig()
		subSarama.ClientID = clientID
		subscriberConfig.OverwriteSaramaConfig = subSarama
	}

	publisher, err := PublisherFactory(publisherConfig, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(subscriberConfig, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
