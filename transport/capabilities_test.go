package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities_SupportsReliableDelivery(t *testing.T) {
	tests := []struct {
		name     string
		caps     Capabilities
		wantBool bool
	}{
		{
			name: "supports ack and nack",
			caps: Capabilities{
				SupportsAck:  true,
				SupportsNack: true,
			},
			wantBool: true,
		},
		{
			name: "supports ack only",
			caps: Capabilities{
				SupportsAck:  true,
				SupportsNack: false,
			},
			wantBool: false,
		},
		{
			name:     "supports neither",
			caps:     Capabilities{},
			wantBool: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantBool, tt.caps.SupportsReliableDelivery())
		})
	}
}

func TestCapabilities_RequiresDLQEmulation(t *testing.T) {
	tests := []struct {
		name          string
		caps          Capabilities
		wantEmulation bool
	}{
		{
			name:          "supports native DLQ",
			caps:          Capabilities{SupportsNativeDLQ: true},
			wantEmulation: false,
		},
		{
			name:          "no native DLQ support",
			caps:          Capabilities{SupportsNativeDLQ: false},
			wantEmulation: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantEmulation, tt.caps.RequiresDLQEmulation())
		})
	}
}

func TestPredefinedCapabilities(t *testing.T) {
	assert.Equal(t, "channel", ChannelCapabilities.Name)
	assert.True(t, ChannelCapabilities.SupportsReliableDelivery())
	assert.True(t, ChannelCapabilities.RequiresDLQEmulation())

	assert.Equal(t, "kafka", KafkaCapabilities.Name)
	assert.True(t, KafkaCapabilities.SupportsConsumerGroups)
	assert.True(t, KafkaCapabilities.SupportsPartitioning)
	assert.True(t, KafkaCapabilities.RequiresDLQEmulation())

	assert.Equal(t, "rabbitmq", RabbitMQCapabilities.Name)
	assert.True(t, RabbitMQCapabilities.SupportsNativeDLQ)
	assert.True(t, RabbitMQCapabilities.SupportsReliableDelivery())

	assert.Equal(t, "nats", NATSCapabilities.Name)
	assert.False(t, NATSCapabilities.SupportsReliableDelivery())

	assert.Equal(t, "nats-jetstream", NATSJetStreamCapabilities.Name)
	assert.True(t, NATSJetStreamCapabilities.SupportsNativeDLQ)
	assert.True(t, NATSJetStreamCapabilities.SupportsReliableDelivery())

	assert.Equal(t, "postgres", PostgresCapabilities.Name)
	assert.True(t, PostgresCapabilities.SupportsConsumerGroups)
	assert.True(t, PostgresCapabilities.SupportsOrdering)
}
