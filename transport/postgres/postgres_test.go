package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/VISHALGAURAV95/backend-microservices/transport"
)

func TestTransportName(t *testing.T) {
	assert.Equal(t, "postgres", TransportName)
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.PostgresCapabilities, caps)
	assert.True(t, caps.SupportsNativeDLQ)
	assert.True(t, caps.SupportsConsumerGroups)
	assert.True(t, caps.SupportsOrdering)
}

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	assert.True(t, transport.DefaultRegistry.Has(TransportName))
}

func TestInitRegistersAlias(t *testing.T) {
	// init() registered both names before tests reset the registry, so
	// re-run the same registrations and check the alias.
	transport.DefaultRegistry = transport.NewRegistry()
	transport.RegisterWithCapabilities(TransportName, Build, transport.PostgresCapabilities)
	transport.RegisterWithCapabilities("postgresql", Build, transport.PostgresCapabilities)

	assert.True(t, transport.DefaultRegistry.Has("postgres"))
	assert.True(t, transport.DefaultRegistry.Has("postgresql"))
}

func TestNew_RequiresConnectionString(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection string is required")
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, "default", cfg.ConsumerGroup)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultLeaseTimeout, cfg.LeaseTimeout)
	assert.Equal(t, "fabric", cfg.SchemaName)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
}

func TestConfigWithDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{
		ConsumerGroup: "search-service",
		PollInterval:  time.Second,
		MaxRetries:    7,
		LeaseTimeout:  2 * time.Minute,
		SchemaName:    "events",
		MaxOpenConns:  20,
		MaxIdleConns:  8,
	}.withDefaults()

	assert.Equal(t, "search-service", cfg.ConsumerGroup)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, 2*time.Minute, cfg.LeaseTimeout)
	assert.Equal(t, "events", cfg.SchemaName)
	assert.Equal(t, 20, cfg.MaxOpenConns)
	assert.Equal(t, 8, cfg.MaxIdleConns)
}

func TestTransportImplementsDLQManager(t *testing.T) {
	var _ transport.DLQManager = &Transport{}
	var _ transport.DLQLister = &Transport{}
	var _ transport.CapabilitiesProvider = &Transport{}
	var _ transport.QueueIntrospector = &Transport{}
}
