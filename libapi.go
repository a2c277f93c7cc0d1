package fabric

import (
	runtimepkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric"
	brokerpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/broker"
	configpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/config"
	envelopepkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/envelope"
	errspkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/errors"
	idspkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/ids"
	jsoncodec "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/jsoncodec"
	loggingpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/logging"
	metadatapkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/metadata"
	transportpkg "github.com/VISHALGAURAV95/backend-microservices/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	Envelope     = envelopepkg.Envelope
	EventType    = envelopepkg.Type
	PostEvent    = envelopepkg.PostEvent
	MediaEvent   = envelopepkg.MediaEvent
	Upgrader     = envelopepkg.Upgrader
	DecodeError  = envelopepkg.DecodeError
	DecodeReason = envelopepkg.DecodeReason

	BrokerClient  = brokerpkg.Client
	BrokerOptions = brokerpkg.Options
	BrokerState   = brokerpkg.State
	PublishError  = brokerpkg.PublishError
	PublishReason = brokerpkg.Reason

	Producer        = runtimepkg.Producer
	ProducerOptions = runtimepkg.ProducerOptions
	WriteResult     = runtimepkg.WriteResult
	OutboxStore     = runtimepkg.OutboxStore
	OutboxRecord    = runtimepkg.OutboxRecord
	MemoryOutbox    = runtimepkg.MemoryOutbox
	Retrier         = runtimepkg.Retrier
	RetrierOptions  = runtimepkg.RetrierOptions

	MessageHandlerRegistration  = runtimepkg.MessageHandlerRegistration
	EnvelopeHandlerRegistration = runtimepkg.EnvelopeHandlerRegistration
	EnvelopeHandler             = runtimepkg.EnvelopeHandler
	Delivery                    = runtimepkg.Delivery

	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	DeliveryHooks   = runtimepkg.DeliveryHooks
	DeliveryContext = runtimepkg.DeliveryContext

	DeadLetterMetrics    = runtimepkg.DeadLetterMetrics
	DeadLetterRecord     = runtimepkg.DeadLetterRecord
	DeadLetterSnapshot   = runtimepkg.DeadLetterSnapshot
	DeadLetterTopicStats = runtimepkg.DeadLetterTopicStats

	UnprocessableEventError = runtimepkg.UnprocessableEventError
	ErrorClassifier         = runtimepkg.ErrorClassifier
	ErrorCategory           = runtimepkg.ErrorCategory
	HandlerInfo             = runtimepkg.HandlerInfo
	DeliveryStats           = runtimepkg.DeliveryStats

	Metadata      = metadatapkg.Metadata
	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
	TransportDLQManager   = transportpkg.DLQManager
)

const (
	PostCreated   = envelopepkg.PostCreated
	PostUpdated   = envelopepkg.PostUpdated
	PostDeleted   = envelopepkg.PostDeleted
	MediaAttached = envelopepkg.MediaAttached
	MediaRemoved  = envelopepkg.MediaRemoved

	EnvelopeSchemaVersion = envelopepkg.SchemaVersion
)

var (
	NewService     = runtimepkg.NewService
	ValidateConfig = configpkg.ValidateConfig

	NewEnvelope      = envelopepkg.New
	EncodeEnvelope   = envelopepkg.Encode
	DecodeEnvelope   = envelopepkg.Decode
	RegisterUpgrader = envelopepkg.RegisterUpgrader
	IsDecodeError    = envelopepkg.IsDecodeError
	KnownEventType   = envelopepkg.KnownType
	NewEnvelopeID    = idspkg.NewEnvelopeID

	NewBrokerClient = brokerpkg.New
	IsUnavailable   = brokerpkg.IsUnavailable
	IsTimeout       = brokerpkg.IsTimeout
	IsRejected      = brokerpkg.IsRejected

	NewProducer            = runtimepkg.NewProducer
	NewMessageFromEnvelope = runtimepkg.NewMessageFromEnvelope
	NewMemoryOutbox        = runtimepkg.NewMemoryOutbox
	NewRetrier             = runtimepkg.NewRetrier

	RegisterMessageHandler  = runtimepkg.RegisterMessageHandler
	RegisterEnvelopeHandler = runtimepkg.RegisterEnvelopeHandler

	DefaultMiddlewares           = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware      = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware        = runtimepkg.LogMessagesMiddleware
	MetricsMiddleware            = runtimepkg.MetricsMiddleware
	TracerMiddleware             = runtimepkg.TracerMiddleware
	DeadLetterMiddleware         = runtimepkg.DeadLetterMiddleware
	DeadLetterObserverMiddleware = runtimepkg.DeadLetterObserverMiddleware
	RetryMiddleware              = runtimepkg.RetryMiddleware
	RecovererMiddleware          = runtimepkg.RecovererMiddleware
	DeliveryHooksMiddleware      = runtimepkg.DeliveryHooksMiddleware
	LoggingHooks                 = runtimepkg.LoggingHooks
	MetricsHooks                 = runtimepkg.MetricsHooks

	NewDeadLetterMetrics = runtimepkg.NewDeadLetterMetrics

	NewUnprocessableEventError = runtimepkg.NewUnprocessableEventError
	IsUnprocessable            = runtimepkg.IsUnprocessable

	NewMetadata             = metadatapkg.New
	NewSlogServiceLogger    = loggingpkg.NewSlogServiceLogger
	NewZerologServiceLogger = loggingpkg.NewZerologServiceLogger
	NewNopServiceLogger     = loggingpkg.NewNopServiceLogger

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build

	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrHandlerNameRequired  = errspkg.ErrHandlerNameRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrEnvelopeRequired     = errspkg.ErrEnvelopeRequired
	ErrOutboxStoreRequired  = errspkg.ErrOutboxStoreRequired
	ErrBrokerClientRequired = errspkg.ErrBrokerClientRequired
)
