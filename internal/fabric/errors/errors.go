package errors

import sterrors "errors"

var (
	ErrServiceRequired       = sterrors.New("fabric: event service is required")
	ErrHandlerRequired       = sterrors.New("fabric: handler function is required")
	ErrHandlerNameRequired   = sterrors.New("fabric: handler name is required")
	ErrTopicRequired         = sterrors.New("fabric: topic is required")
	ErrPublisherRequired     = sterrors.New("fabric: publisher is required")
	ErrEnvelopeRequired      = sterrors.New("fabric: envelope is required")
	ErrOutboxStoreRequired   = sterrors.New("fabric: outbox store is required")
	ErrBrokerClientRequired  = sterrors.New("fabric: broker client is required")
	ErrProjectionKeyRequired = sterrors.New("fabric: projection entity key is required")
)
