package logging

import "github.com/rs/zerolog"

// NewZerologServiceLogger wraps a zerolog.Logger so the gateway and the event
// services can share one logger across HTTP and broker code paths.
func NewZerologServiceLogger(log zerolog.Logger) ServiceLogger {
	return &zerologServiceLogger{inner: log}
}

type zerologServiceLogger struct {
	inner zerolog.Logger
}

func (z *zerologServiceLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return z
	}
	ctx := z.inner.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zerologServiceLogger{inner: ctx.Logger()}
}

func (z *zerologServiceLogger) Debug(msg string, fields LogFields) {
	applyZerologFields(z.inner.Debug(), fields).Msg(msg)
}

func (z *zerologServiceLogger) Info(msg string, fields LogFields) {
	applyZerologFields(z.inner.Info(), fields).Msg(msg)
}

func (z *zerologServiceLogger) Error(msg string, err error, fields LogFields) {
	applyZerologFields(z.inner.Error().Err(err), fields).Msg(msg)
}

func (z *zerologServiceLogger) Trace(msg string, fields LogFields) {
	applyZerologFields(z.inner.Trace(), fields).Msg(msg)
}

func applyZerologFields(event *zerolog.Event, fields LogFields) *zerolog.Event {
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
