package gateway

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

// Kind tags a pipeline failure with the stage class that produced it.
type Kind string

const (
	KindAuth        Kind = "auth_error"
	KindRoute       Kind = "route_error"
	KindUnavailable Kind = "unavailable"
	KindUpstream    Kind = "upstream_error"
	KindInternal    Kind = "internal_error"
)

// Failure is the tagged result a pipeline stage returns instead of
// writing to the response itself. The driver decides how it is rendered.
type Failure struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// ErrorEnvelope is the single error shape every client sees, no matter
// which stage or downstream service failed.
type ErrorEnvelope struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

// Normalizer converts any failure into the uniform envelope and writes it.
// It is injected so the pipeline stays testable without a real encoder.
type Normalizer interface {
	Write(w http.ResponseWriter, f *Failure, correlationID string)
}

// JSONNormalizer renders failures as the JSON error envelope.
type JSONNormalizer struct {
	Logger zerolog.Logger
}

func (n *JSONNormalizer) Write(w http.ResponseWriter, f *Failure, correlationID string) {
	status := f.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	event := n.Logger.Warn()
	if status >= 500 {
		event = n.Logger.Error()
	}
	event.
		Err(f.Err).
		Str("kind", string(f.Kind)).
		Int("status", status).
		Str("correlation_id", correlationID).
		Msg(f.Message)

	body, err := sonic.Marshal(ErrorEnvelope{
		Kind:          string(f.Kind),
		Message:       f.Message,
		CorrelationID: correlationID,
	})
	if err != nil {
		http.Error(w, f.Message, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
