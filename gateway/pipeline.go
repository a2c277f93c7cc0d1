package gateway

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// Pipeline runs every inbound request through a fixed order of stages:
// authenticate, route, forward. Each stage returns a tagged result; the
// first failure short-circuits the rest and is rendered by the
// normalizer as the uniform error envelope.
type Pipeline struct {
	table      *Table
	verifier   Verifier
	forwarder  *Forwarder
	normalizer Normalizer
	logger     zerolog.Logger
}

type PipelineOptions struct {
	Table      *Table
	Verifier   Verifier
	Forwarder  *Forwarder
	Normalizer Normalizer
	Logger     zerolog.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = &JSONNormalizer{Logger: opts.Logger}
	}
	return &Pipeline{
		table:      opts.Table,
		verifier:   opts.Verifier,
		forwarder:  opts.Forwarder,
		normalizer: normalizer,
		logger:     opts.Logger,
	}
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	// The authenticate stage always runs; whether its outcome matters
	// is judged against the matched route's policy below.
	auth := Authenticate(r, p.verifier)

	route, ok := p.table.Match(r.Method, r.URL.Path)
	if !ok {
		p.normalizer.Write(w, &Failure{
			Kind:    KindRoute,
			Status:  http.StatusNotFound,
			Message: "no route for " + r.Method + " " + r.URL.Path,
		}, correlationID)
		return
	}

	if route.Auth == AuthRequired && !auth.Authenticated {
		p.normalizer.Write(w, authFailure(auth.Err), correlationID)
		return
	}

	if fail := p.forwarder.Forward(w, r, route, auth); fail != nil {
		p.normalizer.Write(w, fail, correlationID)
	}
}

func authFailure(err error) *Failure {
	msg := "credential rejected"
	switch {
	case errors.Is(err, ErrMissingCredential):
		msg = "missing credential"
	case errors.Is(err, ErrExpiredCredential):
		msg = "expired credential"
	}
	return &Failure{
		Kind:    KindAuth,
		Status:  http.StatusUnauthorized,
		Message: msg,
		Err:     err,
	}
}
