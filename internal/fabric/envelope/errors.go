package envelope

import (
	"errors"
	"fmt"
)

// DecodeReason classifies why an envelope could not be decoded. Decode
// failures are never retried; retrying cannot fix a malformed payload.
type DecodeReason string

const (
	ReasonMalformed          DecodeReason = "malformed"
	ReasonUnknownType        DecodeReason = "unknown_type"
	ReasonUnsupportedVersion DecodeReason = "unsupported_version"
	ReasonInvalid            DecodeReason = "invalid"
)

// DecodeError reports a payload that cannot become a valid envelope.
type DecodeError struct {
	Reason DecodeReason
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("envelope decode failed (%s): %s: %v", e.Reason, e.Detail, e.Err)
	}
	return fmt.Sprintf("envelope decode failed (%s): %s", e.Reason, e.Detail)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
