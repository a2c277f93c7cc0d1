package envelope

import (
	"fmt"
	"sync"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/jsoncodec"
)

// Upgrader rewrites an envelope from one schema version to the next. It is
// registered per (type, fromVersion) pair and must return an envelope with
// SchemaVersion = fromVersion+1.
type Upgrader func(Envelope) (Envelope, error)

var (
	upgradersMu sync.RWMutex
	upgraders   = map[Type]map[int]Upgrader{}
)

// RegisterUpgrader installs the upgrade step for envelopes of the given type
// at fromVersion. Without a full upgrader chain to SchemaVersion, older
// envelopes are rejected at decode time.
func RegisterUpgrader(t Type, fromVersion int, fn Upgrader) {
	upgradersMu.Lock()
	defer upgradersMu.Unlock()

	byVersion, ok := upgraders[t]
	if !ok {
		byVersion = make(map[int]Upgrader)
		upgraders[t] = byVersion
	}
	byVersion[fromVersion] = fn
}

func lookupUpgrader(t Type, fromVersion int) (Upgrader, bool) {
	upgradersMu.RLock()
	defer upgradersMu.RUnlock()

	byVersion, ok := upgraders[t]
	if !ok {
		return nil, false
	}
	fn, ok := byVersion[fromVersion]
	return fn, ok
}

// Encode serializes the envelope. The output is deterministic for a given
// value, so retried publishes of the same envelope produce identical bytes.
func Encode(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return jsoncodec.Marshal(e)
}

// Decode parses and validates the wire bytes, upgrading older schema
// versions through the registered upgrader chain. Failures are reported as
// *DecodeError so the consumer runtime can dead-letter without retrying.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := jsoncodec.Unmarshal(data, &e); err != nil {
		return Envelope{}, &DecodeError{Reason: ReasonMalformed, Detail: "invalid JSON", Err: err}
	}

	if !KnownType(e.Type) {
		return Envelope{}, &DecodeError{Reason: ReasonUnknownType, Detail: string(e.Type)}
	}

	if e.SchemaVersion > SchemaVersion {
		return Envelope{}, &DecodeError{
			Reason: ReasonUnsupportedVersion,
			Detail: fmt.Sprintf("schema version %d exceeds maximum known version %d", e.SchemaVersion, SchemaVersion),
		}
	}

	for e.SchemaVersion < SchemaVersion {
		fn, ok := lookupUpgrader(e.Type, e.SchemaVersion)
		if !ok {
			return Envelope{}, &DecodeError{
				Reason: ReasonUnsupportedVersion,
				Detail: fmt.Sprintf("no upgrader from schema version %d for %s", e.SchemaVersion, e.Type),
			}
		}
		from := e.SchemaVersion
		upgraded, err := fn(e)
		if err != nil {
			return Envelope{}, &DecodeError{
				Reason: ReasonUnsupportedVersion,
				Detail: fmt.Sprintf("upgrade from schema version %d failed", from),
				Err:    err,
			}
		}
		if upgraded.SchemaVersion <= from {
			return Envelope{}, &DecodeError{
				Reason: ReasonUnsupportedVersion,
				Detail: fmt.Sprintf("upgrader for schema version %d did not advance the version", from),
			}
		}
		e = upgraded
	}

	if err := e.Validate(); err != nil {
		return Envelope{}, &DecodeError{Reason: ReasonInvalid, Detail: "validation failed", Err: err}
	}

	return e, nil
}
