package metadata

// Metadata represents the broker headers carried alongside an envelope.
type Metadata map[string]string

// Reserved keys used by the fabric. Handlers should not overwrite them.
const (
	KeyCorrelationID = "correlation_id"
	KeyEventType     = "event_type"
	KeySchemaVersion = "schema_version"
	KeySourceService = "source_service"
	KeyPartitionKey  = "partition_key"
	KeyHandler       = "fabric_handler"
	KeyTopic         = "fabric_topic"
	KeyRetryCount    = "fabric_retry_count"
)

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// CorrelationID returns the correlation id header, if present.
func (m Metadata) CorrelationID() string {
	return m[KeyCorrelationID]
}

// PartitionKey returns the per-entity ordering key, if present.
func (m Metadata) PartitionKey() string {
	return m[KeyPartitionKey]
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
