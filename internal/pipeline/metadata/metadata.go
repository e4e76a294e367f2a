package metadata

// Standard property keys attached to every outbound financial message.
const (
	KeyMessageType = "message_type"
	KeyJobID       = "job_id"
	KeyAnalysisID  = "analysis_id"
	KeyTimestamp   = "timestamp"

	// KeyPartitionKey carries the routing hint on the broker message. The
	// producer defaults it to the job identifier.
	KeyPartitionKey = "partition_key"

	// KeyCompression and KeyBatchCount describe the batch envelope so the
	// consumer can decode it without sniffing the payload bytes.
	KeyCompression = "riskwire_compression"
	KeyBatchCount  = "riskwire_batch_count"
)

// MessageTypeFinancialAnalysis is the message_type value for the financial
// analysis message tree.
const MessageTypeFinancialAnalysis = "financial_analysis"

// Metadata represents the properties carried alongside a payload.
type Metadata map[string]string

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

// WithAll returns a cloned metadata map containing the supplied entries.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
