package metadata

// Keys written by the Watermill bridge.
const (
	// TopicKey holds the bus topic a message was published on.
	TopicKey = "flowbus_topic"
	// TypeKey holds the Go type name of the payload.
	TypeKey = "flowbus_type"
	// ContentTypeKey describes the payload encoding.
	ContentTypeKey = "flowbus_content_type"
	// BusIDKey identifies the bus instance that forwarded the message.
	BusIDKey = "flowbus_bus_id"
)

const (
	ContentTypeJSON      = "application/json"
	ContentTypeProtoJSON = "application/protobuf+json"
)

// Metadata represents the headers carried alongside a bridged message.
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

// Topic returns the bus topic recorded by the bridge, or "".
func (m Metadata) Topic() string {
	return m[TopicKey]
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
