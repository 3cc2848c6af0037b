package transport

// Capabilities describes the delivery guarantees of a backend.
type Capabilities struct {
	Name string

	// SupportsAck is true when acking a message removes it from the broker.
	SupportsAck bool
	// SupportsNack is true when a nacked message is redelivered.
	SupportsNack bool
	// SupportsOrdering is true when messages of one topic arrive in publish order.
	SupportsOrdering bool
	// Durable is true when messages survive a process restart.
	Durable bool
	// CrossProcess is true when other processes can consume what this one
	// publishes.
	CrossProcess bool

	// MaxMessageSize is the largest payload in bytes, 0 when unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once semantics (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		Durable:          true,
		CrossProcess:     true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsAck:      true,
		SupportsOrdering: true,
		Durable:          true,
		CrossProcess:     true,
		MaxMessageSize:   1 << 20,
	}

	NATSCapabilities = Capabilities{
		Name:           "nats",
		CrossProcess:   true,
		MaxMessageSize: 1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		Durable:          true,
		CrossProcess:     true,
	}

	HTTPCapabilities = Capabilities{
		Name:         "http",
		CrossProcess: true,
	}

	AWSCapabilities = Capabilities{
		Name:           "aws",
		SupportsAck:    true,
		SupportsNack:   true,
		Durable:        true,
		CrossProcess:   true,
		MaxMessageSize: 256 << 10,
	}
)
