// Package transport builds the Watermill publisher and subscriber pairs that
// bridge a flowbus bus to an external broker. Each backend lives in its own
// sub-package and registers itself with the default registry on import;
// import transport/all to register every built-in backend.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes the publisher and the subscriber. A value serving as both is
// closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		errs = append(errs, t.Publisher.Close())
	}
	if t.Subscriber != nil {
		if same, ok := t.Subscriber.(message.Publisher); !ok || same != t.Publisher {
			errs = append(errs, t.Subscriber.Close())
		}
	}
	return errors.Join(errs...)
}

// Builder creates a transport from the bridge configuration.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config selects a backend by Name and carries the settings of every backend.
// Builders only read their own section.
type Config struct {
	// Name is the registered backend name, e.g. "channel" or "kafka".
	Name string

	Channel  ChannelConfig
	IO       IOConfig
	Kafka    KafkaConfig
	NATS     NATSConfig
	RabbitMQ RabbitMQConfig
	HTTP     HTTPConfig
	AWS      AWSConfig
}

// ChannelConfig configures the in-memory Go channel backend.
type ChannelConfig struct {
	// Persistent keeps published messages for subscribers that join later.
	Persistent bool
	// OutputBuffer is the size of each subscriber's output channel.
	OutputBuffer int64
}

// IOConfig configures the file backend.
type IOConfig struct {
	// File is the newline-delimited JSON file messages are appended to.
	File string
	// PollInterval is how often subscribers look for new lines at EOF.
	PollInterval time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

type NATSConfig struct {
	URL string
	// QueueGroupPrefix makes subscribers of one topic share deliveries.
	QueueGroupPrefix string
}

type RabbitMQConfig struct {
	URL string
}

type HTTPConfig struct {
	// ServerAddress is where the subscriber listens, e.g. ":8090".
	ServerAddress string
	// PublisherURL is the base URL topics are appended to when publishing.
	PublisherURL string
}

type AWSConfig struct {
	Region          string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the AWS endpoint, e.g. for LocalStack.
	Endpoint string
}
