// Package all registers every built-in bridge backend.
package all

import (
	_ "github.com/drblury/flowbus/transport/aws"
	_ "github.com/drblury/flowbus/transport/channel"
	_ "github.com/drblury/flowbus/transport/http"
	_ "github.com/drblury/flowbus/transport/io"
	_ "github.com/drblury/flowbus/transport/kafka"
	_ "github.com/drblury/flowbus/transport/nats"
	_ "github.com/drblury/flowbus/transport/rabbitmq"
)
