// Package channel provides the in-memory Go channel backend. Forwarded
// messages never leave the process, which makes it the backend of choice for
// tests and for wiring two buses together.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/flowbus/transport"
)

// TransportName is the name used to register this backend.
const TransportName = "channel"

// Factory creates the shared pub/sub. Tests may replace it.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a Go channel pub/sub serving as both publisher and subscriber.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pubSub := Factory(gochannel.Config{
		Persistent:          cfg.Channel.Persistent,
		OutputChannelBuffer: cfg.Channel.OutputBuffer,
	}, logger)
	return transport.Transport{
		Publisher:  pubSub,
		Subscriber: pubSub,
	}, nil
}
