// Package http provides the HTTP backend. Publishing POSTs each message to
// PublisherURL+topic; subscribing mounts a route per topic on a server
// listening at ServerAddress, started by the first Subscribe call.
package http

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowbus/transport"
)

// TransportName is the name used to register this backend.
const TransportName = "http"

// PublisherFactory creates the publisher. Tests may replace it.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory creates the subscriber. Tests may replace it.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates the HTTP publisher and subscriber. Either side is optional:
// an empty PublisherURL or ServerAddress leaves it nil.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if cfg.HTTP.PublisherURL == "" && cfg.HTTP.ServerAddress == "" {
		return transport.Transport{}, errors.New("http: publisher url or server address is required")
	}

	var tr transport.Transport
	if base := cfg.HTTP.PublisherURL; base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		publisher, err := PublisherFactory(http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(base+topic, msg)
			},
		}, logger)
		if err != nil {
			return transport.Transport{}, fmt.Errorf("http: create publisher: %w", err)
		}
		tr.Publisher = publisher
	}

	if addr := cfg.HTTP.ServerAddress; addr != "" {
		subscriber, err := SubscriberFactory(addr, http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		}, logger)
		if err != nil {
			if tr.Publisher != nil {
				_ = tr.Publisher.Close()
			}
			return transport.Transport{}, fmt.Errorf("http: create subscriber: %w", err)
		}
		tr.Subscriber = &startingSubscriber{Subscriber: subscriber, logger: logger}
	}
	return tr, nil
}

type httpServerStarter interface {
	StartHTTPServer() error
}

// startingSubscriber starts the subscriber's HTTP server once the first
// topic route is registered.
type startingSubscriber struct {
	message.Subscriber
	logger watermill.LoggerAdapter
	once   sync.Once
}

func (s *startingSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	messages, err := s.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	s.once.Do(func() {
		starter, ok := s.Subscriber.(httpServerStarter)
		if !ok {
			return
		}
		go func() {
			if err := starter.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				s.logger.Error("HTTP bridge server stopped", err, nil)
			}
		}()
	})
	return messages, nil
}
