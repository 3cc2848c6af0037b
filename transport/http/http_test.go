package http

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/flowbus/transport"
	"github.com/drblury/flowbus/transport/transporttest"
)

type startableSubscriber struct {
	transporttest.Subscriber
	started chan struct{}
}

func (s *startableSubscriber) StartHTTPServer() error {
	close(s.started)
	return nil
}

func stubFactories(t *testing.T) {
	t.Helper()
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})
}

func TestRegisteredOnImport(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.GetCapabilities(TransportName).CrossProcess)
}

func TestBuild(t *testing.T) {
	t.Run("publisher appends the topic to the base url", func(t *testing.T) {
		stubFactories(t)
		var marshal watermillhttp.MarshalMessageFunc
		PublisherFactory = func(cfg watermillhttp.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			marshal = cfg.MarshalMessageFunc
			return &transporttest.Publisher{}, nil
		}

		tr, err := Build(context.Background(), transport.Config{
			HTTP: transport.HTTPConfig{PublisherURL: "http://localhost:8090/bridge"},
		}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.NotNil(t, tr.Publisher)
		assert.Nil(t, tr.Subscriber)

		req, err := marshal("orders.created", message.NewMessage("m-1", []byte(`{"id":"1"}`)))
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8090/bridge/orders.created", req.URL.String())
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"1"}`, string(body))
	})

	t.Run("subscriber starts its server on first subscribe", func(t *testing.T) {
		stubFactories(t)
		sub := &startableSubscriber{started: make(chan struct{})}
		var gotAddr string
		SubscriberFactory = func(addr string, _ watermillhttp.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
			gotAddr = addr
			return sub, nil
		}

		tr, err := Build(context.Background(), transport.Config{
			HTTP: transport.HTTPConfig{ServerAddress: ":8090"},
		}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Nil(t, tr.Publisher)
		assert.Equal(t, ":8090", gotAddr)

		select {
		case <-sub.started:
			t.Fatal("server started before any subscription")
		default:
		}

		_, err = tr.Subscriber.Subscribe(context.Background(), "orders")
		require.NoError(t, err)
		_, err = tr.Subscriber.Subscribe(context.Background(), "alerts")
		require.NoError(t, err)

		select {
		case <-sub.started:
		case <-time.After(5 * time.Second):
			t.Fatal("server not started")
		}
		assert.Equal(t, []string{"orders", "alerts"}, sub.Topics)
	})

	t.Run("requires an address", func(t *testing.T) {
		_, err := Build(context.Background(), transport.Config{}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "required")
	})

	t.Run("subscriber failure closes the publisher", func(t *testing.T) {
		stubFactories(t)
		pub := &transporttest.Publisher{}
		PublisherFactory = func(watermillhttp.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return pub, nil
		}
		SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("listen error")
		}

		_, err := Build(context.Background(), transport.Config{
			HTTP: transport.HTTPConfig{PublisherURL: "http://localhost:8090/", ServerAddress: ":8090"},
		}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "listen error")
		assert.True(t, pub.Closed)
	})
}
