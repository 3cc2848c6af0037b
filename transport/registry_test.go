package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/flowbus/transport/transporttest"
)

func stubBuilder(pub *transporttest.Publisher, sub *transporttest.Subscriber) Builder {
	return func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{Publisher: pub, Subscriber: sub}, nil
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Names())
	assert.False(t, reg.Has("channel"))
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	reg := NewRegistry()
	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}
	reg.Register("test", stubBuilder(pub, sub), Capabilities{SupportsAck: true})

	assert.True(t, reg.Has("test"))
	assert.Equal(t, []string{"test"}, reg.Names())

	caps := reg.Capabilities("test")
	assert.Equal(t, "test", caps.Name)
	assert.True(t, caps.SupportsAck)

	tr, err := reg.Build(context.Background(), Config{Name: "test"}, nil)
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)
}

func TestRegistry_BuildErrors(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", stubBuilder(nil, nil), Capabilities{})
	reg.Register("a", stubBuilder(nil, nil), Capabilities{})

	_, err := reg.Build(context.Background(), Config{}, watermill.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")

	_, err = reg.Build(context.Background(), Config{Name: "missing"}, watermill.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "missing"`)
	assert.Contains(t, err.Error(), "[a b]")
}

func TestRegistry_BuilderErrorIsReturned(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("dial failed")
	reg.Register("broken", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, boom
	}, Capabilities{})

	_, err := reg.Build(context.Background(), Config{Name: "broken"}, watermill.NopLogger{})
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_UnknownCapabilities(t *testing.T) {
	caps := NewRegistry().Capabilities("nope")
	assert.Equal(t, Capabilities{Name: "nope"}, caps)
}

func TestDefaultRegistryHelpers(t *testing.T) {
	original := DefaultRegistry
	DefaultRegistry = NewRegistry()
	t.Cleanup(func() { DefaultRegistry = original })

	Register("mem", stubBuilder(&transporttest.Publisher{}, &transporttest.Subscriber{}), ChannelCapabilities)

	assert.Equal(t, "channel", GetCapabilities("mem").Name)
	_, err := Build(context.Background(), Config{Name: "mem"}, watermill.NopLogger{})
	assert.NoError(t, err)
}

func TestTransportClose(t *testing.T) {
	t.Run("closes both sides", func(t *testing.T) {
		pub := &transporttest.Publisher{}
		sub := &transporttest.Subscriber{}
		require.NoError(t, Transport{Publisher: pub, Subscriber: sub}.Close())
		assert.True(t, pub.Closed)
		assert.True(t, sub.Closed)
	})

	t.Run("closes a shared pubsub once", func(t *testing.T) {
		ps := &transporttest.PubSub{}
		require.NoError(t, Transport{Publisher: ps, Subscriber: ps}.Close())
		assert.Equal(t, 1, ps.Closes())
	})

	t.Run("empty transport", func(t *testing.T) {
		assert.NoError(t, Transport{}.Close())
	})
}

func TestCapabilities_SupportsReliableDelivery(t *testing.T) {
	assert.True(t, ChannelCapabilities.SupportsReliableDelivery())
	assert.True(t, RabbitMQCapabilities.SupportsReliableDelivery())
	assert.False(t, KafkaCapabilities.SupportsReliableDelivery())
	assert.False(t, NATSCapabilities.SupportsReliableDelivery())
}
