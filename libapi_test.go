package flowbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/flowbus/transport"
	_ "github.com/drblury/flowbus/transport/channel"
)

type greeting struct {
	Text string `json:"text"`
}

func newTestBus(t *testing.T, conf Config) (*Bus, *Manual) {
	t.Helper()
	manual := NewManual()
	b, err := TryNewBus(&conf, NewNopBusLogger(), BusDependencies{Executor: manual})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, b.Close(context.Background()))
		manual.Stop()
	})
	return b, manual
}

func TestSubscribeAndPublishExports(t *testing.T) {
	b, manual := newTestBus(t, Config{})

	var got []string
	_, err := Subscribe(b, SubscriberRegistration[greeting]{
		Topic: "greetings",
		Sync:  true,
		Handler: func(_ context.Context, msg greeting) error {
			got = append(got, msg.Text)
			return nil
		},
	})
	require.NoError(t, err)
	token, err := SubscribeFunc(b, "greetings.en", func(_ context.Context, msg greeting) error {
		got = append(got, "async:"+msg.Text)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, Publish(context.Background(), b, "greetings.en", greeting{Text: "hello"}))
	manual.Drain()

	assert.Equal(t, []string{"hello", "async:hello"}, got)
	assert.Equal(t, 1, SubscriberCount[greeting](b, "greetings.en"))
	assert.True(t, HasSubscriber[greeting](b, "greetings"))
	assert.Equal(t, []greeting{{Text: "hello"}}, MessageHistory[greeting](b, "greetings.en", 10))
	assert.Equal(t, []string{"greetings"}, b.ActiveNamespaces())

	Unsubscribe[greeting](b, token)
	assert.False(t, HasSubscriber[greeting](b, "greetings.en"))
	UnsubscribeAll[greeting](b, "greetings")
	assert.Zero(t, b.Statistics().SubscriberCount)
}

func TestDelayedPublishExport(t *testing.T) {
	b, manual := newTestBus(t, Config{DispatchMode: DispatchDirect})

	var got []greeting
	_, err := Subscribe(b, SubscriberRegistration[greeting]{
		Topic: "ping",
		Sync:  true,
		Handler: func(_ context.Context, msg greeting) error {
			got = append(got, msg)
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, Publish(context.Background(), b, "ping", greeting{Text: "pong"}, WithDelay(100*time.Millisecond)))
	assert.Empty(t, got)
	manual.Advance(150 * time.Millisecond)
	assert.Equal(t, []greeting{{Text: "pong"}}, got)
}

func TestReceiveOnceExport(t *testing.T) {
	b, _ := newTestBus(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := ReceiveOnce[greeting](ctx, b, "quiet")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishGlobalExport(t *testing.T) {
	b, _ := newTestBus(t, Config{})

	var topics []string
	for _, topic := range []string{"b", "a"} {
		_, err := Subscribe(b, SubscriberRegistration[greeting]{
			Topic: topic,
			Sync:  true,
			Handler: func(ctx context.Context, _ greeting) error {
				delivered, _ := DeliveredTopic(ctx)
				topics = append(topics, delivered)
				return nil
			},
		})
		require.NoError(t, err)
	}

	PublishGlobal(context.Background(), b, greeting{Text: "all"})
	assert.Equal(t, []string{"a", "b"}, topics)
}

func TestErrorExports(t *testing.T) {
	_, err := TryNewBus(nil, NewNopBusLogger(), BusDependencies{})
	assert.ErrorIs(t, err, ErrConfigRequired)

	_, err = TryNewBus(&Config{DispatchMode: "bogus"}, NewNopBusLogger(), BusDependencies{})
	var cfgErr ConfigValidationError
	assert.True(t, errors.As(err, &cfgErr))

	b, _ := newTestBus(t, Config{})
	_, err = SubscribeFunc[greeting](b, "", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.True(t, errors.Is(ErrTopicRequired, ErrInvalidArgument))
	assert.NoError(t, ValidateConfig(&Config{}))
}

func TestBridgeExports(t *testing.T) {
	b, manual := newTestBus(t, Config{})
	tr, err := OpenBridge(context.Background(), b, TransportConfig{
		Name:    "channel",
		Channel: transport.ChannelConfig{Persistent: true},
	})
	require.NoError(t, err)
	assert.True(t, GetCapabilities("channel").SupportsReliableDelivery())

	messages, err := tr.Subscriber.Subscribe(context.Background(), "wire")
	require.NoError(t, err)
	_, err = Forward[greeting](b, "greetings", tr.Publisher, "wire")
	require.NoError(t, err)

	require.NoError(t, Publish(context.Background(), b, "greetings", greeting{Text: "bridged"}))
	manual.Drain()

	select {
	case msg := <-messages:
		msg.Ack()
		var decoded greeting
		require.NoError(t, Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, "bridged", decoded.Text)
		assert.Equal(t, "greetings", msg.Metadata.Get(MetadataKeyTopic))
		assert.Equal(t, b.ID(), msg.Metadata.Get(MetadataKeyBusID))
	case <-time.After(5 * time.Second):
		t.Fatal("message not forwarded")
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NewEntryBusLogger(&stubEntry{})
	logger.Info("boot", LogFields{"component": "test"})
	NewWatermillBusLogger(watermill.NopLogger{}).Debug("debug", nil)
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	_, err := Marshal(payload)
	require.NoError(t, err)
	_, err = MarshalIndent(payload, "", "  ")
	require.NoError(t, err)
	require.NoError(t, Unmarshal([]byte(`{"hello":"world"}`), &payload))
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata("key", "value")
	assert.Equal(t, "value", md["key"])
	assert.Len(t, CreateULID(), 26)
}

type stubEntry struct {
	fields LogFields
	err    error
}

func (s *stubEntry) Error(args ...any) {}
func (s *stubEntry) Info(args ...any)  {}
func (s *stubEntry) Debug(args ...any) {}
func (s *stubEntry) Trace(args ...any) {}

func (s *stubEntry) WithError(err error) *stubEntry {
	clone := *s
	clone.err = err
	return &clone
}

func (s *stubEntry) WithField(key string, value any) *stubEntry {
	clone := *s
	if clone.fields == nil {
		clone.fields = make(LogFields)
	}
	clone.fields[key] = value
	return &clone
}
