package runtime

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/flowbus/internal/runtime/errors"
	idspkg "github.com/drblury/flowbus/internal/runtime/ids"
	jsoncodec "github.com/drblury/flowbus/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/flowbus/internal/runtime/logging"
	metadatapkg "github.com/drblury/flowbus/internal/runtime/metadata"
	"github.com/drblury/flowbus/transport"
)

var protoMessageType = reflect.TypeFor[proto.Message]()

// OpenBridge builds the transport named by cfg.Name from the default
// registry, logging through the bus logger. The bus closes the transport
// when it closes; callers may close it earlier.
func OpenBridge(ctx context.Context, b *Bus, cfg transport.Config) (transport.Transport, error) {
	if b == nil {
		return transport.Transport{}, errspkg.ErrBusRequired
	}
	if b.isClosed() {
		return transport.Transport{}, errspkg.ErrBusClosed
	}

	logger := b.Logger.With(loggingpkg.LogFields{"transport": cfg.Name})
	tr, err := transport.Build(ctx, cfg, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		return transport.Transport{}, err
	}

	b.bridgesMu.Lock()
	b.bridges = append(b.bridges, tr)
	b.bridgesMu.Unlock()

	logger.Info("Opened bridge transport", loggingpkg.LogFields{
		"capabilities": transport.GetCapabilities(cfg.Name),
	})
	return tr, nil
}

func (b *Bus) closeBridges() {
	b.bridgesMu.Lock()
	bridges := b.bridges
	b.bridges = nil
	b.bridgesMu.Unlock()

	for _, tr := range bridges {
		if err := tr.Close(); err != nil {
			b.Logger.Error("Failed to close bridge transport", err, nil)
		}
	}
}

// Forward mirrors every message of type T delivered for topic onto a
// Watermill publisher. Proto messages are encoded with protojson, everything
// else as JSON. An empty target publishes each message on the Watermill
// topic named after the bus topic it was published on.
func Forward[T any](b *Bus, topic string, publisher message.Publisher, target string) (Token, error) {
	if publisher == nil {
		return 0, errspkg.ErrPublisherRequired
	}
	return Subscribe(b, SubscriberRegistration[T]{
		Topic: topic,
		Handler: func(ctx context.Context, msg T) error {
			delivered, _ := DeliveredTopic(ctx)
			wm, err := newBridgeMessage(ctx, b, delivered, msg)
			if err != nil {
				return err
			}
			dest := target
			if dest == "" {
				dest = delivered
			}
			if err := publisher.Publish(dest, wm); err != nil {
				return fmt.Errorf("forward to %q: %w", dest, err)
			}
			return nil
		},
	})
}

// Ingest consumes source from a Watermill subscriber and republishes each
// message on the bus as T until ctx ends or the subscription closes. With an
// empty topic the bus topic comes from the message metadata, then from
// source. Undecodable messages are logged and acked; a publish rejected by
// the bus nacks the message and stops ingestion.
func Ingest[T any](ctx context.Context, b *Bus, subscriber message.Subscriber, source, topic string) error {
	if b == nil {
		return errspkg.ErrBusRequired
	}
	if subscriber == nil {
		return errspkg.ErrSubscriberRequired
	}
	messages, err := subscriber.Subscribe(ctx, source)
	if err != nil {
		return fmt.Errorf("subscribe to %q: %w", source, err)
	}

	b.Logger.Info("Ingesting bridged messages", loggingpkg.LogFields{
		"source":       source,
		"topic":        topic,
		"message_type": messageTypeOf[T]().String(),
	})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wm, ok := <-messages:
			if !ok {
				return nil
			}
			if err := ingestMessage[T](b, wm, source, topic); err != nil {
				return err
			}
		}
	}
}

func ingestMessage[T any](b *Bus, wm *message.Message, source, topic string) error {
	msg, err := decodePayload[T](wm.Payload)
	if err != nil {
		b.Logger.Error("Dropping undecodable bridged message", err, loggingpkg.LogFields{
			"source":       source,
			"message_uuid": wm.UUID,
		})
		wm.Ack()
		return nil
	}

	dest := topic
	if dest == "" {
		dest = metadatapkg.FromWatermill(wm.Metadata).Topic()
	}
	if dest == "" {
		dest = source
	}
	if err := Publish(wm.Context(), b, dest, msg); err != nil {
		wm.Nack()
		return err
	}
	wm.Ack()
	return nil
}

func newBridgeMessage[T any](ctx context.Context, b *Bus, topic string, msg T) (*message.Message, error) {
	payload, contentType, err := encodePayload(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	wm := message.NewMessage(idspkg.CreateULID(), payload)
	wm.Metadata = metadatapkg.ToWatermill(metadatapkg.New(
		metadatapkg.TopicKey, topic,
		metadatapkg.TypeKey, messageTypeOf[T]().String(),
		metadatapkg.ContentTypeKey, contentType,
		metadatapkg.BusIDKey, b.id,
	))
	wm.SetContext(ctx)
	return wm, nil
}

func encodePayload(msg any) ([]byte, string, error) {
	if pm, ok := msg.(proto.Message); ok {
		data, err := protojson.Marshal(pm)
		return data, metadatapkg.ContentTypeProtoJSON, err
	}
	data, err := jsoncodec.Marshal(msg)
	return data, metadatapkg.ContentTypeJSON, err
}

func decodePayload[T any](payload []byte) (T, error) {
	var out T
	typ := messageTypeOf[T]()
	if typ.Kind() == reflect.Pointer && typ.Implements(protoMessageType) {
		out = reflect.New(typ.Elem()).Interface().(T)
		err := protojson.Unmarshal(payload, any(out).(proto.Message))
		return out, err
	}
	err := jsoncodec.Unmarshal(payload, &out)
	return out, err
}
