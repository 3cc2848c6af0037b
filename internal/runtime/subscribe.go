package runtime

import (
	"context"
	"fmt"
	"reflect"
	"time"

	errspkg "github.com/drblury/flowbus/internal/runtime/errors"
	loggingpkg "github.com/drblury/flowbus/internal/runtime/logging"
)

// Handler processes one message of type T. Returned errors are logged and
// counted; they never reach the publisher.
type Handler[T any] func(ctx context.Context, msg T) error

// Filter decides whether a subscriber wants a message.
type Filter[T any] func(msg T) bool

// SubscriberRegistration describes a subscription for messages of type T.
type SubscriberRegistration[T any] struct {
	// Topic is the exact topic, or a namespace (the part of a topic before
	// its first dot) to also receive every topic below it.
	Topic   string
	Handler Handler[T]
	// Sync runs the handler on the dispatching goroutine while the bus lock is
	// held. Sync handlers must not call back into the bus.
	Sync bool
	// Once removes the subscription after its first delivery. In staged mode
	// removal follows the dispatch, so a concurrent dispatch may reach it too.
	Once bool
	// Filter is optional; nil accepts every message.
	Filter Filter[T]
}

func messageTypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// asMessage converts a stored payload back to T. A nil payload is the zero
// value of an interface T.
func asMessage[T any](payload any) (T, bool) {
	if payload == nil {
		var zero T
		return zero, true
	}
	msg, ok := payload.(T)
	return msg, ok
}

// Subscribe registers reg on b and returns the token that identifies it.
func Subscribe[T any](b *Bus, reg SubscriberRegistration[T]) (Token, error) {
	if b == nil {
		return 0, errspkg.ErrBusRequired
	}
	if reg.Topic == "" {
		return 0, errspkg.ErrTopicRequired
	}
	if reg.Handler == nil {
		return 0, errspkg.ErrHandlerRequired
	}
	if b.isClosed() {
		return 0, errspkg.ErrBusClosed
	}

	typ := messageTypeOf[T]()
	handler := reg.Handler
	sub := &subscriber{
		topic:       reg.Topic,
		messageType: typ,
		async:       !reg.Sync,
		once:        reg.Once,
		handler: func(ctx context.Context, payload any) error {
			msg, ok := asMessage[T](payload)
			if !ok {
				return fmt.Errorf("flowbus: unexpected payload %T for subscriber of %s", payload, typ)
			}
			return handler(ctx, msg)
		},
		subscribedAt: time.Now(),
	}
	if reg.Filter != nil {
		filter := reg.Filter
		sub.filter = func(payload any) bool {
			msg, ok := asMessage[T](payload)
			return ok && filter(msg)
		}
	}

	b.mu.Lock()
	if limit := b.Conf.MaxSubscribersPerTopic; len(b.subscriptions.bucket(typ, reg.Topic)) >= limit {
		b.mu.Unlock()
		return 0, fmt.Errorf("%w: topic %q already has %d subscribers for %s", errspkg.ErrLimitExceeded, reg.Topic, limit, typ)
	}
	sub.token = b.subscriptions.issueToken()
	b.subscriptions.add(sub)
	b.namespaces.add(reg.Topic)
	total := b.subscriptions.total
	b.mu.Unlock()

	b.metrics.setSubscribers(total)
	b.Logger.Info("Subscribed", loggingpkg.LogFields{
		"topic":        reg.Topic,
		"message_type": typ.String(),
		"token":        uint64(sub.token),
		"async":        sub.async,
		"once":         sub.once,
	})
	return sub.token, nil
}

// SubscribeFunc registers an async subscriber without a filter.
func SubscribeFunc[T any](b *Bus, topic string, handler Handler[T]) (Token, error) {
	return Subscribe(b, SubscriberRegistration[T]{Topic: topic, Handler: handler})
}

// Unsubscribe removes the subscription of type T identified by token. Unknown
// tokens are ignored.
func Unsubscribe[T any](b *Bus, token Token) {
	if b == nil || token == 0 {
		return
	}
	typ := messageTypeOf[T]()

	b.mu.Lock()
	topic, removed := b.subscriptions.removeToken(typ, token)
	total := b.subscriptions.total
	b.mu.Unlock()

	if !removed {
		return
	}
	b.metrics.setSubscribers(total)
	b.Logger.Info("Unsubscribed", loggingpkg.LogFields{
		"topic":        topic,
		"message_type": typ.String(),
		"token":        uint64(token),
	})
}

// UnsubscribeAll removes every subscriber of type T registered on exactly
// topic.
func UnsubscribeAll[T any](b *Bus, topic string) {
	if b == nil {
		return
	}
	typ := messageTypeOf[T]()

	b.mu.Lock()
	removed := b.subscriptions.removeTopic(typ, topic)
	total := b.subscriptions.total
	b.mu.Unlock()

	if removed == 0 {
		return
	}
	b.metrics.setSubscribers(total)
	b.Logger.Info("Unsubscribed all", loggingpkg.LogFields{
		"topic":        topic,
		"message_type": typ.String(),
		"removed":      removed,
	})
}

// SubscriberCount returns the number of subscribers of type T registered on
// exactly topic.
func SubscriberCount[T any](b *Bus, topic string) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions.bucket(messageTypeOf[T](), topic))
}

// HasSubscriber reports whether any subscriber of type T is registered on
// exactly topic.
func HasSubscriber[T any](b *Bus, topic string) bool {
	return SubscriberCount[T](b, topic) > 0
}

// MessageHistory returns up to count of the most recent messages of type T
// published on exactly topic, oldest first.
func MessageHistory[T any](b *Bus, topic string, count int) []T {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	stored := b.history.last(messageTypeOf[T](), topic, count)
	b.mu.RUnlock()

	out := make([]T, 0, len(stored))
	for _, payload := range stored {
		if msg, ok := asMessage[T](payload); ok {
			out = append(out, msg)
		}
	}
	return out
}
