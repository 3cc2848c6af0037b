package runtime

import (
	"context"
	"errors"
	"reflect"
	"runtime/debug"
	"time"

	errspkg "github.com/drblury/flowbus/internal/runtime/errors"
	loggingpkg "github.com/drblury/flowbus/internal/runtime/logging"
)

// pendingMessage is one publish travelling through a backend.
type pendingMessage struct {
	ctx         context.Context
	topic       string
	messageType reflect.Type
	payload     any
}

// dispatcher is an execution backend. Both backends share dispatchLocked and
// differ in which lock they hold and when.
type dispatcher interface {
	deliver(msg pendingMessage)
	pending() int
	active() bool
	close()
}

// spentSubscription is a once-subscriber invoked during a dispatch.
type spentSubscription struct {
	topic string
	token Token
}

// dispatchLocked routes msg to the exact topic bucket and then to its
// namespace bucket, invoking each accepting subscriber at most once. The
// caller holds b.mu and removes the returned once-subscribers.
func (b *Bus) dispatchLocked(msg pendingMessage) []spentSubscription {
	byTopic := b.subscriptions.buckets[msg.messageType]
	if len(byTopic) == 0 {
		return nil
	}

	invoked := make(map[Token]struct{})
	var spent []spentSubscription
	for _, key := range b.namespaces.resolve(msg.topic) {
		for _, sub := range byTopic[key] {
			if _, done := invoked[sub.token]; done {
				continue
			}
			if !b.accepts(sub, msg) {
				continue
			}
			invoked[sub.token] = struct{}{}
			b.invoke(sub, msg)
			if sub.once {
				spent = append(spent, spentSubscription{topic: key, token: sub.token})
			}
		}
	}
	return spent
}

func (b *Bus) removeSpentLocked(typ reflect.Type, spent []spentSubscription) {
	if len(spent) == 0 {
		return
	}
	for _, s := range spent {
		b.subscriptions.removeFromTopic(typ, s.topic, s.token)
	}
	b.metrics.setSubscribers(b.subscriptions.total)
}

// accepts runs the subscriber filter. A panicking filter rejects the message.
func (b *Bus) accepts(sub *subscriber, msg pendingMessage) (ok bool) {
	if sub.filter == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			b.Logger.Error("Subscriber filter panicked", &errspkg.PanicError{Value: r, Stack: debug.Stack()}, subscriberFields(sub, msg.topic))
			ok = false
		}
	}()
	return sub.filter(msg.payload)
}

func (b *Bus) invoke(sub *subscriber, msg pendingMessage) {
	if !sub.async {
		b.runHandler(msg.ctx, sub, msg)
		return
	}

	// Async handlers outlive the publish call: they keep the publisher's
	// context values but not its cancellation.
	ctx := context.WithoutCancel(msg.ctx)
	if err := b.executor.Post(func() { b.runHandler(ctx, sub, msg) }); err != nil {
		b.Logger.Error("Failed to schedule async delivery", err, subscriberFields(sub, msg.topic))
		b.metrics.recordDelivery(msg.topic, deliveryResultDropped, 0)
	}
}

func (b *Bus) runHandler(ctx context.Context, sub *subscriber, msg pendingMessage) {
	ctx = withDeliveredTopic(ctx, msg.topic)
	info := DeliveryContext{
		Topic:           msg.topic,
		SubscribedTopic: sub.topic,
		MessageType:     sub.messageType.String(),
		Token:           sub.token,
		Async:           sub.async,
		Once:            sub.once,
		Context:         ctx,
		StartedAt:       time.Now(),
	}
	b.hooks.start(info)

	err := callHandler(ctx, sub, msg.payload)
	info.Duration = time.Since(info.StartedAt)
	b.hooks.finish(info, err)

	result := deliveryResultSuccess
	if err != nil {
		result = deliveryResultError
		var panicErr *errspkg.PanicError
		if errors.As(err, &panicErr) {
			result = deliveryResultPanic
		}
		b.Logger.Error("Subscriber failed", err, subscriberFields(sub, msg.topic))
	}
	b.metrics.recordDelivery(msg.topic, result, info.Duration)
}

func callHandler(ctx context.Context, sub *subscriber, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errspkg.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return sub.handler(ctx, payload)
}

func subscriberFields(sub *subscriber, topic string) loggingpkg.LogFields {
	return loggingpkg.LogFields{
		"topic":            topic,
		"subscribed_topic": sub.topic,
		"message_type":     sub.messageType.String(),
		"token":            uint64(sub.token),
	}
}

// directDispatcher delivers on the publisher's goroutine under the write
// lock, so once-subscribers are removed before any other publish can see them.
type directDispatcher struct {
	bus *Bus
}

func (d directDispatcher) deliver(msg pendingMessage) {
	b := d.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	spent := b.dispatchLocked(msg)
	b.removeSpentLocked(msg.messageType, spent)
	b.history.record(msg.messageType, msg.topic, msg.payload)
}

func (directDispatcher) pending() int { return 0 }

func (directDispatcher) active() bool { return true }

func (directDispatcher) close() {}
