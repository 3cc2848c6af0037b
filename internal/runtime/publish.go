package runtime

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/flowbus/internal/runtime/errors"
	executorpkg "github.com/drblury/flowbus/internal/runtime/executor"
	loggingpkg "github.com/drblury/flowbus/internal/runtime/logging"
)

// PublishOption customises a single publish.
type PublishOption func(*publishOptions)

type publishOptions struct {
	delay time.Duration
}

// WithDelay schedules the publish on the executor after d instead of
// delivering immediately. Non-positive durations publish immediately.
func WithDelay(d time.Duration) PublishOption {
	return func(o *publishOptions) {
		o.delay = d
	}
}

// Publish delivers msg to every subscriber of type T on topic and on the
// namespace of topic. Handler failures never surface here; the returned error
// only reports invalid arguments or a closed bus.
func Publish[T any](ctx context.Context, b *Bus, topic string, msg T, opts ...PublishOption) error {
	if b == nil {
		return errspkg.ErrBusRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if b.isClosed() {
		return errspkg.ErrBusClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var options publishOptions
	for _, opt := range opts {
		opt(&options)
	}

	pending := pendingMessage{
		ctx:         ctx,
		topic:       topic,
		messageType: messageTypeOf[T](),
		payload:     msg,
	}
	if options.delay > 0 {
		b.schedule(pending, options.delay)
		return nil
	}
	b.publish(pending)
	return nil
}

// PublishGlobal publishes msg on every topic that currently has a subscriber
// of type T. Per-topic failures are logged.
func PublishGlobal[T any](ctx context.Context, b *Bus, msg T) {
	if b == nil {
		return
	}
	b.mu.RLock()
	topics := b.subscriptions.topics(messageTypeOf[T]())
	b.mu.RUnlock()

	for _, topic := range topics {
		if err := Publish(ctx, b, topic, msg); err != nil {
			b.Logger.Error("Global publish failed", err, loggingpkg.LogFields{"topic": topic})
		}
	}
}

func (b *Bus) publish(msg pendingMessage) {
	ctx, span := b.tracer.Start(msg.ctx, "flowbus.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "flowbus"),
			attribute.String("messaging.destination.name", msg.topic),
			attribute.String("flowbus.message_type", msg.messageType.String()),
			attribute.String("flowbus.dispatch_mode", string(b.Conf.DispatchMode)),
		),
	)
	defer span.End()
	msg.ctx = ctx

	b.Logger.Trace("Publishing message", loggingpkg.LogFields{
		"topic":        msg.topic,
		"message_type": msg.messageType.String(),
	})
	b.metrics.recordPublished(msg.topic)
	b.dispatcher.deliver(msg)
}

// schedule arms an executor timer for a delayed publish. The timer is
// stopped when the publisher's context ends first.
func (b *Bus) schedule(msg pendingMessage, delay time.Duration) {
	fields := loggingpkg.LogFields{
		"topic":        msg.topic,
		"message_type": msg.messageType.String(),
		"delay_ms":     delay.Milliseconds(),
	}

	d := &delayedPublish{}
	timer, err := b.executor.PostAfter(delay, func() {
		d.release()
		switch {
		case msg.ctx.Err() != nil:
			b.Logger.Trace("Dropping delayed publish, context done", fields)
		case b.isClosed():
			b.Logger.Trace("Dropping delayed publish, bus closed", fields)
		default:
			b.publish(msg)
		}
	})
	if err != nil {
		b.Logger.Error("Failed to schedule delayed publish", err, fields)
		return
	}
	d.watch(msg.ctx, timer)
	b.Logger.Trace("Scheduled delayed publish", fields)
}

// delayedPublish ties a pending timer to the publisher's context.
type delayedPublish struct {
	mu    sync.Mutex
	fired bool
	stop  func() bool
}

func (d *delayedPublish) watch(ctx context.Context, timer executorpkg.Timer) {
	if ctx.Done() == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fired {
		return
	}
	d.stop = context.AfterFunc(ctx, func() { timer.Stop() })
}

func (d *delayedPublish) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fired = true
	if d.stop != nil {
		d.stop()
	}
}
