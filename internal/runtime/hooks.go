package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/flowbus/internal/runtime/logging"
)

// DeliveryContext describes one handler invocation to hooks.
type DeliveryContext struct {
	// Topic is the topic the message was published on.
	Topic string
	// SubscribedTopic is the topic the subscriber registered for. It differs
	// from Topic when the delivery was routed through a namespace.
	SubscribedTopic string
	// MessageType is the Go type name of the payload.
	MessageType string
	Token       Token
	Async       bool
	Once        bool
	// Context is the context passed to the handler.
	Context context.Context
	// StartedAt is when the handler was invoked.
	StartedAt time.Time
	// Duration is how long the handler ran (only set in OnDeliveryDone and OnDeliveryError).
	Duration time.Duration
}

// DeliveryHooks defines callbacks around every handler invocation.
// All hooks are optional - nil hooks are simply not called.
type DeliveryHooks struct {
	// OnDeliveryStart is called right before the handler runs.
	OnDeliveryStart func(ctx DeliveryContext)

	// OnDeliveryDone is called when the handler returned nil.
	OnDeliveryDone func(ctx DeliveryContext)

	// OnDeliveryError is called when the handler returned an error or
	// panicked. Panics arrive as *errors.PanicError.
	OnDeliveryError func(ctx DeliveryContext, err error)
}

// Merge combines two DeliveryHooks, creating a new DeliveryHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h DeliveryHooks) Merge(other DeliveryHooks) DeliveryHooks {
	return DeliveryHooks{
		OnDeliveryStart: chainHooks(h.OnDeliveryStart, other.OnDeliveryStart),
		OnDeliveryDone:  chainHooks(h.OnDeliveryDone, other.OnDeliveryDone),
		OnDeliveryError: chainErrorHooks(h.OnDeliveryError, other.OnDeliveryError),
	}
}

func chainHooks(a, b func(DeliveryContext)) func(DeliveryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DeliveryContext, error)) func(DeliveryContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h DeliveryHooks) start(ctx DeliveryContext) {
	if h.OnDeliveryStart != nil {
		h.OnDeliveryStart(ctx)
	}
}

func (h DeliveryHooks) finish(ctx DeliveryContext, err error) {
	if err != nil {
		if h.OnDeliveryError != nil {
			h.OnDeliveryError(ctx, err)
		}
		return
	}
	if h.OnDeliveryDone != nil {
		h.OnDeliveryDone(ctx)
	}
}

// LoggingHooks returns pre-built hooks that log every delivery at trace level
// and failures at error level.
func LoggingHooks(logger loggingpkg.BusLogger) DeliveryHooks {
	return DeliveryHooks{
		OnDeliveryStart: func(ctx DeliveryContext) {
			logger.Trace("Delivery started", deliveryFields(ctx))
		},
		OnDeliveryDone: func(ctx DeliveryContext) {
			fields := deliveryFields(ctx)
			fields["duration_ms"] = ctx.Duration.Milliseconds()
			logger.Trace("Delivery completed", fields)
		},
		OnDeliveryError: func(ctx DeliveryContext, err error) {
			fields := deliveryFields(ctx)
			fields["duration_ms"] = ctx.Duration.Milliseconds()
			logger.Error("Delivery failed", err, fields)
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger alerts on delivery errors.
func AlertingHooks(alertFunc func(ctx DeliveryContext, err error)) DeliveryHooks {
	return DeliveryHooks{
		OnDeliveryError: alertFunc,
	}
}

func deliveryFields(ctx DeliveryContext) loggingpkg.LogFields {
	return loggingpkg.LogFields{
		"topic":            ctx.Topic,
		"subscribed_topic": ctx.SubscribedTopic,
		"message_type":     ctx.MessageType,
		"token":            uint64(ctx.Token),
		"async":            ctx.Async,
	}
}
