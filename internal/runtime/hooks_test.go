package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryHooks_Merge(t *testing.T) {
	var calls []string
	first := DeliveryHooks{
		OnDeliveryStart: func(DeliveryContext) { calls = append(calls, "first.start") },
		OnDeliveryError: func(DeliveryContext, error) { calls = append(calls, "first.error") },
	}
	second := DeliveryHooks{
		OnDeliveryStart: func(DeliveryContext) { calls = append(calls, "second.start") },
		OnDeliveryDone:  func(DeliveryContext) { calls = append(calls, "second.done") },
	}

	merged := first.Merge(second)
	merged.start(DeliveryContext{})
	merged.finish(DeliveryContext{}, nil)
	merged.finish(DeliveryContext{}, errors.New("boom"))

	assert.Equal(t, []string{"first.start", "second.start", "second.done", "first.error"}, calls)
}

func TestDeliveryHooks_NilHooksAreSkipped(t *testing.T) {
	var hooks DeliveryHooks
	assert.NotPanics(t, func() {
		hooks.start(DeliveryContext{})
		hooks.finish(DeliveryContext{}, nil)
		hooks.finish(DeliveryContext{}, errors.New("boom"))
	})

	merged := hooks.Merge(DeliveryHooks{})
	assert.Nil(t, merged.OnDeliveryStart)
	assert.Nil(t, merged.OnDeliveryDone)
	assert.Nil(t, merged.OnDeliveryError)
}

func TestLoggingHooks(t *testing.T) {
	logger := newRecordingLogger()
	hooks := LoggingHooks(logger)

	info := DeliveryContext{Topic: "sys.alert", SubscribedTopic: "sys", MessageType: "alert", Token: 3}
	hooks.start(info)
	hooks.finish(info, nil)
	hooks.finish(info, errors.New("handler failed"))

	assert.Equal(t, []string{"Delivery started", "Delivery completed", "Delivery failed"}, logger.messages())
	errs := logger.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "sys.alert", errs[0].fields["topic"])
	assert.Equal(t, "sys", errs[0].fields["subscribed_topic"])
	assert.Equal(t, uint64(3), errs[0].fields["token"])
}

func TestAlertingHooks(t *testing.T) {
	var alerted []string
	hooks := AlertingHooks(func(ctx DeliveryContext, err error) {
		alerted = append(alerted, ctx.Topic+": "+err.Error())
	})

	hooks.finish(DeliveryContext{Topic: "orders"}, nil)
	hooks.finish(DeliveryContext{Topic: "orders"}, errors.New("declined"))

	assert.Equal(t, []string{"orders: declined"}, alerted)
}
