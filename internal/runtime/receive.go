package runtime

import (
	"context"

	errspkg "github.com/drblury/flowbus/internal/runtime/errors"
)

// ReceiveOnce waits for the next message of type T on topic (or below it, when
// topic is a namespace). It returns ctx.Err() when ctx ends first and
// ErrNoMessageReceived when the bus closes first. The temporary subscription
// is always removed before returning.
func ReceiveOnce[T any](ctx context.Context, b *Bus, topic string) (T, error) {
	var zero T
	received := make(chan T, 1)

	token, err := Subscribe(b, SubscriberRegistration[T]{
		Topic: topic,
		Once:  true,
		Handler: func(_ context.Context, msg T) error {
			select {
			case received <- msg:
			default:
			}
			return nil
		},
	})
	if err != nil {
		return zero, err
	}
	defer Unsubscribe[T](b, token)

	select {
	case msg := <-received:
		return msg, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-b.done:
		select {
		case msg := <-received:
			return msg, nil
		default:
			return zero, errspkg.ErrNoMessageReceived
		}
	}
}
