package runtime

import "context"

type deliveredTopicKey struct{}

func withDeliveredTopic(ctx context.Context, topic string) context.Context {
	return context.WithValue(ctx, deliveredTopicKey{}, topic)
}

// DeliveredTopic returns the topic a message was published on from inside a
// handler. Subscribers on a namespace use it to tell apart the topics routed
// to them.
func DeliveredTopic(ctx context.Context) (string, bool) {
	topic, ok := ctx.Value(deliveredTopicKey{}).(string)
	return topic, ok
}
