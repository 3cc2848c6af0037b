package runtime

import (
	"context"
	"reflect"
	"slices"
	"time"
)

// Token identifies one subscription. Tokens are issued in increasing order,
// never reused, and 0 never names a live subscription.
type Token uint64

// subscriber is the type-erased form of a registration. handler and filter
// perform the checked conversion back to the registered message type.
type subscriber struct {
	token        Token
	topic        string
	messageType  reflect.Type
	handler      func(ctx context.Context, msg any) error
	filter       func(msg any) bool
	async        bool
	once         bool
	subscribedAt time.Time
}

// subscriptionTable maps message type to topic to subscribers in
// registration order. All methods require the bus lock.
type subscriptionTable struct {
	buckets   map[reflect.Type]map[string][]*subscriber
	nextToken Token
	total     int
}

func newSubscriptionTable() subscriptionTable {
	return subscriptionTable{buckets: make(map[reflect.Type]map[string][]*subscriber)}
}

func (t *subscriptionTable) issueToken() Token {
	t.nextToken++
	return t.nextToken
}

func (t *subscriptionTable) bucket(typ reflect.Type, topic string) []*subscriber {
	return t.buckets[typ][topic]
}

func (t *subscriptionTable) add(sub *subscriber) {
	byTopic, ok := t.buckets[sub.messageType]
	if !ok {
		byTopic = make(map[string][]*subscriber)
		t.buckets[sub.messageType] = byTopic
	}
	byTopic[sub.topic] = append(byTopic[sub.topic], sub)
	t.total++
}

// removeToken drops token from the buckets of typ and reports the topic it
// was registered on.
func (t *subscriptionTable) removeToken(typ reflect.Type, token Token) (string, bool) {
	for topic, subs := range t.buckets[typ] {
		if t.removeFromBucket(typ, topic, subs, token) {
			return topic, true
		}
	}
	return "", false
}

// removeFromTopic is removeToken restricted to one bucket.
func (t *subscriptionTable) removeFromTopic(typ reflect.Type, topic string, token Token) bool {
	return t.removeFromBucket(typ, topic, t.buckets[typ][topic], token)
}

func (t *subscriptionTable) removeFromBucket(typ reflect.Type, topic string, subs []*subscriber, token Token) bool {
	idx := slices.IndexFunc(subs, func(s *subscriber) bool { return s.token == token })
	if idx < 0 {
		return false
	}
	t.total--
	subs = slices.Delete(subs, idx, idx+1)
	if len(subs) > 0 {
		t.buckets[typ][topic] = subs
		return true
	}
	delete(t.buckets[typ], topic)
	if len(t.buckets[typ]) == 0 {
		delete(t.buckets, typ)
	}
	return true
}

// removeTopic drops the whole bucket and returns how many subscribers it held.
func (t *subscriptionTable) removeTopic(typ reflect.Type, topic string) int {
	n := len(t.buckets[typ][topic])
	if n == 0 {
		return 0
	}
	t.total -= n
	delete(t.buckets[typ], topic)
	if len(t.buckets[typ]) == 0 {
		delete(t.buckets, typ)
	}
	return n
}

func (t *subscriptionTable) topics(typ reflect.Type) []string {
	topics := make([]string, 0, len(t.buckets[typ]))
	for topic := range t.buckets[typ] {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// reset forgets every subscription. The token counter keeps counting so
// tokens handed out before the reset can never match a later subscription.
func (t *subscriptionTable) reset() {
	clear(t.buckets)
	t.total = 0
}

func (t *subscriptionTable) all() []*subscriber {
	out := make([]*subscriber, 0, t.total)
	for _, byTopic := range t.buckets {
		for _, subs := range byTopic {
			out = append(out, subs...)
		}
	}
	slices.SortFunc(out, func(a, b *subscriber) int {
		switch {
		case a.token < b.token:
			return -1
		case a.token > b.token:
			return 1
		}
		return 0
	})
	return out
}
