package runtime

import "reflect"

// historyRing keeps the most recent messages of one (type, topic) pair.
type historyRing struct {
	items  []any
	next   int
	filled int
}

func newHistoryRing(size int) *historyRing {
	if size <= 0 {
		size = 1
	}
	return &historyRing{items: make([]any, size)}
}

func (h *historyRing) add(msg any) {
	h.items[h.next] = msg
	h.next = (h.next + 1) % len(h.items)
	if h.filled < len(h.items) {
		h.filled++
	}
}

// last returns up to count messages, oldest first.
func (h *historyRing) last(count int) []any {
	if count > h.filled {
		count = h.filled
	}
	if count <= 0 {
		return nil
	}
	out := make([]any, count)
	for i := 0; i < count; i++ {
		idx := h.next - count + i
		if idx < 0 {
			idx += len(h.items)
		}
		out[i] = h.items[idx]
	}
	return out
}

func (h *historyRing) len() int { return h.filled }

// historyStore holds one ring per (type, topic), created on first publish.
// All methods require the bus lock.
type historyStore struct {
	rings    map[reflect.Type]map[string]*historyRing
	capacity int
}

func newHistoryStore(capacity int) historyStore {
	return historyStore{
		rings:    make(map[reflect.Type]map[string]*historyRing),
		capacity: capacity,
	}
}

func (s *historyStore) record(typ reflect.Type, topic string, msg any) {
	byTopic, ok := s.rings[typ]
	if !ok {
		byTopic = make(map[string]*historyRing)
		s.rings[typ] = byTopic
	}
	ring, ok := byTopic[topic]
	if !ok {
		ring = newHistoryRing(s.capacity)
		byTopic[topic] = ring
	}
	ring.add(msg)
}

func (s *historyStore) last(typ reflect.Type, topic string, count int) []any {
	ring, ok := s.rings[typ][topic]
	if !ok {
		return nil
	}
	return ring.last(count)
}

// size is the number of messages retained across all rings.
func (s *historyStore) size() int {
	total := 0
	for _, byTopic := range s.rings {
		for _, ring := range byTopic {
			total += ring.len()
		}
	}
	return total
}

func (s *historyStore) reset() {
	clear(s.rings)
}
