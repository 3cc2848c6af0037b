package runtime

import (
	"slices"
	"strings"
)

// namespaceOf returns the part of topic before the first dot, or topic itself.
func namespaceOf(topic string) string {
	if i := strings.IndexByte(topic, '.'); i >= 0 {
		return topic[:i]
	}
	return topic
}

// namespaceSet records the namespace of every topic ever subscribed to. It
// only shrinks through reset.
type namespaceSet map[string]struct{}

func (n namespaceSet) add(topic string) {
	n[namespaceOf(topic)] = struct{}{}
}

// resolve returns the buckets consulted for a publish on topic: the exact
// topic first, then its namespace when that is known and differs from topic.
// A namespace never contains a dot, so the only namespace NS for which topic
// starts with NS+"." is namespaceOf(topic).
func (n namespaceSet) resolve(topic string) []string {
	ns := namespaceOf(topic)
	if ns == topic {
		return []string{topic}
	}
	if _, ok := n[ns]; !ok {
		return []string{topic}
	}
	return []string{topic, ns}
}

func (n namespaceSet) sorted() []string {
	out := make([]string, 0, len(n))
	for ns := range n {
		out = append(out, ns)
	}
	slices.Sort(out)
	return out
}

func (n namespaceSet) reset() {
	clear(n)
}
