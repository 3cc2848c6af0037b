package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamespaceOf(t *testing.T) {
	tests := map[string]string{
		"sys":          "sys",
		"sys.alert":    "sys",
		"a.b.c":        "a",
		".leading":     "",
		"trailing.":    "trailing",
		"no-separator": "no-separator",
	}
	for topic, want := range tests {
		assert.Equal(t, want, namespaceOf(topic), topic)
	}
}

func TestNamespaceSetResolve(t *testing.T) {
	set := make(namespaceSet)
	assert.Equal(t, []string{"sys.alert"}, set.resolve("sys.alert"), "unknown namespace")

	set.add("sys.alert")
	assert.Equal(t, []string{"sys.alert", "sys"}, set.resolve("sys.alert"))
	assert.Equal(t, []string{"sys"}, set.resolve("sys"))
	assert.Equal(t, []string{"sys.a.b", "sys"}, set.resolve("sys.a.b"))
	assert.Equal(t, []string{"system"}, set.resolve("system"))
}

func TestNamespaceSetSortedAndReset(t *testing.T) {
	set := make(namespaceSet)
	set.add("orders.created")
	set.add("alerts")
	set.add("orders")

	assert.Equal(t, []string{"alerts", "orders"}, set.sorted())

	set.reset()
	assert.Empty(t, set.sorted())
}
