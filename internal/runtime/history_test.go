package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/flowbus/internal/runtime/config"
)

func TestHistoryRing(t *testing.T) {
	ring := newHistoryRing(3)
	assert.Nil(t, ring.last(5))

	for i := 1; i <= 5; i++ {
		ring.add(i)
	}

	assert.Equal(t, 3, ring.len())
	assert.Equal(t, []any{3, 4, 5}, ring.last(10))
	assert.Equal(t, []any{4, 5}, ring.last(2))
	assert.Nil(t, ring.last(0))
	assert.Nil(t, ring.last(-1))
}

func TestHistoryRingMinimumSize(t *testing.T) {
	ring := newHistoryRing(0)
	ring.add("a")
	ring.add("b")
	assert.Equal(t, []any{"b"}, ring.last(5))
}

func TestMessageHistoryIsBoundedPerTopic(t *testing.T) {
	b, _ := newTestBus(t, configpkg.Config{MaxHistorySize: 3}, BusDependencies{})

	for i := range 5 {
		require.NoError(t, Publish(context.Background(), b, "numbers", i))
	}
	require.NoError(t, Publish(context.Background(), b, "other", 42))

	assert.Equal(t, []int{2, 3, 4}, MessageHistory[int](b, "numbers", 10))
	assert.Equal(t, []int{3, 4}, MessageHistory[int](b, "numbers", 2))
	assert.Equal(t, []int{42}, MessageHistory[int](b, "other", 10))
	assert.Empty(t, MessageHistory[int](b, "missing", 10))
	assert.Empty(t, MessageHistory[string](b, "numbers", 10), "history is keyed by type")
	assert.Equal(t, 4, b.Statistics().HistorySize)
}

func TestMessageHistoryRecordsExactTopicOnly(t *testing.T) {
	b, _ := newTestBus(t, configpkg.Config{}, BusDependencies{})

	require.NoError(t, Publish(context.Background(), b, "sys.alert", alert{Text: "x"}))

	assert.Len(t, MessageHistory[alert](b, "sys.alert", 10), 1)
	assert.Empty(t, MessageHistory[alert](b, "sys", 10))
}
