package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestBus(t *testing.T) (*redis.Client, *StreamsEventBus) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus, err := NewStreamsEventBus(client, "dagent-test", "consumer-1", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	return client, bus
}

func TestNewStreamsEventBus_RequiresNames(t *testing.T) {
	_, err := NewStreamsEventBus(nil, "", "c", zap.NewNop())
	assert.Error(t, err)
}

func TestStreamsEventBus_Publish(t *testing.T) {
	client, bus := setupTestBus(t)
	ctx := context.Background()

	event := domain.Event{
		ID:        "evt-1",
		Type:      domain.EventTypeTaskCompleted,
		RunID:     "run-1",
		TaskID:    "a",
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"agent": "writer"},
	}
	require.NoError(t, bus.Publish(ctx, domain.TopicTaskEvents, event))

	n, err := client.XLen(ctx, "dagent:events:task.events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	messages, err := client.XRange(ctx, "dagent:events:task.events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Values["data"], `"run_id":"run-1"`)
}

func TestStreamsEventBus_SubscribeFansOut(t *testing.T) {
	_, bus := setupTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	got := map[string][]string{}
	for _, name := range []string{"ws-1", "ws-2"} {
		name := name
		require.NoError(t, bus.Subscribe(ctx, domain.TopicRunEvents, func(_ context.Context, e domain.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got[name] = append(got[name], e.RunID)
			return nil
		}))
	}

	require.NoError(t, bus.Publish(ctx, domain.TopicRunEvents, domain.Event{ID: "1", Type: domain.EventTypeRunSubmitted, RunID: "run-7"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["ws-1"]) == 1 && len(got["ws-2"]) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"run-7"}, got["ws-1"])
	mu.Unlock()
}

func TestStreamsEventBus_SubscribeAfterClose(t *testing.T) {
	_, bus := setupTestBus(t)
	require.NoError(t, bus.Close())

	err := bus.Subscribe(context.Background(), domain.TopicRunEvents, func(context.Context, domain.Event) error { return nil })
	assert.Error(t, err)
}
