package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInMemoryEventBus_DeliversToEverySubscriber(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	received := map[string]int{}
	for _, name := range []string{"first", "second"} {
		name := name
		require.NoError(t, bus.Subscribe(ctx, domain.TopicRunEvents, func(_ context.Context, e domain.Event) error {
			mu.Lock()
			defer mu.Unlock()
			received[name]++
			return errors.New("handler errors are only logged")
		}))
	}

	require.NoError(t, bus.Publish(context.Background(), domain.TopicRunEvents, domain.Event{ID: "1", Type: domain.EventTypeRunSubmitted}))
	require.NoError(t, bus.Publish(context.Background(), domain.TopicTaskEvents, domain.Event{ID: "2"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received["first"] == 1 && received["second"] == 1
	}, time.Second, time.Millisecond)
}

func TestInMemoryEventBus_UnsubscribesOnCancel(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	first, cancelFirst := context.WithCancel(context.Background())
	second, cancelSecond := context.WithCancel(context.Background())
	defer cancelSecond()

	noop := func(context.Context, domain.Event) error { return nil }
	require.NoError(t, bus.Subscribe(first, domain.TopicTaskEvents, noop))
	require.NoError(t, bus.Subscribe(second, domain.TopicTaskEvents, noop))
	assert.Equal(t, 2, bus.Subscribers(domain.TopicTaskEvents))

	cancelFirst()
	require.Eventually(t, func() bool {
		return bus.Subscribers(domain.TopicTaskEvents) == 1
	}, time.Second, time.Millisecond, "only the cancelled subscription is removed")

	require.NoError(t, bus.Close())
	assert.Equal(t, 0, bus.Subscribers(domain.TopicTaskEvents))
}
