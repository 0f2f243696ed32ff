package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	streamKeyPrefix = "dagent:events:"

	// streamMaxLen caps each stream; older entries are trimmed approximately
	streamMaxLen = 10000
)

// StreamsEventBus implements EventBus using Redis Streams.
//
// Every bus reads each subscribed topic once through its consumer group and
// fans events out to all local handlers of that topic. Run several processes
// with distinct group names to give each of them the full event stream.
type StreamsEventBus struct {
	client        *redis.Client
	logger        *zap.Logger
	consumerGroup string
	consumerName  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	subscribers map[string]map[uint64]ports.EventHandler
	nextID      uint64
}

// NewStreamsEventBus creates a new Redis Streams event bus
func NewStreamsEventBus(client *redis.Client, consumerGroup, consumerName string, logger *zap.Logger) (*StreamsEventBus, error) {
	if consumerGroup == "" || consumerName == "" {
		return nil, fmt.Errorf("consumer group and consumer name are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &StreamsEventBus{
		client:        client,
		logger:        logger.With(zap.String("component", "event_bus")),
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		ctx:           ctx,
		cancel:        cancel,
		subscribers:   make(map[string]map[uint64]ports.EventHandler),
	}, nil
}

// Publish publishes an event to the appropriate stream topic
func (e *StreamsEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	streamKey := getStreamKey(topic)

	// Serialize event
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Add to stream
	args := &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}

	if _, err := e.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	e.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("run_id", event.RunID),
		zap.String("stream", streamKey))

	return nil
}

// Subscribe delivers events published on topic to handler until ctx is done
func (e *StreamsEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	if e.ctx.Err() != nil {
		return fmt.Errorf("event bus is closed")
	}

	streamKey := getStreamKey(topic)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, reading := e.subscribers[topic]; !reading {
		// Create consumer group if it doesn't exist. New groups only see
		// events published from now on.
		err := e.client.XGroupCreateMkStream(ctx, streamKey, e.consumerGroup, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group: %w", err)
		}

		e.subscribers[topic] = make(map[uint64]ports.EventHandler)

		e.wg.Add(1)
		go e.readStream(topic, streamKey)

		e.logger.Info("subscribed to event stream",
			zap.String("stream", streamKey),
			zap.String("consumer_group", e.consumerGroup),
			zap.String("consumer", e.consumerName))
	}

	e.nextID++
	id := e.nextID
	e.subscribers[topic][id] = handler

	go func() {
		select {
		case <-ctx.Done():
		case <-e.ctx.Done():
		}
		e.mu.Lock()
		delete(e.subscribers[topic], id)
		e.mu.Unlock()
	}()

	return nil
}

// readStream reads events from a stream for the lifetime of the bus
func (e *StreamsEventBus) readStream(topic, streamKey string) {
	defer e.wg.Done()

	for {
		if e.ctx.Err() != nil {
			return
		}

		// Read from stream
		streams, err := e.client.XReadGroup(e.ctx, &redis.XReadGroupArgs{
			Group:    e.consumerGroup,
			Consumer: e.consumerName,
			Streams:  []string{streamKey, ">"},
			Count:    10,
			Block:    time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				// No new messages
				continue
			}
			if e.ctx.Err() != nil {
				return
			}
			e.logger.Error("failed to read from stream",
				zap.String("stream", streamKey),
				zap.Error(err))

			select {
			case <-e.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// Process messages
		for _, stream := range streams {
			for _, message := range stream.Messages {
				e.processMessage(topic, streamKey, message)
			}
		}
	}
}

// processMessage fans a single stream message out to local handlers and
// acknowledges it
func (e *StreamsEventBus) processMessage(topic, streamKey string, message redis.XMessage) {
	defer func() {
		if err := e.client.XAck(e.ctx, streamKey, e.consumerGroup, message.ID).Err(); err != nil && e.ctx.Err() == nil {
			e.logger.Error("failed to acknowledge message",
				zap.String("stream", streamKey),
				zap.String("message_id", message.ID),
				zap.Error(err))
		}
	}()

	// Extract event data
	data, ok := message.Values["data"].(string)
	if !ok {
		e.logger.Error("invalid message format",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID))
		return
	}

	// Deserialize event
	var event domain.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		e.logger.Error("failed to unmarshal event",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	e.mu.RLock()
	handlers := make([]ports.EventHandler, 0, len(e.subscribers[topic]))
	for _, h := range e.subscribers[topic] {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	// Call handlers
	for _, handler := range handlers {
		if err := handler(e.ctx, event); err != nil {
			e.logger.Warn("handler error",
				zap.String("stream", streamKey),
				zap.String("message_id", message.ID),
				zap.Error(err))
		}
	}
}

// Close stops every stream reader. The Redis client is closed by the caller.
func (e *StreamsEventBus) Close() error {
	e.cancel()
	e.wg.Wait()
	return nil
}

// getStreamKey returns the Redis stream key for a topic
func getStreamKey(topic string) string {
	return streamKeyPrefix + topic
}
