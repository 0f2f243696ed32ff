package ports

import (
	"context"

	"github.com/aescanero/dagent/pkg/domain"
)

// EventHandler handles an event delivered by the bus
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes run and task events. Subscriptions end when the
// subscribing context is cancelled.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}
