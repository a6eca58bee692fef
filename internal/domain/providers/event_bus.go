package providers

import (
	"context"

	"github.com/zatekoja/inpatient-core/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.InpatientEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.InpatientEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelInpatientUpdates carries every committed room, bed and admission change
	EventChannelInpatientUpdates = "inpatient:updates"

	// EventChannelRoomPrefix is the prefix for room-specific channels
	EventChannelRoomPrefix = "inpatient:room:"
)

// GetRoomChannel returns the channel name for a specific room
func GetRoomChannel(roomID string) string {
	return EventChannelRoomPrefix + roomID
}
