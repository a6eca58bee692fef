package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/providers"
	redisclient "github.com/zatekoja/inpatient-core/internal/infrastructure/clients/redis"
)

// subscriberBuffer is the per-subscriber queue depth. Events beyond it are dropped.
const subscriberBuffer = 100

type channelSubscription struct {
	pubsub      *redis.PubSub
	subscribers map[chan *entities.InpatientEvent]struct{}
}

// RedisEventBus implements the EventBus interface using Redis Pub/Sub.
// One Redis subscription per channel fans out to every local subscriber.
type RedisEventBus struct {
	client   *redisclient.Client
	logger   zerolog.Logger
	channels map[string]*channelSubscription
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client, logger zerolog.Logger) providers.EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:   client,
		logger:   logger.With().Str("component", "event_bus").Logger(),
		channels: make(map[string]*channelSubscription),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Publish publishes an event to all subscribers of channel
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.InpatientEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Client().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug().
		Str("channel", channel).
		Str("event_id", event.ID).
		Str("event_type", string(event.EventType)).
		Msg("event published")
	return nil
}

// Subscribe returns a channel of events published on channel. The returned
// channel is closed when ctx is done or the bus is closed.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.InpatientEvent, error) {
	b.mu.Lock()
	if b.ctx.Err() != nil {
		b.mu.Unlock()
		return nil, errors.New("event bus is closed")
	}

	sub, exists := b.channels[channel]
	if !exists {
		pubsub := b.client.Client().Subscribe(b.ctx, channel)
		// Receive blocks until the SUBSCRIBE is confirmed so nothing
		// published after Subscribe returns is missed.
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			b.mu.Unlock()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
		sub = &channelSubscription{
			pubsub:      pubsub,
			subscribers: make(map[chan *entities.InpatientEvent]struct{}),
		}
		b.channels[channel] = sub
		go b.receiveMessages(channel, pubsub)
	}

	eventChan := make(chan *entities.InpatientEvent, subscriberBuffer)
	sub.subscribers[eventChan] = struct{}{}
	count := len(sub.subscribers)
	b.mu.Unlock()

	b.logger.Info().Str("channel", channel).Int("subscribers", count).Msg("subscribed")

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
		}
		b.removeSubscriber(channel, eventChan)
	}()

	return eventChan, nil
}

func (b *RedisEventBus) receiveMessages(channel string, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event entities.InpatientEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable event")
				continue
			}

			b.mu.RLock()
			if sub, ok := b.channels[channel]; ok {
				for subscriber := range sub.subscribers {
					e := event
					select {
					case subscriber <- &e:
					default:
						b.logger.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("subscriber queue full, event dropped")
					}
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *RedisEventBus) removeSubscriber(channel string, eventChan chan *entities.InpatientEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.channels[channel]
	if !exists {
		return
	}
	if _, ok := sub.subscribers[eventChan]; !ok {
		return
	}

	delete(sub.subscribers, eventChan)
	close(eventChan)

	if len(sub.subscribers) == 0 {
		_ = sub.pubsub.Close()
		delete(b.channels, channel)
		b.logger.Info().Str("channel", channel).Msg("subscription closed")
	}
}

// cleanupChannel closes every local subscriber and the Redis subscription.
// Callers hold b.mu.
func (b *RedisEventBus) cleanupChannel(channel string) error {
	sub, exists := b.channels[channel]
	if !exists {
		return nil
	}
	for subscriber := range sub.subscribers {
		close(subscriber)
	}
	delete(b.channels, channel)

	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close subscription %s: %w", channel, err)
	}
	return nil
}

// Unsubscribe drops every subscriber of channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleanupChannel(channel)
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancel()

	var errs []error
	for channel := range b.channels {
		if err := b.cleanupChannel(channel); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing event bus: %w", errors.Join(errs...))
	}

	b.logger.Info().Msg("event bus closed")
	return nil
}
