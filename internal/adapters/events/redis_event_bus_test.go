package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/providers"
	redisclient "github.com/zatekoja/inpatient-core/internal/infrastructure/clients/redis"
)

func newTestBus(t *testing.T) providers.EventBus {
	mr := miniredis.RunT(t)
	client := redisclient.NewClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	bus := NewRedisEventBus(client, zerolog.Nop())
	t.Cleanup(func() {
		_ = bus.Close()
		_ = client.Close()
	})
	return bus
}

func TestRedisEventBus_PublishSubscribe(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, providers.EventChannelInpatientUpdates)
	require.NoError(t, err)

	sent := entities.NewInpatientEvent(entities.InpatientEventBedOccupied, "r1", "b1", "a1")
	require.NoError(t, bus.Publish(ctx, providers.EventChannelInpatientUpdates, sent))

	select {
	case got := <-events:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, entities.InpatientEventBedOccupied, got.EventType)
		assert.Equal(t, "b1", got.BedID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRedisEventBus_ContextCancelClosesChannel(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := bus.Subscribe(ctx, providers.GetRoomChannel("r1"))
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed")
	}
}

func TestRedisEventBus_SubscribeAfterClose(t *testing.T) {
	bus := newTestBus(t)
	require.NoError(t, bus.Close())

	_, err := bus.Subscribe(context.Background(), providers.EventChannelInpatientUpdates)
	assert.Error(t, err)
}
