package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/zatekoja/inpatient-core/internal/adapters/cache"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/providers"
)

// invalidationTimeout bounds the cache work done for one event
const invalidationTimeout = 5 * time.Second

// CacheInvalidationService drops cached room data when inpatient events
// arrive on the bus
type CacheInvalidationService struct {
	cache    *cache.ResourceCache
	eventBus providers.EventBus
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  atomic.Bool
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(resourceCache *cache.ResourceCache, eventBus providers.EventBus, logger zerolog.Logger) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    resourceCache,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "cache_invalidation").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins listening for events and invalidating cache
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelInpatientUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to inpatient updates: %w", err)
	}

	s.started.Store(true)
	go s.processEvents(eventChan)
	s.logger.Info().Msg("cache invalidation service started")
	return nil
}

// Stop stops the service and waits for the event loop to exit
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	if s.started.Load() {
		<-s.done
	}
	s.logger.Info().Msg("cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.InpatientEvent) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event != nil {
				s.HandleEvent(s.ctx, event)
			}
		}
	}
}

// HandleEvent invalidates the cache entries an event makes stale. Room
// lists embed a status derived from beds, so every bed transition drops
// them along with the room itself.
func (s *CacheInvalidationService) HandleEvent(ctx context.Context, event *entities.InpatientEvent) {
	ctx, cancel := context.WithTimeout(ctx, invalidationTimeout)
	defer cancel()

	s.logger.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.EventType)).
		Str("room_id", event.RoomID).
		Msg("processing cache invalidation")

	for _, pattern := range invalidationPatterns(event) {
		s.cache.InvalidatePattern(ctx, pattern)
	}
	if event.RoomID != "" {
		s.cache.Delete(ctx, cache.RoomKey(event.RoomID))
	}
}

func invalidationPatterns(event *entities.InpatientEvent) []string {
	patterns := []string{cache.RoomListsPattern, cache.HTTPRoomsPattern}
	switch event.EventType {
	case entities.InpatientEventBedOccupied,
		entities.InpatientEventBedReleased,
		entities.InpatientEventBedRepaired,
		entities.InpatientEventAdmissionCancelled,
		entities.InpatientEventRoomDeleted:
		patterns = append(patterns, cache.HTTPAdmissionsPattern)
	}
	return patterns
}

// InvalidateAll drops every cached room and response entry
func (s *CacheInvalidationService) InvalidateAll(ctx context.Context) bool {
	ok := s.cache.InvalidatePattern(ctx, cache.RoomsPattern)
	return s.cache.InvalidatePattern(ctx, cache.HTTPKeyPrefix+"*") && ok
}
