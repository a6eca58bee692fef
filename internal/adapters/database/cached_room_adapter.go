package database

import (
	"context"

	"github.com/zatekoja/inpatient-core/internal/adapters/cache"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/repositories"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

// Cache TTLs (in seconds)
const (
	roomByIDTTL  = 300
	roomsListTTL = 180
)

// CachedRoomAdapter wraps a RoomRepository with read-through caching
type CachedRoomAdapter struct {
	adapter repositories.RoomRepository
	cache   *cache.ResourceCache
}

// NewCachedRoomAdapter creates a new cached room adapter
func NewCachedRoomAdapter(adapter repositories.RoomRepository, resourceCache *cache.ResourceCache) repositories.RoomRepository {
	return &CachedRoomAdapter{
		adapter: adapter,
		cache:   resourceCache,
	}
}

type cachedRoomList struct {
	Rooms []*entities.Room `json:"rooms"`
	Total int              `json:"total"`
}

// GetByID retrieves a room by ID with caching
func (a *CachedRoomAdapter) GetByID(ctx context.Context, id string) (*entities.Room, error) {
	key := cache.RoomKey(id)

	var room entities.Room
	if a.cache.GetJSON(ctx, key, &room) {
		return &room, nil
	}

	fetched, err := a.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.cache.SetJSON(ctx, key, fetched, roomByIDTTL)
	return fetched, nil
}

// List retrieves a page of rooms with caching
func (a *CachedRoomAdapter) List(ctx context.Context, filter repositories.RoomFilter) ([]*entities.Room, int, error) {
	key := cache.RoomListKey(filter.Floor, filter.RoomType, filter.Limit, filter.Offset)

	var cached cachedRoomList
	if a.cache.GetJSON(ctx, key, &cached) {
		return cached.Rooms, cached.Total, nil
	}

	rooms, total, err := a.adapter.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	a.cache.SetJSON(ctx, key, cachedRoomList{Rooms: rooms, Total: total}, roomsListTTL)
	return rooms, total, nil
}

// Create creates a room and drops every cached room list
func (a *CachedRoomAdapter) Create(ctx context.Context, room *entities.Room) error {
	if err := a.adapter.Create(ctx, room); err != nil {
		return err
	}
	a.cache.InvalidatePattern(ctx, cache.RoomListsPattern)
	return nil
}

// Delete deletes a room and drops its cached entries. The entries are also
// dropped when the room is already gone, so a copy cached before another
// process deleted it does not outlive the NotFound.
func (a *CachedRoomAdapter) Delete(ctx context.Context, id string) error {
	err := a.adapter.Delete(ctx, id)
	if err != nil && !apperrors.IsNotFound(err) {
		return err
	}
	a.cache.Delete(ctx, cache.RoomKey(id))
	a.cache.InvalidatePattern(ctx, cache.RoomListsPattern)
	return err
}
