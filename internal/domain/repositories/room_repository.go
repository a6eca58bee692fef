package repositories

import (
	"context"

	"github.com/zatekoja/inpatient-core/internal/domain/entities"
)

// RoomFilter defines filtering options for room listing
type RoomFilter struct {
	Floor    *int
	RoomType string
	Limit    int
	Offset   int
}

// RoomRepository defines the interface for room data operations
type RoomRepository interface {
	// Create creates a new room. A duplicate room number is a conflict.
	Create(ctx context.Context, room *entities.Room) error

	// GetByID retrieves a room by ID
	GetByID(ctx context.Context, id string) (*entities.Room, error)

	// List retrieves one page of rooms ordered by room number, plus the
	// total number of rooms matching the filter
	List(ctx context.Context, filter RoomFilter) ([]*entities.Room, int, error)

	// Delete deletes a room
	Delete(ctx context.Context, id string) error
}
