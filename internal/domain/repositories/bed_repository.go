package repositories

import (
	"context"
	"errors"

	"github.com/zatekoja/inpatient-core/internal/domain/entities"
)

// ErrVersionConflict is returned by BedRepository.Update when the stored bed
// changed since it was read.
var ErrVersionConflict = errors.New("bed was modified concurrently")

// BedRepository defines the interface for bed data operations
type BedRepository interface {
	// Create creates a new bed. A duplicate bed number within the room is a conflict.
	Create(ctx context.Context, bed *entities.Bed) error

	// GetByID retrieves a bed by ID
	GetByID(ctx context.Context, id string) (*entities.Bed, error)

	// GetByRoomAndNumber retrieves the bed identified by its room and bed number
	GetByRoomAndNumber(ctx context.Context, roomID, bedNumber string) (*entities.Bed, error)

	// ListByRoom retrieves all beds of a room ordered by bed number
	ListByRoom(ctx context.Context, roomID string) ([]*entities.Bed, error)

	// ListByRoomIDs retrieves the beds of several rooms in a single query
	ListByRoomIDs(ctx context.Context, roomIDs []string) (map[string][]*entities.Bed, error)

	// ListByStatus retrieves every bed in the given status
	ListByStatus(ctx context.Context, status entities.BedStatus) ([]*entities.Bed, error)

	// Update writes the bed only if the stored version equals bed.Version,
	// then increments bed.Version. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, bed *entities.Bed) error

	// DeleteByRoom deletes all beds of a room and returns how many were removed
	DeleteByRoom(ctx context.Context, roomID string) (int, error)
}
