package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/inpatient-core/internal/domain/entities"
)

// AdmissionFilter defines filtering options for admission listing. Results
// are ordered newest first by (admitted_at, id). Before and BeforeID form
// the exclusive cursor; with BeforeID empty only admitted_at is compared.
type AdmissionFilter struct {
	Status    entities.AdmissionStatus
	RoomID    string
	PatientID string
	Before    *time.Time
	BeforeID  string
	Limit     int
}

// AdmissionRepository defines the interface for admission data operations
type AdmissionRepository interface {
	// Create creates a new admission
	Create(ctx context.Context, admission *entities.Admission) error

	// GetByID retrieves an admission by ID
	GetByID(ctx context.Context, id string) (*entities.Admission, error)

	// GetByIDs retrieves several admissions by ID; missing ids are skipped
	GetByIDs(ctx context.Context, ids []string) ([]*entities.Admission, error)

	// FindActiveByBed retrieves the active admission for a room and bed number
	FindActiveByBed(ctx context.Context, roomID, bedNumber string) (*entities.Admission, error)

	// ListByStatus retrieves every admission in the given status
	ListByStatus(ctx context.Context, status entities.AdmissionStatus) ([]*entities.Admission, error)

	// List retrieves admissions matching the filter
	List(ctx context.Context, filter AdmissionFilter) ([]*entities.Admission, error)

	// Update updates an admission
	Update(ctx context.Context, admission *entities.Admission) error

	// DeleteByBed deletes every admission, historical or active, that points
	// at the room and bed number, and returns how many were removed
	DeleteByBed(ctx context.Context, roomID, bedNumber string) (int, error)
}
