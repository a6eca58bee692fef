package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/providers"
	"github.com/zatekoja/inpatient-core/internal/domain/repositories"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
	"github.com/zatekoja/inpatient-core/pkg/pagination"
	"github.com/zatekoja/inpatient-core/pkg/retry"
)

// InpatientService owns the room, bed and admission state machine. Every
// mutation touching a bed runs under that bed's lock.
type InpatientService struct {
	rooms      repositories.RoomRepository
	beds       repositories.BedRepository
	admissions repositories.AdmissionRepository
	locks      *BedLocker
	eventBus   providers.EventBus
	metrics    *observability.Metrics
	logger     zerolog.Logger
	writeRetry retry.Config
	now        func() time.Time
}

// NewInpatientService creates a new inpatient service
func NewInpatientService(
	rooms repositories.RoomRepository,
	beds repositories.BedRepository,
	admissions repositories.AdmissionRepository,
	locks *BedLocker,
	logger zerolog.Logger,
) *InpatientService {
	if locks == nil {
		locks = NewBedLocker()
	}
	return &InpatientService{
		rooms:      rooms,
		beds:       beds,
		admissions: admissions,
		locks:      locks,
		logger:     logger.With().Str("component", "inpatient_service").Logger(),
		writeRetry: retry.WriteConfig(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetEventBus enables publishing of committed transitions
func (s *InpatientService) SetEventBus(bus providers.EventBus) {
	s.eventBus = bus
}

// SetMetrics attaches the repair counter
func (s *InpatientService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// CreateRoomInput holds the fields of a new room
type CreateRoomInput struct {
	RoomNumber string `json:"room_number"`
	Floor      int    `json:"floor"`
	RoomType   string `json:"room_type"`
}

// AddBedInput holds the fields of a new bed
type AddBedInput struct {
	BedNumber  string  `json:"bed_number"`
	DailyPrice float64 `json:"daily_price"`
}

// CreateRoom creates an empty room
func (s *InpatientService) CreateRoom(ctx context.Context, input CreateRoomInput) (*entities.Room, error) {
	input.RoomNumber = strings.TrimSpace(input.RoomNumber)
	if input.RoomNumber == "" {
		return nil, apperrors.NewValidationError("room_number is required")
	}

	room := &entities.Room{
		ID:         uuid.NewString(),
		RoomNumber: input.RoomNumber,
		Floor:      input.Floor,
		RoomType:   strings.TrimSpace(input.RoomType),
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}
	room.Status = entities.RoomStatusEmpty

	s.logger.Info().Str("room_id", room.ID).Str("room_number", room.RoomNumber).Msg("room created")
	s.publish(ctx, entities.NewInpatientEvent(entities.InpatientEventRoomCreated, room.ID, "", ""))
	return room, nil
}

// AddBed adds an available bed to an existing room
func (s *InpatientService) AddBed(ctx context.Context, roomID string, input AddBedInput) (*entities.Bed, error) {
	input.BedNumber = strings.TrimSpace(input.BedNumber)
	if input.BedNumber == "" {
		return nil, apperrors.NewValidationError("bed_number is required")
	}
	if input.DailyPrice < 0 {
		return nil, apperrors.NewValidationError("daily_price must not be negative")
	}

	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}

	bed := &entities.Bed{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		BedNumber:  input.BedNumber,
		Status:     entities.BedStatusAvailable,
		DailyPrice: input.DailyPrice,
	}
	if err := s.beds.Create(ctx, bed); err != nil {
		return nil, err
	}

	s.logger.Info().Str("room_id", roomID).Str("bed_id", bed.ID).Str("bed_number", bed.BedNumber).Msg("bed added")
	s.publish(ctx, entities.NewInpatientEvent(entities.InpatientEventBedCreated, roomID, bed.ID, ""))
	return bed, nil
}

// GetRoom returns a room with its beds and derived status
func (s *InpatientService) GetRoom(ctx context.Context, id string) (*entities.RoomDetail, error) {
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	beds, err := s.beds.ListByRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	room.Status = entities.DeriveRoomStatus(beds)
	return &entities.RoomDetail{Room: *room, Beds: beds}, nil
}

// ListRooms returns one offset page of rooms with derived statuses
func (s *InpatientService) ListRooms(ctx context.Context, filter repositories.RoomFilter, page pagination.PageParams) (pagination.Page[*entities.Room], error) {
	filter.Limit = page.Limit
	filter.Offset = page.Offset

	rooms, total, err := s.rooms.List(ctx, filter)
	if err != nil {
		return pagination.Page[*entities.Room]{}, err
	}

	ids := make([]string, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	bedsByRoom, err := s.beds.ListByRoomIDs(ctx, ids)
	if err != nil {
		return pagination.Page[*entities.Room]{}, err
	}
	for _, r := range rooms {
		r.Status = entities.DeriveRoomStatus(bedsByRoom[r.ID])
	}

	return pagination.NewPage(rooms, page, total), nil
}

// AdmissionQuery filters the admission listing
type AdmissionQuery struct {
	Status    entities.AdmissionStatus
	RoomID    string
	PatientID string
}

// ListAdmissions returns admissions newest first, continuing after the
// (admitted_at, id) position carried in the cursor
func (s *InpatientService) ListAdmissions(ctx context.Context, query AdmissionQuery, page pagination.CursorParams) (pagination.CursorPage[*entities.Admission], error) {
	filter := repositories.AdmissionFilter{
		Status:    query.Status,
		RoomID:    query.RoomID,
		PatientID: query.PatientID,
		Limit:     page.FetchLimit(),
	}
	if page.Cursor != "" {
		stamp, id, _ := strings.Cut(page.Cursor, "|")
		before, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return pagination.CursorPage[*entities.Admission]{}, apperrors.NewValidationError("invalid cursor")
		}
		filter.Before = &before
		filter.BeforeID = id
	}

	rows, err := s.admissions.List(ctx, filter)
	if err != nil {
		return pagination.CursorPage[*entities.Admission]{}, err
	}
	return pagination.NewCursorPage(rows, page, admissionCursor), nil
}

// admissionCursor is "<admitted_at>|<id>" of the last row on a page
func admissionCursor(a *entities.Admission) string {
	return a.AdmittedAt.UTC().Format(time.RFC3339Nano) + "|" + a.ID
}

// SetBedMaintenance moves a bed between available and maintenance. Asking
// for the state the bed is already in is a no-op.
func (s *InpatientService) SetBedMaintenance(ctx context.Context, bedID string, on bool) (*entities.Bed, error) {
	ctx, span := observability.StartSpan(ctx, "InpatientService.SetBedMaintenance")
	defer span.End()

	bed, err := s.beds.GetByID(ctx, bedID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(BedKey(bed.RoomID, bed.BedNumber))
	defer unlock()

	// re-read under the lock
	bed, err = s.beds.GetByID(ctx, bedID)
	if err != nil {
		return nil, err
	}

	from, to := entities.BedStatusAvailable, entities.BedStatusMaintenance
	if !on {
		from, to = to, from
	}
	if bed.Status == to {
		return bed, nil
	}
	if bed.Status != from {
		return nil, apperrors.NewConflictError("bed", bed.ID, "cannot move a "+string(bed.Status)+" bed to "+string(to))
	}

	bed.Status = to
	if err := s.beds.Update(ctx, bed); err != nil {
		observability.RecordError(span, err)
		return nil, s.bedWriteError(bed, err)
	}

	s.logger.Info().Str("bed_id", bed.ID).Str("room_id", bed.RoomID).Str("status", string(to)).Msg("bed maintenance state changed")
	s.publish(ctx, entities.NewInpatientEvent(entities.InpatientEventBedMaintenance, bed.RoomID, bed.ID, ""))
	return bed, nil
}

// bedWriteError turns a lost optimistic update into a conflict
func (s *InpatientService) bedWriteError(bed *entities.Bed, err error) error {
	if errors.Is(err, repositories.ErrVersionConflict) {
		return apperrors.NewConflictError("bed", bed.ID, "bed was modified concurrently")
	}
	return err
}

// publish sends event on the global channel and the room channel. A failed
// publish never fails the committed operation.
func (s *InpatientService) publish(ctx context.Context, event *entities.InpatientEvent) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, providers.EventChannelInpatientUpdates, event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(event.EventType)).Msg("failed to publish event")
		return
	}
	if event.RoomID != "" {
		if err := s.eventBus.Publish(ctx, providers.GetRoomChannel(event.RoomID), event); err != nil {
			s.logger.Warn().Err(err).Str("room_id", event.RoomID).Msg("failed to publish room event")
		}
	}
}

func bedAttrs(roomID, bedNumber string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("room.id", roomID),
		attribute.String("bed.number", bedNumber),
	}
}
