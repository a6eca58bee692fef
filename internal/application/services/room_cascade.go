package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

// lockRoomAttempts bounds how often DeleteRoom re-lists beds when one is
// added between listing and locking
const lockRoomAttempts = 3

// DeleteRoomResult counts what a cascade removed
type DeleteRoomResult struct {
	BedsDeleted       int `json:"bedsDeleted"`
	AdmissionsDeleted int `json:"admissionsDeleted"`
}

// DeleteRoom removes a room together with its beds and every admission that
// ever pointed at them, in that dependency order: admissions, beds, room.
// All bed locks of the room are held for the whole cascade.
func (s *InpatientService) DeleteRoom(ctx context.Context, roomID string) (*DeleteRoomResult, error) {
	ctx, span := observability.StartSpan(ctx, "InpatientService.DeleteRoom")
	defer span.End()
	span.SetAttributes(attribute.String("room.id", roomID))

	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}

	beds, unlock, err := s.lockRoomBeds(ctx, roomID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, &apperrors.CascadeIntegrityError{RoomID: roomID, FailedStep: apperrors.CascadeStepLoadBeds, Err: err}
	}
	defer unlock()

	result := &DeleteRoomResult{}
	for _, bed := range beds {
		n, err := s.admissions.DeleteByBed(ctx, roomID, bed.BedNumber)
		if err != nil {
			observability.RecordError(span, err)
			return nil, s.cascadeFailed(roomID, apperrors.CascadeStepDeleteAdmissions, result, err)
		}
		result.AdmissionsDeleted += n
	}

	n, err := s.beds.DeleteByRoom(ctx, roomID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, s.cascadeFailed(roomID, apperrors.CascadeStepDeleteBeds, result, err)
	}
	result.BedsDeleted = n

	if err := s.rooms.Delete(ctx, roomID); err != nil {
		observability.RecordError(span, err)
		// the precondition read can be served from a stale cache entry
		if apperrors.IsNotFound(err) && result.AdmissionsDeleted == 0 && result.BedsDeleted == 0 {
			return nil, err
		}
		return nil, s.cascadeFailed(roomID, apperrors.CascadeStepDeleteRoom, result, err)
	}

	s.logger.Info().
		Str("audit", "room_delete").
		Str("room_id", roomID).
		Int("beds_deleted", result.BedsDeleted).
		Int("admissions_deleted", result.AdmissionsDeleted).
		Msg("room deleted")
	s.publish(ctx, entities.NewInpatientEvent(entities.InpatientEventRoomDeleted, roomID, "", ""))
	return result, nil
}

// lockRoomBeds locks every bed of the room and returns the bed list read
// while holding the locks
func (s *InpatientService) lockRoomBeds(ctx context.Context, roomID string) ([]*entities.Bed, func(), error) {
	beds, err := s.beds.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	for attempt := 1; ; attempt++ {
		keys := bedKeys(roomID, beds)
		unlock := s.locks.LockMany(keys)

		current, err := s.beds.ListByRoom(ctx, roomID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if sameKeys(keys, bedKeys(roomID, current)) || attempt == lockRoomAttempts {
			return current, unlock, nil
		}
		unlock()
		beds = current
	}
}

func (s *InpatientService) cascadeFailed(roomID string, step apperrors.CascadeStep, done *DeleteRoomResult, err error) error {
	s.logger.Error().
		Err(err).
		Str("room_id", roomID).
		Str("failed_step", string(step)).
		Int("admissions_deleted", done.AdmissionsDeleted).
		Int("beds_deleted", done.BedsDeleted).
		Msg("room deletion cascade stopped")
	return &apperrors.CascadeIntegrityError{
		RoomID:            roomID,
		FailedStep:        step,
		AdmissionsDeleted: done.AdmissionsDeleted,
		BedsDeleted:       done.BedsDeleted,
		Err:               err,
	}
}

func bedKeys(roomID string, beds []*entities.Bed) []string {
	keys := make([]string, len(beds))
	for i, b := range beds {
		keys[i] = BedKey(roomID, b.BedNumber)
	}
	return keys
}

func sameKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	for _, k := range b {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}
