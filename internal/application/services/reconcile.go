package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zatekoja/inpatient-core/internal/application/loaders"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

// ReconcileResult lists what a sweep repaired
type ReconcileResult struct {
	RepairedCount      int      `json:"repairedCount"`
	RepairedBedIDs     []string `json:"repairedBedIds"`
	OrphanAdmissionIDs []string `json:"orphanAdmissionIds"`
}

// ReconcileBeds frees every occupied bed that is not backed by a matching
// active admission, then cancels every active admission whose bed is not
// held by it. Candidates are found from a batched snapshot; each one is
// re-checked under its bed lock before it is touched. Running it again
// right away repairs nothing. A bed or admission that cannot be repaired
// does not stop the sweep: the partial result is returned together with the
// joined errors.
func (s *InpatientService) ReconcileBeds(ctx context.Context) (*ReconcileResult, error) {
	ctx, span := observability.StartSpan(ctx, "InpatientService.ReconcileBeds")
	defer span.End()

	started := time.Now()
	result := &ReconcileResult{
		RepairedBedIDs:     []string{},
		OrphanAdmissionIDs: []string{},
	}
	ld := loaders.NewLoaders(s.admissions, s.beds)

	occupied, err := s.beds.ListByStatus(ctx, entities.BedStatusOccupied)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	ids := make([]string, 0, len(occupied))
	for _, bed := range occupied {
		if bed.CurrentAdmissionID != nil {
			ids = append(ids, *bed.CurrentAdmissionID)
		}
	}
	snapshot, err := ld.Admissions(ctx, ids)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	var failures []error
	for _, bed := range occupied {
		var candidate *entities.Admission
		if bed.CurrentAdmissionID != nil {
			candidate = snapshot[*bed.CurrentAdmissionID]
		}
		if bed.HeldBy(candidate) {
			continue
		}

		repaired, err := s.repairBed(ctx, bed.ID)
		if err != nil {
			failures = append(failures, fmt.Errorf("failed to repair bed %s: %w", bed.ID, err))
			continue
		}
		if repaired {
			result.RepairedBedIDs = append(result.RepairedBedIDs, bed.ID)
		}
	}
	result.RepairedCount = len(result.RepairedBedIDs)
	observability.RecordBedRepairs(ctx, s.metrics, result.RepairedCount)

	failures = append(failures, s.cancelOrphanAdmissions(ctx, ld, result)...)

	if err := errors.Join(failures...); err != nil {
		observability.RecordError(span, err)
		s.logger.Error().
			Err(err).
			Int("repaired", result.RepairedCount).
			Int("orphan_admissions", len(result.OrphanAdmissionIDs)).
			Int("failures", len(failures)).
			Msg("bed reconciliation incomplete")
		return result, err
	}

	s.logger.Info().
		Int("occupied_checked", len(occupied)).
		Int("repaired", result.RepairedCount).
		Int("orphan_admissions", len(result.OrphanAdmissionIDs)).
		Dur("duration", time.Since(started)).
		Msg("bed reconciliation completed")
	return result, nil
}

// repairBed re-reads the bed under its lock and frees it if it is still
// occupied without a matching active admission
func (s *InpatientService) repairBed(ctx context.Context, bedID string) (bool, error) {
	bed, err := s.beds.GetByID(ctx, bedID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	unlock := s.locks.Lock(BedKey(bed.RoomID, bed.BedNumber))
	defer unlock()

	bed, err = s.beds.GetByID(ctx, bedID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if bed.Status != entities.BedStatusOccupied {
		return false, nil
	}

	var admission *entities.Admission
	reason := "no current admission"
	if bed.CurrentAdmissionID != nil {
		admission, err = s.admissions.GetByID(ctx, *bed.CurrentAdmissionID)
		switch {
		case apperrors.IsNotFound(err):
			admission = nil
			reason = "current admission does not exist"
		case err != nil:
			return false, err
		case admission.Status != entities.AdmissionStatusActive:
			reason = "current admission is " + string(admission.Status)
		default:
			reason = "current admission points at another bed"
		}
	}
	if bed.HeldBy(admission) {
		return false, nil
	}

	prior := bed.Clone()
	bed.Release()
	if err := s.beds.Update(ctx, bed); err != nil {
		return false, s.bedWriteError(bed, err)
	}

	evt := s.logger.Warn().
		Str("audit", "bed_repair").
		Str("bed_id", prior.ID).
		Str("room_id", prior.RoomID).
		Str("bed_number", prior.BedNumber).
		Str("prior_status", string(prior.Status)).
		Str("reason", reason)
	if prior.CurrentPatientID != nil {
		evt = evt.Str("prior_patient_id", *prior.CurrentPatientID)
	}
	if prior.CurrentAdmissionID != nil {
		evt = evt.Str("prior_admission_id", *prior.CurrentAdmissionID)
	}
	if prior.OccupiedAt != nil {
		evt = evt.Time("prior_occupied_at", *prior.OccupiedAt)
	}
	// an active admission the bed does not point at is cancelled later in the sweep
	if active, err := s.admissions.FindActiveByBed(ctx, prior.RoomID, prior.BedNumber); err == nil {
		evt = evt.Str("unreferenced_admission_id", active.ID)
	}
	evt.Msg("occupied bed released by reconciliation")

	s.publish(ctx, entities.NewInpatientEvent(entities.InpatientEventBedRepaired, bed.RoomID, bed.ID, ""))
	return true, nil
}

func (s *InpatientService) cancelOrphanAdmissions(ctx context.Context, ld *loaders.Loaders, result *ReconcileResult) []error {
	active, err := s.admissions.ListByStatus(ctx, entities.AdmissionStatusActive)
	if err != nil {
		return []error{err}
	}
	if len(active) == 0 {
		return nil
	}

	roomIDs := make([]string, 0)
	seen := make(map[string]struct{})
	for _, a := range active {
		if _, ok := seen[a.RoomID]; !ok {
			seen[a.RoomID] = struct{}{}
			roomIDs = append(roomIDs, a.RoomID)
		}
	}
	bedsByRoom, err := ld.RoomBeds(ctx, roomIDs)
	if err != nil {
		return []error{err}
	}

	var failures []error
	for _, a := range active {
		if bed := findBed(bedsByRoom[a.RoomID], a.BedNumber); bed != nil && bed.HeldBy(a) {
			continue
		}
		cancelled, err := s.cancelOrphan(ctx, a.ID, a.RoomID, a.BedNumber)
		if err != nil {
			failures = append(failures, fmt.Errorf("failed to cancel orphan admission %s: %w", a.ID, err))
			continue
		}
		if cancelled {
			result.OrphanAdmissionIDs = append(result.OrphanAdmissionIDs, a.ID)
		}
	}
	return failures
}

func (s *InpatientService) cancelOrphan(ctx context.Context, admissionID, roomID, bedNumber string) (bool, error) {
	unlock := s.locks.Lock(BedKey(roomID, bedNumber))
	defer unlock()

	admission, err := s.admissions.GetByID(ctx, admissionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if admission.Status != entities.AdmissionStatusActive {
		return false, nil
	}

	bed, err := s.beds.GetByRoomAndNumber(ctx, roomID, bedNumber)
	if err != nil && !apperrors.IsNotFound(err) {
		return false, err
	}
	if bed != nil && bed.HeldBy(admission) {
		return false, nil
	}

	admission.Status = entities.AdmissionStatusCancelled
	if err := s.admissions.Update(ctx, admission); err != nil {
		return false, err
	}

	bedID := ""
	if bed != nil {
		bedID = bed.ID
	}
	s.logger.Warn().
		Str("audit", "admission_repair").
		Str("admission_id", admission.ID).
		Str("patient_id", admission.PatientID).
		Str("room_id", roomID).
		Str("bed_number", bedNumber).
		Msg("active admission without a bed cancelled by reconciliation")
	s.publish(ctx, entities.NewInpatientEvent(entities.InpatientEventAdmissionCancelled, roomID, bedID, admission.ID))
	return true, nil
}

func findBed(beds []*entities.Bed, bedNumber string) *entities.Bed {
	for _, b := range beds {
		if b.BedNumber == bedNumber {
			return b
		}
	}
	return nil
}
