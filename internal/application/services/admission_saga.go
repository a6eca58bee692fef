package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
	"github.com/zatekoja/inpatient-core/pkg/retry"
)

// Saga step names reported in SagaError
const (
	stepCreateAdmission    = "create_admission"
	stepOccupyBed          = "occupy_bed"
	stepCancelAdmission    = "cancel_admission"
	stepDischargeAdmission = "discharge_admission"
	stepReleaseBed         = "release_bed"
)

// AdmitInput identifies the bed and patient of a new admission
type AdmitInput struct {
	RoomID    string `json:"room_id"`
	BedNumber string `json:"bed_number"`
	PatientID string `json:"patient_id"`
	Notes     string `json:"notes,omitempty"`
}

// AdmitPatient admits a patient to an available bed. The admission is
// written first and the bed second; if the bed write fails the admission
// is cancelled.
func (s *InpatientService) AdmitPatient(ctx context.Context, input AdmitInput) (*entities.Admission, error) {
	input.PatientID = strings.TrimSpace(input.PatientID)
	if input.RoomID == "" || input.BedNumber == "" || input.PatientID == "" {
		return nil, apperrors.NewValidationError("room_id, bed_number and patient_id are required")
	}

	ctx, span := observability.StartSpan(ctx, "InpatientService.AdmitPatient")
	defer span.End()
	observability.SetSpanAttributes(span, bedAttrs(input.RoomID, input.BedNumber)...)

	unlock := s.locks.Lock(BedKey(input.RoomID, input.BedNumber))
	defer unlock()

	bed, err := s.beds.GetByRoomAndNumber(ctx, input.RoomID, input.BedNumber)
	if err != nil {
		return nil, err
	}
	if bed.Status != entities.BedStatusAvailable {
		return nil, apperrors.NewConflictError("bed", bed.ID, fmt.Sprintf("bed is %s", bed.Status))
	}

	now := s.now()
	admission := &entities.Admission{
		ID:         uuid.NewString(),
		PatientID:  input.PatientID,
		RoomID:     input.RoomID,
		BedNumber:  input.BedNumber,
		Status:     entities.AdmissionStatusActive,
		Notes:      input.Notes,
		AdmittedAt: now,
	}
	if err := s.admissions.Create(ctx, admission); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	bed.Occupy(admission.PatientID, admission.ID, now)
	if err := s.beds.Update(ctx, bed); err != nil {
		observability.RecordError(span, err)
		return nil, s.compensateAdmit(ctx, admission, bed, err)
	}

	span.SetAttributes(attribute.String("admission.id", admission.ID))
	s.logger.Info().
		Str("admission_id", admission.ID).
		Str("patient_id", admission.PatientID).
		Str("room_id", admission.RoomID).
		Str("bed_id", bed.ID).
		Str("bed_number", admission.BedNumber).
		Msg("patient admitted")
	s.publish(ctx, entities.NewInpatientEvent(entities.InpatientEventBedOccupied, bed.RoomID, bed.ID, admission.ID))
	return admission, nil
}

// compensateAdmit cancels an admission whose bed could not be occupied
func (s *InpatientService) compensateAdmit(ctx context.Context, admission *entities.Admission, bed *entities.Bed, cause error) error {
	admission.Status = entities.AdmissionStatusCancelled
	cancelErr := retry.DoWithLog(ctx, s.writeRetry, stepCancelAdmission, func() error {
		return permanentIfNotFound(s.admissions.Update(ctx, admission))
	}, s.retryLog(admission.ID))

	if cancelErr != nil {
		s.logger.Error().
			Err(cancelErr).
			Str("admission_id", admission.ID).
			Str("bed_id", bed.ID).
			AnErr("cause", cause).
			Msg("admission left active after failed bed update")
		return &apperrors.SagaError{
			Operation: "admit",
			Committed: []string{stepCreateAdmission},
			Failed:    stepOccupyBed,
			Err:       errors.Join(cause, cancelErr),
		}
	}

	s.logger.Warn().Err(cause).Str("admission_id", admission.ID).Str("bed_id", bed.ID).Msg("admission cancelled after failed bed update")
	s.publish(ctx, entities.NewInpatientEvent(entities.InpatientEventAdmissionCancelled, admission.RoomID, bed.ID, admission.ID))
	return s.bedWriteError(bed, cause)
}

// DischargePatient closes an active admission and frees its bed. The
// admission is closed first, with retries; the bed is only touched once
// that write has landed.
func (s *InpatientService) DischargePatient(ctx context.Context, admissionID string) (*entities.Admission, error) {
	ctx, span := observability.StartSpan(ctx, "InpatientService.DischargePatient")
	defer span.End()
	span.SetAttributes(attribute.String("admission.id", admissionID))

	admission, err := s.admissions.GetByID(ctx, admissionID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(BedKey(admission.RoomID, admission.BedNumber))
	defer unlock()

	admission, err = s.admissions.GetByID(ctx, admissionID)
	if err != nil {
		return nil, err
	}
	if admission.Status != entities.AdmissionStatusActive {
		return nil, apperrors.NewConflictError("admission", admission.ID, fmt.Sprintf("admission is %s", admission.Status))
	}

	bed, err := s.beds.GetByRoomAndNumber(ctx, admission.RoomID, admission.BedNumber)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.NewConflictError("admission", admission.ID, "admission points at a bed that does not exist")
	}
	if err != nil {
		return nil, err
	}
	if !bed.HeldBy(admission) {
		return nil, apperrors.NewConflictError("bed", bed.ID, "bed is not occupied by admission "+admission.ID)
	}

	dischargedAt := s.now()
	admission.Status = entities.AdmissionStatusDischarged
	admission.DischargedAt = &dischargedAt
	err = retry.DoWithLog(ctx, s.writeRetry, stepDischargeAdmission, func() error {
		return permanentIfNotFound(s.admissions.Update(ctx, admission))
	}, s.retryLog(admission.ID))
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	bed.Release()
	if err := s.beds.Update(ctx, bed); err != nil {
		observability.RecordError(span, err)
		s.logger.Error().
			Err(err).
			Str("admission_id", admission.ID).
			Str("bed_id", bed.ID).
			Msg("admission discharged but bed not released; reconciliation will repair it")
		return admission, &apperrors.SagaError{
			Operation: "discharge",
			Committed: []string{stepDischargeAdmission},
			Failed:    stepReleaseBed,
			Err:       err,
		}
	}

	s.logger.Info().
		Str("admission_id", admission.ID).
		Str("patient_id", admission.PatientID).
		Str("bed_id", bed.ID).
		Dur("stay", dischargedAt.Sub(admission.AdmittedAt)).
		Msg("patient discharged")
	s.publish(ctx, entities.NewInpatientEvent(entities.InpatientEventBedReleased, bed.RoomID, bed.ID, admission.ID))
	return admission, nil
}

func (s *InpatientService) retryLog(admissionID string) retry.LogFunc {
	return func(attempt int, err error, nextDelay time.Duration) {
		s.logger.Warn().
			Err(err).
			Str("admission_id", admissionID).
			Int("attempt", attempt).
			Dur("retry_in", nextDelay).
			Msg("admission write failed, retrying")
	}
}

func permanentIfNotFound(err error) error {
	if apperrors.IsNotFound(err) {
		return retry.Permanent(err)
	}
	return err
}
