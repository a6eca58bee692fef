package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/repositories"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

var admissionColumns = []interface{}{
	"id", "patient_id", "room_id", "bed_number", "status",
	"notes", "admitted_at", "discharged_at",
}

// AdmissionAdapter implements the AdmissionRepository interface
type AdmissionAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewAdmissionAdapter creates a new admission adapter
func NewAdmissionAdapter(client *postgres.Client) repositories.AdmissionRepository {
	return &AdmissionAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create creates a new admission
func (a *AdmissionAdapter) Create(ctx context.Context, admission *entities.Admission) error {
	record := admissionRecord(admission)
	record["id"] = admission.ID
	record["patient_id"] = admission.PatientID
	record["room_id"] = admission.RoomID
	record["bed_number"] = admission.BedNumber
	record["admitted_at"] = admission.AdmittedAt

	query, args, err := a.db.Insert("admissions").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		// the partial unique index on (room_id, bed_number) WHERE status = 'active'
		if isUniqueViolation(err) {
			return apperrors.NewConflictError("bed", admission.BedNumber, "bed already has an active admission")
		}
		return apperrors.NewInternalError("failed to create admission", err)
	}
	return nil
}

// GetByID retrieves an admission by ID
func (a *AdmissionAdapter) GetByID(ctx context.Context, id string) (*entities.Admission, error) {
	query, args, err := a.db.Select(admissionColumns...).From("admissions").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	admission, err := scanAdmission(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("admission with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get admission", err)
	}
	return admission, nil
}

// GetByIDs retrieves several admissions in one query
func (a *AdmissionAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Admission, error) {
	if len(ids) == 0 {
		return []*entities.Admission{}, nil
	}
	return a.query(ctx, a.db.Select(admissionColumns...).From("admissions").
		Where(goqu.Ex{"id": ids}))
}

// FindActiveByBed retrieves the active admission pointing at a bed
func (a *AdmissionAdapter) FindActiveByBed(ctx context.Context, roomID, bedNumber string) (*entities.Admission, error) {
	query, args, err := a.db.Select(admissionColumns...).From("admissions").
		Where(goqu.Ex{
			"room_id":    roomID,
			"bed_number": bedNumber,
			"status":     string(entities.AdmissionStatusActive),
		}).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	admission, err := scanAdmission(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no active admission for bed %s in room %s", bedNumber, roomID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get admission", err)
	}
	return admission, nil
}

// ListByStatus retrieves every admission in the given status
func (a *AdmissionAdapter) ListByStatus(ctx context.Context, status entities.AdmissionStatus) ([]*entities.Admission, error) {
	return a.List(ctx, repositories.AdmissionFilter{Status: status})
}

// List retrieves admissions newest first
func (a *AdmissionAdapter) List(ctx context.Context, filter repositories.AdmissionFilter) ([]*entities.Admission, error) {
	where := goqu.Ex{}
	if filter.Status != "" {
		where["status"] = string(filter.Status)
	}
	if filter.RoomID != "" {
		where["room_id"] = filter.RoomID
	}
	if filter.PatientID != "" {
		where["patient_id"] = filter.PatientID
	}

	ds := a.db.Select(admissionColumns...).From("admissions").Where(where)
	switch {
	case filter.Before != nil && filter.BeforeID != "":
		ds = ds.Where(goqu.Or(
			goqu.C("admitted_at").Lt(*filter.Before),
			goqu.And(goqu.C("admitted_at").Eq(*filter.Before), goqu.C("id").Lt(filter.BeforeID)),
		))
	case filter.Before != nil:
		ds = ds.Where(goqu.C("admitted_at").Lt(*filter.Before))
	}
	ds = ds.Order(goqu.I("admitted_at").Desc(), goqu.I("id").Desc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	return a.query(ctx, ds)
}

func (a *AdmissionAdapter) query(ctx context.Context, ds *goqu.SelectDataset) ([]*entities.Admission, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list admissions", err)
	}
	defer rows.Close()

	admissions := make([]*entities.Admission, 0)
	for rows.Next() {
		admission, err := scanAdmission(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan admission", err)
		}
		admissions = append(admissions, admission)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate admissions", err)
	}
	return admissions, nil
}

// Update updates the status, notes and discharge time of an admission
func (a *AdmissionAdapter) Update(ctx context.Context, admission *entities.Admission) error {
	query, args, err := a.db.Update("admissions").
		Set(admissionRecord(admission)).
		Where(goqu.Ex{"id": admission.ID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update admission", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("admission with id %s not found", admission.ID))
	}
	return nil
}

// DeleteByBed deletes every admission that points at the bed
func (a *AdmissionAdapter) DeleteByBed(ctx context.Context, roomID, bedNumber string) (int, error) {
	query, args, err := a.db.Delete("admissions").
		Where(goqu.Ex{
			"room_id":    roomID,
			"bed_number": bedNumber,
		}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build delete query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to delete admissions", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to get rows affected", err)
	}
	return int(rowsAffected), nil
}

func admissionRecord(admission *entities.Admission) goqu.Record {
	return goqu.Record{
		"status":        string(admission.Status),
		"notes":         admission.Notes,
		"discharged_at": nullTime(admission.DischargedAt),
	}
}

func scanAdmission(row rowScanner) (*entities.Admission, error) {
	admission := &entities.Admission{}
	var status string
	var notes sql.NullString
	var dischargedAt sql.NullTime

	err := row.Scan(
		&admission.ID,
		&admission.PatientID,
		&admission.RoomID,
		&admission.BedNumber,
		&status,
		&notes,
		&admission.AdmittedAt,
		&dischargedAt,
	)
	if err != nil {
		return nil, err
	}

	admission.Status = entities.AdmissionStatus(status)
	admission.Notes = notes.String
	admission.DischargedAt = timePtr(dischargedAt)
	return admission, nil
}
