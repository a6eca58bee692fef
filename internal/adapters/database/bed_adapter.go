package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/repositories"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

var bedColumns = []interface{}{
	"id", "room_id", "bed_number", "status",
	"current_patient_id", "current_admission_id", "occupied_at",
	"daily_price", "version", "created_at", "updated_at",
}

// BedAdapter implements the BedRepository interface
type BedAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewBedAdapter creates a new bed adapter
func NewBedAdapter(client *postgres.Client) repositories.BedRepository {
	return &BedAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create creates a new bed
func (a *BedAdapter) Create(ctx context.Context, bed *entities.Bed) error {
	now := time.Now().UTC()
	if bed.CreatedAt.IsZero() {
		bed.CreatedAt = now
	}
	bed.UpdatedAt = now
	if bed.Version == 0 {
		bed.Version = 1
	}

	record := bedRecord(bed)
	record["id"] = bed.ID
	record["room_id"] = bed.RoomID
	record["created_at"] = bed.CreatedAt

	query, args, err := a.db.Insert("beds").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError("bed", bed.BedNumber, "bed number already exists in room "+bed.RoomID)
		}
		return apperrors.NewInternalError("failed to create bed", err)
	}
	return nil
}

// GetByID retrieves a bed by ID
func (a *BedAdapter) GetByID(ctx context.Context, id string) (*entities.Bed, error) {
	query, args, err := a.db.Select(bedColumns...).From("beds").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	bed, err := scanBed(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("bed with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get bed", err)
	}
	return bed, nil
}

// GetByRoomAndNumber retrieves a bed by its room and bed number
func (a *BedAdapter) GetByRoomAndNumber(ctx context.Context, roomID, bedNumber string) (*entities.Bed, error) {
	query, args, err := a.db.Select(bedColumns...).From("beds").
		Where(goqu.Ex{
			"room_id":    roomID,
			"bed_number": bedNumber,
		}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	bed, err := scanBed(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("bed %s in room %s not found", bedNumber, roomID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get bed", err)
	}
	return bed, nil
}

// ListByRoom retrieves all beds of a room
func (a *BedAdapter) ListByRoom(ctx context.Context, roomID string) ([]*entities.Bed, error) {
	return a.list(ctx, goqu.Ex{"room_id": roomID})
}

// ListByRoomIDs retrieves the beds of several rooms in a single query
func (a *BedAdapter) ListByRoomIDs(ctx context.Context, roomIDs []string) (map[string][]*entities.Bed, error) {
	result := make(map[string][]*entities.Bed, len(roomIDs))
	if len(roomIDs) == 0 {
		return result, nil
	}

	beds, err := a.list(ctx, goqu.Ex{"room_id": roomIDs})
	if err != nil {
		return nil, err
	}
	for _, bed := range beds {
		result[bed.RoomID] = append(result[bed.RoomID], bed)
	}
	return result, nil
}

// ListByStatus retrieves every bed in the given status
func (a *BedAdapter) ListByStatus(ctx context.Context, status entities.BedStatus) ([]*entities.Bed, error) {
	return a.list(ctx, goqu.Ex{"status": string(status)})
}

func (a *BedAdapter) list(ctx context.Context, where goqu.Ex) ([]*entities.Bed, error) {
	query, args, err := a.db.Select(bedColumns...).From("beds").
		Where(where).
		Order(goqu.I("room_id").Asc(), goqu.I("bed_number").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list beds", err)
	}
	defer rows.Close()

	beds := make([]*entities.Bed, 0)
	for rows.Next() {
		bed, err := scanBed(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan bed", err)
		}
		beds = append(beds, bed)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate beds", err)
	}
	return beds, nil
}

// Update writes the bed when the stored version still matches bed.Version
func (a *BedAdapter) Update(ctx context.Context, bed *entities.Bed) error {
	updatedAt := time.Now().UTC()
	record := bedRecord(bed)
	record["updated_at"] = updatedAt
	record["version"] = bed.Version + 1

	query, args, err := a.db.Update("beds").
		Set(record).
		Where(goqu.Ex{"id": bed.ID, "version": bed.Version}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update bed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		if _, err := a.GetByID(ctx, bed.ID); err != nil {
			return err
		}
		return repositories.ErrVersionConflict
	}

	bed.Version++
	bed.UpdatedAt = updatedAt
	return nil
}

// DeleteByRoom deletes all beds of a room
func (a *BedAdapter) DeleteByRoom(ctx context.Context, roomID string) (int, error) {
	query, args, err := a.db.Delete("beds").
		Where(goqu.Ex{"room_id": roomID}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build delete query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to delete beds", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to get rows affected", err)
	}
	return int(rowsAffected), nil
}

// bedRecord holds the mutable columns of a bed
func bedRecord(bed *entities.Bed) goqu.Record {
	return goqu.Record{
		"bed_number":           bed.BedNumber,
		"status":               string(bed.Status),
		"current_patient_id":   nullString(bed.CurrentPatientID),
		"current_admission_id": nullString(bed.CurrentAdmissionID),
		"occupied_at":          nullTime(bed.OccupiedAt),
		"daily_price":          bed.DailyPrice,
		"version":              bed.Version,
		"updated_at":           bed.UpdatedAt,
	}
}

func scanBed(row rowScanner) (*entities.Bed, error) {
	bed := &entities.Bed{}
	var status string
	var patientID, admissionID sql.NullString
	var occupiedAt sql.NullTime

	err := row.Scan(
		&bed.ID,
		&bed.RoomID,
		&bed.BedNumber,
		&status,
		&patientID,
		&admissionID,
		&occupiedAt,
		&bed.DailyPrice,
		&bed.Version,
		&bed.CreatedAt,
		&bed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	bed.Status = entities.BedStatus(status)
	bed.CurrentPatientID = stringPtr(patientID)
	bed.CurrentAdmissionID = stringPtr(admissionID)
	bed.OccupiedAt = timePtr(occupiedAt)
	return bed, nil
}
