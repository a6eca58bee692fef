package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/repositories"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

// RoomAdapter implements the RoomRepository interface
type RoomAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewRoomAdapter creates a new room adapter
func NewRoomAdapter(client *postgres.Client) repositories.RoomRepository {
	return &RoomAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create creates a new room
func (a *RoomAdapter) Create(ctx context.Context, room *entities.Room) error {
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now

	record := goqu.Record{
		"id":          room.ID,
		"room_number": room.RoomNumber,
		"floor":       room.Floor,
		"room_type":   room.RoomType,
		"created_at":  room.CreatedAt,
		"updated_at":  room.UpdatedAt,
	}

	query, args, err := a.db.Insert("rooms").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError("room", room.RoomNumber, "room number already exists")
		}
		return apperrors.NewInternalError("failed to create room", err)
	}
	return nil
}

// GetByID retrieves a room by ID
func (a *RoomAdapter) GetByID(ctx context.Context, id string) (*entities.Room, error) {
	query, args, err := a.db.Select(
		"id", "room_number", "floor", "room_type", "created_at", "updated_at",
	).From("rooms").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	room := &entities.Room{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&room.ID,
		&room.RoomNumber,
		&room.Floor,
		&room.RoomType,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("room with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get room", err)
	}
	return room, nil
}

// List retrieves one page of rooms and the total count for the filter
func (a *RoomAdapter) List(ctx context.Context, filter repositories.RoomFilter) ([]*entities.Room, int, error) {
	where := goqu.Ex{}
	if filter.Floor != nil {
		where["floor"] = *filter.Floor
	}
	if filter.RoomType != "" {
		where["room_type"] = filter.RoomType
	}

	countQuery, countArgs, err := a.db.From("rooms").
		Select(goqu.COUNT("*")).
		Where(where).
		ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var total int
	if err := a.client.DB().QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to count rooms", err)
	}

	ds := a.db.Select(
		"id", "room_number", "floor", "room_type", "created_at", "updated_at",
	).From("rooms").
		Where(where).
		Order(goqu.I("room_number").Asc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to list rooms", err)
	}
	defer rows.Close()

	rooms := make([]*entities.Room, 0)
	for rows.Next() {
		room := &entities.Room{}
		if err := rows.Scan(
			&room.ID,
			&room.RoomNumber,
			&room.Floor,
			&room.RoomType,
			&room.CreatedAt,
			&room.UpdatedAt,
		); err != nil {
			return nil, 0, apperrors.NewInternalError("failed to scan room", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to iterate rooms", err)
	}

	return rooms, total, nil
}

// Delete deletes a room
func (a *RoomAdapter) Delete(ctx context.Context, id string) error {
	query, args, err := a.db.Delete("rooms").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to delete room", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("room with id %s not found", id))
	}
	return nil
}
