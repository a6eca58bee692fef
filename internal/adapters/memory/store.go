// Package memory provides process-local implementations of the room, bed
// and admission repositories. Every call is atomic on its own; nothing spans
// calls, matching the single-document guarantee of the production store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/repositories"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

// Store holds rooms, beds and admissions in memory
type Store struct {
	mu         sync.RWMutex
	rooms      map[string]*entities.Room
	beds       map[string]*entities.Bed
	admissions map[string]*entities.Admission
	now        func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		rooms:      make(map[string]*entities.Room),
		beds:       make(map[string]*entities.Bed),
		admissions: make(map[string]*entities.Admission),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Rooms returns the room repository view of the store
func (s *Store) Rooms() repositories.RoomRepository { return &roomRepo{s: s} }

// Beds returns the bed repository view of the store
func (s *Store) Beds() repositories.BedRepository { return &bedRepo{s: s} }

// Admissions returns the admission repository view of the store
func (s *Store) Admissions() repositories.AdmissionRepository { return &admissionRepo{s: s} }

type roomRepo struct{ s *Store }

func (r *roomRepo) Create(ctx context.Context, room *entities.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.rooms {
		if existing.RoomNumber == room.RoomNumber {
			return apperrors.NewConflictError("room", room.RoomNumber, "room number already exists")
		}
	}
	if _, ok := r.s.rooms[room.ID]; ok {
		return apperrors.NewConflictError("room", room.ID, "room id already exists")
	}
	now := r.s.now()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	c := *room
	r.s.rooms[room.ID] = &c
	return nil
}

func (r *roomRepo) GetByID(ctx context.Context, id string) (*entities.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	room, ok := r.s.rooms[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("room with id %s not found", id))
	}
	c := *room
	return &c, nil
}

func (r *roomRepo) List(ctx context.Context, filter repositories.RoomFilter) ([]*entities.Room, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*entities.Room
	for _, room := range r.s.rooms {
		if filter.Floor != nil && room.Floor != *filter.Floor {
			continue
		}
		if filter.RoomType != "" && room.RoomType != filter.RoomType {
			continue
		}
		c := *room
		matched = append(matched, &c)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].RoomNumber < matched[j].RoomNumber })

	total := len(matched)
	return window(matched, filter.Offset, filter.Limit), total, nil
}

func (r *roomRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[id]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("room with id %s not found", id))
	}
	delete(r.s.rooms, id)
	return nil
}

type bedRepo struct{ s *Store }

func (r *bedRepo) Create(ctx context.Context, bed *entities.Bed) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.beds {
		if existing.RoomID == bed.RoomID && existing.BedNumber == bed.BedNumber {
			return apperrors.NewConflictError("bed", bed.BedNumber, "bed number already exists in room "+bed.RoomID)
		}
	}
	now := r.s.now()
	if bed.CreatedAt.IsZero() {
		bed.CreatedAt = now
	}
	bed.UpdatedAt = now
	if bed.Version == 0 {
		bed.Version = 1
	}
	r.s.beds[bed.ID] = bed.Clone()
	return nil
}

func (r *bedRepo) GetByID(ctx context.Context, id string) (*entities.Bed, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	bed, ok := r.s.beds[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("bed with id %s not found", id))
	}
	return bed.Clone(), nil
}

func (r *bedRepo) GetByRoomAndNumber(ctx context.Context, roomID, bedNumber string) (*entities.Bed, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, bed := range r.s.beds {
		if bed.RoomID == roomID && bed.BedNumber == bedNumber {
			return bed.Clone(), nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("bed %s in room %s not found", bedNumber, roomID))
}

func (r *bedRepo) ListByRoom(ctx context.Context, roomID string) ([]*entities.Bed, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	beds := make([]*entities.Bed, 0)
	for _, bed := range r.s.beds {
		if bed.RoomID == roomID {
			beds = append(beds, bed.Clone())
		}
	}
	sortBeds(beds)
	return beds, nil
}

func (r *bedRepo) ListByRoomIDs(ctx context.Context, roomIDs []string) (map[string][]*entities.Bed, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		wanted[id] = struct{}{}
	}
	result := make(map[string][]*entities.Bed, len(roomIDs))
	for _, bed := range r.s.beds {
		if _, ok := wanted[bed.RoomID]; ok {
			result[bed.RoomID] = append(result[bed.RoomID], bed.Clone())
		}
	}
	for _, beds := range result {
		sortBeds(beds)
	}
	return result, nil
}

func (r *bedRepo) ListByStatus(ctx context.Context, status entities.BedStatus) ([]*entities.Bed, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	beds := make([]*entities.Bed, 0)
	for _, bed := range r.s.beds {
		if bed.Status == status {
			beds = append(beds, bed.Clone())
		}
	}
	sortBeds(beds)
	return beds, nil
}

func (r *bedRepo) Update(ctx context.Context, bed *entities.Bed) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.beds[bed.ID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("bed with id %s not found", bed.ID))
	}
	if stored.Version != bed.Version {
		return repositories.ErrVersionConflict
	}
	bed.Version++
	bed.UpdatedAt = r.s.now()
	r.s.beds[bed.ID] = bed.Clone()
	return nil
}

func (r *bedRepo) DeleteByRoom(ctx context.Context, roomID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for id, bed := range r.s.beds {
		if bed.RoomID == roomID {
			delete(r.s.beds, id)
			n++
		}
	}
	return n, nil
}

type admissionRepo struct{ s *Store }

func (r *admissionRepo) Create(ctx context.Context, admission *entities.Admission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.admissions[admission.ID]; ok {
		return apperrors.NewConflictError("admission", admission.ID, "admission id already exists")
	}
	r.s.admissions[admission.ID] = admission.Clone()
	return nil
}

func (r *admissionRepo) GetByID(ctx context.Context, id string) (*entities.Admission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.admissions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("admission with id %s not found", id))
	}
	return a.Clone(), nil
}

func (r *admissionRepo) GetByIDs(ctx context.Context, ids []string) ([]*entities.Admission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*entities.Admission, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.s.admissions[id]; ok {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (r *admissionRepo) FindActiveByBed(ctx context.Context, roomID, bedNumber string) (*entities.Admission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, a := range r.s.admissions {
		if a.RoomID == roomID && a.BedNumber == bedNumber && a.Status == entities.AdmissionStatusActive {
			return a.Clone(), nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("no active admission for bed %s in room %s", bedNumber, roomID))
}

func (r *admissionRepo) ListByStatus(ctx context.Context, status entities.AdmissionStatus) ([]*entities.Admission, error) {
	return r.List(ctx, repositories.AdmissionFilter{Status: status})
}

func (r *admissionRepo) List(ctx context.Context, filter repositories.AdmissionFilter) ([]*entities.Admission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*entities.Admission, 0)
	for _, a := range r.s.admissions {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.RoomID != "" && a.RoomID != filter.RoomID {
			continue
		}
		if filter.PatientID != "" && a.PatientID != filter.PatientID {
			continue
		}
		if filter.Before != nil && !admittedBefore(a, *filter.Before, filter.BeforeID) {
			continue
		}
		result = append(result, a.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AdmittedAt.Equal(result[j].AdmittedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].AdmittedAt.After(result[j].AdmittedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *admissionRepo) Update(ctx context.Context, admission *entities.Admission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.admissions[admission.ID]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("admission with id %s not found", admission.ID))
	}
	r.s.admissions[admission.ID] = admission.Clone()
	return nil
}

func (r *admissionRepo) DeleteByBed(ctx context.Context, roomID, bedNumber string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for id, a := range r.s.admissions {
		if a.RoomID == roomID && a.BedNumber == bedNumber {
			delete(r.s.admissions, id)
			n++
		}
	}
	return n, nil
}

// admittedBefore reports whether a sorts after the cursor (at, id) in
// newest-first order
func admittedBefore(a *entities.Admission, at time.Time, id string) bool {
	if a.AdmittedAt.Before(at) {
		return true
	}
	return id != "" && a.AdmittedAt.Equal(at) && a.ID < id
}

func sortBeds(beds []*entities.Bed) {
	sort.Slice(beds, func(i, j int) bool { return beds[i].BedNumber < beds[j].BedNumber })
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset < 0 {
		offset = 0
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
