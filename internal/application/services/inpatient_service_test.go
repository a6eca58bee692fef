package services_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/inpatient-core/internal/adapters/memory"
	"github.com/zatekoja/inpatient-core/internal/application/services"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/domain/repositories"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
	"github.com/zatekoja/inpatient-core/pkg/pagination"
)

var errStoreDown = errors.New("store unavailable")

// flakyAdmissions fails Update the configured number of times; -1 fails forever
type flakyAdmissions struct {
	repositories.AdmissionRepository
	mu             sync.Mutex
	updateFailures int
	updateCalls    int
	calls          *[]string
}

func (f *flakyAdmissions) Update(ctx context.Context, a *entities.Admission) error {
	f.mu.Lock()
	f.updateCalls++
	if f.updateFailures != 0 {
		if f.updateFailures > 0 {
			f.updateFailures--
		}
		f.mu.Unlock()
		return errStoreDown
	}
	f.mu.Unlock()
	return f.AdmissionRepository.Update(ctx, a)
}

func (f *flakyAdmissions) DeleteByBed(ctx context.Context, roomID, bedNumber string) (int, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, "delete_admissions:"+bedNumber)
	}
	return f.AdmissionRepository.DeleteByBed(ctx, roomID, bedNumber)
}

// flakyBeds fails Update or DeleteByRoom on demand
type flakyBeds struct {
	repositories.BedRepository
	mu            sync.Mutex
	failUpdate    bool
	failUpdateFor string
	failDeleteBy  bool
	calls         *[]string
}

func (f *flakyBeds) Update(ctx context.Context, bed *entities.Bed) error {
	f.mu.Lock()
	fail := f.failUpdate || (f.failUpdateFor != "" && f.failUpdateFor == bed.ID)
	f.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return f.BedRepository.Update(ctx, bed)
}

func (f *flakyBeds) setFailUpdate(v bool) {
	f.mu.Lock()
	f.failUpdate = v
	f.mu.Unlock()
}

func (f *flakyBeds) DeleteByRoom(ctx context.Context, roomID string) (int, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, "delete_beds")
	}
	if f.failDeleteBy {
		return 0, errStoreDown
	}
	return f.BedRepository.DeleteByRoom(ctx, roomID)
}

type recordingRooms struct {
	repositories.RoomRepository
	calls *[]string
}

func (r *recordingRooms) Delete(ctx context.Context, id string) error {
	*r.calls = append(*r.calls, "delete_room")
	return r.RoomRepository.Delete(ctx, id)
}

type fixture struct {
	store      *memory.Store
	rooms      *recordingRooms
	beds       *flakyBeds
	admissions *flakyAdmissions
	bus        *MockEventBus
	svc        *services.InpatientService
	calls      []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), bus: NewMockEventBus()}
	f.rooms = &recordingRooms{RoomRepository: f.store.Rooms(), calls: &f.calls}
	f.beds = &flakyBeds{BedRepository: f.store.Beds(), calls: &f.calls}
	f.admissions = &flakyAdmissions{AdmissionRepository: f.store.Admissions(), calls: &f.calls}
	f.svc = services.NewInpatientService(f.rooms, f.beds, f.admissions, services.NewBedLocker(), zerolog.Nop())
	f.svc.SetEventBus(f.bus)
	return f
}

func (f *fixture) room(t *testing.T, number string, beds ...string) *entities.Room {
	t.Helper()
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, services.CreateRoomInput{RoomNumber: number, Floor: 1, RoomType: "ward"})
	require.NoError(t, err)
	for _, b := range beds {
		_, err := f.svc.AddBed(ctx, room.ID, services.AddBedInput{BedNumber: b, DailyPrice: 150})
		require.NoError(t, err)
	}
	return room
}

func (f *fixture) bed(t *testing.T, roomID, number string) *entities.Bed {
	t.Helper()
	bed, err := f.store.Beds().GetByRoomAndNumber(context.Background(), roomID, number)
	require.NoError(t, err)
	return bed
}

// assertConsistent checks that every bed is occupied exactly when a
// matching active admission holds it
func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, status := range []entities.BedStatus{entities.BedStatusAvailable, entities.BedStatusOccupied, entities.BedStatusMaintenance} {
		beds, err := f.store.Beds().ListByStatus(ctx, status)
		require.NoError(t, err)
		for _, bed := range beds {
			active, err := f.store.Admissions().FindActiveByBed(ctx, bed.RoomID, bed.BedNumber)
			if bed.Status == entities.BedStatusOccupied {
				require.NoError(t, err, "occupied bed %s has no active admission", bed.ID)
				assert.True(t, bed.HeldBy(active), "bed %s not held by its active admission", bed.ID)
			} else {
				assert.True(t, apperrors.IsNotFound(err), "free bed %s has an active admission", bed.ID)
			}
		}
	}
}

func TestInpatientService_AdmitThenDischargeRestoresBed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "101", "A")
	before := f.bed(t, room.ID, "A")

	admission, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "patient-1"})
	require.NoError(t, err)
	assert.Equal(t, entities.AdmissionStatusActive, admission.Status)

	occupied := f.bed(t, room.ID, "A")
	assert.Equal(t, entities.BedStatusOccupied, occupied.Status)
	require.NotNil(t, occupied.CurrentAdmissionID)
	assert.Equal(t, admission.ID, *occupied.CurrentAdmissionID)
	f.assertConsistent(t)

	discharged, err := f.svc.DischargePatient(ctx, admission.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.AdmissionStatusDischarged, discharged.Status)
	require.NotNil(t, discharged.DischargedAt)

	after := f.bed(t, room.ID, "A")
	assert.Equal(t, before.Status, after.Status)
	assert.Nil(t, after.CurrentPatientID)
	assert.Nil(t, after.CurrentAdmissionID)
	assert.Nil(t, after.OccupiedAt)
	assert.Equal(t, before.DailyPrice, after.DailyPrice)
	f.assertConsistent(t)

	assert.Contains(t, f.bus.Published(), entities.InpatientEventBedOccupied)
	assert.Contains(t, f.bus.Published(), entities.InpatientEventBedReleased)
}

func TestInpatientService_AdmitRequiresAvailableBed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "102", "A", "B")

	_, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "p1"})
	require.NoError(t, err)

	_, err = f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "p2"})
	assert.True(t, apperrors.IsConflict(err))

	_, err = f.svc.SetBedMaintenance(ctx, f.bed(t, room.ID, "B").ID, true)
	require.NoError(t, err)
	_, err = f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "B", PatientID: "p2"})
	assert.True(t, apperrors.IsConflict(err))

	_, err = f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "Z", PatientID: "p2"})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestInpatientService_ConcurrentAdmitsOneWins(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, "103", "A")

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.AdmitPatient(context.Background(), services.AdmitInput{
				RoomID: room.ID, BedNumber: "A", PatientID: "patient",
			})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	active, err := f.store.Admissions().ListByStatus(context.Background(), entities.AdmissionStatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	f.assertConsistent(t)
}

func TestInpatientService_SweepRacingAdmitsAndDischarges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	numbers := []string{"A", "B", "C"}
	room := f.room(t, "120", numbers...)

	const rounds = 50
	var (
		mu        sync.Mutex
		repaired  int
		orphans   int
		unexpected []error
	)
	record := func(err error, allowed ...func(error) bool) {
		if err == nil {
			return
		}
		for _, ok := range allowed {
			if ok(err) {
				return
			}
		}
		mu.Lock()
		unexpected = append(unexpected, err)
		mu.Unlock()
	}

	for round := 0; round < rounds; round++ {
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i, number := range numbers {
			wg.Add(2)
			go func(number string, patient int) {
				defer wg.Done()
				<-start
				_, err := f.svc.AdmitPatient(ctx, services.AdmitInput{
					RoomID: room.ID, BedNumber: number, PatientID: "patient-" + string(rune('a'+patient)),
				})
				record(err, apperrors.IsConflict)
			}(number, i)
			go func(number string) {
				defer wg.Done()
				<-start
				active, err := f.store.Admissions().FindActiveByBed(ctx, room.ID, number)
				if err != nil {
					record(err, apperrors.IsNotFound)
					return
				}
				_, err = f.svc.DischargePatient(ctx, active.ID)
				record(err, apperrors.IsConflict)
			}(number)
		}
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				result, err := f.svc.ReconcileBeds(ctx)
				record(err)
				if result != nil {
					mu.Lock()
					repaired += result.RepairedCount
					orphans += len(result.OrphanAdmissionIDs)
					mu.Unlock()
				}
			}()
		}
		close(start)
		wg.Wait()
	}

	assert.Empty(t, unexpected)
	assert.Zero(t, repaired, "sweep released a bed held by an in-flight admission")
	assert.Zero(t, orphans, "sweep cancelled an in-flight admission")
	f.assertConsistent(t)

	for _, number := range numbers {
		active, err := f.store.Admissions().List(ctx, repositories.AdmissionFilter{
			Status: entities.AdmissionStatusActive, RoomID: room.ID,
		})
		require.NoError(t, err)
		held := 0
		for _, a := range active {
			if a.BedNumber == number {
				held++
			}
		}
		assert.LessOrEqual(t, held, 1, "bed %s has more than one active admission", number)
	}
}

func TestInpatientService_AdmitCompensatesFailedBedWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "104", "A")
	f.beds.setFailUpdate(true)

	_, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "p1"})
	require.ErrorIs(t, err, errStoreDown)

	all, err := f.store.Admissions().List(ctx, repositories.AdmissionFilter{RoomID: room.ID})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, entities.AdmissionStatusCancelled, all[0].Status)
	assert.Equal(t, entities.BedStatusAvailable, f.bed(t, room.ID, "A").Status)
	f.assertConsistent(t)
}

func TestInpatientService_AdmitReportsFailedCompensation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "105", "A")
	f.beds.setFailUpdate(true)
	f.admissions.updateFailures = -1

	_, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "p1"})
	var sagaErr *apperrors.SagaError
	require.ErrorAs(t, err, &sagaErr)
	assert.Equal(t, []string{"create_admission"}, sagaErr.Committed)
	assert.Equal(t, "occupy_bed", sagaErr.Failed)

	// the sweep cancels the admission left active
	f.beds.setFailUpdate(false)
	f.admissions.updateFailures = 0
	result, err := f.svc.ReconcileBeds(ctx)
	require.NoError(t, err)
	assert.Len(t, result.OrphanAdmissionIDs, 1)
	f.assertConsistent(t)
}

func TestInpatientService_DischargeRetriesAdmissionWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "106", "A")

	admission, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "p1"})
	require.NoError(t, err)

	f.admissions.updateFailures = 2
	_, err = f.svc.DischargePatient(ctx, admission.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, f.admissions.updateCalls)
	assert.Equal(t, entities.BedStatusAvailable, f.bed(t, room.ID, "A").Status)
}

func TestInpatientService_DischargeLeavesBedWhenAdmissionWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "107", "A")

	admission, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "p1"})
	require.NoError(t, err)

	f.admissions.updateFailures = -1
	_, err = f.svc.DischargePatient(ctx, admission.ID)
	require.ErrorIs(t, err, errStoreDown)

	bed := f.bed(t, room.ID, "A")
	assert.Equal(t, entities.BedStatusOccupied, bed.Status)
	assert.Equal(t, admission.ID, *bed.CurrentAdmissionID)
}

func TestInpatientService_DischargeBedFailureRepairedBySweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "108", "A")

	admission, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "p1"})
	require.NoError(t, err)

	f.beds.setFailUpdate(true)
	_, err = f.svc.DischargePatient(ctx, admission.ID)
	var sagaErr *apperrors.SagaError
	require.ErrorAs(t, err, &sagaErr)
	assert.Equal(t, []string{"discharge_admission"}, sagaErr.Committed)
	assert.Equal(t, "release_bed", sagaErr.Failed)
	f.beds.setFailUpdate(false)

	result, err := f.svc.ReconcileBeds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RepairedCount)
	assert.Equal(t, []string{f.bed(t, room.ID, "A").ID}, result.RepairedBedIDs)
	f.assertConsistent(t)
}

func TestInpatientService_DischargeRejectsInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "109", "A")

	admission, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "p1"})
	require.NoError(t, err)
	_, err = f.svc.DischargePatient(ctx, admission.ID)
	require.NoError(t, err)

	_, err = f.svc.DischargePatient(ctx, admission.ID)
	assert.True(t, apperrors.IsConflict(err))

	_, err = f.svc.DischargePatient(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestInpatientService_ReconcileRepairsAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "110", "A", "B", "C", "D")
	beds := f.store.Beds()
	admissions := f.store.Admissions()
	now := time.Now().UTC()

	// A: points at an admission that does not exist
	a := f.bed(t, room.ID, "A")
	a.Occupy("p1", "ghost", now)
	require.NoError(t, beds.Update(ctx, a))

	// B: points at a discharged admission
	require.NoError(t, admissions.Create(ctx, &entities.Admission{
		ID: "old", PatientID: "p2", RoomID: room.ID, BedNumber: "B",
		Status: entities.AdmissionStatusDischarged, AdmittedAt: now.Add(-time.Hour),
	}))
	b := f.bed(t, room.ID, "B")
	b.Occupy("p2", "old", now)
	require.NoError(t, beds.Update(ctx, b))

	// C: occupied with no admission id at all
	c := f.bed(t, room.ID, "C")
	c.Status = entities.BedStatusOccupied
	require.NoError(t, beds.Update(ctx, c))

	// D: legitimately occupied
	_, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "D", PatientID: "p4"})
	require.NoError(t, err)

	first, err := f.svc.ReconcileBeds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.RepairedCount)
	assert.ElementsMatch(t, []string{a.ID, b.ID, c.ID}, first.RepairedBedIDs)
	assert.Empty(t, first.OrphanAdmissionIDs)
	f.assertConsistent(t)

	second, err := f.svc.ReconcileBeds(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.RepairedCount)
	assert.Empty(t, second.RepairedBedIDs)
	assert.Equal(t, entities.BedStatusOccupied, f.bed(t, room.ID, "D").Status)
}

func TestInpatientService_ReconcileContinuesPastFailedRepair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "115", "A", "B", "C")
	now := time.Now().UTC()

	for _, number := range []string{"A", "B", "C"} {
		bed := f.bed(t, room.ID, number)
		bed.Occupy("p-"+number, "ghost-"+number, now)
		require.NoError(t, f.store.Beds().Update(ctx, bed))
	}
	require.NoError(t, f.store.Admissions().Create(ctx, &entities.Admission{
		ID: "orphan", PatientID: "p9", RoomID: room.ID, BedNumber: "Z",
		Status: entities.AdmissionStatusActive, AdmittedAt: now,
	}))
	stuck := f.bed(t, room.ID, "B")
	f.beds.mu.Lock()
	f.beds.failUpdateFor = stuck.ID
	f.beds.mu.Unlock()

	result, err := f.svc.ReconcileBeds(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Contains(t, err.Error(), stuck.ID)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.RepairedCount)
	assert.ElementsMatch(t, []string{f.bed(t, room.ID, "A").ID, f.bed(t, room.ID, "C").ID}, result.RepairedBedIDs)
	assert.Equal(t, []string{"orphan"}, result.OrphanAdmissionIDs)
	assert.Equal(t, entities.BedStatusOccupied, f.bed(t, room.ID, "B").Status)

	f.beds.mu.Lock()
	f.beds.failUpdateFor = ""
	f.beds.mu.Unlock()
	retry, err := f.svc.ReconcileBeds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{stuck.ID}, retry.RepairedBedIDs)
	f.assertConsistent(t)
}

func TestInpatientService_ReconcileAuditNamesUnreferencedAdmission(t *testing.T) {
	store := memory.NewStore()
	var logs bytes.Buffer
	svc := services.NewInpatientService(store.Rooms(), store.Beds(), store.Admissions(), services.NewBedLocker(), zerolog.New(&logs))
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, services.CreateRoomInput{RoomNumber: "116"})
	require.NoError(t, err)
	_, err = svc.AddBed(ctx, room.ID, services.AddBedInput{BedNumber: "A"})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.Admissions().Create(ctx, &entities.Admission{
		ID: "real", PatientID: "p1", RoomID: room.ID, BedNumber: "A",
		Status: entities.AdmissionStatusActive, AdmittedAt: now,
	}))
	bed, err := store.Beds().GetByRoomAndNumber(ctx, room.ID, "A")
	require.NoError(t, err)
	bed.Occupy("p1", "ghost", now)
	require.NoError(t, store.Beds().Update(ctx, bed))

	result, err := svc.ReconcileBeds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{bed.ID}, result.RepairedBedIDs)
	assert.Equal(t, []string{"real"}, result.OrphanAdmissionIDs)
	assert.Contains(t, logs.String(), `"unreferenced_admission_id":"real"`)
}

func TestInpatientService_ReconcileCancelsOrphanAdmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "111", "A")

	require.NoError(t, f.store.Admissions().Create(ctx, &entities.Admission{
		ID: "orphan", PatientID: "p1", RoomID: room.ID, BedNumber: "A",
		Status: entities.AdmissionStatusActive, AdmittedAt: time.Now().UTC(),
	}))

	result, err := f.svc.ReconcileBeds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, result.OrphanAdmissionIDs)

	orphan, err := f.store.Admissions().GetByID(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, entities.AdmissionStatusCancelled, orphan.Status)
	f.assertConsistent(t)
}

func TestInpatientService_DeleteRoomCascadeOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "112", "A", "B")

	first, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "p1"})
	require.NoError(t, err)
	_, err = f.svc.DischargePatient(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "B", PatientID: "p2"})
	require.NoError(t, err)

	f.calls = nil
	result, err := f.svc.DeleteRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.AdmissionsDeleted)
	assert.Equal(t, 2, result.BedsDeleted)
	assert.Equal(t, []string{"delete_admissions:A", "delete_admissions:B", "delete_beds", "delete_room"}, f.calls)

	_, err = f.store.Rooms().GetByID(ctx, room.ID)
	assert.True(t, apperrors.IsNotFound(err))
	left, err := f.store.Admissions().List(ctx, repositories.AdmissionFilter{RoomID: room.ID})
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Contains(t, f.bus.Published(), entities.InpatientEventRoomDeleted)
}

func TestInpatientService_DeleteRoomReportsFailedStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "113", "A", "B")
	_, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "A", PatientID: "p1"})
	require.NoError(t, err)

	f.beds.failDeleteBy = true
	_, err = f.svc.DeleteRoom(ctx, room.ID)

	var cascadeErr *apperrors.CascadeIntegrityError
	require.ErrorAs(t, err, &cascadeErr)
	assert.Equal(t, apperrors.CascadeStepDeleteBeds, cascadeErr.FailedStep)
	assert.Equal(t, 1, cascadeErr.AdmissionsDeleted)
	assert.Zero(t, cascadeErr.BedsDeleted)
	assert.ErrorIs(t, err, errStoreDown)

	_, err = f.store.Rooms().GetByID(ctx, room.ID)
	assert.NoError(t, err, "room survives when an earlier step fails")

	_, err = f.svc.DeleteRoom(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

// staleRooms keeps answering GetByID for a room deleted underneath it
type staleRooms struct {
	repositories.RoomRepository
	snapshot *entities.Room
}

func (r *staleRooms) GetByID(ctx context.Context, id string) (*entities.Room, error) {
	if r.snapshot != nil && r.snapshot.ID == id {
		c := *r.snapshot
		return &c, nil
	}
	return r.RoomRepository.GetByID(ctx, id)
}

func TestInpatientService_DeleteRoomAlreadyGoneIsNotFound(t *testing.T) {
	store := memory.NewStore()
	rooms := &staleRooms{RoomRepository: store.Rooms()}
	svc := services.NewInpatientService(rooms, store.Beds(), store.Admissions(), services.NewBedLocker(), zerolog.Nop())
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, services.CreateRoomInput{RoomNumber: "130"})
	require.NoError(t, err)
	rooms.snapshot = room
	require.NoError(t, store.Rooms().Delete(ctx, room.ID))

	_, err = svc.DeleteRoom(ctx, room.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	var cascadeErr *apperrors.CascadeIntegrityError
	assert.False(t, errors.As(err, &cascadeErr))
}

func TestInpatientService_SetBedMaintenance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "114", "A", "B")
	bedA := f.bed(t, room.ID, "A")

	bed, err := f.svc.SetBedMaintenance(ctx, bedA.ID, true)
	require.NoError(t, err)
	assert.Equal(t, entities.BedStatusMaintenance, bed.Status)

	bed, err = f.svc.SetBedMaintenance(ctx, bedA.ID, true)
	require.NoError(t, err, "already in maintenance")
	assert.Equal(t, entities.BedStatusMaintenance, bed.Status)

	bed, err = f.svc.SetBedMaintenance(ctx, bedA.ID, false)
	require.NoError(t, err)
	assert.Equal(t, entities.BedStatusAvailable, bed.Status)

	_, err = f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: room.ID, BedNumber: "B", PatientID: "p1"})
	require.NoError(t, err)
	_, err = f.svc.SetBedMaintenance(ctx, f.bed(t, room.ID, "B").ID, true)
	assert.True(t, apperrors.IsConflict(err))
}

func TestInpatientService_RoomQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	free := f.room(t, "201", "A")
	full := f.room(t, "202", "A")
	f.room(t, "203")

	_, err := f.svc.AdmitPatient(ctx, services.AdmitInput{RoomID: full.ID, BedNumber: "A", PatientID: "p1"})
	require.NoError(t, err)

	detail, err := f.svc.GetRoom(ctx, full.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RoomStatusFull, detail.Status)
	assert.Len(t, detail.Beds, 1)

	page, err := f.svc.ListRooms(ctx, repositories.RoomFilter{}, pagination.PageParams{Page: 1, Limit: 2, Offset: 0})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.True(t, page.Pagination.HasNext)
	assert.Equal(t, free.ID, page.Data[0].ID)
	assert.Equal(t, entities.RoomStatusAvailable, page.Data[0].Status)
	assert.Equal(t, entities.RoomStatusFull, page.Data[1].Status)

	_, err = f.svc.CreateRoom(ctx, services.CreateRoomInput{RoomNumber: "201"})
	assert.True(t, apperrors.IsConflict(err))
	_, err = f.svc.AddBed(ctx, free.ID, services.AddBedInput{BedNumber: "A"})
	assert.True(t, apperrors.IsConflict(err))
	_, err = f.svc.AddBed(ctx, "missing", services.AddBedInput{BedNumber: "A"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestInpatientService_ListAdmissionsCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, f.store.Admissions().Create(ctx, &entities.Admission{
			ID: id, PatientID: "p", RoomID: "r1", BedNumber: "A",
			Status: entities.AdmissionStatusDischarged, AdmittedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, err := f.svc.ListAdmissions(ctx, services.AdmissionQuery{}, pagination.CursorParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "a2", page.Data[1].ID)
	assert.Equal(t, base.Add(time.Hour).Format(time.RFC3339Nano)+"|a2", *page.NextCursor)

	next, err := f.svc.ListAdmissions(ctx, services.AdmissionQuery{}, pagination.CursorParams{Limit: 2, Cursor: *page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Data, 1)
	assert.Equal(t, "a1", next.Data[0].ID)
	assert.False(t, next.HasMore)
	assert.Nil(t, next.NextCursor)

	_, err = f.svc.ListAdmissions(ctx, services.AdmissionQuery{}, pagination.CursorParams{Limit: 2, Cursor: "yesterday"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestInpatientService_ListAdmissionsCursorSameTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admitted := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		require.NoError(t, f.store.Admissions().Create(ctx, &entities.Admission{
			ID: id, PatientID: "p", RoomID: "r1", BedNumber: id,
			Status: entities.AdmissionStatusDischarged, AdmittedAt: admitted,
		}))
	}

	var seen []string
	cursor := ""
	for i := 0; i < 4; i++ {
		page, err := f.svc.ListAdmissions(ctx, services.AdmissionQuery{}, pagination.CursorParams{Limit: 3, Cursor: cursor})
		require.NoError(t, err)
		for _, a := range page.Data {
			seen = append(seen, a.ID)
		}
		if !page.HasMore {
			break
		}
		cursor = *page.NextCursor
	}
	assert.Equal(t, []string{"a4", "a3", "a2", "a1"}, seen)

	// a bare timestamp is still accepted and skips the whole instant
	older, err := f.svc.ListAdmissions(ctx, services.AdmissionQuery{}, pagination.CursorParams{Limit: 3, Cursor: admitted.Format(time.RFC3339Nano)})
	require.NoError(t, err)
	assert.Empty(t, older.Data)
}
