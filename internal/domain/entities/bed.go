package entities

import (
	"time"
)

// BedStatus represents the occupancy state of a bed
type BedStatus string

const (
	BedStatusAvailable   BedStatus = "available"
	BedStatusOccupied    BedStatus = "occupied"
	BedStatusMaintenance BedStatus = "maintenance"
)

// Valid reports whether s is a known bed status
func (s BedStatus) Valid() bool {
	switch s {
	case BedStatusAvailable, BedStatusOccupied, BedStatusMaintenance:
		return true
	}
	return false
}

// Bed is a single bed in a room. Occupancy fields are set together on admit
// and cleared together on discharge or repair.
type Bed struct {
	ID                 string     `json:"id" db:"id"`
	RoomID             string     `json:"room_id" db:"room_id"`
	BedNumber          string     `json:"bed_number" db:"bed_number"`
	Status             BedStatus  `json:"status" db:"status"`
	CurrentPatientID   *string    `json:"current_patient_id,omitempty" db:"current_patient_id"`
	CurrentAdmissionID *string    `json:"current_admission_id,omitempty" db:"current_admission_id"`
	OccupiedAt         *time.Time `json:"occupied_at,omitempty" db:"occupied_at"`
	DailyPrice         float64    `json:"daily_price" db:"daily_price"`
	Version            int64      `json:"version" db:"version"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Occupy marks the bed as held by the given admission
func (b *Bed) Occupy(patientID, admissionID string, at time.Time) {
	b.Status = BedStatusOccupied
	b.CurrentPatientID = &patientID
	b.CurrentAdmissionID = &admissionID
	b.OccupiedAt = &at
}

// Release clears every occupancy field and makes the bed available
func (b *Bed) Release() {
	b.Status = BedStatusAvailable
	b.CurrentPatientID = nil
	b.CurrentAdmissionID = nil
	b.OccupiedAt = nil
}

// Clone returns a deep copy of the bed
func (b *Bed) Clone() *Bed {
	c := *b
	if b.CurrentPatientID != nil {
		v := *b.CurrentPatientID
		c.CurrentPatientID = &v
	}
	if b.CurrentAdmissionID != nil {
		v := *b.CurrentAdmissionID
		c.CurrentAdmissionID = &v
	}
	if b.OccupiedAt != nil {
		v := *b.OccupiedAt
		c.OccupiedAt = &v
	}
	return &c
}

// HeldBy reports whether the bed's occupancy is backed by the admission
func (b *Bed) HeldBy(a *Admission) bool {
	return a != nil &&
		b.CurrentAdmissionID != nil &&
		*b.CurrentAdmissionID == a.ID &&
		a.Status == AdmissionStatusActive &&
		a.RoomID == b.RoomID &&
		a.BedNumber == b.BedNumber
}
