package entities

import (
	"time"
)

// AdmissionStatus represents the lifecycle state of an admission
type AdmissionStatus string

const (
	AdmissionStatusActive     AdmissionStatus = "active"
	AdmissionStatusDischarged AdmissionStatus = "discharged"
	AdmissionStatusCancelled  AdmissionStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s AdmissionStatus) Valid() bool {
	switch s {
	case AdmissionStatusActive, AdmissionStatusDischarged, AdmissionStatusCancelled:
		return true
	}
	return false
}

// Admission records one patient's stay in one bed. It points at the bed by
// (RoomID, BedNumber) rather than by bed id.
type Admission struct {
	ID           string          `json:"id" db:"id"`
	PatientID    string          `json:"patient_id" db:"patient_id"`
	RoomID       string          `json:"room_id" db:"room_id"`
	BedNumber    string          `json:"bed_number" db:"bed_number"`
	Status       AdmissionStatus `json:"status" db:"status"`
	Notes        string          `json:"notes,omitempty" db:"notes"`
	AdmittedAt   time.Time       `json:"admitted_at" db:"admitted_at"`
	DischargedAt *time.Time      `json:"discharged_at,omitempty" db:"discharged_at"`
}

// IsTerminal reports whether the admission can no longer change state
func (a *Admission) IsTerminal() bool {
	return a.Status == AdmissionStatusDischarged || a.Status == AdmissionStatusCancelled
}

// Clone returns a deep copy of the admission
func (a *Admission) Clone() *Admission {
	c := *a
	if a.DischargedAt != nil {
		v := *a.DischargedAt
		c.DischargedAt = &v
	}
	return &c
}
