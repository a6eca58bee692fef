package entities

import (
	"time"

	"github.com/google/uuid"
)

// InpatientEventType represents the kind of committed state transition
type InpatientEventType string

const (
	InpatientEventBedOccupied        InpatientEventType = "bed.occupied"
	InpatientEventBedReleased        InpatientEventType = "bed.released"
	InpatientEventBedRepaired        InpatientEventType = "bed.repaired"
	InpatientEventBedMaintenance     InpatientEventType = "bed.maintenance"
	InpatientEventBedCreated         InpatientEventType = "bed.created"
	InpatientEventRoomCreated        InpatientEventType = "room.created"
	InpatientEventRoomDeleted        InpatientEventType = "room.deleted"
	InpatientEventAdmissionCancelled InpatientEventType = "admission.cancelled"
)

// InpatientEvent is published after a room, bed or admission change commits
type InpatientEvent struct {
	ID          string             `json:"id"`
	EventType   InpatientEventType `json:"event_type"`
	RoomID      string             `json:"room_id"`
	BedID       string             `json:"bed_id,omitempty"`
	AdmissionID string             `json:"admission_id,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// NewInpatientEvent creates a new inpatient event
func NewInpatientEvent(eventType InpatientEventType, roomID, bedID, admissionID string) *InpatientEvent {
	return &InpatientEvent{
		ID:          uuid.NewString(),
		EventType:   eventType,
		RoomID:      roomID,
		BedID:       bedID,
		AdmissionID: admissionID,
		Timestamp:   time.Now().UTC(),
	}
}
