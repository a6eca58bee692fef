package entities

import (
	"time"
)

// RoomStatus is derived from the beds a room holds; it is never stored.
type RoomStatus string

const (
	RoomStatusAvailable   RoomStatus = "available"
	RoomStatusFull        RoomStatus = "full"
	RoomStatusMaintenance RoomStatus = "maintenance"
	RoomStatusEmpty       RoomStatus = "empty"
)

// Room represents an inpatient room
type Room struct {
	ID         string     `json:"id" db:"id"`
	RoomNumber string     `json:"room_number" db:"room_number"`
	Floor      int        `json:"floor" db:"floor"`
	RoomType   string     `json:"room_type" db:"room_type"`
	Status     RoomStatus `json:"status" db:"-"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// RoomDetail is a room together with its beds
type RoomDetail struct {
	Room
	Beds []*Bed `json:"beds"`
}

// DeriveRoomStatus computes a room's status from its beds. A room with any
// available bed is available; otherwise it is full if any bed is occupied.
func DeriveRoomStatus(beds []*Bed) RoomStatus {
	if len(beds) == 0 {
		return RoomStatusEmpty
	}
	occupied := 0
	for _, b := range beds {
		switch b.Status {
		case BedStatusAvailable:
			return RoomStatusAvailable
		case BedStatusOccupied:
			occupied++
		}
	}
	if occupied > 0 {
		return RoomStatusFull
	}
	return RoomStatusMaintenance
}
