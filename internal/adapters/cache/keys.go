package cache

import (
	"fmt"
)

// Key namespaces shared by the read-through adapters, the HTTP response
// cache and the invalidation service.
const (
	RoomKeyPrefix         = "cache:rooms:"
	RoomsPattern          = "cache:rooms:*"
	RoomListsPattern      = "cache:rooms:list:*"
	HTTPKeyPrefix         = "http:cache:"
	HTTPRoomsPattern      = "http:cache:rooms:*"
	HTTPAdmissionsPattern = "http:cache:admissions:*"
)

// RoomKey is the key of a single cached room
func RoomKey(id string) string {
	return RoomKeyPrefix + id
}

// RoomListKey is the key of one cached page of the room list
func RoomListKey(floor *int, roomType string, limit, offset int) string {
	f := "any"
	if floor != nil {
		f = fmt.Sprintf("%d", *floor)
	}
	return fmt.Sprintf("%slist:%s:%s:%d:%d", RoomKeyPrefix, f, roomType, limit, offset)
}

// HTTPKey is the key of a cached response in the given route group
func HTTPKey(group, digest string) string {
	return HTTPKeyPrefix + group + ":" + digest
}
