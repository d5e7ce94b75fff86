package canvas

import domain "github.com/example/drawing-sync/domain/canvas"

// Service names exposed by the canvas module.
const (
	ServiceListRooms  = "list-rooms"
	ServiceGetRoom    = "get-room"
	ServiceGetHistory = "get-history"
)

// Default and maximum number of operations returned by get-history.
const (
	DefaultHistoryPage = 100
	MaxHistoryPage     = 1000
)

// ListRoomsRequest is the request for list-rooms.
type ListRoomsRequest struct{}

// ListRoomsResponse is the response for list-rooms.
type ListRoomsResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}

// GetRoomRequest is the request for get-room.
type GetRoomRequest struct {
	RoomID string `json:"room_id"`
}

// RoomDetail is a room summary together with its members.
type RoomDetail struct {
	RoomSummary
	Members []domain.User `json:"members"`
}

// GetRoomResponse is the response for get-room.
type GetRoomResponse struct {
	Room *RoomDetail `json:"room,omitempty"`
}

// GetHistoryRequest is the request for get-history.
type GetHistoryRequest struct {
	RoomID string `json:"room_id"`
	Limit  int    `json:"limit"`
}

// GetHistoryResponse is the response for get-history.
type GetHistoryResponse struct {
	RoomID     string             `json:"room_id"`
	Operations []domain.Operation `json:"operations"`
	Total      int                `json:"total"`
}
