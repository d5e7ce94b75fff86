package activity

import "time"

// Service names
const (
	ServiceGetSummary = "get-activity-summary"
	ServiceGetRoom    = "get-room-activity"
)

// RoomActivity tracks counters for a single room id. Counters survive the
// room's destruction so a recreated room keeps accumulating.
type RoomActivity struct {
	RoomID       string    `json:"room_id"`
	Joins        int64     `json:"joins"`
	Leaves       int64     `json:"leaves"`
	Strokes      int64     `json:"strokes"`
	Points       int64     `json:"points"`
	Undos        int64     `json:"undos"`
	Redos        int64     `json:"redos"`
	Clears       int64     `json:"clears"`
	Active       bool      `json:"active"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// Summary aggregates activity across rooms.
type Summary struct {
	RoomsCreated   int64 `json:"rooms_created"`
	RoomsDestroyed int64 `json:"rooms_destroyed"`
	ActiveRooms    int   `json:"active_rooms"`
	OnlineUsers    int64 `json:"online_users"`
	TotalJoins     int64 `json:"total_joins"`
	TotalStrokes   int64 `json:"total_strokes"`
	TotalPoints    int64 `json:"total_points"`
	TotalUndos     int64 `json:"total_undos"`
	TotalRedos     int64 `json:"total_redos"`
	TotalClears    int64 `json:"total_clears"`
	RoomsTracked   int   `json:"rooms_tracked"`
}

// GetRoomRequest is the request for get-room-activity.
type GetRoomRequest struct {
	RoomID string `json:"room_id"`
}

// GetRoomResponse is the response for get-room-activity.
type GetRoomResponse struct {
	Room  *RoomActivity `json:"room,omitempty"`
	Found bool          `json:"found"`
}
