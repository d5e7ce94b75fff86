package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// History actions carried by HistoryChangedEvent.
const (
	HistoryUndo  = "undo"
	HistoryRedo  = "redo"
	HistoryClear = "clear"
)

// RoomCreatedEvent is emitted when the first participant joins an unknown room id.
type RoomCreatedEvent struct {
	RoomID    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomDestroyedEvent is emitted when the last participant leaves a room.
type RoomDestroyedEvent struct {
	RoomID    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

// UserJoinedEvent is emitted when a connection joins a room.
type UserJoinedEvent struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Timestamp time.Time `json:"timestamp"`
}

// UserLeftEvent is emitted when a connection leaves a room or disconnects.
type UserLeftEvent struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// StrokeCommittedEvent is emitted when a stroke is appended to a room log.
type StrokeCommittedEvent struct {
	RoomID     string    `json:"room_id"`
	UserID     string    `json:"user_id"`
	Tool       string    `json:"tool"`
	PointCount int       `json:"point_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// HistoryChangedEvent is emitted after an effective undo, redo or clear.
type HistoryChangedEvent struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Remaining int       `json:"remaining"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the canvas domain.
var (
	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"canvas",
		"RoomCreated",
		"v1",
	)

	RoomDestroyedV1 = helper.EventDefinition[RoomDestroyedEvent](
		"canvas",
		"RoomDestroyed",
		"v1",
	)

	UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
		"canvas",
		"UserJoined",
		"v1",
	)

	UserLeftV1 = helper.EventDefinition[UserLeftEvent](
		"canvas",
		"UserLeft",
		"v1",
	)

	StrokeCommittedV1 = helper.EventDefinition[StrokeCommittedEvent](
		"canvas",
		"StrokeCommitted",
		"v1",
	)

	HistoryChangedV1 = helper.EventDefinition[HistoryChangedEvent](
		"canvas",
		"HistoryChanged",
		"v1",
	)
)
