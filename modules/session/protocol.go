package session

import (
	"encoding/json"
	"fmt"

	domain "github.com/example/drawing-sync/domain/canvas"
)

// Message types shared by client and server.
const (
	TypeJoinRoom        = "join-room"
	TypeLeaveRoom       = "leave-room"
	TypeInitCanvas      = "init-canvas"
	TypeUsersUpdate     = "users-update"
	TypeDrawingStart    = "drawing-start"
	TypeDrawingProgress = "drawing-progress"
	TypeDrawingEnd      = "drawing-end"
	TypeUndo            = "undo"
	TypeRedo            = "redo"
	TypeClearCanvas     = "clear-canvas"
	TypeCursorMove      = "cursor-move"
	TypeCursorRemove    = "cursor-remove"
)

// Envelope is the frame for every message on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound payloads

// JoinPayload is the payload of join-room.
type JoinPayload struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// StrokeStartPayload is the payload of drawing-start.
type StrokeStartPayload struct {
	Style domain.StrokeStyle `json:"style"`
	Point *domain.Point      `json:"point,omitempty"`
}

// StrokeProgressPayload is the payload of drawing-progress.
type StrokeProgressPayload struct {
	Points []domain.Point `json:"points"`
}

// StrokeInput is a client-assembled stroke awaiting commit.
type StrokeInput struct {
	Points []domain.Point      `json:"points"`
	Style  *domain.StrokeStyle `json:"style,omitempty"`
}

// StrokeEndPayload is the payload of drawing-end. Either Stroke or the flat
// Points/Style pair may be supplied.
type StrokeEndPayload struct {
	Stroke *StrokeInput        `json:"stroke,omitempty"`
	Points []domain.Point      `json:"points,omitempty"`
	Style  *domain.StrokeStyle `json:"style,omitempty"`
}

// CursorPayload is the payload of cursor-move. Coordinates are normalized to [0,1].
type CursorPayload struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// Outbound payloads

// InitCanvasPayload is sent to a joining connection only.
type InitCanvasPayload struct {
	RoomID     string             `json:"roomId"`
	Operations []domain.Operation `json:"operations"`
	UserID     string             `json:"userId"`
	UserColor  string             `json:"userColor"`
	CanUndo    bool               `json:"canUndo"`
	CanRedo    bool               `json:"canRedo"`
}

// DrawingStartBroadcast relays a stroke start to the other members.
type DrawingStartBroadcast struct {
	UserID string             `json:"userId"`
	Style  domain.StrokeStyle `json:"style"`
	Point  *domain.Point      `json:"point,omitempty"`
}

// DrawingProgressBroadcast relays a batch of in-progress points.
type DrawingProgressBroadcast struct {
	UserID string             `json:"userId"`
	Style  domain.StrokeStyle `json:"style"`
	Points []domain.Point     `json:"points"`
}

// DrawingEndBroadcast carries a committed stroke to every member, the author included.
type DrawingEndBroadcast struct {
	UserID string           `json:"userId"`
	Stroke domain.Operation `json:"stroke"`
}

// HistoryBroadcast carries the result of an undo or redo.
type HistoryBroadcast struct {
	Operation domain.Operation `json:"operation"`
	CanUndo   bool             `json:"canUndo"`
	CanRedo   bool             `json:"canRedo"`
}

// CursorMoveBroadcast relays a pointer position to the other members.
type CursorMoveBroadcast struct {
	UserID string  `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// CursorRemoveBroadcast tells members to drop a departed user's cursor.
type CursorRemoveBroadcast struct {
	UserID string `json:"userId"`
}

// Encode builds a wire frame. A nil payload is omitted.
func Encode(msgType, roomID string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType, RoomID: roomID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		env.Payload = data
	}
	return json.Marshal(env)
}

// Decode parses a wire frame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

func decodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return nil
}
