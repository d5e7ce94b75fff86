package wsserver

import (
	domain "github.com/example/drawing-sync/domain/canvas"
	"github.com/example/drawing-sync/modules/canvas"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string                  `json:"status"`
	Details map[string]any          `json:"details,omitempty"`
	Modules map[string]ModuleHealth `json:"modules,omitempty"`
}

// ModuleHealth is the health of one component in a HealthResponse.
type ModuleHealth struct {
	Healthy bool           `json:"healthy"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ListRoomsResponse is returned by GET /api/v1/rooms.
type ListRoomsResponse struct {
	Rooms []canvas.RoomSummary `json:"rooms"`
	Total int                  `json:"total"`
}

// CreateRoomResponse is returned by POST /api/v1/rooms.
type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
	WSPath string `json:"ws_path"`
}

// HistoryResponse is returned by GET /api/v1/rooms/:id/history.
type HistoryResponse struct {
	RoomID     string             `json:"room_id"`
	Operations []domain.Operation `json:"operations"`
	Returned   int                `json:"returned"`
	Total      int                `json:"total"`
}
