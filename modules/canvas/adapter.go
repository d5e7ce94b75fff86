package canvas

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// CanvasPort defines read access to room state for other modules.
type CanvasPort interface {
	ListRooms(ctx context.Context) ([]RoomSummary, error)
	GetRoom(ctx context.Context, roomID string) (*RoomDetail, error)
	GetHistory(ctx context.Context, roomID string, limit int) (*GetHistoryResponse, error)
}

// CanvasAdapter implements CanvasPort using the service container.
type CanvasAdapter struct {
	container mono.ServiceContainer
}

// NewCanvasAdapter creates a new CanvasAdapter.
func NewCanvasAdapter(container mono.ServiceContainer) CanvasPort {
	if container == nil {
		panic("canvas: ServiceContainer is nil")
	}
	return &CanvasAdapter{container: container}
}

// ListRooms returns a summary of every live room.
func (a *CanvasAdapter) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	req := ListRoomsRequest{}
	var resp ListRoomsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListRooms,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return resp.Rooms, nil
}

// GetRoom retrieves a room with its members.
func (a *CanvasAdapter) GetRoom(ctx context.Context, roomID string) (*RoomDetail, error) {
	req := GetRoomRequest{RoomID: roomID}
	var resp GetRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, mapServiceError(err)
	}
	if resp.Room == nil {
		return nil, ErrRoomNotFound
	}
	return resp.Room, nil
}

// GetHistory retrieves the most recent committed operations of a room.
func (a *CanvasAdapter) GetHistory(ctx context.Context, roomID string, limit int) (*GetHistoryResponse, error) {
	req := GetHistoryRequest{RoomID: roomID, Limit: limit}
	var resp GetHistoryResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetHistory,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, mapServiceError(err)
	}
	return &resp, nil
}
