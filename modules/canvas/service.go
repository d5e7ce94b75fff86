package canvas

import (
	"context"
	"fmt"
)

// ListRooms returns a summary of every live room.
func (r *Registry) ListRooms(_ context.Context) ListRoomsResponse {
	return ListRoomsResponse{Rooms: r.Summaries()}
}

// GetRoom returns the summary and members of one room.
func (r *Registry) GetRoom(_ context.Context, roomID string) (*RoomDetail, error) {
	var detail *RoomDetail
	err := r.Do(roomID, func(tx *Tx) {
		detail = &RoomDetail{
			RoomSummary: tx.Summary(),
			Members:     tx.Users(),
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, roomID)
	}
	return detail, nil
}

// GetHistory returns up to limit of the most recent operations in a room.
func (r *Registry) GetHistory(_ context.Context, roomID string, limit int) (*GetHistoryResponse, error) {
	if limit <= 0 {
		limit = DefaultHistoryPage
	}
	if limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}

	resp := &GetHistoryResponse{RoomID: roomID}
	err := r.Do(roomID, func(tx *Tx) {
		resp.Operations = tx.Log().Tail(limit)
		resp.Total = tx.Log().Len()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, roomID)
	}
	return resp, nil
}
