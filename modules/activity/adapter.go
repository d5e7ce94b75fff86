package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ActivityPort defines the interface for reading room activity.
// Consumers should use this interface instead of directly referencing the Module.
type ActivityPort interface {
	GetSummary(ctx context.Context) (*Summary, error)
	GetRoom(ctx context.Context, roomID string) (*RoomActivity, bool, error)
}

// activityAdapter implements ActivityPort using the service container.
type activityAdapter struct {
	container mono.ServiceContainer
}

// NewActivityAdapter creates a new adapter for the activity services.
func NewActivityAdapter(container mono.ServiceContainer) ActivityPort {
	return &activityAdapter{
		container: container,
	}
}

// GetSummary retrieves the activity summary.
func (a *activityAdapter) GetSummary(ctx context.Context) (*Summary, error) {
	client, err := a.container.GetRequestReplyService(ServiceGetSummary)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s service: %w", ServiceGetSummary, err)
	}

	resp, err := client.Call(ctx, []byte{})
	if err != nil {
		return nil, fmt.Errorf("%s service call failed: %w", ServiceGetSummary, err)
	}

	var summary Summary
	if err := json.Unmarshal(resp.Data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &summary, nil
}

// GetRoom retrieves the counters for a room id.
func (a *activityAdapter) GetRoom(ctx context.Context, roomID string) (*RoomActivity, bool, error) {
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
		return nil, false, fmt.Errorf("%s service call failed: %w", ServiceGetRoom, err)
	}
	return resp.Room, resp.Found, nil
}
