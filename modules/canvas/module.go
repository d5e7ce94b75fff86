package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/example/drawing-sync/domain/canvas"
	"github.com/example/drawing-sync/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module owns the room registry and publishes canvas activity on the EventBus.
type Module struct {
	registry *Registry
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new canvas module.
func NewModule(historyLimit int, logger types.Logger) *Module {
	m := &Module{logger: logger}
	m.registry = NewRegistry(
		WithHistoryLimit(historyLimit),
		WithHooks(Hooks{
			OnRoomCreated:   m.onRoomCreated,
			OnRoomDestroyed: m.onRoomDestroyed,
		}),
	)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "canvas"
}

// Registry returns the room registry used by drawing sessions.
func (m *Module) Registry() *Registry {
	return m.registry
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomCreatedV1.ToBase(),
		events.RoomDestroyedV1.ToBase(),
		events.UserJoinedV1.ToBase(),
		events.UserLeftV1.ToBase(),
		events.StrokeCommittedV1.ToBase(),
		events.HistoryChangedV1.ToBase(),
	}
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Canvas module started", "historyLimit", m.registry.historyLimit)
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Canvas module stopped", "rooms", m.registry.Len())
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"rooms": m.registry.Len(),
		},
	}
}

// RegisterServices registers this module's services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := container.RegisterRequestReplyService(ServiceListRooms, m.handleListRooms); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListRooms, err)
	}
	if err := container.RegisterRequestReplyService(ServiceGetRoom, m.handleGetRoom); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetRoom, err)
	}
	if err := container.RegisterRequestReplyService(ServiceGetHistory, m.handleGetHistory); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetHistory, err)
	}

	m.logger.Info("Registered canvas services",
		"services", []string{ServiceListRooms, ServiceGetRoom, ServiceGetHistory})
	return nil
}

func (m *Module) handleListRooms(ctx context.Context, _ *mono.Msg) ([]byte, error) {
	return json.Marshal(m.registry.ListRooms(ctx))
}

func (m *Module) handleGetRoom(ctx context.Context, msg *mono.Msg) ([]byte, error) {
	var req GetRoomRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	room, err := m.registry.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(GetRoomResponse{Room: room})
}

func (m *Module) handleGetHistory(ctx context.Context, msg *mono.Msg) ([]byte, error) {
	var req GetHistoryRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	resp, err := m.registry.GetHistory(ctx, req.RoomID, req.Limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

// Event publishing. Failures are logged and never affect the drawing protocol.

func (m *Module) onRoomCreated(roomID string) {
	m.logger.Info("Room created", "roomID", roomID)
	if m.eventBus == nil {
		return
	}
	if err := events.RoomCreatedV1.Publish(m.eventBus, events.RoomCreatedEvent{
		RoomID:    roomID,
		Timestamp: time.Now(),
	}, nil); err != nil {
		m.logger.Warn("Failed to publish RoomCreated event", "error", err)
	}
}

func (m *Module) onRoomDestroyed(roomID string) {
	m.logger.Info("Room destroyed", "roomID", roomID)
	if m.eventBus == nil {
		return
	}
	if err := events.RoomDestroyedV1.Publish(m.eventBus, events.RoomDestroyedEvent{
		RoomID:    roomID,
		Timestamp: time.Now(),
	}, nil); err != nil {
		m.logger.Warn("Failed to publish RoomDestroyed event", "error", err)
	}
}

// UserJoined publishes a UserJoined event.
func (m *Module) UserJoined(roomID string, user domain.User) {
	if m.eventBus == nil {
		return
	}
	if err := events.UserJoinedV1.Publish(m.eventBus, events.UserJoinedEvent{
		RoomID:    roomID,
		UserID:    user.ID,
		Name:      user.Name,
		Color:     user.Color,
		Timestamp: time.Now(),
	}, nil); err != nil {
		m.logger.Warn("Failed to publish UserJoined event", "error", err)
	}
}

// UserLeft publishes a UserLeft event.
func (m *Module) UserLeft(roomID, userID string) {
	if m.eventBus == nil {
		return
	}
	if err := events.UserLeftV1.Publish(m.eventBus, events.UserLeftEvent{
		RoomID:    roomID,
		UserID:    userID,
		Timestamp: time.Now(),
	}, nil); err != nil {
		m.logger.Warn("Failed to publish UserLeft event", "error", err)
	}
}

// StrokeCommitted publishes a StrokeCommitted event.
func (m *Module) StrokeCommitted(roomID, userID string, op domain.Operation) {
	if m.eventBus == nil {
		return
	}
	if err := events.StrokeCommittedV1.Publish(m.eventBus, events.StrokeCommittedEvent{
		RoomID:     roomID,
		UserID:     userID,
		Tool:       string(op.Style.Tool),
		PointCount: len(op.Points),
		Timestamp:  time.UnixMilli(op.Timestamp),
	}, nil); err != nil {
		m.logger.Warn("Failed to publish StrokeCommitted event", "error", err)
	}
}

// HistoryChanged publishes a HistoryChanged event.
func (m *Module) HistoryChanged(roomID, userID, action string, remaining int) {
	if m.eventBus == nil {
		return
	}
	if err := events.HistoryChangedV1.Publish(m.eventBus, events.HistoryChangedEvent{
		RoomID:    roomID,
		UserID:    userID,
		Action:    action,
		Remaining: remaining,
		Timestamp: time.Now(),
	}, nil); err != nil {
		m.logger.Warn("Failed to publish HistoryChanged event", "error", err)
	}
}
