package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/drawing-sync/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module consumes canvas events and tracks per-room activity.
type Module struct {
	store  *Store
	logger types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
)

// NewModule creates a new activity module.
func NewModule(logger types.Logger) *Module {
	return &Module{
		store:  NewStore(),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "activity"
}

// Store returns the activity store.
func (m *Module) Store() *Store {
	return m.store
}

// RegisterEventConsumers registers handlers for canvas events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.RoomCreatedV1, m.handleRoomCreated, m); err != nil {
		return fmt.Errorf("failed to register RoomCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.RoomDestroyedV1, m.handleRoomDestroyed, m); err != nil {
		return fmt.Errorf("failed to register RoomDestroyed consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserJoinedV1, m.handleUserJoined, m); err != nil {
		return fmt.Errorf("failed to register UserJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserLeftV1, m.handleUserLeft, m); err != nil {
		return fmt.Errorf("failed to register UserLeft consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.StrokeCommittedV1, m.handleStrokeCommitted, m); err != nil {
		return fmt.Errorf("failed to register StrokeCommitted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.HistoryChangedV1, m.handleHistoryChanged, m); err != nil {
		return fmt.Errorf("failed to register HistoryChanged consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", []string{
		"RoomCreated.v1", "RoomDestroyed.v1", "UserJoined.v1",
		"UserLeft.v1", "StrokeCommitted.v1", "HistoryChanged.v1",
	})
	return nil
}

func (m *Module) handleRoomCreated(_ context.Context, event events.RoomCreatedEvent, _ *mono.Msg) error {
	m.store.RecordRoomCreated(event.RoomID, event.Timestamp)
	m.logger.Debug("Recorded room creation", "roomID", event.RoomID)
	return nil
}

func (m *Module) handleRoomDestroyed(_ context.Context, event events.RoomDestroyedEvent, _ *mono.Msg) error {
	m.store.RecordRoomDestroyed(event.RoomID, event.Timestamp)
	m.logger.Debug("Recorded room destruction", "roomID", event.RoomID)
	return nil
}

func (m *Module) handleUserJoined(_ context.Context, event events.UserJoinedEvent, _ *mono.Msg) error {
	m.store.RecordJoin(event.RoomID, event.Timestamp)
	return nil
}

func (m *Module) handleUserLeft(_ context.Context, event events.UserLeftEvent, _ *mono.Msg) error {
	m.store.RecordLeave(event.RoomID, event.Timestamp)
	return nil
}

func (m *Module) handleStrokeCommitted(_ context.Context, event events.StrokeCommittedEvent, _ *mono.Msg) error {
	m.store.RecordStroke(event.RoomID, event.PointCount, event.Timestamp)
	return nil
}

func (m *Module) handleHistoryChanged(_ context.Context, event events.HistoryChangedEvent, _ *mono.Msg) error {
	m.store.RecordHistory(event.RoomID, event.Action, event.Timestamp)
	return nil
}

// Start initializes the activity module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Activity module started")
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	sum := m.store.GetSummary()
	m.logger.Info("Activity module stopped",
		"roomsCreated", sum.RoomsCreated,
		"strokes", sum.TotalStrokes)
	return nil
}

// RegisterServices registers this module's services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := container.RegisterRequestReplyService(ServiceGetSummary, m.handleGetSummary); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetSummary, err)
	}
	if err := container.RegisterRequestReplyService(ServiceGetRoom, m.handleGetRoom); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetRoom, err)
	}

	m.logger.Info("Registered activity services",
		"services", []string{ServiceGetSummary, ServiceGetRoom})
	return nil
}

func (m *Module) handleGetSummary(_ context.Context, _ *mono.Msg) ([]byte, error) {
	return json.Marshal(m.store.GetSummary())
}

func (m *Module) handleGetRoom(_ context.Context, msg *mono.Msg) ([]byte, error) {
	var req GetRoomRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	room, ok := m.store.GetRoom(req.RoomID)
	return json.Marshal(GetRoomResponse{Room: room, Found: ok})
}
