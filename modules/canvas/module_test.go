package canvas

import (
	"context"
	"sync"
	"testing"

	domain "github.com/example/drawing-sync/domain/canvas"
	"github.com/example/drawing-sync/events"
	"github.com/go-monolith/mono/pkg/types"
)

// mockLogger implements types.Logger for testing
type mockLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (m *mockLogger) Debug(msg string, _ ...any) { m.record(msg) }
func (m *mockLogger) Info(msg string, _ ...any)  { m.record(msg) }
func (m *mockLogger) Warn(msg string, _ ...any)  { m.record(msg) }
func (m *mockLogger) Error(msg string, _ ...any) { m.record(msg) }
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

func (m *mockLogger) record(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func (m *mockLogger) has(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, got := range m.msgs {
		if got == msg {
			return true
		}
	}
	return false
}

func TestNewModule(t *testing.T) {
	m := NewModule(0, &mockLogger{})

	if m == nil {
		t.Fatal("NewModule returned nil")
	}
	if m.Registry() == nil {
		t.Fatal("expected registry to be set")
	}

	room, err := m.Registry().EnsureRoom("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got := room.log.Limit(); got != DefaultHistoryLimit {
		t.Errorf("log limit = %d, want %d", got, DefaultHistoryLimit)
	}
}

func TestModule_Name(t *testing.T) {
	m := NewModule(10, &mockLogger{})

	if name := m.Name(); name != "canvas" {
		t.Errorf("Name() = %q, want 'canvas'", name)
	}
}

func TestModule_EmitEvents(t *testing.T) {
	m := NewModule(10, &mockLogger{})

	if defs := m.EmitEvents(); len(defs) != 6 {
		t.Fatalf("EmitEvents() returned %d definitions, want 6", len(defs))
	}
}

func TestModule_StartStopHealth(t *testing.T) {
	logger := &mockLogger{}
	m := NewModule(10, logger)
	ctx := context.Background()

	if err := m.Start(ctx); err != nil {
		t.Errorf("Start() error = %v", err)
	}

	if _, err := m.Registry().AddUser("r1", "c1", Profile{}, nil); err != nil {
		t.Fatal(err)
	}
	health := m.Health(ctx)
	if !health.Healthy {
		t.Error("Health() reported unhealthy")
	}
	if rooms := health.Details["rooms"]; rooms != 1 {
		t.Errorf("Health() rooms = %v, want 1", rooms)
	}

	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if !logger.has("Room created") {
		t.Error("expected room creation to be logged")
	}
}

func TestModule_PublishWithoutEventBus(t *testing.T) {
	logger := &mockLogger{}
	m := NewModule(10, logger)

	op, err := domain.NewStroke([]domain.Point{{X: 1, Y: 1}}, domain.StrokeStyle{Color: "#000", Width: 1}, 1)
	if err != nil {
		t.Fatal(err)
	}

	// Publishing without a bus is a no-op.
	m.UserJoined("r1", domain.User{ID: "c1"})
	m.StrokeCommitted("r1", "c1", op)
	m.HistoryChanged("r1", "c1", events.HistoryUndo, 0)
	m.UserLeft("r1", "c1")

	m.Registry().RemoveUser("r1", "c1")
	if _, err := m.Registry().AddUser("r1", "c1", Profile{}, nil); err != nil {
		t.Fatal(err)
	}
	m.Registry().RemoveUser("r1", "c1")
	if !logger.has("Room destroyed") {
		t.Error("expected room destruction to be logged")
	}
	if logger.has("Failed to publish RoomCreated event") {
		t.Error("unexpected publish attempt without event bus")
	}
}
