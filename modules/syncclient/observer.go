package syncclient

import domain "github.com/example/drawing-sync/domain/canvas"

// Snapshot is the room state delivered on (re)join.
type Snapshot struct {
	RoomID     string
	UserID     string
	Color      string
	Operations []domain.Operation
	CanUndo    bool
	CanRedo    bool
}

// Observer receives rendering callbacks. Callbacks run on the client's read
// goroutine, never with internal locks held, so they may query the Client.
type Observer interface {
	OnConnectionChange(connected bool)
	OnInit(snapshot Snapshot)
	OnUsers(users []domain.User)
	OnRemoteStrokeStart(userID string, style domain.StrokeStyle, point *domain.Point)
	OnRemoteStrokeProgress(userID string, style domain.StrokeStyle, points []domain.Point)
	OnStrokeCommitted(userID string, op domain.Operation, own bool)
	// OnHistory fires after undo, redo or clear with the full replacement history.
	OnHistory(operations []domain.Operation, canUndo, canRedo bool)
	OnCursor(userID string, x, y float64)
	OnCursorRemove(userID string)
}

// NopObserver ignores every callback. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnConnectionChange(bool)                                           {}
func (NopObserver) OnInit(Snapshot)                                                   {}
func (NopObserver) OnUsers([]domain.User)                                             {}
func (NopObserver) OnRemoteStrokeStart(string, domain.StrokeStyle, *domain.Point)     {}
func (NopObserver) OnRemoteStrokeProgress(string, domain.StrokeStyle, []domain.Point) {}
func (NopObserver) OnStrokeCommitted(string, domain.Operation, bool)                  {}
func (NopObserver) OnHistory([]domain.Operation, bool, bool)                          {}
func (NopObserver) OnCursor(string, float64, float64)                                 {}
func (NopObserver) OnCursorRemove(string)                                             {}
