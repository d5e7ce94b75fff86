package canvas

import (
	domain "github.com/example/drawing-sync/domain/canvas"
)

// DefaultHistoryLimit is the maximum number of operations kept per room.
const DefaultHistoryLimit = 5000

// OperationLog is a bounded linear history with an undo/redo stack.
// It is not safe for concurrent use; a Room serializes access to it.
type OperationLog struct {
	history []domain.Operation
	redo    []domain.Operation
	limit   int
}

// NewOperationLog creates an empty log. A non-positive limit uses DefaultHistoryLimit.
func NewOperationLog(limit int) *OperationLog {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &OperationLog{
		history: make([]domain.Operation, 0),
		redo:    make([]domain.Operation, 0),
		limit:   limit,
	}
}

// Append adds op to the history, evicting the oldest entries over the limit,
// and discards the redo branch.
func (l *OperationLog) Append(op domain.Operation) {
	l.push(op.Clone())
	clear(l.redo)
	l.redo = l.redo[:0]
}

// Undo moves the most recent operation onto the redo stack and returns it.
// It reports false when there is nothing to undo.
func (l *OperationLog) Undo() (domain.Operation, bool) {
	n := len(l.history)
	if n == 0 {
		return domain.Operation{}, false
	}
	op := l.history[n-1]
	l.history[n-1] = domain.Operation{}
	l.history = l.history[:n-1]
	l.redo = append(l.redo, op)
	return op.Clone(), true
}

// Redo re-appends the most recently undone operation and returns it.
// It reports false when there is nothing to redo. The redo stack is kept.
func (l *OperationLog) Redo() (domain.Operation, bool) {
	n := len(l.redo)
	if n == 0 {
		return domain.Operation{}, false
	}
	op := l.redo[n-1]
	l.redo[n-1] = domain.Operation{}
	l.redo = l.redo[:n-1]
	l.push(op)
	return op.Clone(), true
}

// Clear empties both the history and the redo stack.
func (l *OperationLog) Clear() {
	l.history = make([]domain.Operation, 0)
	l.redo = make([]domain.Operation, 0)
}

// Snapshot returns an independent copy of the history in order.
func (l *OperationLog) Snapshot() []domain.Operation {
	return domain.CloneOperations(l.history)
}

// Tail returns a copy of the last n operations.
func (l *OperationLog) Tail(n int) []domain.Operation {
	if n <= 0 || n >= len(l.history) {
		return l.Snapshot()
	}
	return domain.CloneOperations(l.history[len(l.history)-n:])
}

func (l *OperationLog) CanUndo() bool { return len(l.history) > 0 }
func (l *OperationLog) CanRedo() bool { return len(l.redo) > 0 }
func (l *OperationLog) Len() int      { return len(l.history) }
func (l *OperationLog) RedoLen() int  { return len(l.redo) }
func (l *OperationLog) Limit() int    { return l.limit }

func (l *OperationLog) push(op domain.Operation) {
	l.history = append(l.history, op)
	if excess := len(l.history) - l.limit; excess > 0 {
		// Zero evicted entries so their point slices can be collected.
		for i := 0; i < excess; i++ {
			l.history[i] = domain.Operation{}
		}
		l.history = l.history[excess:]
	}
}
