package canvas

import (
	"sync"
	"time"

	domain "github.com/example/drawing-sync/domain/canvas"
)

// Subscriber receives encoded broadcasts for one connection in a room.
// Send must not block; lossy messages may be dropped under backpressure.
type Subscriber interface {
	Send(msg []byte, lossy bool)
}

// Room is the aggregate owning a room's members, their subscriptions and
// the operation log. All state is guarded by a single mutex.
type Room struct {
	id        string
	createdAt time.Time

	mu          sync.Mutex
	users       map[string]domain.User
	order       []string
	subscribers map[string]Subscriber
	log         *OperationLog
	closed      bool
}

// RoomSummary is a point-in-time view of a room.
type RoomSummary struct {
	ID         string    `json:"id"`
	Users      int       `json:"users"`
	Operations int       `json:"operations"`
	CanUndo    bool      `json:"can_undo"`
	CanRedo    bool      `json:"can_redo"`
	CreatedAt  time.Time `json:"created_at"`
}

func newRoom(id string, historyLimit int, now time.Time) *Room {
	return &Room{
		id:          id,
		createdAt:   now,
		users:       make(map[string]domain.User),
		subscribers: make(map[string]Subscriber),
		log:         NewOperationLog(historyLimit),
	}
}

// ID returns the room id.
func (r *Room) ID() string {
	return r.id
}

// Summary returns the room's current counters.
func (r *Room) Summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked()
}

// Users returns the members in join order.
func (r *Room) Users() []domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usersLocked()
}

func (r *Room) summaryLocked() RoomSummary {
	return RoomSummary{
		ID:         r.id,
		Users:      len(r.users),
		Operations: r.log.Len(),
		CanUndo:    r.log.CanUndo(),
		CanRedo:    r.log.CanRedo(),
		CreatedAt:  r.createdAt,
	}
}

func (r *Room) usersLocked() []domain.User {
	users := make([]domain.User, 0, len(r.order))
	for _, id := range r.order {
		users = append(users, r.users[id])
	}
	return users
}

func (r *Room) addLocked(user domain.User, sub Subscriber) {
	if _, exists := r.users[user.ID]; !exists {
		r.order = append(r.order, user.ID)
	}
	r.users[user.ID] = user
	if sub != nil {
		r.subscribers[user.ID] = sub
	}
}

func (r *Room) removeLocked(userID string) bool {
	if _, exists := r.users[userID]; !exists {
		return false
	}
	delete(r.users, userID)
	delete(r.subscribers, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Tx is a handle to a room whose lock is held for the duration of a
// Registry.Do, Join or Leave callback. It must not escape the callback,
// and the callback must not call back into the Registry.
type Tx struct {
	room *Room
}

// ID returns the room id.
func (tx *Tx) ID() string { return tx.room.id }

// Log returns the room's operation log.
func (tx *Tx) Log() *OperationLog { return tx.room.log }

// Users returns the members in join order.
func (tx *Tx) Users() []domain.User { return tx.room.usersLocked() }

// User returns a member by connection id.
func (tx *Tx) User(id string) (domain.User, bool) {
	user, ok := tx.room.users[id]
	return user, ok
}

// Summary returns the room's current counters.
func (tx *Tx) Summary() RoomSummary { return tx.room.summaryLocked() }

// Broadcast delivers msg to every subscriber in the room.
func (tx *Tx) Broadcast(msg []byte, lossy bool) {
	tx.BroadcastExcept("", msg, lossy)
}

// BroadcastExcept delivers msg to every subscriber other than exceptID.
func (tx *Tx) BroadcastExcept(exceptID string, msg []byte, lossy bool) {
	for _, id := range tx.room.order {
		if id == exceptID {
			continue
		}
		if sub, ok := tx.room.subscribers[id]; ok {
			sub.Send(msg, lossy)
		}
	}
}

// SendTo delivers msg to a single member.
func (tx *Tx) SendTo(id string, msg []byte, lossy bool) {
	if sub, ok := tx.room.subscribers[id]; ok {
		sub.Send(msg, lossy)
	}
}
