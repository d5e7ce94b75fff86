package canvas

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	domain "github.com/example/drawing-sync/domain/canvas"
)

// Validation constants
const (
	DefaultRoomID   = "default"
	MaxRoomIDLength = 100
	MaxNameLength   = 50
	DefaultUserName = "anonymous"
)

// Profile is what a joining participant asks to be known as.
type Profile struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Hooks observe room lifecycle changes. They run outside any lock.
type Hooks struct {
	OnRoomCreated   func(roomID string)
	OnRoomDestroyed func(roomID string)
}

// Registry lazily creates rooms and destroys them when their last member leaves.
// Lock order is registry before room.
type Registry struct {
	mu           sync.RWMutex
	rooms        map[string]*Room
	historyLimit int
	colorFn      func() string
	now          func() time.Time
	hooks        Hooks
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHistoryLimit sets the per-room operation log cap.
func WithHistoryLimit(limit int) RegistryOption {
	return func(r *Registry) {
		r.historyLimit = limit
	}
}

// WithColorFunc overrides the fallback color generator.
func WithColorFunc(fn func() string) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.colorFn = fn
		}
	}
}

// WithHooks installs room lifecycle hooks.
func WithHooks(h Hooks) RegistryOption {
	return func(r *Registry) {
		r.hooks = h
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms:        make(map[string]*Room),
		historyLimit: DefaultHistoryLimit,
		colorFn:      RandomColor,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateRoomID checks that a room id is usable.
func ValidateRoomID(id string) error {
	if id == "" || len(id) > MaxRoomIDLength || !utf8.ValidString(id) {
		return ErrInvalidRoomID
	}
	return nil
}

// NormalizeProfile trims the display name, applies defaults and truncates
// overly long names.
func NormalizeProfile(p Profile) Profile {
	p.Name = strings.TrimSpace(p.Name)
	if !utf8.ValidString(p.Name) {
		p.Name = strings.ToValidUTF8(p.Name, "")
	}
	if p.Name == "" {
		p.Name = DefaultUserName
	}
	if utf8.RuneCountInString(p.Name) > MaxNameLength {
		p.Name = string([]rune(p.Name)[:MaxNameLength])
	}
	p.Color = strings.TrimSpace(p.Color)
	if len(p.Color) > domain.MaxColorLength {
		p.Color = ""
	}
	return p
}

// EnsureRoom returns the room for id, creating it when absent.
func (r *Registry) EnsureRoom(roomID string) (*Room, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	room, created := r.ensure(roomID)
	if created {
		r.roomCreated(roomID)
	}
	return room, nil
}

// Exists reports whether a room is currently registered.
func (r *Registry) Exists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Room returns a registered room.
func (r *Registry) Room(roomID string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

// AddUser registers connID as a member of roomID and subscribes sub to the
// room's broadcasts. The room is created if needed.
func (r *Registry) AddUser(roomID, connID string, profile Profile, sub Subscriber) (domain.User, error) {
	return r.Join(roomID, connID, profile, sub, nil)
}

// Join is AddUser followed by fn, both under the room lock, so fn observes the
// membership and history exactly as they were when the user was added.
func (r *Registry) Join(roomID, connID string, profile Profile, sub Subscriber, fn func(tx *Tx, user domain.User)) (domain.User, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return domain.User{}, err
	}
	profile = NormalizeProfile(profile)
	if profile.Color == "" {
		profile.Color = r.colorFn()
	}
	user := domain.User{ID: connID, Name: profile.Name, Color: profile.Color}

	var createdAny bool
	for {
		room, created := r.ensure(roomID)
		createdAny = createdAny || created

		room.mu.Lock()
		if room.closed {
			// Destroyed between lookup and lock; a fresh room will be created.
			room.mu.Unlock()
			continue
		}
		room.addLocked(user, sub)
		if fn != nil {
			fn(&Tx{room: room}, user)
		}
		room.mu.Unlock()
		break
	}

	if createdAny {
		r.roomCreated(roomID)
	}
	return user, nil
}

// RemoveUser removes connID from roomID. When the room becomes empty it is
// destroyed along with its history.
func (r *Registry) RemoveUser(roomID, connID string) (removed, destroyed bool) {
	return r.Leave(roomID, connID, nil)
}

// Leave is RemoveUser followed by fn for the remaining members, under the
// room lock. fn is not called when nothing was removed or the room was destroyed.
func (r *Registry) Leave(roomID, connID string, fn func(tx *Tx)) (removed, destroyed bool) {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return false, false
	}

	room.mu.Lock()
	removed = room.removeLocked(connID)
	if removed && len(room.users) == 0 {
		room.closed = true
		delete(r.rooms, roomID)
		destroyed = true
	}
	r.mu.Unlock()

	if removed && !destroyed && fn != nil {
		fn(&Tx{room: room})
	}
	room.mu.Unlock()

	if destroyed {
		r.roomDestroyed(roomID)
	}
	return removed, destroyed
}

// Do runs fn with the room's lock held. It returns ErrRoomNotFound when the
// room does not exist.
func (r *Registry) Do(roomID string, fn func(tx *Tx)) error {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return ErrRoomNotFound
	}
	fn(&Tx{room: room})
	return nil
}

// ListUsers returns the members of a room, or an empty slice if it does not exist.
func (r *Registry) ListUsers(roomID string) []domain.User {
	room, ok := r.Room(roomID)
	if !ok {
		return []domain.User{}
	}
	return room.Users()
}

// Snapshot returns a copy of a room's history.
func (r *Registry) Snapshot(roomID string) ([]domain.Operation, error) {
	var ops []domain.Operation
	err := r.Do(roomID, func(tx *Tx) {
		ops = tx.Log().Snapshot()
	})
	return ops, err
}

// RoomIDs returns the registered room ids in sorted order.
func (r *Registry) RoomIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Summaries returns a summary per room, sorted by id.
func (r *Registry) Summaries() []RoomSummary {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID < summaries[j].ID
	})
	return summaries
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) ensure(roomID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		return room, false
	}
	room := newRoom(roomID, r.historyLimit, r.now())
	r.rooms[roomID] = room
	return room, true
}

func (r *Registry) roomCreated(roomID string) {
	if r.hooks.OnRoomCreated != nil {
		r.hooks.OnRoomCreated(roomID)
	}
}

func (r *Registry) roomDestroyed(roomID string) {
	if r.hooks.OnRoomDestroyed != nil {
		r.hooks.OnRoomDestroyed(roomID)
	}
}
