package activity

import (
	"sort"
	"sync"
	"time"

	"github.com/example/drawing-sync/events"
)

// Store provides thread-safe storage for room activity counters.
type Store struct {
	mu             sync.RWMutex
	rooms          map[string]*RoomActivity
	roomsCreated   int64
	roomsDestroyed int64
	online         int64
}

// NewStore creates an empty activity store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*RoomActivity),
	}
}

func (s *Store) room(roomID string) *RoomActivity {
	r, ok := s.rooms[roomID]
	if !ok {
		r = &RoomActivity{RoomID: roomID}
		s.rooms[roomID] = r
	}
	return r
}

// RecordRoomCreated marks a room as live.
func (s *Store) RecordRoomCreated(roomID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomsCreated++
	r := s.room(roomID)
	r.Active = true
	r.LastActivity = at
}

// RecordRoomDestroyed marks a room as gone.
func (s *Store) RecordRoomDestroyed(roomID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomsDestroyed++
	r := s.room(roomID)
	r.Active = false
	r.LastActivity = at
}

// RecordJoin counts a participant joining a room.
func (s *Store) RecordJoin(roomID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.online++
	r := s.room(roomID)
	r.Joins++
	r.LastActivity = at
}

// RecordLeave counts a participant leaving a room.
func (s *Store) RecordLeave(roomID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online > 0 {
		s.online--
	}
	r := s.room(roomID)
	r.Leaves++
	r.LastActivity = at
}

// RecordStroke counts a committed stroke and its points.
func (s *Store) RecordStroke(roomID string, points int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.room(roomID)
	r.Strokes++
	r.Points += int64(points)
	r.LastActivity = at
}

// RecordHistory counts an effective undo, redo or clear.
func (s *Store) RecordHistory(roomID, action string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.room(roomID)
	switch action {
	case events.HistoryUndo:
		r.Undos++
	case events.HistoryRedo:
		r.Redos++
	case events.HistoryClear:
		r.Clears++
	default:
		return
	}
	r.LastActivity = at
}

// GetRoom returns a copy of the counters for a room id.
func (s *Store) GetRoom(roomID string) (*RoomActivity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// GetAllRooms returns counters for every room id seen, sorted by id.
func (s *Store) GetAllRooms() []RoomActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]RoomActivity, 0, len(s.rooms))
	for _, r := range s.rooms {
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RoomID < result[j].RoomID
	})
	return result
}

// GetSummary returns totals across all rooms.
func (s *Store) GetSummary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		RoomsCreated:   s.roomsCreated,
		RoomsDestroyed: s.roomsDestroyed,
		OnlineUsers:    s.online,
		RoomsTracked:   len(s.rooms),
	}
	for _, r := range s.rooms {
		if r.Active {
			sum.ActiveRooms++
		}
		sum.TotalJoins += r.Joins
		sum.TotalStrokes += r.Strokes
		sum.TotalPoints += r.Points
		sum.TotalUndos += r.Undos
		sum.TotalRedos += r.Redos
		sum.TotalClears += r.Clears
	}
	return sum
}
