package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/example/drawing-sync/domain/canvas"
	"github.com/example/drawing-sync/events"
	"github.com/example/drawing-sync/modules/canvas"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/time/rate"
)

// State is the protocol state of one connection.
type State int

const (
	StateUnjoined State = iota
	StateIdle
	StateStreaming
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Default cursor relay limits per connection.
const (
	DefaultCursorRate  = 60
	DefaultCursorBurst = 20
)

// EventPublisher receives room activity for out-of-band consumers.
type EventPublisher interface {
	UserJoined(roomID string, user domain.User)
	UserLeft(roomID, userID string)
	StrokeCommitted(roomID, userID string, op domain.Operation)
	HistoryChanged(roomID, userID, action string, remaining int)
}

type nopPublisher struct{}

func (nopPublisher) UserJoined(string, domain.User)                   {}
func (nopPublisher) UserLeft(string, string)                          {}
func (nopPublisher) StrokeCommitted(string, string, domain.Operation) {}
func (nopPublisher) HistoryChanged(string, string, string, int)       {}

// Session is the protocol handler for one connection. It translates inbound
// messages into registry mutations and room broadcasts.
type Session struct {
	id       string
	registry *canvas.Registry
	out      canvas.Subscriber

	publisher     EventPublisher
	logger        types.Logger
	now           func() time.Time
	cursorLimiter *rate.Limiter
	defaultRoom   string
	defaultName   string

	mu     sync.Mutex
	state  State
	roomID string
	stroke *domain.StrokeStyle
}

// Option configures a Session.
type Option func(*Session)

// WithPublisher sets the activity publisher.
func WithPublisher(p EventPublisher) Option {
	return func(s *Session) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l types.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCursorLimit bounds the cursor-move relay rate. A non-positive rate disables limiting.
func WithCursorLimit(perSecond float64, burst int) Option {
	return func(s *Session) {
		if perSecond <= 0 {
			s.cursorLimiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.cursorLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithDefaults sets the room and display name used when join-room omits them.
func WithDefaults(roomID, name string) Option {
	return func(s *Session) {
		if roomID != "" {
			s.defaultRoom = roomID
		}
		s.defaultName = name
	}
}

// New creates a session for connection id. out receives the connection's
// share of room broadcasts.
func New(id string, registry *canvas.Registry, out canvas.Subscriber, opts ...Option) *Session {
	s := &Session{
		id:            id,
		registry:      registry,
		out:           out,
		publisher:     nopPublisher{},
		logger:        nopLogger{},
		now:           time.Now,
		cursorLimiter: rate.NewLimiter(DefaultCursorRate, DefaultCursorBurst),
		defaultRoom:   canvas.DefaultRoomID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the connection id, which is also the user id once joined.
func (s *Session) ID() string { return s.id }

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomID returns the joined room, or "" when not joined.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// HandleMessage decodes and dispatches one inbound frame. The returned error
// describes why a message was dropped; it is never sent to the peer.
func (s *Session) HandleMessage(data []byte) error {
	env, err := Decode(data)
	if err != nil {
		return err
	}
	return s.Dispatch(env)
}

// Dispatch routes a decoded envelope to its handler.
func (s *Session) Dispatch(env Envelope) error {
	switch env.Type {
	case TypeJoinRoom:
		var p JoinPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return s.Join(env.RoomID, p)
	case TypeLeaveRoom:
		return s.Leave(env.RoomID)
	case TypeDrawingStart:
		var p StrokeStartPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return s.StrokeStart(env.RoomID, p)
	case TypeDrawingProgress:
		var p StrokeProgressPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return s.StrokeProgress(env.RoomID, p)
	case TypeDrawingEnd:
		var p StrokeEndPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return s.StrokeEnd(env.RoomID, p)
	case TypeUndo:
		return s.Undo(env.RoomID)
	case TypeRedo:
		return s.Redo(env.RoomID)
	case TypeClearCanvas:
		return s.Clear(env.RoomID)
	case TypeCursorMove:
		var p CursorPayload
		if err := decodePayload(env, &p); err != nil {
			return err
		}
		return s.CursorMove(env.RoomID, p)
	}
	return fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
}

// Join registers the connection in roomID (or the default room), replies with
// the room snapshot and broadcasts the membership list to everyone in the room.
// Joining while already in another room leaves that room first. Joining the
// current room again updates the profile and resends the snapshot.
func (s *Session) Join(roomID string, p JoinPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return ErrDisconnected
	}
	if roomID == "" {
		roomID = s.defaultRoom
	}
	if err := canvas.ValidateRoomID(roomID); err != nil {
		return err
	}
	if p.Name == "" {
		p.Name = s.defaultName
	}
	rejoin := s.roomID == roomID
	if s.roomID != "" && !rejoin {
		s.leaveLocked()
	}

	var joinErr error
	user, err := s.registry.Join(roomID, s.id, canvas.Profile{Name: p.Name, Color: p.Color}, s.out,
		func(tx *canvas.Tx, user domain.User) {
			log := tx.Log()
			initMsg, err := Encode(TypeInitCanvas, roomID, InitCanvasPayload{
				RoomID:     roomID,
				Operations: log.Snapshot(),
				UserID:     user.ID,
				UserColor:  user.Color,
				CanUndo:    log.CanUndo(),
				CanRedo:    log.CanRedo(),
			})
			if err != nil {
				joinErr = err
				return
			}
			tx.SendTo(user.ID, initMsg, false)
			s.broadcastUsers(tx)
		})
	if err != nil {
		return err
	}
	if joinErr != nil {
		s.logger.Error("Failed to encode init-canvas", "userID", s.id, "roomID", roomID, "error", joinErr)
	}

	s.state = StateIdle
	s.roomID = roomID
	s.stroke = nil
	if rejoin {
		s.logger.Debug("User rejoined room", "userID", user.ID, "roomID", roomID, "name", user.Name)
		return nil
	}
	s.logger.Info("User joined room", "userID", user.ID, "roomID", roomID, "name", user.Name)
	s.publisher.UserJoined(roomID, user)
	return nil
}

// Leave removes the connection from its room and returns it to the unjoined state.
func (s *Session) Leave(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.resolveRoomLocked(roomID); err != nil {
		return err
	}
	s.leaveLocked()
	return nil
}

// StrokeStart opens a stroke context and relays the start to the other members.
func (s *Session) StrokeStart(roomID string, p StrokeStartPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolveRoomLocked(roomID)
	if err != nil {
		return err
	}
	style, err := p.Style.Normalize()
	if err != nil {
		return err
	}

	msg, err := Encode(TypeDrawingStart, room, DrawingStartBroadcast{
		UserID: s.id,
		Style:  style,
		Point:  p.Point,
	})
	if err != nil {
		return err
	}
	if err := s.registry.Do(room, func(tx *canvas.Tx) {
		tx.BroadcastExcept(s.id, msg, false)
	}); err != nil {
		return err
	}

	s.stroke = &style
	s.state = StateStreaming
	return nil
}

// StrokeProgress relays a batch of points for the active stroke. It is
// ignored when no stroke is in progress.
func (s *Session) StrokeProgress(roomID string, p StrokeProgressPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolveRoomLocked(roomID)
	if err != nil {
		return err
	}
	if s.state != StateStreaming || s.stroke == nil {
		return ErrNotStreaming
	}
	if len(p.Points) == 0 {
		return domain.ErrEmptyStroke
	}
	if len(p.Points) > domain.MaxPointsPerBatch {
		return domain.ErrTooManyPoints
	}

	msg, err := Encode(TypeDrawingProgress, room, DrawingProgressBroadcast{
		UserID: s.id,
		Style:  *s.stroke,
		Points: p.Points,
	})
	if err != nil {
		return err
	}
	return s.registry.Do(room, func(tx *canvas.Tx) {
		tx.BroadcastExcept(s.id, msg, false)
	})
}

// StrokeEnd closes the stroke context, commits the stroke to the room log
// with a server timestamp and broadcasts it to every member, the author included.
func (s *Session) StrokeEnd(roomID string, p StrokeEndPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolveRoomLocked(roomID)
	if err != nil {
		return err
	}

	active := s.stroke
	s.stroke = nil
	s.state = StateIdle

	points, style := p.Points, p.Style
	if p.Stroke != nil {
		points, style = p.Stroke.Points, p.Stroke.Style
	}
	if style == nil {
		if active == nil {
			return ErrNotStreaming
		}
		style = active
	}

	op, err := domain.NewStroke(points, *style, s.now().UnixMilli())
	if err != nil {
		return err
	}
	msg, err := Encode(TypeDrawingEnd, room, DrawingEndBroadcast{UserID: s.id, Stroke: op})
	if err != nil {
		return err
	}
	if err := s.registry.Do(room, func(tx *canvas.Tx) {
		tx.Log().Append(op)
		tx.Broadcast(msg, false)
	}); err != nil {
		return err
	}

	s.publisher.StrokeCommitted(room, s.id, op)
	return nil
}

// Undo reverts the room's most recent operation and broadcasts it with the
// resulting capability flags. Nothing is broadcast when there is nothing to undo.
func (s *Session) Undo(roomID string) error {
	return s.history(roomID, events.HistoryUndo)
}

// Redo re-applies the most recently undone operation.
func (s *Session) Redo(roomID string) error {
	return s.history(roomID, events.HistoryRedo)
}

func (s *Session) history(roomID, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolveRoomLocked(roomID)
	if err != nil {
		return err
	}

	var (
		applied   bool
		remaining int
		encErr    error
	)
	err = s.registry.Do(room, func(tx *canvas.Tx) {
		log := tx.Log()
		var op domain.Operation
		msgType := TypeUndo
		if action == events.HistoryRedo {
			msgType = TypeRedo
			op, applied = log.Redo()
		} else {
			op, applied = log.Undo()
		}
		if !applied {
			return
		}
		remaining = log.Len()
		msg, err := Encode(msgType, room, HistoryBroadcast{
			Operation: op,
			CanUndo:   log.CanUndo(),
			CanRedo:   log.CanRedo(),
		})
		if err != nil {
			encErr = err
			return
		}
		tx.Broadcast(msg, false)
	})
	if err != nil {
		return err
	}
	if encErr != nil {
		return encErr
	}
	if !applied {
		if action == events.HistoryRedo {
			return ErrNothingToRedo
		}
		return ErrNothingToUndo
	}

	s.publisher.HistoryChanged(room, s.id, action, remaining)
	return nil
}

// Clear empties the room's history and redo stack and tells every member.
func (s *Session) Clear(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolveRoomLocked(roomID)
	if err != nil {
		return err
	}
	msg, err := Encode(TypeClearCanvas, room, nil)
	if err != nil {
		return err
	}
	if err := s.registry.Do(room, func(tx *canvas.Tx) {
		tx.Log().Clear()
		tx.Broadcast(msg, false)
	}); err != nil {
		return err
	}

	s.publisher.HistoryChanged(room, s.id, events.HistoryClear, 0)
	return nil
}

// CursorMove relays the caller's normalized pointer position to the other
// members. Delivery is best effort.
func (s *Session) CursorMove(roomID string, p CursorPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.resolveRoomLocked(roomID)
	if err != nil {
		return err
	}
	if p.X == nil || p.Y == nil || !normalized(*p.X) || !normalized(*p.Y) {
		return ErrInvalidCursor
	}
	if s.cursorLimiter != nil && !s.cursorLimiter.Allow() {
		return ErrRateLimited
	}

	msg, err := Encode(TypeCursorMove, room, CursorMoveBroadcast{UserID: s.id, X: *p.X, Y: *p.Y})
	if err != nil {
		return err
	}
	return s.registry.Do(room, func(tx *canvas.Tx) {
		tx.BroadcastExcept(s.id, msg, true)
	})
}

// Disconnect leaves the current room, if any, and makes the session terminal.
// It is safe to call more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return
	}
	s.leaveLocked()
	s.state = StateDisconnected
}

func (s *Session) resolveRoomLocked(roomID string) (string, error) {
	switch s.state {
	case StateUnjoined:
		return "", ErrNotJoined
	case StateDisconnected:
		return "", ErrDisconnected
	}
	if roomID != "" && roomID != s.roomID {
		return "", ErrWrongRoom
	}
	return s.roomID, nil
}

func (s *Session) leaveLocked() {
	roomID := s.roomID
	s.stroke = nil
	s.roomID = ""
	s.state = StateUnjoined
	if roomID == "" {
		return
	}

	var encErr error
	removed, destroyed := s.registry.Leave(roomID, s.id, func(tx *canvas.Tx) {
		s.broadcastUsers(tx)
		msg, err := Encode(TypeCursorRemove, roomID, CursorRemoveBroadcast{UserID: s.id})
		if err != nil {
			encErr = err
			return
		}
		tx.Broadcast(msg, false)
	})
	if encErr != nil {
		s.logger.Error("Failed to encode cursor-remove", "userID", s.id, "error", encErr)
	}
	if !removed {
		return
	}

	s.logger.Info("User left room", "userID", s.id, "roomID", roomID, "roomDestroyed", destroyed)
	s.publisher.UserLeft(roomID, s.id)
}

// broadcastUsers sends the current membership list to every member. It runs
// under the room lock.
func (s *Session) broadcastUsers(tx *canvas.Tx) {
	msg, err := Encode(TypeUsersUpdate, tx.ID(), tx.Users())
	if err != nil {
		s.logger.Error("Failed to encode users-update", "roomID", tx.ID(), "error", err)
		return
	}
	tx.Broadcast(msg, false)
}

func normalized(v float64) bool {
	return v >= 0 && v <= 1
}

// IsDropped reports whether err is one of the silent-drop protocol outcomes
// rather than an unexpected failure.
func IsDropped(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrUnknownMessage) ||
		errors.Is(err, ErrNotJoined) ||
		errors.Is(err, ErrWrongRoom) ||
		errors.Is(err, ErrNotStreaming) ||
		errors.Is(err, ErrDisconnected) ||
		errors.Is(err, ErrNothingToUndo) ||
		errors.Is(err, ErrNothingToRedo) ||
		errors.Is(err, ErrInvalidCursor) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, canvas.ErrRoomNotFound) ||
		errors.Is(err, canvas.ErrInvalidRoomID) ||
		errors.Is(err, domain.ErrInvalidTool) ||
		errors.Is(err, domain.ErrInvalidWidth) ||
		errors.Is(err, domain.ErrInvalidColor) ||
		errors.Is(err, domain.ErrTooManyPoints) ||
		errors.Is(err, domain.ErrEmptyStroke)
}
