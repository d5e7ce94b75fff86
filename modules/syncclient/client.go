// Package syncclient is a peer that joins a drawing room over WebSocket,
// streams local strokes in small batches and mirrors the room's committed
// history. It reconnects on connection loss and resynchronizes from the
// server's snapshot.
package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	domain "github.com/example/drawing-sync/domain/canvas"
	"github.com/example/drawing-sync/modules/session"
)

// Defaults for Config.
const (
	DefaultFlushInterval = 25 * time.Millisecond
	DefaultMinBackoff    = 250 * time.Millisecond
	DefaultMaxBackoff    = 5 * time.Second
)

// Conn is a message-oriented connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens connections to the server.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

// DialContext implements Dialer.
func (d WebsocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config configures a Client.
type Config struct {
	URL           string
	RoomID        string
	Name          string
	Color         string
	FlushInterval time.Duration
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	Dialer        Dialer
	Observer      Observer
	Logger        *slog.Logger
}

// Client is a drawing room peer.
type Client struct {
	url           string
	name          string
	color         string
	flushInterval time.Duration
	minBackoff    time.Duration
	maxBackoff    time.Duration
	dialer        Dialer
	observer      Observer
	logger        *slog.Logger

	// writeMu serializes frames on the wire and is taken before mu.
	writeMu sync.Mutex
	conn    Conn

	mu         sync.Mutex
	roomID     string
	connected  bool
	userID     string
	userColor  string
	operations []domain.Operation
	users      []domain.User
	canUndo    bool
	canRedo    bool
	cursors    map[string]domain.Point
	stroke     *domain.Operation
	buffer     []domain.Point
	awaiting   []domain.Operation
}

// New creates a client. Call Run to connect.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	c := &Client{
		url:           cfg.URL,
		roomID:        cfg.RoomID,
		name:          cfg.Name,
		color:         cfg.Color,
		flushInterval: cfg.FlushInterval,
		minBackoff:    cfg.MinBackoff,
		maxBackoff:    cfg.MaxBackoff,
		dialer:        cfg.Dialer,
		observer:      cfg.Observer,
		logger:        cfg.Logger,
		cursors:       make(map[string]domain.Point),
	}
	if c.flushInterval <= 0 {
		c.flushInterval = DefaultFlushInterval
	}
	if c.minBackoff <= 0 {
		c.minBackoff = DefaultMinBackoff
	}
	if c.maxBackoff < c.minBackoff {
		c.maxBackoff = max(DefaultMaxBackoff, c.minBackoff)
	}
	if c.dialer == nil {
		c.dialer = WebsocketDialer{}
	}
	if c.observer == nil {
		c.observer = NopObserver{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Run connects and keeps the client connected until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.minBackoff
	for {
		conn, err := c.dialer.DialContext(ctx, c.url)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("failed to connect", "url", c.url, "err", err, "retryIn", backoff)
		} else {
			backoff = c.minBackoff
			err = c.serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Info("connection lost", "err", err, "retryIn", backoff)
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *Client) serve(ctx context.Context, conn Conn) error {
	c.attach(conn)
	defer c.detach()

	if err := c.join(); err != nil {
		conn.Close()
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return conn.Close()
	})

	g.Go(func() error {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			env, err := session.Decode(data)
			if err != nil {
				c.logger.Debug("ignoring malformed message", "err", err)
				continue
			}
			c.handle(env)
		}
	})

	g.Go(func() error {
		t := time.NewTicker(c.flushInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if err := c.Flush(); err != nil && !errors.Is(err, ErrNotConnected) {
					return err
				}
			}
		}
	})

	return g.Wait()
}

func (c *Client) attach(conn Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("connected", "url", c.url)
	c.observer.OnConnectionChange(true)
}

func (c *Client) detach() {
	c.writeMu.Lock()
	c.conn = nil
	c.writeMu.Unlock()

	c.mu.Lock()
	c.connected = false
	c.stroke = nil
	c.buffer = nil
	c.cursors = make(map[string]domain.Point)
	c.mu.Unlock()

	c.observer.OnConnectionChange(false)
}

func (c *Client) join() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()

	return c.writeLocked(session.TypeJoinRoom, roomID, session.JoinPayload{Name: c.name, Color: c.color})
}

// writeLocked sends one frame. writeMu must be held.
func (c *Client) writeLocked(msgType, roomID string, payload any) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	data, err := session.Encode(msgType, roomID, payload)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", msgType, err)
	}
	return nil
}

func (c *Client) send(msgType string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(msgType, c.RoomID(), payload)
}

// JoinRoom switches to another room. The next init-canvas replaces local state.
func (c *Client) JoinRoom(roomID string) error {
	c.mu.Lock()
	c.roomID = roomID
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.join()
}

// BeginStroke starts a local stroke and announces it immediately.
func (c *Client) BeginStroke(style domain.StrokeStyle, start domain.Point) error {
	style, err := style.Normalize()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.stroke = &domain.Operation{
		Type:   domain.OperationTypeStroke,
		Points: []domain.Point{start},
		Style:  style,
	}
	c.buffer = nil
	roomID := c.roomID
	c.mu.Unlock()

	return c.writeLocked(session.TypeDrawingStart, roomID, session.StrokeStartPayload{Style: style, Point: &start})
}

// AddPoint extends the local stroke. Points are sent on the next flush.
func (c *Client) AddPoint(p domain.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stroke == nil {
		return ErrNoStroke
	}
	if len(c.stroke.Points) >= domain.MaxPointsPerStroke {
		return domain.ErrTooManyPoints
	}
	c.stroke.Points = append(c.stroke.Points, p)
	c.buffer = append(c.buffer, p)
	return nil
}

// Flush sends buffered points as one drawing-progress batch.
func (c *Client) Flush() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	batch, roomID := c.takeBufferLocked()
	c.mu.Unlock()

	return c.writeBatchesLocked(roomID, batch)
}

// writeBatchesLocked sends points as drawing-progress messages of at most
// MaxPointsPerBatch points each. The caller holds writeMu.
func (c *Client) writeBatchesLocked(roomID string, points []domain.Point) error {
	for len(points) > 0 {
		n := min(len(points), domain.MaxPointsPerBatch)
		if err := c.writeLocked(session.TypeDrawingProgress, roomID, session.StrokeProgressPayload{Points: points[:n]}); err != nil {
			return err
		}
		points = points[n:]
	}
	return nil
}

func (c *Client) takeBufferLocked() ([]domain.Point, string) {
	batch := c.buffer
	c.buffer = nil
	return batch, c.roomID
}

// EndStroke flushes pending points and submits the complete stroke. The
// stroke stays pending locally until the server echoes its committed form.
func (c *Client) EndStroke() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.stroke == nil {
		c.mu.Unlock()
		return ErrNoStroke
	}
	stroke := *c.stroke
	c.stroke = nil
	batch, roomID := c.takeBufferLocked()
	connected := c.connected
	if connected {
		c.awaiting = append(c.awaiting, stroke)
	}
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	if err := c.writeBatchesLocked(roomID, batch); err != nil {
		return err
	}
	return c.writeLocked(session.TypeDrawingEnd, roomID, session.StrokeEndPayload{
		Stroke: &session.StrokeInput{Points: stroke.Points, Style: &stroke.Style},
	})
}

// Undo asks the room to revert its most recent operation.
func (c *Client) Undo() error {
	return c.send(session.TypeUndo, nil)
}

// Redo asks the room to re-apply the most recently undone operation.
func (c *Client) Redo() error {
	return c.send(session.TypeRedo, nil)
}

// Clear asks the room to drop its whole history.
func (c *Client) Clear() error {
	return c.send(session.TypeClearCanvas, nil)
}

// MoveCursor shares the pointer position, normalized to [0,1] on both axes.
func (c *Client) MoveCursor(x, y float64) error {
	return c.send(session.TypeCursorMove, session.CursorPayload{X: &x, Y: &y})
}

// Local state views

func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) Color() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userColor
}

func (c *Client) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canUndo
}

func (c *Client) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canRedo
}

// Operations returns a copy of the committed history as last seen.
func (c *Client) Operations() []domain.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneOperations(c.operations)
}

// Pending returns local strokes submitted but not yet echoed back as committed.
func (c *Client) Pending() []domain.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneOperations(c.awaiting)
}

func (c *Client) Users() []domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	users := make([]domain.User, len(c.users))
	copy(users, c.users)
	return users
}

// Cursors returns the last known position of every remote cursor.
func (c *Client) Cursors() map[string]domain.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	cursors := make(map[string]domain.Point, len(c.cursors))
	for id, p := range c.cursors {
		cursors[id] = p
	}
	return cursors
}

// handle applies one server message to local state and then notifies the observer.
func (c *Client) handle(env session.Envelope) {
	notify, err := c.apply(env)
	if err != nil {
		c.logger.Debug("ignoring message", "type", env.Type, "err", err)
		return
	}
	if notify != nil {
		notify()
	}
}

func (c *Client) apply(env session.Envelope) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Type {
	case session.TypeInitCanvas:
		var p session.InitCanvasPayload
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		c.userID = p.UserID
		c.userColor = p.UserColor
		c.operations = domain.CloneOperations(p.Operations)
		c.canUndo, c.canRedo = p.CanUndo, p.CanRedo
		c.awaiting = nil
		c.cursors = make(map[string]domain.Point)
		if p.RoomID != "" {
			c.roomID = p.RoomID
		}
		snap := Snapshot{
			RoomID:     c.roomID,
			UserID:     p.UserID,
			Color:      p.UserColor,
			Operations: domain.CloneOperations(p.Operations),
			CanUndo:    p.CanUndo,
			CanRedo:    p.CanRedo,
		}
		return func() { c.observer.OnInit(snap) }, nil

	case session.TypeUsersUpdate:
		var users []domain.User
		if err := unmarshal(env, &users); err != nil {
			return nil, err
		}
		c.users = users
		view := make([]domain.User, len(users))
		copy(view, users)
		return func() { c.observer.OnUsers(view) }, nil

	case session.TypeDrawingStart:
		var p session.DrawingStartBroadcast
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		if p.UserID == c.userID {
			return nil, nil
		}
		return func() { c.observer.OnRemoteStrokeStart(p.UserID, p.Style, p.Point) }, nil

	case session.TypeDrawingProgress:
		var p session.DrawingProgressBroadcast
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		if p.UserID == c.userID {
			return nil, nil
		}
		return func() { c.observer.OnRemoteStrokeProgress(p.UserID, p.Style, p.Points) }, nil

	case session.TypeDrawingEnd:
		var p session.DrawingEndBroadcast
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		own := p.UserID == c.userID
		if own {
			c.awaiting = removePending(c.awaiting, p.Stroke)
		}
		c.operations = append(c.operations, p.Stroke)
		c.canUndo, c.canRedo = true, false
		op := p.Stroke.Clone()
		return func() { c.observer.OnStrokeCommitted(p.UserID, op, own) }, nil

	case session.TypeUndo:
		var p session.HistoryBroadcast
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		c.operations = removeLast(c.operations, p.Operation)
		return c.historyChangedLocked(p.CanUndo, p.CanRedo), nil

	case session.TypeRedo:
		var p session.HistoryBroadcast
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		c.operations = append(c.operations, p.Operation)
		return c.historyChangedLocked(p.CanUndo, p.CanRedo), nil

	case session.TypeClearCanvas:
		c.operations = nil
		return c.historyChangedLocked(false, false), nil

	case session.TypeCursorMove:
		var p session.CursorMoveBroadcast
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		if p.UserID == c.userID {
			return nil, nil
		}
		c.cursors[p.UserID] = domain.Point{X: p.X, Y: p.Y}
		return func() { c.observer.OnCursor(p.UserID, p.X, p.Y) }, nil

	case session.TypeCursorRemove:
		var p session.CursorRemoveBroadcast
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		delete(c.cursors, p.UserID)
		return func() { c.observer.OnCursorRemove(p.UserID) }, nil
	}
	return nil, fmt.Errorf("unknown message type %q", env.Type)
}

func (c *Client) historyChangedLocked(canUndo, canRedo bool) func() {
	c.canUndo, c.canRedo = canUndo, canRedo
	ops := domain.CloneOperations(c.operations)
	return func() { c.observer.OnHistory(ops, canUndo, canRedo) }
}

// removeLast drops the last operation equal to op. When none matches, the
// replica has diverged and the newest operation is dropped instead.
func removeLast(ops []domain.Operation, op domain.Operation) []domain.Operation {
	if len(ops) == 0 {
		return ops
	}
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].Equal(op) {
			return append(ops[:i], ops[i+1:]...)
		}
	}
	return ops[:len(ops)-1]
}

// removePending drops the oldest pending stroke with the committed stroke's
// content. Strokes the server rejected never match and stay until the next
// init-canvas.
func removePending(pending []domain.Operation, committed domain.Operation) []domain.Operation {
	for i, op := range pending {
		op.Timestamp = committed.Timestamp
		if op.Equal(committed) {
			return append(pending[:i], pending[i+1:]...)
		}
	}
	return pending
}

func unmarshal(env session.Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", env.Type)
	}
	return json.Unmarshal(env.Payload, v)
}
