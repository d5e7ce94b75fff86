package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/example/drawing-sync/domain/canvas"
	"github.com/example/drawing-sync/modules/session"
)

// fakeConn is the server side of a scripted connection.
type fakeConn struct {
	in     chan []byte
	out    chan session.Envelope
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		out:    make(chan session.Envelope, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return session.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	env, err := session.Decode(data)
	if err != nil {
		return err
	}
	c.out <- env
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// push delivers a server message to the client.
func (c *fakeConn) push(t *testing.T, msgType, roomID string, payload any) {
	t.Helper()
	data, err := session.Encode(msgType, roomID, payload)
	require.NoError(t, err)
	c.in <- data
}

// next returns the next frame the client wrote.
func (c *fakeConn) next(t *testing.T) session.Envelope {
	t.Helper()
	select {
	case env := <-c.out:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return session.Envelope{}
	}
}

func (c *fakeConn) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case env := <-c.out:
		t.Fatalf("unexpected frame %q", env.Type)
	case <-time.After(wait):
	}
}

type fakeDialer struct {
	conns chan *fakeConn
	dials chan struct{}
}

func newFakeDialer(conns ...*fakeConn) *fakeDialer {
	d := &fakeDialer{conns: make(chan *fakeConn, len(conns)+1), dials: make(chan struct{}, 16)}
	for _, c := range conns {
		d.conns <- c
	}
	return d
}

func (d *fakeDialer) DialContext(ctx context.Context, _ string) (Conn, error) {
	select {
	case d.dials <- struct{}{}:
	default:
	}
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(50 * time.Millisecond):
		return nil, errors.New("connection refused")
	}
}

type recordingObserver struct {
	NopObserver
	mu        sync.Mutex
	committed []bool
	history   int
	inits     int
}

func (o *recordingObserver) OnInit(Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inits++
}

func (o *recordingObserver) OnStrokeCommitted(_ string, _ domain.Operation, own bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.committed = append(o.committed, own)
}

func (o *recordingObserver) OnHistory([]domain.Operation, bool, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history++
}

func decode[T any](t *testing.T, env session.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

func op(ts int64, xs ...float64) domain.Operation {
	points := make([]domain.Point, len(xs))
	for i, x := range xs {
		points[i] = domain.Point{X: x, Y: x}
	}
	return domain.Operation{
		Type:      domain.OperationTypeStroke,
		Points:    points,
		Style:     domain.StrokeStyle{Color: "#000000", Width: 2, Tool: domain.ToolBrush},
		Timestamp: ts,
	}
}

// startClient runs a client against conn and consumes its join frame.
func startClient(t *testing.T, cfg Config, conns ...*fakeConn) (*Client, *fakeDialer) {
	t.Helper()
	dialer := newFakeDialer(conns...)
	cfg.URL = "ws://test/ws"
	cfg.Dialer = dialer
	if cfg.MinBackoff == 0 {
		cfg.MinBackoff = 10 * time.Millisecond
	}
	c, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("Run did not return")
		}
	})

	join := conns[0].next(t)
	require.Equal(t, session.TypeJoinRoom, join.Type)
	require.Eventually(t, c.Connected, time.Second, 5*time.Millisecond)
	return c, dialer
}

func initCanvas(t *testing.T, conn *fakeConn, userID string, ops ...domain.Operation) {
	t.Helper()
	conn.push(t, session.TypeInitCanvas, "r1", session.InitCanvasPayload{
		RoomID:     "r1",
		Operations: ops,
		UserID:     userID,
		UserColor:  "hsl(1, 70%, 60%)",
		CanUndo:    len(ops) > 0,
	})
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingURL)

	c, err := New(Config{URL: "ws://localhost:3000/ws"})
	require.NoError(t, err)
	assert.Equal(t, DefaultFlushInterval, c.flushInterval)
	assert.Equal(t, DefaultMinBackoff, c.minBackoff)
	assert.Equal(t, DefaultMaxBackoff, c.maxBackoff)
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Undo(), ErrNotConnected)
	assert.ErrorIs(t, c.BeginStroke(domain.StrokeStyle{Color: "#000", Width: 1}, domain.Point{}), ErrNotConnected)
	assert.ErrorIs(t, c.AddPoint(domain.Point{}), ErrNoStroke)
}

func TestClient_JoinAndInit(t *testing.T) {
	conn := newFakeConn()
	obs := &recordingObserver{}
	c, _ := startClient(t, Config{RoomID: "r1", Name: "Ada", Observer: obs}, conn)

	initCanvas(t, conn, "u1", op(1, 1), op(2, 2))
	require.Eventually(t, func() bool { return c.UserID() == "u1" }, time.Second, 5*time.Millisecond)

	assert.Len(t, c.Operations(), 2)
	assert.True(t, c.CanUndo())
	assert.False(t, c.CanRedo())
	assert.Equal(t, "hsl(1, 70%, 60%)", c.Color())
	assert.Equal(t, "r1", c.RoomID())

	users := []domain.User{{ID: "u1", Name: "Ada"}, {ID: "u2", Name: "Bob"}}
	conn.push(t, session.TypeUsersUpdate, "r1", users)
	require.Eventually(t, func() bool { return len(c.Users()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestClient_BatchesPoints(t *testing.T) {
	conn := newFakeConn()
	c, _ := startClient(t, Config{FlushInterval: time.Hour}, conn)
	initCanvas(t, conn, "u1")
	require.Eventually(t, func() bool { return c.UserID() == "u1" }, time.Second, 5*time.Millisecond)

	style := domain.StrokeStyle{Color: "#ff0000", Width: 3}
	require.NoError(t, c.BeginStroke(style, domain.Point{X: 0, Y: 0}))
	start := conn.next(t)
	assert.Equal(t, session.TypeDrawingStart, start.Type)
	assert.Equal(t, domain.ToolBrush, decode[session.StrokeStartPayload](t, start).Style.Tool)

	for i := 1; i <= 3; i++ {
		require.NoError(t, c.AddPoint(domain.Point{X: float64(i), Y: float64(i)}))
	}
	conn.expectNone(t, 20*time.Millisecond)

	require.NoError(t, c.Flush())
	progress := conn.next(t)
	assert.Equal(t, session.TypeDrawingProgress, progress.Type)
	assert.Len(t, decode[session.StrokeProgressPayload](t, progress).Points, 3)

	require.NoError(t, c.Flush())
	conn.expectNone(t, 20*time.Millisecond)

	require.NoError(t, c.AddPoint(domain.Point{X: 4, Y: 4}))
	require.NoError(t, c.EndStroke())

	progress = conn.next(t)
	assert.Equal(t, session.TypeDrawingProgress, progress.Type)
	assert.Len(t, decode[session.StrokeProgressPayload](t, progress).Points, 1)

	end := conn.next(t)
	require.Equal(t, session.TypeDrawingEnd, end.Type)
	payload := decode[session.StrokeEndPayload](t, end)
	require.NotNil(t, payload.Stroke)
	assert.Len(t, payload.Stroke.Points, 5)
	assert.Equal(t, "#ff0000", payload.Stroke.Style.Color)

	assert.Len(t, c.Pending(), 1)
	assert.ErrorIs(t, c.EndStroke(), ErrNoStroke)
}

func TestClient_FlushTicker(t *testing.T) {
	conn := newFakeConn()
	c, _ := startClient(t, Config{FlushInterval: 10 * time.Millisecond}, conn)

	require.NoError(t, c.BeginStroke(domain.StrokeStyle{Color: "#000", Width: 1}, domain.Point{}))
	assert.Equal(t, session.TypeDrawingStart, conn.next(t).Type)

	require.NoError(t, c.AddPoint(domain.Point{X: 1}))
	assert.Equal(t, session.TypeDrawingProgress, conn.next(t).Type)
}

func TestClient_OwnStrokeCommitted(t *testing.T) {
	conn := newFakeConn()
	obs := &recordingObserver{}
	c, _ := startClient(t, Config{FlushInterval: time.Hour, Observer: obs}, conn)
	initCanvas(t, conn, "u1")
	require.Eventually(t, func() bool { return c.UserID() == "u1" }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.BeginStroke(domain.StrokeStyle{Color: "#000000", Width: 2}, domain.Point{X: 1, Y: 1}))
	require.NoError(t, c.EndStroke())
	conn.next(t)
	conn.next(t)
	require.Len(t, c.Pending(), 1)

	// Own relays are ignored; the committed echo replaces the pending stroke.
	conn.push(t, session.TypeDrawingStart, "r1", session.DrawingStartBroadcast{UserID: "u1"})
	conn.push(t, session.TypeDrawingEnd, "r1", session.DrawingEndBroadcast{UserID: "u1", Stroke: op(10, 1)})
	conn.push(t, session.TypeDrawingEnd, "r1", session.DrawingEndBroadcast{UserID: "u2", Stroke: op(11, 2)})

	require.Eventually(t, func() bool { return len(c.Operations()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, c.Pending())
	assert.Equal(t, int64(10), c.Operations()[0].Timestamp)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []bool{true, false}, obs.committed)
}

func TestClient_PendingMatchesCommittedContent(t *testing.T) {
	conn := newFakeConn()
	c, _ := startClient(t, Config{FlushInterval: time.Hour}, conn)
	initCanvas(t, conn, "u1")
	require.Eventually(t, func() bool { return c.UserID() == "u1" }, time.Second, 5*time.Millisecond)

	style := domain.StrokeStyle{Color: "#000000", Width: 2}
	require.NoError(t, c.BeginStroke(style, domain.Point{X: 1, Y: 1}))
	require.NoError(t, c.AddPoint(domain.Point{X: 2, Y: 2}))
	require.NoError(t, c.EndStroke())
	require.NoError(t, c.BeginStroke(style, domain.Point{X: 9, Y: 9}))
	require.NoError(t, c.EndStroke())
	require.Len(t, c.Pending(), 2)

	// The server rejected the first stroke and committed only the second.
	conn.push(t, session.TypeDrawingEnd, "r1", session.DrawingEndBroadcast{UserID: "u1", Stroke: op(10, 9)})
	require.Eventually(t, func() bool { return len(c.Operations()) == 1 }, time.Second, 5*time.Millisecond)

	pending := c.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, []domain.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}, pending[0].Points)
}

func TestClient_StrokeLimits(t *testing.T) {
	conn := newFakeConn()
	c, _ := startClient(t, Config{FlushInterval: time.Hour}, conn)
	initCanvas(t, conn, "u1")
	require.Eventually(t, func() bool { return c.UserID() == "u1" }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.BeginStroke(domain.StrokeStyle{Color: "#000000", Width: 2}, domain.Point{}))
	for i := 1; i < domain.MaxPointsPerStroke; i++ {
		require.NoError(t, c.AddPoint(domain.Point{X: float64(i)}))
	}
	assert.ErrorIs(t, c.AddPoint(domain.Point{X: -1}), domain.ErrTooManyPoints)
	require.NoError(t, c.EndStroke())

	assert.Equal(t, session.TypeDrawingStart, conn.next(t).Type)
	sent := 0
	for {
		env := conn.next(t)
		if env.Type == session.TypeDrawingEnd {
			end := decode[session.StrokeEndPayload](t, env)
			require.NotNil(t, end.Stroke)
			assert.Len(t, end.Stroke.Points, domain.MaxPointsPerStroke)
			break
		}
		require.Equal(t, session.TypeDrawingProgress, env.Type)
		batch := decode[session.StrokeProgressPayload](t, env)
		assert.LessOrEqual(t, len(batch.Points), domain.MaxPointsPerBatch)
		sent += len(batch.Points)
	}
	assert.Equal(t, domain.MaxPointsPerStroke-1, sent)
}

func TestClient_UndoRedoClear(t *testing.T) {
	conn := newFakeConn()
	obs := &recordingObserver{}
	c, _ := startClient(t, Config{Observer: obs}, conn)
	initCanvas(t, conn, "u1", op(1, 1), op(2, 2), op(3, 3))
	require.Eventually(t, func() bool { return len(c.Operations()) == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Undo())
	assert.Equal(t, session.TypeUndo, conn.next(t).Type)

	conn.push(t, session.TypeUndo, "r1", session.HistoryBroadcast{Operation: op(3, 3), CanUndo: true, CanRedo: true})
	require.Eventually(t, func() bool { return len(c.Operations()) == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, c.CanRedo())

	conn.push(t, session.TypeRedo, "r1", session.HistoryBroadcast{Operation: op(3, 3), CanUndo: true})
	require.Eventually(t, func() bool { return len(c.Operations()) == 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, c.CanRedo())
	assert.Equal(t, int64(3), c.Operations()[2].Timestamp)

	conn.push(t, session.TypeClearCanvas, "r1", nil)
	require.Eventually(t, func() bool { return len(c.Operations()) == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, c.CanUndo())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 3, obs.history)
}

func TestClient_Cursors(t *testing.T) {
	conn := newFakeConn()
	c, _ := startClient(t, Config{}, conn)
	initCanvas(t, conn, "u1")
	require.Eventually(t, func() bool { return c.UserID() == "u1" }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.MoveCursor(0.25, 0.5))
	env := conn.next(t)
	require.Equal(t, session.TypeCursorMove, env.Type)
	cursor := decode[session.CursorPayload](t, env)
	require.NotNil(t, cursor.X)
	require.NotNil(t, cursor.Y)
	assert.Equal(t, 0.25, *cursor.X)
	assert.Equal(t, 0.5, *cursor.Y)

	conn.push(t, session.TypeCursorMove, "r1", session.CursorMoveBroadcast{UserID: "u1", X: 0.9, Y: 0.9})
	conn.push(t, session.TypeCursorMove, "r1", session.CursorMoveBroadcast{UserID: "u2", X: 0.1, Y: 0.2})
	require.Eventually(t, func() bool { return len(c.Cursors()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.Point{X: 0.1, Y: 0.2}, c.Cursors()["u2"])

	conn.push(t, session.TypeCursorRemove, "r1", session.CursorRemoveBroadcast{UserID: "u2"})
	require.Eventually(t, func() bool { return len(c.Cursors()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestClient_ReconnectResyncs(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	obs := &recordingObserver{}
	c, _ := startClient(t, Config{RoomID: "r1", Name: "Ada", Observer: obs}, first, second)

	initCanvas(t, first, "u1", op(1, 1))
	require.Eventually(t, func() bool { return len(c.Operations()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, first.Close())

	join := second.next(t)
	require.Equal(t, session.TypeJoinRoom, join.Type)
	assert.Equal(t, "r1", join.RoomID)
	assert.Equal(t, "Ada", decode[session.JoinPayload](t, join).Name)

	initCanvas(t, second, "u9", op(5, 5), op(6, 6), op(7, 7))
	require.Eventually(t, func() bool { return c.UserID() == "u9" }, time.Second, 5*time.Millisecond)

	ops := c.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, int64(5), ops[0].Timestamp)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 2, obs.inits)
}

func TestClient_RetriesFailedDial(t *testing.T) {
	dialer := newFakeDialer()
	c, err := New(Config{URL: "ws://test/ws", Dialer: dialer, MinBackoff: 5 * time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-dialer.dials:
		case <-time.After(2 * time.Second):
			t.Fatal("client did not retry")
		}
	}

	conn := newFakeConn()
	dialer.conns <- conn
	assert.Equal(t, session.TypeJoinRoom, conn.next(t).Type)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, c.Connected())
}

func TestRemoveLast(t *testing.T) {
	tests := []struct {
		name   string
		ops    []domain.Operation
		target domain.Operation
		want   []int64
	}{
		{name: "empty", ops: nil, target: op(1, 1), want: nil},
		{name: "match last", ops: []domain.Operation{op(1, 1), op(2, 2)}, target: op(2, 2), want: []int64{1}},
		{name: "match earlier", ops: []domain.Operation{op(1, 1), op(2, 2)}, target: op(1, 1), want: []int64{2}},
		{name: "diverged", ops: []domain.Operation{op(1, 1), op(2, 2)}, target: op(9, 9), want: []int64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := removeLast(tt.ops, tt.target)
			var ts []int64
			for _, o := range got {
				ts = append(ts, o.Timestamp)
			}
			assert.Equal(t, tt.want, ts)
		})
	}
}

func TestRemovePending(t *testing.T) {
	tests := []struct {
		name      string
		pending   []domain.Operation
		committed domain.Operation
		want      int
	}{
		{name: "empty", pending: nil, committed: op(5, 1), want: 0},
		{name: "match ignores timestamp", pending: []domain.Operation{op(0, 1)}, committed: op(5, 1), want: 0},
		{name: "skips rejected stroke", pending: []domain.Operation{op(0, 1, 2), op(0, 9)}, committed: op(5, 9), want: 1},
		{name: "no match", pending: []domain.Operation{op(0, 1)}, committed: op(5, 2), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, removePending(tt.pending, tt.committed), tt.want)
		})
	}
}
