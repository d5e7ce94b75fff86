package wsserver

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"

	"github.com/example/drawing-sync/modules/activity"
	"github.com/example/drawing-sync/modules/canvas"
	"github.com/example/drawing-sync/modules/session"
)

// Room code generation
const (
	roomCodeAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"
	roomCodeLength   = 8
	roomCodeAttempts = 5
)

// Handlers contains HTTP and WebSocket handlers.
type Handlers struct {
	ctx       context.Context
	registry  *canvas.Registry
	publisher session.EventPublisher
	canvas    canvas.CanvasPort
	activity  activity.ActivityPort
	config    Config
	newCode   func() string
	checks    map[string]HealthChecker
	logger    types.Logger
}

// HealthChecker reports the health of one part of the application.
type HealthChecker interface {
	Health(ctx context.Context) mono.HealthStatus
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) mono.HealthStatus

func (f HealthCheckFunc) Health(ctx context.Context) mono.HealthStatus {
	return f(ctx)
}

// NewHandlers creates a new handlers instance. ctx bounds every WebSocket session.
func NewHandlers(
	ctx context.Context,
	registry *canvas.Registry,
	publisher session.EventPublisher,
	canvasPort canvas.CanvasPort,
	activityPort activity.ActivityPort,
	config Config,
	logger types.Logger,
) (*Handlers, error) {
	newCode, err := nanoid.CustomASCII(roomCodeAlphabet, roomCodeLength)
	if err != nil {
		return nil, err
	}
	h := &Handlers{
		ctx:       ctx,
		registry:  registry,
		publisher: publisher,
		canvas:    canvasPort,
		activity:  activityPort,
		config:    config.withDefaults(),
		newCode:   newCode,
		checks:    make(map[string]HealthChecker),
		logger:    logger,
	}
	h.AddHealthCheck("activity", HealthCheckFunc(h.activityHealth))
	return h, nil
}

// AddHealthCheck includes a component in the /health report.
func (h *Handlers) AddHealthCheck(name string, check HealthChecker) {
	h.checks[name] = check
}

// activityHealth probes the activity module through the service bus.
func (h *Handlers) activityHealth(ctx context.Context) mono.HealthStatus {
	summary, err := h.activity.GetSummary(ctx)
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("activity service unavailable: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"rooms_tracked": summary.RoomsTracked,
		},
	}
}

// HandleWebSocket runs the drawing protocol for one connection.
func (h *Handlers) HandleWebSocket(c *websocket.Conn) {
	connID := uuid.New().String()
	logger := h.logger.With("connID", connID)

	c.SetReadLimit(h.config.ReadLimit)

	out := session.NewOutbox(connID, h.config.OutboxSize)
	sess := session.New(connID, h.registry, out,
		session.WithPublisher(h.publisher),
		session.WithLogger(logger),
		session.WithCursorLimit(h.config.CursorRate, h.config.CursorBurst),
		session.WithDefaults(c.Query("room"), c.Query("name")),
	)

	logger.Info("WebSocket connected")

	err := session.Serve(h.ctx, c, sess, out)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSlowConsumer):
		logger.Warn("Closed slow WebSocket consumer")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived):
		logger.Error("WebSocket error", "error", err)
	}

	logger.Info("WebSocket disconnected", "dropped", out.Dropped())
}

// REST Handlers

// ListRooms handles room listing requests (GET /api/v1/rooms).
func (h *Handlers) ListRooms(c *fiber.Ctx) error {
	rooms, err := h.canvas.ListRooms(c.UserContext())
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(ListRoomsResponse{
		Rooms: rooms,
		Total: len(rooms),
	})
}

// CreateRoom mints an unused room code (POST /api/v1/rooms). The room itself
// is created on first join.
func (h *Handlers) CreateRoom(c *fiber.Ctx) error {
	for i := 0; i < roomCodeAttempts; i++ {
		code := h.newCode()
		if h.registry.Exists(code) {
			continue
		}
		return c.Status(fiber.StatusCreated).JSON(CreateRoomResponse{
			RoomID: code,
			WSPath: "/ws?room=" + url.QueryEscape(code),
		})
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
		Error:   "code_exhausted",
		Message: "Could not allocate a room code, try again",
	})
}

// GetRoom handles room detail requests (GET /api/v1/rooms/:id).
func (h *Handlers) GetRoom(c *fiber.Ctx) error {
	room, err := h.canvas.GetRoom(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(room)
}

// GetRoomHistory handles room history requests (GET /api/v1/rooms/:id/history).
func (h *Handlers) GetRoomHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", canvas.DefaultHistoryPage)
	if limit < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_limit",
			Message: "limit must be positive",
		})
	}

	resp, err := h.canvas.GetHistory(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(HistoryResponse{
		RoomID:     resp.RoomID,
		Operations: resp.Operations,
		Returned:   len(resp.Operations),
		Total:      resp.Total,
	})
}

// Stats handles activity summary requests (GET /api/v1/stats).
func (h *Handlers) Stats(c *fiber.Ctx) error {
	summary, err := h.activity.GetSummary(c.UserContext())
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(summary)
}

// GetRoomActivity handles per-room statistics requests (GET /api/v1/rooms/:id/activity).
func (h *Handlers) GetRoomActivity(c *fiber.Ctx) error {
	roomID := c.Params("id")
	if err := canvas.ValidateRoomID(roomID); err != nil {
		return h.serviceError(c, err)
	}

	room, found, err := h.activity.GetRoom(c.UserContext(), roomID)
	if err != nil {
		return h.serviceError(c, err)
	}
	if !found {
		return h.serviceError(c, canvas.ErrRoomNotFound)
	}
	return c.JSON(room)
}

// HealthCheck handles health check requests (GET /health). It reports 503
// when any registered component is unhealthy.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"service": "drawing-sync",
			"rooms":   h.registry.Len(),
		},
		Modules: make(map[string]ModuleHealth, len(h.checks)),
	}
	code := fiber.StatusOK
	for name, check := range h.checks {
		status := check.Health(c.UserContext())
		if !status.Healthy {
			resp.Status = "unhealthy"
			code = fiber.StatusServiceUnavailable
		}
		resp.Modules[name] = ModuleHealth{
			Healthy: status.Healthy,
			Message: status.Message,
			Details: status.Details,
		}
	}
	return c.Status(code).JSON(resp)
}

func (h *Handlers) serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, canvas.ErrRoomNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Room not found",
		})
	case errors.Is(err, canvas.ErrInvalidRoomID):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_room_id",
			Message: "Room ID is invalid",
		})
	}
	h.logger.Error("Service call failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "internal_error",
		Message: "Internal server error",
	})
}
