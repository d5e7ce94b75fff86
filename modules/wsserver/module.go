package wsserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/example/drawing-sync/modules/activity"
	"github.com/example/drawing-sync/modules/canvas"
	"github.com/example/drawing-sync/modules/session"
)

// Defaults for Config.
const (
	DefaultAllowedOrigins = "http://localhost:3000,http://localhost:8080"
	DefaultReadLimit      = 1 << 20
)

// Config holds the transport settings.
type Config struct {
	AllowedOrigins string
	OutboxSize     int
	CursorRate     float64 // cursor updates per second per connection, zero disables limiting
	CursorBurst    int
	ReadLimit      int64
}

func (c Config) withDefaults() Config {
	if c.AllowedOrigins == "" {
		c.AllowedOrigins = DefaultAllowedOrigins
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = session.DefaultOutboxSize
	}
	if c.CursorBurst <= 0 {
		c.CursorBurst = session.DefaultCursorBurst
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultReadLimit
	}
	return c
}

// Module implements the WebSocket server module using Fiber framework.
type Module struct {
	app             *fiber.App
	handlers        *Handlers
	addr            string
	config          Config
	canvasModule    *canvas.Module
	canvasAdapter   canvas.CanvasPort
	activityAdapter activity.ActivityPort
	cancel          context.CancelFunc
	logger          types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new WebSocket server module.
func NewModule(addr string, config Config, canvasModule *canvas.Module, moduleLogger types.Logger) *Module {
	return &Module{
		addr:         addr,
		config:       config.withDefaults(),
		canvasModule: canvasModule,
		logger:       moduleLogger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ws-server"
}

// Dependencies returns the modules this server reads from.
func (m *Module) Dependencies() []string {
	return []string{"canvas", "activity"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "canvas":
		m.canvasAdapter = canvas.NewCanvasAdapter(container)
	case "activity":
		m.activityAdapter = activity.NewActivityAdapter(container)
	}
}

// Start initializes and starts the WebSocket server.
func (m *Module) Start(_ context.Context) error {
	if err := m.setup(); err != nil {
		return err
	}

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()

	// Wait briefly to catch immediate startup errors
	select {
	case err := <-errCh:
		m.cancel()
		return fmt.Errorf("WebSocket server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("WebSocket server started", "addr", m.addr)
	return nil
}

// setup builds the Fiber app. It is separate from Start so the routes can be
// exercised without binding a port.
func (m *Module) setup() error {
	if m.canvasModule == nil {
		return fmt.Errorf("canvas module not set")
	}
	if m.canvasAdapter == nil {
		return fmt.Errorf("canvasAdapter dependency not set")
	}
	if m.activityAdapter == nil {
		return fmt.Errorf("activityAdapter dependency not set")
	}

	// Sessions outlive the Start context; they end when the server stops.
	ctx, cancel := context.WithCancel(context.Background())
	handlers, err := NewHandlers(ctx,
		m.canvasModule.Registry(),
		m.canvasModule,
		m.canvasAdapter,
		m.activityAdapter,
		m.config,
		m.logger,
	)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create handlers: %w", err)
	}
	handlers.AddHealthCheck("canvas", m.canvasModule)
	handlers.AddHealthCheck(m.Name(), m)
	m.handlers = handlers
	m.cancel = cancel

	m.app = fiber.New(fiber.Config{
		AppName:               "Drawing Sync",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	m.app.Use(recover.New())
	m.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: m.config.AllowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.registerRoutes()
	return nil
}

// Stop gracefully shuts down the WebSocket server.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	m.logger.Info("WebSocket server stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.app == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "server not initialized",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"addr": m.addr,
		},
	}
}

// registerRoutes sets up all HTTP and WebSocket routes.
func (m *Module) registerRoutes() {
	m.app.Get("/health", m.handlers.HealthCheck)

	// WebSocket upgrade middleware
	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.handlers.HandleWebSocket))

	api := m.app.Group("/api/v1")
	api.Get("/rooms", m.handlers.ListRooms)
	api.Post("/rooms", m.handlers.CreateRoom)
	api.Get("/rooms/:id", m.handlers.GetRoom)
	api.Get("/rooms/:id/history", m.handlers.GetRoomHistory)
	api.Get("/rooms/:id/activity", m.handlers.GetRoomActivity)
	api.Get("/stats", m.handlers.Stats)
}

// errorHandler handles errors globally.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	m.logger.Error("HTTP error", "code", code, "message", message, "error", err)

	return c.Status(code).JSON(ErrorResponse{
		Error:   errorCode(code),
		Message: message,
	})
}

// errorCode turns an HTTP status into the snake_case code used in ErrorResponse.
func errorCode(status int) string {
	return strings.ReplaceAll(strings.ToLower(utils.StatusMessage(status)), " ", "_")
}
