package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/drawing-sync/modules/activity"
	"github.com/example/drawing-sync/modules/canvas"
	"github.com/example/drawing-sync/modules/session"
	"github.com/example/drawing-sync/modules/wsserver"
)

func main() {
	log.Println("=== Drawing Sync - Fiber WebSocket + EventBus ===")

	shutdownTimeout := getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	port := getEnv("PORT", "3000")

	// Create modules
	canvasModule := canvas.NewModule(getEnvInt("HISTORY_LIMIT", canvas.DefaultHistoryLimit), app.Logger().WithModule("canvas"))
	activityModule := activity.NewModule(app.Logger().WithModule("activity"))
	serverModule := wsserver.NewModule(":"+port, wsserver.Config{
		AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", wsserver.DefaultAllowedOrigins),
		OutboxSize:     getEnvInt("OUTBOX_SIZE", session.DefaultOutboxSize),
		CursorRate:     getEnvFloat("CURSOR_RATE", session.DefaultCursorRate),
		CursorBurst:    getEnvInt("CURSOR_BURST", session.DefaultCursorBurst),
	}, canvasModule, app.Logger().WithModule("ws-server"))

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - canvas: rooms and operation logs (ServiceProviderModule + EventEmitterModule)
	// - activity: usage counters (EventConsumerModule + ServiceProviderModule)
	// - ws-server: driving adapter (Fiber HTTP/WebSocket server, depends on canvas and activity)
	app.Register(canvasModule)
	app.Register(activityModule)
	app.Register(serverModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(port)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
// Logs a warning if the value cannot be parsed as an integer.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
		log.Printf("Warning: invalid integer value for %s: %q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
		log.Printf("Warning: invalid number value for %s: %q, using default %g", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
		log.Printf("Warning: invalid duration value for %s: %q, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func printStartupInfo(port string) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Event Bus: NATS JetStream (internal pubsub)")
	log.Println("  - Room state: in-memory operation logs per room")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health                   - Health check")
	log.Println("  GET    /api/v1/rooms             - List active rooms")
	log.Println("  POST   /api/v1/rooms             - Reserve a new room code")
	log.Println("  GET    /api/v1/rooms/:id         - Get room details and members")
	log.Println("  GET    /api/v1/rooms/:id/history - Get recent operations")
	log.Println("  GET    /api/v1/rooms/:id/activity - Get room activity counters")
	log.Println("  GET    /api/v1/stats             - Activity summary")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", port)
	log.Printf("  Connect with: ws://localhost:%s/ws?room=default&name=yourname", port)
	log.Println("  Message types: join-room, drawing-start, drawing-progress, drawing-end,")
	log.Println("                 undo, redo, clear-canvas, cursor-move")
	log.Println("")
	log.Println("Example: go run ./cmd/drawbot -room default")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
