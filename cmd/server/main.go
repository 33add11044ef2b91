/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML, .env, environment), then flags
  2. Initialize logger and, if enabled, the stdout tracer
  3. Open the record store (sqlite, postgres or memory)
  4. Build the key locker (memory or redis) and event publisher
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      Database DSN or SQLite path (overrides DB_DSN)
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close publisher, locker and database connections
  4. Flush traces and logs
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/attendance.db"

  # Run against PostgreSQL with a shared lock
  DB_DRIVER=postgres DB_DSN=postgres://... LOCK_BACKEND=redis ./server

ENVIRONMENT:
  See config/config.go for every variable and its default.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration sources
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/events"
	"github.com/warp/attendance-engine/lock/redislock"
	"github.com/warp/attendance-engine/logger"
	"github.com/warp/attendance-engine/store/gormstore"
	"github.com/warp/attendance-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dsn := flag.String("db", cfg.DBDSN, "Database DSN or SQLite path")
	flag.Parse()
	cfg.Port, cfg.DBDSN = *port, *dsn

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logg.Sync()

	shutdownTracing, err := initTracing(cfg)
	if err != nil {
		logg.Fatal("Failed to initialize tracing", "error", err)
	}

	var closers []io.Closer

	// Initialize store
	recordStore, closer, err := openStore(cfg)
	if err != nil {
		logg.Fatal("Failed to initialize database", "driver", cfg.DBDriver, "error", err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	locker, err := newLocker(cfg)
	if err != nil {
		logg.Fatal("Failed to initialize lock backend", "backend", cfg.LockBackend, "error", err)
	}
	if c, ok := locker.(io.Closer); ok {
		closers = append(closers, c)
	}

	var publisher attendance.Publisher = events.Nop{}
	if cfg.EventsEnabled {
		p := events.NewAsynqPublisher(cfg.EventsRedisAddr)
		publisher = p
		closers = append(closers, p)
	}

	svc := attendance.NewService(attendance.ServiceConfig{
		Store:       recordStore,
		Locker:      locker,
		Publisher:   publisher,
		Logger:      logg,
		Concurrency: cfg.BatchConcurrency,
	})

	// Initialize handler
	var auth *api.Authenticator
	if cfg.JWTSecret != "" {
		auth = api.NewAuthenticator(cfg.JWTSecret)
	}
	handler := api.NewHandler(svc, auth, logg)

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logg.Info("Server starting",
			"addr", server.Addr,
			"driver", cfg.DBDriver,
			"lock", cfg.LockBackend,
			"events", cfg.EventsEnabled,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logg.Error("Server forced to shutdown", "error", err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logg.Warn("Close failed", "error", err)
		}
	}
	if err := shutdownTracing(ctx); err != nil {
		logg.Warn("Trace flush failed", "error", err)
	}

	logg.Info("Server stopped")
}

// openStore returns the configured record store and what to close on exit.
func openStore(cfg config.Config) (attendance.Store, io.Closer, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		s, err := gormstore.Open(cfg.DBDSN)
		return s, s, err
	case config.DriverMemory:
		return store.NewMemory(), nil, nil
	default:
		s, err := sqlite.New(cfg.DBDSN)
		return s, s, err
	}
}

func newLocker(cfg config.Config) (attendance.KeyLocker, error) {
	if cfg.LockBackend == config.LockRedis {
		return redislock.New(cfg.RedisAddr, cfg.LockTTL)
	}
	return attendance.NewMemoryLocker(), nil
}

// initTracing installs a stdout trace provider when enabled. Otherwise the
// global no-op provider stays in place.
func initTracing(cfg config.Config) (func(context.Context) error, error) {
	if !cfg.TraceStdout {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
