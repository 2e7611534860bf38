package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/playroom/server/internal/v1/auth"
	"github.com/playroom/server/internal/v1/codes"
	"github.com/playroom/server/internal/v1/config"
	"github.com/playroom/server/internal/v1/game"
	"github.com/playroom/server/internal/v1/lobby"
	"github.com/playroom/server/internal/v1/logging"
	"github.com/playroom/server/internal/v1/server"
	"github.com/playroom/server/internal/v1/tracing"
	"github.com/playroom/server/internal/v1/transport"
)

const serviceName = "playroom-server"

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on environment variables")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode, cfg.LogLevel); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// --- Optional tracing ---
	if cfg.OtelEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.OtelCollectorAddr)
		if err != nil {
			logging.Error(ctx, "Failed to initialize tracing")
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	// --- Core wiring ---
	pool, err := codes.NewPool(cfg.RoomCodeLength)
	if err != nil {
		logging.Error(ctx, "Failed to build room code pool")
		os.Exit(1)
	}

	codec := auth.NewCodec(cfg.JWTSecret)
	lob := lobby.New(pool, codec, cfg.GracePeriod)

	allowedOrigins := allowedOriginsFromConfig(cfg.AllowedOrigins)
	session := transport.NewSession(lob, game.Handle, allowedOrigins)

	router := server.NewRouter(lob, session, server.Options{
		AllowedOrigins: allowedOrigins,
		TracingEnabled: cfg.OtelEnabled,
		ServiceName:    serviceName,
	})

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: router,
	}

	// --- Graceful shutdown ---
	go func() {
		logging.Info(ctx, "API server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "Failed to run server")
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := lob.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "Error during lobby shutdown")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "Server forced to shutdown")
	}

	logging.Info(ctx, "Server exiting")
}

// allowedOriginsFromConfig splits the CSV of allowed origins, defaulting
// to the local development frontend.
func allowedOriginsFromConfig(raw string) []string {
	if raw == "" {
		return []string{"http://localhost:3000"}
	}
	return strings.Split(raw, ",")
}
