// designdrill development backend
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/designdrill/internal/agent"
	"github.com/ashureev/designdrill/internal/api"
	"github.com/ashureev/designdrill/internal/config"
	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/identity"
	"github.com/ashureev/designdrill/internal/middleware"
	"github.com/ashureev/designdrill/internal/store"
	"github.com/ashureev/designdrill/internal/worker"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if err := api.SeedProblems(context.Background(), repo); err != nil {
		slog.Error("Failed to seed problems", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	issuer := identity.NewIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, nil)
	agentService, err := agent.NewServiceWithProcessor(agent.NewHeuristic(cfg.ChatChunkDelay))
	if err != nil {
		slog.Error("Failed to initialize reviewer", "error", err)
		os.Exit(1)
	}

	var metrics *middleware.Metrics
	var observer agent.StreamObserver
	if cfg.MetricsEnabled {
		metrics = middleware.NewMetrics()
		observer = metrics
	}

	// Initialize handlers.
	chatHandler := agent.NewHandler(agentService, repo, cfg.ChatRateLimit, cfg.ChatRateWindow, observer)
	defer chatHandler.Close()

	router := api.NewRouter(api.RouterConfig{
		Handler:        api.NewHandler(repo, issuer, agentService),
		Chat:           chatHandler,
		Issuer:         issuer,
		Metrics:        metrics,
		AllowedOrigins: cfg.CORSOrigins(),
		RequestLogging: cfg.IsDevelopment(),
	})

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	// Start idle worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker.StartIdleWorker(ctx, repo, cfg.SessionIdleTTL, cfg.SweepInterval, func(*domain.Session) {
		if metrics != nil {
			metrics.SessionIdlePaused()
		}
	})

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
