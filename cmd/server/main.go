// pagedesk - inbox and live status desk for the page integration backend.
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

	"github.com/ashureev/pagedesk/internal/api"
	"github.com/ashureev/pagedesk/internal/config"
	"github.com/ashureev/pagedesk/internal/events"
	"github.com/ashureev/pagedesk/internal/identity"
	"github.com/ashureev/pagedesk/internal/inbox"
	"github.com/ashureev/pagedesk/internal/middleware"
	"github.com/ashureev/pagedesk/internal/remote"
	"github.com/ashureev/pagedesk/internal/status"
	"github.com/ashureev/pagedesk/internal/store"
	"github.com/ashureev/pagedesk/internal/view"
	"github.com/ashureev/pagedesk/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.Backend.URL)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath, store.WithRetry(cfg.Retry.DatabaseMaxRetries, cfg.Retry.DatabaseRetryBaseDelay))
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

	backend := remote.NewHTTPClient(cfg.Backend, logger)

	// The status source defaults to the backend and switches to the flow
	// monitor sidecar when one is configured.
	var statusSource remote.StatusSource = backend
	if cfg.Backend.StatusGRPCAddr != "" {
		grpcSource, err := remote.NewGRPCStatusSource(cfg.Backend.StatusGRPCAddr, cfg.Backend.Timeout, 5*time.Second, logger)
		if err != nil {
			slog.Warn("Flow monitor unavailable, polling the backend instead", "error", err)
		} else {
			defer grpcSource.Close()
			statusSource = grpcSource
		}
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.AMQPURL != "" {
		amqpPublisher, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
		if err != nil {
			slog.Warn("Event publishing disabled", "error", err)
		} else {
			publisher = amqpPublisher
		}
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			slog.Error("Failed to close event publisher", "error", closeErr)
		}
	}()

	inflight := remote.NewInflight()
	views := view.NewManager()

	// Initialize views.
	wsHandler := view.NewHandler(views, cfg.FrontendURL, cfg.IsDevelopment())
	wsHandler.Register("dashboard", func() view.View {
		return status.NewFlowView(statusSource, cfg.Poll.DashboardRoute, publisher, status.Options{
			Interval:         cfg.Poll.Interval,
			FetchTimeout:     cfg.Backend.Timeout,
			FailureThreshold: cfg.Poll.FailureThreshold,
			Logger:           logger,
		})
	})
	wsHandler.Register("inbox", func() view.View {
		return inbox.NewView(backend, inbox.Options{
			Limit:     cfg.Inbox.MessageLimit,
			Publisher: publisher,
			Inflight:  inflight,
			Logger:    logger,
		})
	})
	wsHandler.Register("stats", func() view.View {
		return status.NewDashboardView(backend, logger)
	})

	// Initialize handlers.
	baseHandler := api.NewHandler(backend, repo, publisher, inflight, logger)
	healthHandler := api.NewHealthHandler(repo, cfg.Timeout.HealthCheck, views.Count)

	allowedOrigins := []string{"*"}
	if !cfg.IsDevelopment() {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

		r.Route("/api", func(r chi.Router) {
			api.NewInboxHandler(baseHandler, cfg.Inbox.MessageLimit).RegisterRoutes(r)
			api.NewActionsHandler(baseHandler).RegisterRoutes(r)
			api.NewDashboardHandler(baseHandler).RegisterRoutes(r)
			api.NewRecordsHandler(baseHandler).RegisterRoutes(r)
		})

		// WebSocket view mounts.
		wsHandler.RegisterRoutes(r)
	})

	// Embedded operator shell (client-side routing catch-all).
	r.Handle("/*", web.ShellHandler())

	// Views are long-lived WebSocket connections, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pruneDone := store.StartPruneWorker(ctx, repo, cfg.Audit.PruneInterval, cfg.Audit.Retention)

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

	// Stop pollers first so no fetch outlives the server.
	views.TeardownAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-pruneDone

	slog.Info("Server stopped successfully")
}
