// YogGuru - AI Yoga Trainer Server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/yogguru/trainer/internal/api"
	"github.com/yogguru/trainer/internal/catalog"
	"github.com/yogguru/trainer/internal/config"
	"github.com/yogguru/trainer/internal/feedback"
	"github.com/yogguru/trainer/internal/identity"
	"github.com/yogguru/trainer/internal/metrics"
	"github.com/yogguru/trainer/internal/middleware"
	"github.com/yogguru/trainer/internal/retention"
	"github.com/yogguru/trainer/internal/speech"
	"github.com/yogguru/trainer/internal/store"
	"github.com/yogguru/trainer/internal/trainer"
	"github.com/yogguru/trainer/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "feedback_backend", cfg.Feedback.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	poses, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		slog.Error("Failed to load pose catalog", "error", err, "path", cfg.CatalogPath)
		os.Exit(1)
	}
	slog.Info("Pose catalog loaded", "poses", len(poses.All()))

	m := metrics.New()

	// Feedback backend (optional). Without one every verdict is the localized fallback.
	svc, checker, closeFeedback := newFeedbackService(ctx, cfg, logger)
	defer closeFeedback()

	journal, err := feedback.NewJournal(feedback.JournalConfig{
		Enabled:   cfg.Journal.Enabled,
		Dir:       cfg.Journal.Dir,
		QueueSize: cfg.Journal.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize feedback journal", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			slog.Warn("Failed to close feedback journal", "error", closeErr)
		}
	}()
	svc = feedback.Journaled(svc, journal)

	// Initialize services.
	sm := trainer.NewSessionManager()

	wsHandler := trainer.NewWebSocketHandler(repo, poses, svc, sm, trainer.Config{
		Cooldown:       cfg.Cooldown,
		RequestTimeout: cfg.Feedback.RequestTimeout,
	}, cfg.FrontendURL, cfg.IsDevelopment())
	wsHandler.SetMetrics(m)
	wsHandler.SetLogger(logger)

	if cfg.MQTT.Enabled() {
		mqttCtx, cancelMQTT := context.WithTimeout(ctx, 10*time.Second)
		client, err := speech.ConnectMQTT(mqttCtx, speech.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		cancelMQTT()
		if err != nil {
			slog.Warn("Failed to connect to MQTT broker, studio speaker disabled", "error", err)
		} else {
			defer client.Disconnect(250)
			wsHandler.SetSpeakerFactory(func(userID string) speech.Speaker {
				return speech.NewMQTTSpeaker(client, cfg.MQTT.TopicPrefix, userID, logger)
			})
			slog.Info("Studio speaker enabled", "broker", cfg.MQTT.Broker)
		}
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, poses)
	healthHandler := api.NewHealthHandler(repo, checker)
	accountHandler := api.NewAccountHandler(baseHandler, api.ClientConfig{
		FeedbackBackend: cfg.Feedback.Backend,
		Cooldown:        cfg.Cooldown,
		MQTTSpeaker:     cfg.MQTT.Enabled(),
	})
	poseHandler := api.NewPoseHandler(baseHandler)
	progressHandler := api.NewProgressHandler(baseHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(m.Middleware)
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// Everything else is tied to the device identity (no auth needed).
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

		accountHandler.RegisterRoutes(r)
		poseHandler.RegisterRoutes(r)
		progressHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/trainer", wsHandler.ServeHTTP)

		// Serve embedded frontend (SPA catch-all).
		r.Handle("/*", web.SPAHandler())
	})

	// Create server.
	// Trainer websockets are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start retention worker.
	retentionDone := retention.StartWorker(ctx, repo, retention.Config{
		History:  cfg.Retention.History,
		Interval: cfg.Retention.Interval,
	}, m.VerdictsPruned)
	slog.Info("Retention worker started", "history", cfg.Retention.History)

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

	// Hijacked websockets are not tracked by Shutdown.
	sm.CloseAll("server shutting down")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-retentionDone

	slog.Info("Server stopped successfully")
}

// newFeedbackService builds the configured feedback backend. Failures fall
// back to feedback.Unavailable so the trainer keeps running with fallback
// verdicts. checker is nil when no backend is configured.
func newFeedbackService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (feedback.Service, feedback.Checker, func()) {
	noop := func() {}

	switch cfg.Feedback.Backend {
	case config.BackendGemini:
		client, err := feedback.NewGeminiClient(ctx, cfg.Feedback.GeminiAPIKey, cfg.Feedback.GeminiModel, logger)
		if err != nil {
			slog.Warn("Failed to initialize Gemini client, AI feedback disabled", "error", err)
			return feedback.Unavailable{}, feedback.Unavailable{}, noop
		}
		return client, client, noop

	case config.BackendGRPC:
		slog.Info("Attempting to connect to feedback agent via gRPC", "address", cfg.Feedback.AgentAddr)
		grpcCfg := feedback.DefaultGrpcClientConfig()
		grpcCfg.Address = cfg.Feedback.AgentAddr
		client, err := feedback.NewGrpcClient(grpcCfg, logger)
		if err != nil {
			slog.Warn("Failed to connect to feedback agent, AI feedback disabled", "error", err)
			return feedback.Unavailable{}, feedback.Unavailable{}, noop
		}
		return client, client, client.Close

	default:
		slog.Info("AI feedback disabled (no GEMINI_API_KEY or AGENT_ADDR configured)")
		return feedback.Unavailable{}, nil, noop
	}
}
