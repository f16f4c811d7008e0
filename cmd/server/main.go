// For the Record - voice journaling server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/ashureev/for-the-record/internal/agent"
	"github.com/ashureev/for-the-record/internal/api"
	"github.com/ashureev/for-the-record/internal/config"
	"github.com/ashureev/for-the-record/internal/identity"
	"github.com/ashureev/for-the-record/internal/live"
	"github.com/ashureev/for-the-record/internal/metrics"
	"github.com/ashureev/for-the-record/internal/middleware"
	"github.com/ashureev/for-the-record/internal/reminder"
	"github.com/ashureev/for-the-record/internal/speech"
	"github.com/ashureev/for-the-record/internal/store"
	"github.com/ashureev/for-the-record/web"
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
	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "store", cfg.Store, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	pingCtx, cancelPing := context.WithTimeout(ctx, cfg.Timeout.HealthCheck)
	err = repo.Ping(pingCtx)
	cancelPing()
	if err != nil {
		slog.Error("Storage health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Storage connected", "backend", cfg.Store)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Georgia is optional: without a key /api/georgia answers 503 and live sessions fail fast.
	var processor agent.Processor
	client, err := agent.NewOpenAIClient(agent.Config{
		APIKey:    cfg.Agent.APIKey,
		BaseURL:   cfg.Agent.BaseURL,
		Model:     cfg.Agent.Model,
		MaxTokens: cfg.Agent.MaxTokens,
	}, logger)
	switch {
	case errors.Is(err, agent.ErrNotConfigured):
		slog.Info("Georgia disabled (ANTHROPIC_API_KEY not set)")
	case err != nil:
		slog.Error("Failed to initialize Georgia client", "error", err)
		os.Exit(1)
	default:
		processor = client
		slog.Info("Georgia enabled", "model", cfg.Agent.Model)
	}
	georgia := agent.NewServiceWithProcessor(processor, cfg.Timeout.Converse, collector, logger)

	ttsConfig := speech.DefaultGoogleConfig()
	ttsConfig.APIKey = cfg.TTS.APIKey
	if cfg.TTS.Voice != "" && cfg.TTS.Voice != ttsConfig.Voice {
		ttsConfig.Voice, ttsConfig.Gender = cfg.TTS.Voice, ""
	}
	tts := speech.NewGoogleClient(nil, ttsConfig, logger)
	var synth speech.Synthesizer
	if tts.Enabled() {
		synth = tts
		slog.Info("Neural voice enabled", "voice", ttsConfig.Voice)
	} else {
		slog.Info("Neural voice disabled (GOOGLE_TTS_API_KEY not set), using on-device speech")
	}

	// Initialize services.
	sm := live.NewManager(logger)
	metrics.RegisterLiveSessions(registry, sm.Count)

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimit.GeneralPerMinute) / 60),
		GeneralBurst:    cfg.RateLimit.GeneralPerMinute,
		UpstreamRate:    rate.Limit(float64(cfg.RateLimit.UpstreamPerMinute) / 60),
		UpstreamBurst:   cfg.RateLimit.UpstreamPerMinute,
		CleanupInterval: 5 * time.Minute,
	}, logger)
	defer limiter.Stop()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, logger)
	storiesHandler := api.NewStoriesHandler(baseHandler)
	profileHandler := api.NewProfileHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo, api.Features{
		Georgia:   cfg.GeorgiaConfigured(),
		TTS:       cfg.TTSConfigured(),
		Firestore: cfg.FirestoreConfigured(),
	}, cfg.Timeout.HealthCheck, logger)
	georgiaHandler := agent.NewHandler(georgia, conversationLogger, logger)
	ttsHandler := speech.NewHandler(tts, logger)
	wsHandler := live.NewWebSocketHandler(repo, repo, sm, georgia, synth, collector, conversationLogger, live.HandlerConfig{
		AllowedOrigin:   cfg.AllowedOrigins()[0],
		IsDev:           cfg.IsDevelopment(),
		ConverseTimeout: cfg.Timeout.Converse,
		PlaybackTimeout: cfg.Timeout.Playback,
	}, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", metrics.Handler(registry))

	// Identity-scoped routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment(), logger))
		r.Use(limiter.General())

		healthHandler.RegisterRoutes(r)
		storiesHandler.RegisterRoutes(r)
		profileHandler.RegisterRoutes(r)
		r.Get("/ws/session", wsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Upstream())
			georgiaHandler.RegisterRoutes(r)
			ttsHandler.RegisterRoutes(r)
		})
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: live sessions hold the connection open.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	registerHealth(grpcServer, healthServer)

	// Start background workers.
	if cfg.Reminder.Enabled {
		loc, _ := cfg.ReminderLocation()
		reminder.NewWorker(reminder.Config{
			Profiles: repo,
			Notifier: sm,
			Message:  live.ReminderMessage,
			Metrics:  collector,
			Interval: cfg.Reminder.Interval,
			Location: loc,
			Logger:   logger,
		}).Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		watchStorage(gctx, repo, healthServer, storageProbeInterval, cfg.Timeout.HealthCheck)
		return nil
	})
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		slog.Info("gRPC health service listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Wait for shutdown signal or a server failure.
		<-gctx.Done()
		stop()

		slog.Info("Shutting down gracefully...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
		defer cancel()

		if n := sm.CloseAll("server shutting down"); n > 0 {
			slog.Info("Closed live sessions", "count", n)
		}
		grpcServer.GracefulStop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openStore returns the configured repository. SQLite applies migrations on open.
func openStore(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch cfg.Store {
	case config.StoreFirestore:
		fs, err := store.NewFirestore(ctx, cfg.FirebaseProjectID)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		db, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}
