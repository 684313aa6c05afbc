package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"leadfunnel_backend/internal/admin"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnel"
	apphttp "leadfunnel_backend/internal/http"
	"leadfunnel_backend/internal/http/router"
	"leadfunnel_backend/internal/notification"
	"leadfunnel_backend/internal/orchestrator"
	"leadfunnel_backend/internal/scheduler"
	"leadfunnel_backend/internal/webhook"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/db"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/tracing"
	"leadfunnel_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const inlinePipelineTimeout = 3 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "pipeline_mode", cfg.PipelineMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		panic("failed to initialize tracing: " + err.Error())
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if cfg.GetMigrationsEnabled() {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, pool)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	f, err := funnel.Build(ctx, cfg, pool, eventBus, val, log)
	if err != nil {
		log.Error("failed to initialize pipeline", "error", err)
		panic("failed to initialize pipeline: " + err.Error())
	}
	defer func() { _ = f.Close() }()

	notificationModule := notification.New(f.CRM, log)
	notificationModule.RegisterHandlers(eventBus)

	var (
		dispatcher orchestrator.Dispatcher
		inline     *orchestrator.InlineDispatcher
	)
	switch cfg.GetPipelineMode() {
	case config.PipelineModeQueue:
		queue, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize task queue client", "error", err)
			panic("failed to initialize task queue client: " + err.Error())
		}
		defer func() { _ = queue.Close() }()
		dispatcher = orchestrator.NewQueueDispatcher(queue)
		notificationModule.SetTransferQueue(queue)
	default:
		inline = orchestrator.NewInlineDispatcher(f.Orchestrator, inlinePipelineTimeout, log)
		dispatcher = inline
		notificationModule.SetTransferResumer(f.Coordinator)
	}

	webhookModule := webhook.NewModule(f.Campuses, dispatcher, f.Orchestrator, val, log)
	adminModule := admin.NewModule(admin.Deps{
		Objections:    f.Objections,
		Advisors:      f.Advisors,
		Leads:         f.Leads,
		Conversations: f.Conversations,
		Transfers:     f.Coordinator,
		Validator:     val,
		Log:           log,
	})

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   []apphttp.HealthChecker{db.NewPoolAdapter(pool), f},
		EventBus: eventBus,
		Modules: []apphttp.Module{
			webhookModule,
			adminModule,
		},
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if f.ProcessedEvents != nil {
		retention := time.Duration(getPositiveIntEnv("PROCESSED_EVENT_RETENTION_DAYS", 7)) * 24 * time.Hour
		cleanup := scheduler.NewEventCleanup(f.ProcessedEvents, log, getDurationEnv("PROCESSED_EVENT_CLEANUP_INTERVAL", time.Hour), retention)
		g.Go(func() error {
			cleanup.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		if inline != nil {
			inline.Wait()
		}
		eventBus.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
	log.Info("server stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

func getPositiveIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
