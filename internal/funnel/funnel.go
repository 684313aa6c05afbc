// Package funnel builds the message pipeline and its stores from
// configuration. Both the API and the worker process assemble the same
// pipeline through Build so their behavior cannot drift apart.
package funnel

import (
	"context"
	"errors"
	"fmt"

	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/campus"
	"leadfunnel_backend/internal/contentgate"
	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/generation"
	"leadfunnel_backend/internal/leadstate"
	"leadfunnel_backend/internal/objection"
	"leadfunnel_backend/internal/orchestrator"
	"leadfunnel_backend/internal/safetynet"
	"leadfunnel_backend/internal/scheduler"
	"leadfunnel_backend/internal/transfer"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Config is everything the pipeline reads from configuration.
type Config interface {
	config.CRMConfig
	config.GenerationConfig
	config.PipelineConfig
	config.CampusConfig
	config.SchedulerConfig
}

// Funnel holds the assembled pipeline and the stores behind it.
type Funnel struct {
	Campuses      *campus.Registry
	CRM           *crm.Client
	Conversations *conversation.Repository
	Leads         *leadstate.Repository
	Advisors      *booking.Repository
	Objections    *objection.Cache
	Transfers     *transfer.Repository
	Coordinator   *transfer.Coordinator
	Orchestrator  *orchestrator.Orchestrator
	// ProcessedEvents is set when dedupe falls back to Postgres and needs
	// periodic cleanup.
	ProcessedEvents *orchestrator.PostgresDeduper

	redis *redis.Client
}

// Build wires the pipeline. Locks and dedupe use Redis when REDIS_URL is
// set and fall back to in-process locks with Postgres dedupe otherwise.
func Build(ctx context.Context, cfg Config, pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) (*Funnel, error) {
	if !cfg.IsGenerationEnabled() {
		return nil, errors.New("generation is not configured: set GOOGLE_API_KEY or OPENAI_API_KEY for the selected LLM_PROVIDER")
	}

	registry, err := campus.Load(cfg.GetCampusConfigPath())
	if err != nil {
		return nil, err
	}

	f := &Funnel{
		Campuses:      registry,
		CRM:           crm.NewClient(cfg, registry, log),
		Conversations: conversation.NewRepository(pool),
		Leads:         leadstate.NewRepository(pool),
		Advisors:      booking.NewRepository(pool),
		Transfers:     transfer.NewRepository(pool),
	}

	f.Objections = objection.NewCache(objection.NewRepository(pool), log)
	if _, err := f.Objections.Refresh(ctx); err != nil {
		log.Warn("objection playbook unavailable at startup, continuing with an empty snapshot", "error", err)
	}

	llm, err := generation.NewModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create generation model: %w", err)
	}
	agent, err := generation.NewAgent(llm, registry, f.Objections, cfg.GetGenerationTimeout(), log)
	if err != nil {
		return nil, err
	}

	locker, deduper, err := f.coordination(cfg, pool)
	if err != nil {
		return nil, err
	}

	markers := cfg.GetBookingURLMarkers()
	allowed := append(registry.Hosts(), markers...)

	f.Coordinator = transfer.NewCoordinator(f.Transfers, f.CRM, f.Conversations, registry, bus, log)
	f.Orchestrator = orchestrator.New(orchestrator.Deps{
		Conversations: f.Conversations,
		Leads:         f.Leads,
		Guard:         safetynet.NewGuard(cfg.GetHandoffCooldown(), registry.Names(), markers),
		Generator:     agent,
		Booking:       booking.NewResolver(f.Advisors, f.CRM, registry, cfg.GetDefaultBookingLink(), markers, log),
		Gate:          contentgate.New(allowed, log),
		Transfers:     f.Coordinator,
		CRM:           f.CRM,
		Campuses:      registry,
		Bus:           bus,
		Locker:        locker,
		Deduper:       deduper,
		Validator:     val,
		Log:           log,
	}, orchestrator.Options{
		HistoryLimit:    cfg.GetHistoryLimit(),
		FastReplyWindow: cfg.GetFastReplyWindow(),
	})

	return f, nil
}

func (f *Funnel) coordination(cfg Config, pool *pgxpool.Pool) (orchestrator.Locker, orchestrator.Deduper, error) {
	if cfg.GetRedisURL() == "" {
		pg := orchestrator.NewPostgresDeduper(pool)
		f.ProcessedEvents = pg
		return orchestrator.NewLocalLocker(cfg.GetLockWait()), pg, nil
	}

	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create redis client: %w", err)
	}
	f.redis = rdb
	return orchestrator.NewRedisLocker(rdb, cfg.GetLockTTL(), cfg.GetLockWait()),
		orchestrator.NewRedisDeduper(rdb, cfg.GetDedupeTTL()), nil
}

// Ping checks Redis when it backs locks and dedupe.
func (f *Funnel) Ping(ctx context.Context) error {
	if f.redis == nil {
		return nil
	}
	return f.redis.Ping(ctx).Err()
}

func (f *Funnel) Close() error {
	if f.redis == nil {
		return nil
	}
	return f.redis.Close()
}
