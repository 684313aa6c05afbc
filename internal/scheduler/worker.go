package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"leadfunnel_backend/internal/transfer"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// InboundProcessor runs the pipeline for one queued event.
type InboundProcessor interface {
	ProcessInbound(ctx context.Context, payload []byte) error
}

// TransferResumer continues a stored transfer.
type TransferResumer interface {
	Resume(ctx context.Context, id uuid.UUID) (transfer.Transfer, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	inbound   InboundProcessor
	transfers TransferResumer
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		log:    log,
	}
	w.mux.HandleFunc(TaskConversationInbound, w.handleInbound)
	w.mux.HandleFunc(TaskTransferResume, w.handleTransferResume)
	return w, nil
}

func (w *Worker) SetInboundProcessor(p InboundProcessor) {
	w.inbound = p
}

func (w *Worker) SetTransferResumer(r TransferResumer) {
	w.transfers = r
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleInbound(ctx context.Context, task *asynq.Task) error {
	return handleInbound(ctx, w.inbound, task)
}

func (w *Worker) handleTransferResume(ctx context.Context, task *asynq.Task) error {
	return handleTransferResume(ctx, w.transfers, w.log, task)
}

// handleInbound skips retries for payloads that can never succeed.
func handleInbound(ctx context.Context, p InboundProcessor, task *asynq.Task) error {
	if p == nil {
		return fmt.Errorf("inbound processor not configured: %w", asynq.SkipRetry)
	}
	err := p.ProcessInbound(ctx, task.Payload())
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if apperr.Is(err, apperr.KindValidation) || errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// handleTransferResume lets asynq retry transient failures until the
// coordinator gives up and marks the transfer failed.
func handleTransferResume(ctx context.Context, r TransferResumer, log *logger.Logger, task *asynq.Task) error {
	if r == nil {
		return fmt.Errorf("transfer resumer not configured: %w", asynq.SkipRetry)
	}
	payload, err := ParseTransferResumePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(payload.TransferID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	t, err := r.Resume(ctx, id)
	switch {
	case errors.Is(err, transfer.ErrNotFound):
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil && t.Status == transfer.StatusFailed:
		log.Warn("transfer gave up", "transfer_id", id, "attempts", t.Attempts, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil:
		return err
	}
	log.Info("transfer resumed", "transfer_id", id, "status", t.Status)
	return nil
}
