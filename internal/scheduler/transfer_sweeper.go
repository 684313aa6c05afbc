package scheduler

import (
	"context"
	"time"

	"leadfunnel_backend/internal/transfer"
	"leadfunnel_backend/platform/logger"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepMinAge   = 5 * time.Minute
	sweepBatchSize       = 50
)

type UnfinishedTransfers interface {
	ListUnfinished(ctx context.Context, limit int) ([]transfer.Transfer, error)
}

type TransferQueue interface {
	EnqueueTransferResume(ctx context.Context, transferID string, delay time.Duration) error
}

// TransferSweeper periodically queues resumes for transfers that stopped
// midway, e.g. because the process handling them exited.
type TransferSweeper struct {
	store    UnfinishedTransfers
	queue    TransferQueue
	log      *logger.Logger
	interval time.Duration
	minAge   time.Duration
	now      func() time.Time
}

func NewTransferSweeper(store UnfinishedTransfers, queue TransferQueue, log *logger.Logger, interval, minAge time.Duration) *TransferSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if minAge <= 0 {
		minAge = defaultSweepMinAge
	}
	return &TransferSweeper{
		store:    store,
		queue:    queue,
		log:      log,
		interval: interval,
		minAge:   minAge,
		now:      time.Now,
	}
}

func (s *TransferSweeper) Run(ctx context.Context) {
	if s == nil || s.store == nil || s.queue == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep queues every unfinished transfer untouched for at least minAge.
// Younger ones may still be advancing inline.
func (s *TransferSweeper) sweep(ctx context.Context) int {
	items, err := s.store.ListUnfinished(ctx, sweepBatchSize)
	if err != nil {
		s.log.Warn("transfer sweep failed", "error", err)
		return 0
	}

	cutoff := s.now().Add(-s.minAge)
	queued := 0
	for _, t := range items {
		if t.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.queue.EnqueueTransferResume(ctx, t.ID.String(), 0); err != nil {
			s.log.Warn("transfer resume not queued", "transfer_id", t.ID, "error", err)
			continue
		}
		queued++
	}
	if queued > 0 {
		s.log.Info("transfer sweep queued resumes", "queued", queued)
	}
	return queued
}
