package scheduler

import (
	"context"
	"time"

	"leadfunnel_backend/platform/logger"
)

const (
	defaultEventCleanupInterval = time.Hour
	defaultEventRetention       = 7 * 24 * time.Hour
)

// ProcessedEvents is the dedupe table kept when no Redis is configured.
type ProcessedEvents interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventCleanup periodically removes old processed-event ids.
type EventCleanup struct {
	events    ProcessedEvents
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
}

func NewEventCleanup(events ProcessedEvents, log *logger.Logger, interval, retention time.Duration) *EventCleanup {
	if interval <= 0 {
		interval = defaultEventCleanupInterval
	}
	if retention <= 0 {
		retention = defaultEventRetention
	}

	return &EventCleanup{
		events:    events,
		log:       log,
		interval:  interval,
		retention: retention,
	}
}

func (c *EventCleanup) Run(ctx context.Context) {
	if c == nil || c.events == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *EventCleanup) cleanup(ctx context.Context) {
	deleted, err := c.events.DeleteOlderThan(ctx, time.Now().Add(-c.retention))
	if err != nil {
		c.log.Warn("processed event cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("processed event cleanup deleted ids", "deleted", deleted)
	}
}
