package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadfunnel_backend/internal/transfer"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type processorFunc func(ctx context.Context, payload []byte) error

func (f processorFunc) ProcessInbound(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

func TestHandleInboundRetryPolicy(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantErr  bool
		wantSkip bool
	}{
		{name: "ok"},
		{name: "validation", err: apperr.Validation("invalid inbound event"), wantErr: true, wantSkip: true},
		{name: "transient", err: apperr.Transient("store unavailable", errors.New("dial tcp")), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := processorFunc(func(context.Context, []byte) error { return tc.err })
			err := handleInbound(context.Background(), p, NewConversationInboundTask([]byte(`{}`)))
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := errors.Is(err, asynq.SkipRetry); got != tc.wantSkip {
				t.Fatalf("skip retry = %v, want %v (err %v)", got, tc.wantSkip, err)
			}
		})
	}
}

func TestHandleInboundPassesPayload(t *testing.T) {
	var got string
	p := processorFunc(func(_ context.Context, payload []byte) error {
		got = string(payload)
		return nil
	})
	if err := handleInbound(context.Background(), p, NewConversationInboundTask([]byte(`{"id":"m1"}`))); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got != `{"id":"m1"}` {
		t.Fatalf("unexpected payload %q", got)
	}
}

type resumerFunc func(ctx context.Context, id uuid.UUID) (transfer.Transfer, error)

func (f resumerFunc) Resume(ctx context.Context, id uuid.UUID) (transfer.Transfer, error) {
	return f(ctx, id)
}

func resumeTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	task, err := NewTransferResumeTask(TransferResumePayload{TransferID: id})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestHandleTransferResume(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	log := logger.Discard()

	done := resumerFunc(func(_ context.Context, got uuid.UUID) (transfer.Transfer, error) {
		if got != id {
			t.Fatalf("unexpected id %s", got)
		}
		return transfer.Transfer{ID: got, Status: transfer.StatusCompleted}, nil
	})
	if err := handleTransferResume(ctx, done, log, resumeTask(t, id.String())); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if err := handleTransferResume(ctx, done, log, resumeTask(t, "nope")); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry for bad id, got %v", err)
	}

	missing := resumerFunc(func(context.Context, uuid.UUID) (transfer.Transfer, error) {
		return transfer.Transfer{}, transfer.ErrNotFound
	})
	if err := handleTransferResume(ctx, missing, log, resumeTask(t, id.String())); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry for unknown transfer, got %v", err)
	}

	flaky := resumerFunc(func(context.Context, uuid.UUID) (transfer.Transfer, error) {
		return transfer.Transfer{Status: transfer.StatusContactCreated}, apperr.Transient("transfer migrate failed", errors.New("timeout"))
	})
	err := handleTransferResume(ctx, flaky, log, resumeTask(t, id.String()))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}

	exhausted := resumerFunc(func(context.Context, uuid.UUID) (transfer.Transfer, error) {
		return transfer.Transfer{Status: transfer.StatusFailed, Attempts: 3}, apperr.Transient("transfer create failed", errors.New("500"))
	})
	if err := handleTransferResume(ctx, exhausted, log, resumeTask(t, id.String())); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry once failed, got %v", err)
	}
}

type recordingQueue struct {
	ids []string
}

func (q *recordingQueue) EnqueueTransferResume(_ context.Context, transferID string, _ time.Duration) error {
	q.ids = append(q.ids, transferID)
	return nil
}

type staticTransfers []transfer.Transfer

func (s staticTransfers) ListUnfinished(context.Context, int) ([]transfer.Transfer, error) {
	return s, nil
}

func TestTransferSweeperSkipsRecentTransfers(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	stale := transfer.Transfer{ID: uuid.New(), Status: transfer.StatusContactCreated, UpdatedAt: now.Add(-10 * time.Minute)}
	fresh := transfer.Transfer{ID: uuid.New(), Status: transfer.StatusPending, UpdatedAt: now.Add(-time.Minute)}

	q := &recordingQueue{}
	s := NewTransferSweeper(staticTransfers{stale, fresh}, q, logger.Discard(), time.Minute, 5*time.Minute)
	s.now = func() time.Time { return now }

	if n := s.sweep(context.Background()); n != 1 {
		t.Fatalf("expected one queued resume, got %d", n)
	}
	if len(q.ids) != 1 || q.ids[0] != stale.ID.String() {
		t.Fatalf("unexpected queued ids %v", q.ids)
	}
}

type recordingPurger struct {
	cutoff time.Time
}

func (p *recordingPurger) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return 3, nil
}

func TestEventCleanupUsesRetention(t *testing.T) {
	p := &recordingPurger{}
	c := NewEventCleanup(p, logger.Discard(), time.Hour, 24*time.Hour)

	before := time.Now().Add(-24 * time.Hour)
	c.cleanup(context.Background())
	after := time.Now().Add(-24 * time.Hour)

	if p.cutoff.Before(before) || p.cutoff.After(after) {
		t.Fatalf("cutoff %v outside [%v, %v]", p.cutoff, before, after)
	}
}
