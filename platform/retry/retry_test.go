package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadfunnel_backend/platform/apperr"
)

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, "test", Policy{Attempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return apperr.Transient("flaky", errors.New("timeout"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := apperr.Validation("bad input")
	err := Do(context.Background(), nil, "test", Policy{Attempts: 5, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, nil, "test", Policy{Attempts: 3, BaseDelay: time.Second}, func(context.Context) error {
		return apperr.Transient("down", errors.New("eof"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
