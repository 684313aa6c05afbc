package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLocalLockerSerializesPerKey(t *testing.T) {
	l := NewLocalLocker(time.Second)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "c1")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxSeen)
	}
	if len(l.entries) != 0 {
		t.Fatalf("expected lock entries to be dropped, got %d", len(l.entries))
	}
}

func TestLocalLockerTimesOut(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "c1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	if _, err := l.Acquire(ctx, "c1"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	other, err := l.Acquire(ctx, "c2")
	if err != nil {
		t.Fatalf("other keys must not block: %v", err)
	}
	other()
}

func TestRedisLockerExcludesAndReleases(t *testing.T) {
	_, rdb := newRedis(t)
	l := NewRedisLocker(rdb, time.Minute, 50*time.Millisecond)
	l.poll = 5 * time.Millisecond
	ctx := context.Background()

	release, err := l.Acquire(ctx, "c1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "c1"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout while held, got %v", err)
	}

	release()
	again, err := l.Acquire(ctx, "c1")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}

func TestRedisLockerReleaseKeepsForeignLease(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewRedisLocker(rdb, time.Second, 50*time.Millisecond)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "c1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	current, err := l.Acquire(ctx, "c1")
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	defer current()

	stale()
	if !mr.Exists("funnel:lock:c1") {
		t.Fatal("stale release removed the current holder's lease")
	}
}

func TestRedisLockerRenewsLeaseWhileHeld(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewRedisLocker(rdb, 300*time.Millisecond, 50*time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "c1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.FastForward(250 * time.Millisecond)
	time.Sleep(250 * time.Millisecond)

	if ttl := mr.TTL("funnel:lock:c1"); ttl <= 100*time.Millisecond {
		t.Fatalf("expected the lease to be extended while held, ttl=%v", ttl)
	}

	release()
	if mr.Exists("funnel:lock:c1") {
		t.Fatal("release left the lease behind")
	}
}
