package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"leadfunnel_backend/platform/apperr"
)

var ErrLockTimeout = errors.New("contact lock wait exceeded")

// Locker serializes pipelines per contact.
type Locker interface {
	// Acquire blocks until the key is free, the wait expires or ctx ends.
	Acquire(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process keyed mutex for single-instance deployments.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	wait    time.Duration
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{entries: make(map[string]*lockEntry), wait: wait}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.drop(key, e)
			})
		}, nil
	case <-timer.C:
		l.drop(key, e)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) drop(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renewScript extends the lease only while it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

const minRenewInterval = 10 * time.Millisecond

// RedisLocker is a lease lock shared by every API and worker instance.
// The lease is extended every ttl/3 while held, so a pipeline that outlives
// the TTL keeps its lock.
type RedisLocker struct {
	rdb  *redis.Client
	ttl  time.Duration
	wait time.Duration
	poll time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl, wait: wait, poll: 100 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := "funnel:lock:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, apperr.Transient("acquire contact lock", err)
		}
		if ok {
			stop := make(chan struct{})
			go l.renew(redisKey, token, stop)

			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					_ = releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{redisKey}, token).Err()
				})
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

// renew keeps the lease alive until stop closes or another holder owns the key.
func (l *RedisLocker) renew(key, token string, stop <-chan struct{}) {
	interval := l.ttl / 3
	if interval < minRenewInterval {
		interval = minRenewInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := renewScript.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}

var (
	_ Locker = (*LocalLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)
