package redisclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
)

var (
	ErrLockNotAcquired = errors.New("resource lock not acquired")

	errRedisUnavailable = errors.New("redis unavailable")
)

const retryInterval = 25 * time.Millisecond

// Locker serializes writers of a shared resource (a patient, dentist or chair
// calendar) across server instances.
type Locker interface {
	WithResourceLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

type redisResourceLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger zerolog.Logger
}

type LockerOption func(*redisResourceLocker)

func WithLockLogger(logger zerolog.Logger) LockerOption {
	return func(l *redisResourceLocker) {
		l.logger = logger.With().Str("component", "resource_locker").Logger()
	}
}

// NewResourceLocker creates a locker that uses one Redis key per resource.
// A busy key is retried for up to wait before giving up.
func NewResourceLocker(client *redis.Client, ttl, wait time.Duration, opts ...LockerOption) Locker {
	l := &redisResourceLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithResourceLocks takes every key, runs fn, then releases them. Keys are
// taken in sorted order. fn's context expires with the lock TTL.
//
// When Redis cannot be reached fn still runs, unlocked here; callers keep
// their own database locks. A key held by another writer is not bypassed.
func (l *redisResourceLocker) WithResourceLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	token := uuid.NewString()
	var held []string
	defer func() {
		for _, key := range held {
			_ = l.release(context.WithoutCancel(ctx), key, token)
		}
	}()

	for _, k := range sorted {
		key := "lock:" + k
		err := l.acquire(ctx, key, token)
		if errors.Is(err, errRedisUnavailable) {
			l.logger.Warn().Err(err).Str("key", key).Msg("redis lock unavailable, relying on database locks")
			break
		}
		if err != nil {
			return err
		}
		held = append(held, key)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisResourceLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return apperr.OperationFailed("acquire resource lock", ctx.Err())
			}
			return fmt.Errorf("%w: %w", errRedisUnavailable, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return apperr.OperationFailed(fmt.Sprintf("acquire %s", key), ErrLockNotAcquired)
		}

		select {
		case <-ctx.Done():
			return apperr.OperationFailed("acquire resource lock", ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisResourceLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release resource lock: %w", err)
	}
	return nil
}
