package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
)

func newTestLocker(t *testing.T, ttl, wait time.Duration) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewResourceLocker(client, ttl, wait), mr
}

func TestWithResourceLocksReleasesAfterRun(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 100*time.Millisecond)

	err := locker.WithResourceLocks(context.Background(), []string{"appointment:patient:1", "appointment:chair:7"}, func(ctx context.Context) error {
		assert.True(t, mr.Exists("lock:appointment:patient:1"))
		assert.True(t, mr.Exists("lock:appointment:chair:7"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:appointment:patient:1"))
	assert.False(t, mr.Exists("lock:appointment:chair:7"))
}

func TestWithResourceLocksPropagatesFnError(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 100*time.Millisecond)
	boom := errors.New("slot conflict")

	err := locker.WithResourceLocks(context.Background(), []string{"k"}, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:k"))
}

func TestWithResourceLocksTimesOutAsOperationFailed(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 60*time.Millisecond)
	require.NoError(t, mr.Set("lock:busy", "someone-else"))

	called := false
	err := locker.WithResourceLocks(context.Background(), []string{"busy"}, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.ErrorIs(t, err, apperr.ErrOperationFailed)
	assert.False(t, called)

	v, err := mr.Get("lock:busy")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestWithResourceLocksWaitsForRelease(t *testing.T) {
	locker, _ := newTestLocker(t, time.Second, 2*time.Second)

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithResourceLocks(context.Background(), []string{"appointment:patient:1"}, func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxInside.Load())
}

func TestWithResourceLocksRedisDown(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 50*time.Millisecond)
	mr.Close()

	called := false
	err := locker.WithResourceLocks(context.Background(), []string{"k1", "k2"}, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestWithResourceLocksRedisDownPassesFnError(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 50*time.Millisecond)
	mr.Close()

	boom := errors.New("boom")
	err := locker.WithResourceLocks(context.Background(), []string{"k"}, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}
