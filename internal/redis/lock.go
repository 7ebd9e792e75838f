package redisclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("doctor lock not acquired")
	ErrLockExpired     = errors.New("doctor lock ttl elapsed")
)

// DoctorLocker guards booking critical sections per doctor across processes
// with a token-owned Redis key.
type DoctorLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewDoctorLocker creates a locker whose keys expire after ttl. Acquisition
// retries for up to wait before failing with ErrLockNotAcquired.
func NewDoctorLocker(client *redis.Client, ttl, wait time.Duration) *DoctorLocker {
	return &DoctorLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		poll:   10 * time.Millisecond,
	}
}

func lockKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("lock:doctor:%s", doctorID.String())
}

// WithDoctorLock runs fn holding the doctor's lock. fn receives a context that
// ends with cause ErrLockExpired when the lock TTL runs out. ctx cancellation
// while waiting returns ctx.Err().
func (l *DoctorLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	key := lockKey(doctorID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release even when the caller has gone away
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeoutCause(ctx, l.ttl, ErrLockExpired)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *DoctorLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("acquire doctor lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}

		jitter := time.Duration(rand.Int64N(int64(l.poll)))
		timer := time.NewTimer(l.poll + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
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

func (l *DoctorLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release doctor lock: %w", err)
	}
	return nil
}
