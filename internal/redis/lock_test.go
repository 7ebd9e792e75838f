package redisclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, wait time.Duration) (*DoctorLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDoctorLocker(client, 5*time.Second, wait), mr
}

func TestDoctorLocker_MutualExclusion(t *testing.T) {
	locker, _ := newTestLocker(t, 5*time.Second)
	doctor := uuid.New()

	var inside, overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithDoctorLock(context.Background(), doctor, func(context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps)
}

func TestDoctorLocker_ReleasesKey(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second)
	doctor := uuid.New()

	err := locker.WithDoctorLock(context.Background(), doctor, func(context.Context) error {
		assert.True(t, mr.Exists(lockKey(doctor)))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(lockKey(doctor)))
}

func TestDoctorLocker_WaitTimeout(t *testing.T) {
	locker, mr := newTestLocker(t, 30*time.Millisecond)
	doctor := uuid.New()

	// held by another process
	require.NoError(t, mr.Set(lockKey(doctor), "someone-else"))

	err := locker.WithDoctorLock(context.Background(), doctor, func(context.Context) error {
		t.Fatal("must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.True(t, mr.Exists(lockKey(doctor)), "foreign lock must not be released")
}

func TestDoctorLocker_CallerCancelled(t *testing.T) {
	locker, mr := newTestLocker(t, 5*time.Second)
	doctor := uuid.New()
	require.NoError(t, mr.Set(lockKey(doctor), "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := locker.WithDoctorLock(ctx, doctor, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
