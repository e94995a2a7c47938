package calendar

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyLockerSerializesOneProperty(t *testing.T) {
	locker := NewPropertyLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "villa")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Zero(t, locker.Held("villa"), "released locks are forgotten")
}

func TestPropertyLockerIndependentProperties(t *testing.T) {
	locker := NewPropertyLocker()
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "villa")
	require.NoError(t, err)
	defer unlockA()

	timeout, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := locker.Lock(timeout, "cabin")
	require.NoError(t, err, "another property does not contend")
	unlockB()
}

func TestPropertyLockerHonoursContext(t *testing.T) {
	locker := NewPropertyLocker()

	unlock, err := locker.Lock(context.Background(), "villa")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "villa")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, locker.Held("villa"))

	unlock()
	unlock()
	assert.Zero(t, locker.Held("villa"), "unlocking twice is harmless")
}
