package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	l := NewKeyedLock()
	ctx := context.Background()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "x1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := active.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Empty(t, l.entries)
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	l := NewKeyedLock()
	ctx := context.Background()

	r1, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer r1()

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	r2, err := l.Lock(tctx, "b")
	require.NoError(t, err)
	r2()
}

func TestKeyedLockContextCanceled(t *testing.T) {
	l := NewKeyedLock()
	release, err := l.Lock(context.Background(), "x1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "x1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op
	assert.Empty(t, l.entries)

	again, err := l.Lock(context.Background(), "x1")
	require.NoError(t, err)
	again()
}
