package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquire_DrainsCapacity(t *testing.T) {
	l := New(2, 0)
	assert.True(t, l.TryAcquire())
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
}

func TestTryAcquire_RefillsOverTime(t *testing.T) {
	l := New(1, 100) // 100 tokens/sec refill
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.TryAcquire())
}

func TestAcquire_TimesOut(t *testing.T) {
	l := New(1, 0)
	assert.True(t, l.TryAcquire())
	start := time.Now()
	ok := l.Acquire(150 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestAcquire_SucceedsBeforeTimeout(t *testing.T) {
	l := New(1, 50) // refills in ~20ms
	assert.True(t, l.TryAcquire())
	ok := l.Acquire(500 * time.Millisecond)
	assert.True(t, ok)
}

func TestNoOvershoot_ConcurrentCallers(t *testing.T) {
	capacity := 5.0
	l := New(capacity, 0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, admitted, int(capacity))
}
