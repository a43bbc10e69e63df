// ABOUTME: Tests for the in-flight marker set
// ABOUTME: Validates acquire/release, TTL expiry, eviction order, sweeping and concurrency

package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestMarkers(t *testing.T, ttl time.Duration, size int) (*Markers, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := New(ttl, size)
	m.now = clock.Now
	t.Cleanup(m.Close)
	return m, clock
}

// acquired reports only whether Acquire won, for tests that never release.
func acquired(m *Markers, key string) bool {
	_, ok := m.Acquire(key)
	return ok
}

func TestMarkers_AcquireRelease(t *testing.T) {
	m, _ := newTestMarkers(t, time.Minute, 10)

	assert.False(t, m.Held("c1"))
	token, ok := m.Acquire("c1")
	assert.True(t, ok)
	assert.True(t, m.Held("c1"))
	assert.False(t, acquired(m, "c1"), "second acquire while held must fail")

	m.Release("c1", token)
	assert.False(t, m.Held("c1"))
	assert.True(t, acquired(m, "c1"), "acquire after release succeeds")

	// Unknown keys release cleanly
	m.Release("never", 42)
}

func TestMarkers_Expiry(t *testing.T) {
	m, clock := newTestMarkers(t, time.Minute, 10)

	assert.True(t, acquired(m, "c1"))
	clock.Advance(59 * time.Second)
	assert.True(t, m.Held("c1"))

	clock.Advance(time.Second)
	assert.False(t, m.Held("c1"))
	assert.True(t, acquired(m, "c1"), "expired marker can be re-acquired")
}

func TestMarkers_StaleReleaseKeepsNewHolder(t *testing.T) {
	m, clock := newTestMarkers(t, time.Minute, 10)

	first, ok := m.Acquire("c1")
	assert.True(t, ok)
	clock.Advance(time.Minute)

	second, ok := m.Acquire("c1")
	assert.True(t, ok, "expired marker is taken over")
	assert.NotEqual(t, first, second)

	m.Release("c1", first)
	assert.True(t, m.Held("c1"), "the expired holder must not release the new marker")

	m.Release("c1", second)
	assert.False(t, m.Held("c1"))
}

func TestMarkers_EvictionOrder(t *testing.T) {
	m, clock := newTestMarkers(t, time.Hour, 3)

	for _, k := range []string{"first", "second", "third"} {
		assert.True(t, acquired(m, k))
		clock.Advance(time.Millisecond)
	}

	assert.True(t, acquired(m, "fourth"))
	assert.False(t, m.Held("first"), "oldest marker is evicted")
	assert.True(t, m.Held("second"))
	assert.True(t, m.Held("third"))
	assert.True(t, m.Held("fourth"))

	assert.True(t, acquired(m, "fifth"))
	assert.False(t, m.Held("second"))
	assert.Equal(t, 3, m.Len())
}

func TestMarkers_Sweep(t *testing.T) {
	m, clock := newTestMarkers(t, time.Minute, 10)

	m.Acquire("a")
	m.Acquire("b")
	clock.Advance(30 * time.Second)
	m.Acquire("c")
	clock.Advance(45 * time.Second)

	m.sweep()
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Held("c"))
}

func TestMarkers_AcquireIsAtomic(t *testing.T) {
	m, _ := newTestMarkers(t, time.Minute, 100)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			if acquired(m, "contested") {
				winners.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestMarkers_Defaults(t *testing.T) {
	m := New(0, 0)
	defer m.Close()

	assert.Equal(t, DefaultTTL, m.ttl)
	assert.Equal(t, 1024, m.maxSize)
}

func TestMarkers_CloseTwice(t *testing.T) {
	m := New(time.Minute, 10)
	m.Close()
	m.Close()
}
