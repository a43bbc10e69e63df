// ABOUTME: Thread-safe TTL marker set for operations that must not run twice concurrently
// ABOUTME: Used by the history manager to hold one in-flight deletion per conversation id

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL bounds how long a marker survives if its holder never releases it.
const DefaultTTL = 2 * time.Minute

type marker struct {
	acquired time.Time
	token    uint64
	element  *list.Element
}

// Markers is a size-limited set of keys that expire after a TTL. A key is held
// from Acquire until Release or until the TTL lapses, whichever comes first.
// Insertion order is kept in a linked list so the oldest marker is evicted in O(1).
type Markers struct {
	mu      sync.Mutex
	held    map[string]*marker
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
	seq     uint64 // last token handed out
}

// New creates a marker set. A background goroutine sweeps expired markers.
func New(ttl time.Duration, maxSize int) *Markers {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = 1024
	}
	m := &Markers{
		held:    make(map[string]*marker),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Held reports whether key currently has an unexpired marker.
func (m *Markers) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heldLocked(key)
}

// Acquire marks key if it is not already held and reports whether this call
// acquired it, along with the token to pass to Release. Check and mark happen
// under one lock, so concurrent callers cannot both win.
func (m *Markers) Acquire(key string) (token uint64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.heldLocked(key) {
		return 0, false
	}
	return m.markLocked(key), true
}

// Release drops the marker for key if it still carries token. A marker that
// expired and was re-acquired by another holder is left alone.
func (m *Markers) Release(key string, token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.held[key]; ok && entry.token == token {
		m.order.Remove(entry.element)
		delete(m.held, key)
	}
}

// Len returns the number of markers, expired or not, still in the set.
func (m *Markers) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

func (m *Markers) heldLocked(key string) bool {
	entry, ok := m.held[key]
	if !ok {
		return false
	}
	return m.now().Sub(entry.acquired) < m.ttl
}

// markLocked records key as acquired now and returns its new token. Must be
// called with mu held.
func (m *Markers) markLocked(key string) uint64 {
	now := m.now()
	m.seq++

	if entry, exists := m.held[key]; exists {
		entry.acquired = now
		entry.token = m.seq
		m.order.MoveToBack(entry.element)
		return m.seq
	}

	if len(m.held) >= m.maxSize {
		m.evictOldest()
	}

	m.held[key] = &marker{
		acquired: now,
		token:    m.seq,
		element:  m.order.PushBack(key),
	}
	return m.seq
}

// evictOldest removes the front of the order list. Must be called with mu held.
func (m *Markers) evictOldest() {
	front := m.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	m.order.Remove(front)
	delete(m.held, key)
}

func (m *Markers) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

// sweep removes every expired marker.
func (m *Markers) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.held {
		if now.Sub(entry.acquired) >= m.ttl {
			m.order.Remove(entry.element)
			delete(m.held, key)
		}
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (m *Markers) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		close(m.done)
		m.closed = true
	}
}
