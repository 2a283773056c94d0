// Package cache provides an in-memory, fixed-capacity cache with per-entry
// expiration, least-recently-used eviction and diagnostics.
package cache

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	ErrInvalidCapacity    = errors.New("cache: invalid capacity")
	ErrInvalidSetArgument = errors.New("cache: invalid set argument")
)

// Manager is a fixed-capacity in-memory cache with per-entry expiration and
// least-recently-used eviction. It is safe for concurrent use by multiple
// goroutines.
type Manager[T any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*entry[T]
	// recency holds exactly the keys of entries.
	recency map[string]uint64
	tick    uint64

	clock   clock.Clock
	onEvict func(key string)
}

type entry[T any] struct {
	data           T
	createdAt      time.Time
	budget         time.Duration
	accessCount    int
	lastAccessedAt time.Time
}

func (e *entry[T]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.budget
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	clock   clock.Clock
	onEvict func(key string)
}

// WithClock sets the time source. Tests pass clock.NewMock().
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithEvictionHook registers fn to be called with every key evicted for
// capacity. fn runs after the cache lock is released.
func WithEvictionHook(fn func(key string)) Option {
	return func(o *options) { o.onEvict = fn }
}

// New returns an empty Manager holding at most capacity entries.
func New[T any](capacity int, opts ...Option) (*Manager[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	return &Manager[T]{
		capacity: capacity,
		entries:  make(map[string]*entry[T], capacity),
		recency:  make(map[string]uint64, capacity),
		clock:    o.clock,
		onEvict:  o.onEvict,
	}, nil
}

// Capacity returns the maximum number of entries.
func (m *Manager[T]) Capacity() int { return m.capacity }

// Set stores data under key, replacing any previous entry. When key is new
// and the cache is full, the least recently used entry is evicted first.
// Expired entries that have not been purged still count toward capacity.
func (m *Manager[T]) Set(key string, data T, exp Expiration) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidSetArgument)
	}
	budget := exp.Duration()
	if budget <= 0 {
		return fmt.Errorf("%w: expiration %s for key %q", ErrInvalidSetArgument, exp, key)
	}

	m.mu.Lock()
	var evicted string
	var didEvict bool
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.capacity {
		evicted, didEvict = m.evictLeastRecentlyUsedLocked()
	}
	now := m.clock.Now()
	m.entries[key] = &entry[T]{
		data:           data,
		createdAt:      now,
		budget:         budget,
		accessCount:    1,
		lastAccessedAt: now,
	}
	m.touchLocked(key)
	m.mu.Unlock()

	if didEvict && m.onEvict != nil {
		m.onEvict(evicted)
	}
	return nil
}

// Get returns the value for key if it is present and not expired. A hit
// counts as an access and makes key the most recently used. An expired entry
// is removed.
func (m *Manager[T]) Get(key string) (T, bool) {
	var zero T
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return zero, false
	}
	now := m.clock.Now()
	if e.expired(now) {
		m.removeLocked(key)
		return zero, false
	}
	e.accessCount++
	e.lastAccessedAt = now
	m.touchLocked(key)
	return e.data, true
}

// Has reports whether key is present and not expired. It does not count as
// an access and leaves eviction order untouched.
func (m *Manager[T]) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && !e.expired(m.clock.Now())
}

// Delete removes key and reports whether it was stored.
func (m *Manager[T]) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return false
	}
	m.removeLocked(key)
	return true
}

// Clear removes every entry and restarts the recency counter.
func (m *Manager[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry[T], m.capacity)
	m.recency = make(map[string]uint64, m.capacity)
	m.tick = 0
}

// PurgeExpired removes all expired entries and returns how many were removed.
func (m *Manager[T]) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	removed := 0
	for key, e := range m.entries {
		if e.expired(now) {
			m.removeLocked(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager[T]) removeLocked(key string) {
	delete(m.entries, key)
	delete(m.recency, key)
}
