package cache

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Stats summarizes the entries currently held.
// Ages cover valid entries only and are zero when there are none.
type Stats struct {
	Total      int
	Valid      int
	Expired    int
	AverageAge time.Duration
	OldestAge  time.Duration
	NewestAge  time.Duration
}

// Utilization describes how full the cache is.
type Utilization struct {
	Size     int
	Capacity int
	Percent  int
	HasSpace bool
}

// ItemDebug is a point-in-time view of one entry.
type ItemDebug struct {
	Key             string
	Age             time.Duration
	SinceLastAccess time.Duration
	// ExpiresIn is zero once Expired is true.
	ExpiresIn   time.Duration
	Expired     bool
	Budget      time.Duration
	AccessCount int
	Recency     uint64
}

func (d ItemDebug) String() string {
	expires := "expired"
	if !d.Expired {
		expires = "expires in " + d.ExpiresIn.Round(time.Millisecond).String()
	}
	return fmt.Sprintf("%s: age=%s idle=%s %s accesses=%d recency=%d",
		d.Key,
		d.Age.Round(time.Millisecond),
		d.SinceLastAccess.Round(time.Millisecond),
		expires,
		d.AccessCount,
		d.Recency,
	)
}

// Report is a consistent snapshot of the whole cache taken under one lock.
type Report struct {
	Stats       Stats
	Utilization Utilization
	Items       []ItemDebug
	Issues      []string
}

func (r Report) String() string {
	var sb strings.Builder
	sb.WriteString("Cache report\n")
	fmt.Fprintf(&sb, "Entries: %d total, %d valid, %d expired\n", r.Stats.Total, r.Stats.Valid, r.Stats.Expired)
	fmt.Fprintf(&sb, "Utilization: %d/%d (%d%%)\n", r.Utilization.Size, r.Utilization.Capacity, r.Utilization.Percent)
	if r.Stats.Valid > 0 {
		fmt.Fprintf(&sb, "Ages: avg %s, oldest %s, newest %s\n",
			r.Stats.AverageAge.Round(time.Millisecond),
			r.Stats.OldestAge.Round(time.Millisecond),
			r.Stats.NewestAge.Round(time.Millisecond),
		)
	}
	if len(r.Items) > 0 {
		sb.WriteString("\nItems:\n")
		for _, it := range r.Items {
			sb.WriteString("- ")
			sb.WriteString(it.String())
			sb.WriteString("\n")
		}
	}
	if len(r.Issues) > 0 {
		sb.WriteString("\nIntegrity issues:\n")
		for _, is := range r.Issues {
			sb.WriteString("- ")
			sb.WriteString(is)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Stats computes entry counts and ages in a single pass.
func (m *Manager[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked(m.clock.Now())
}

func (m *Manager[T]) statsLocked(now time.Time) Stats {
	st := Stats{Total: len(m.entries)}
	var sum time.Duration
	for _, e := range m.entries {
		if e.expired(now) {
			st.Expired++
			continue
		}
		age := now.Sub(e.createdAt)
		if st.Valid == 0 || age > st.OldestAge {
			st.OldestAge = age
		}
		if st.Valid == 0 || age < st.NewestAge {
			st.NewestAge = age
		}
		sum += age
		st.Valid++
	}
	if st.Valid > 0 {
		st.AverageAge = sum / time.Duration(st.Valid)
	}
	return st
}

// Utilization reports size against capacity.
func (m *Manager[T]) Utilization() Utilization {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.utilizationLocked()
}

func (m *Manager[T]) utilizationLocked() Utilization {
	size := len(m.entries)
	return Utilization{
		Size:     size,
		Capacity: m.capacity,
		Percent:  int(math.Round(float64(size) / float64(m.capacity) * 100)),
		HasSpace: size < m.capacity,
	}
}

// Keys returns the sorted keys of all valid entries.
func (m *Manager[T]) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	keys := make([]string, 0, len(m.entries))
	for key, e := range m.entries {
		if !e.expired(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// DebugItem describes the entry stored under key, expired or not.
func (m *Manager[T]) DebugItem(key string) (ItemDebug, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return ItemDebug{}, false
	}
	return m.debugLocked(key, e, m.clock.Now()), true
}

// DebugAll describes every stored entry, sorted by key.
func (m *Manager[T]) DebugAll() []ItemDebug {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debugAllLocked(m.clock.Now())
}

func (m *Manager[T]) debugAllLocked(now time.Time) []ItemDebug {
	out := make([]ItemDebug, 0, len(m.entries))
	for key, e := range m.entries {
		out = append(out, m.debugLocked(key, e, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (m *Manager[T]) debugLocked(key string, e *entry[T], now time.Time) ItemDebug {
	d := ItemDebug{
		Key:             key,
		Age:             now.Sub(e.createdAt),
		SinceLastAccess: now.Sub(e.lastAccessedAt),
		Expired:         e.expired(now),
		Budget:          e.budget,
		AccessCount:     e.accessCount,
		Recency:         m.recency[key],
	}
	if !d.Expired {
		d.ExpiresIn = e.budget - d.Age
	}
	return d
}

// ValidateIntegrity checks internal invariants and returns one line per
// problem found. An empty result means the cache is consistent.
func (m *Manager[T]) ValidateIntegrity() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateIntegrityLocked(m.clock.Now())
}

func (m *Manager[T]) validateIntegrityLocked(now time.Time) []string {
	var issues []string
	if len(m.entries) != len(m.recency) {
		issues = append(issues, fmt.Sprintf("size mismatch: %d entries, %d recency tokens", len(m.entries), len(m.recency)))
	}
	if len(m.entries) > m.capacity {
		issues = append(issues, fmt.Sprintf("over capacity: %d entries, capacity %d", len(m.entries), m.capacity))
	}

	for _, key := range sortedKeys(m.entries) {
		e := m.entries[key]
		if _, ok := m.recency[key]; !ok {
			issues = append(issues, fmt.Sprintf("key %q has no recency token", key))
		}
		if e.createdAt.After(now) {
			issues = append(issues, fmt.Sprintf("key %q created in the future", key))
		}
		if e.lastAccessedAt.After(now) {
			issues = append(issues, fmt.Sprintf("key %q last accessed in the future", key))
		}
		if e.budget <= 0 {
			issues = append(issues, fmt.Sprintf("key %q has non-positive expiration %s", key, e.budget))
		}
	}
	for _, key := range sortedKeys(m.recency) {
		if _, ok := m.entries[key]; !ok {
			issues = append(issues, fmt.Sprintf("recency token for missing key %q", key))
		}
	}
	return issues
}

// Report snapshots stats, utilization, every entry and any integrity
// problems at a single instant.
func (m *Manager[T]) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	return Report{
		Stats:       m.statsLocked(now),
		Utilization: m.utilizationLocked(),
		Items:       m.debugAllLocked(now),
		Issues:      m.validateIntegrityLocked(now),
	}
}

// DebugReport renders Report as text.
func (m *Manager[T]) DebugReport() string {
	return m.Report().String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
