package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestManager[T any](t *testing.T, capacity int) (*Manager[T], *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	m, err := New[T](capacity, WithClock(mock))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return m, mock
}

func mustSet[T any](t *testing.T, m *Manager[T], key string, v T, exp Expiration) {
	t.Helper()
	if err := m.Set(key, v, exp); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func assertIntegrity[T any](t *testing.T, m *Manager[T]) {
	t.Helper()
	if issues := m.ValidateIntegrity(); len(issues) != 0 {
		t.Fatalf("unexpected integrity issues: %v", issues)
	}
}

func TestNew_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		m, err := New[string](capacity)
		if !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("capacity %d: expected ErrInvalidCapacity, got %v", capacity, err)
		}
		if m != nil {
			t.Fatalf("capacity %d: expected nil manager", capacity)
		}
	}
}

func TestSetGet_RoundTrip(t *testing.T) {
	m, _ := newTestManager[string](t, 4)
	mustSet(t, m, "k", "v", Hours(1))

	v, ok := m.Get("k")
	if !ok || v != "v" {
		t.Fatalf("expected v, got %q ok=%v", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestSet_ReplacesEntry(t *testing.T) {
	m, mock := newTestManager[int](t, 2)
	mustSet(t, m, "k", 1, Seconds(10))
	m.Get("k")
	m.Get("k")
	mock.Add(5 * time.Second)
	mustSet(t, m, "k", 2, Seconds(10))

	d, ok := m.DebugItem("k")
	if !ok {
		t.Fatalf("expected k to exist")
	}
	if d.AccessCount != 1 || d.Age != 0 {
		t.Fatalf("expected fresh entry, got %+v", d)
	}
	if v, _ := m.Get("k"); v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", m.Len())
	}
}

func TestSet_Validation(t *testing.T) {
	m, _ := newTestManager[string](t, 2)
	mustSet(t, m, "keep", "v", Hours(1))
	before := m.DebugAll()

	cases := []struct {
		name string
		key  string
		exp  Expiration
	}{
		{"empty key", "", Hours(1)},
		{"blank key", "   ", Hours(1)},
		{"zero hours", "k", Hours(0)},
		{"negative ms", "k", Milliseconds(-5)},
		{"zero duration", "k", After(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := m.Set(tc.key, "x", tc.exp)
			if !errors.Is(err, ErrInvalidSetArgument) {
				t.Fatalf("expected ErrInvalidSetArgument, got %v", err)
			}
		})
	}

	after := m.DebugAll()
	if len(after) != len(before) || after[0] != before[0] {
		t.Fatalf("state changed after failed sets: before=%v after=%v", before, after)
	}
}

func TestSet_DefaultExpiration(t *testing.T) {
	m, mock := newTestManager[string](t, 2)
	mustSet(t, m, "k", "v", Expiration{})

	mock.Add(time.Hour)
	if !m.Has("k") {
		t.Fatalf("expected k valid at exactly one hour")
	}
	mock.Add(time.Millisecond)
	if m.Has("k") {
		t.Fatalf("expected k expired after one hour")
	}
}

func TestGet_LazyExpiration(t *testing.T) {
	m, mock := newTestManager[string](t, 4)
	mustSet(t, m, "k", "v", Milliseconds(30))

	if _, ok := m.Get("k"); !ok {
		t.Fatalf("expected k to exist before expiry")
	}
	mock.Add(80 * time.Millisecond)

	if m.Len() != 1 {
		t.Fatalf("expired entry should still be stored until observed")
	}
	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected k to be expired")
	}
	if m.Len() != 0 {
		t.Fatalf("expected get to remove expired entry")
	}
	assertIntegrity(t, m)
}

func TestGet_UpdatesAccessMetadata(t *testing.T) {
	m, mock := newTestManager[string](t, 2)
	mustSet(t, m, "k", "v", Minutes(5))
	mock.Add(time.Second)
	m.Get("k")
	mock.Add(2 * time.Second)

	d, _ := m.DebugItem("k")
	if d.AccessCount != 2 {
		t.Fatalf("expected 2 accesses, got %d", d.AccessCount)
	}
	if d.SinceLastAccess != 2*time.Second || d.Age != 3*time.Second {
		t.Fatalf("unexpected timings: %+v", d)
	}
	if d.ExpiresIn != 5*time.Minute-3*time.Second {
		t.Fatalf("expiration must not be refreshed by reads, got %s", d.ExpiresIn)
	}
}

func TestHas_DoesNotTouch(t *testing.T) {
	m, _ := newTestManager[string](t, 2)
	mustSet(t, m, "a", "A", Hours(1))
	mustSet(t, m, "b", "B", Hours(1))

	before, _ := m.DebugItem("a")
	for i := 0; i < 5; i++ {
		if !m.Has("a") {
			t.Fatalf("expected a")
		}
	}
	after, _ := m.DebugItem("a")
	if before != after {
		t.Fatalf("has mutated entry: before=%+v after=%+v", before, after)
	}

	mustSet(t, m, "c", "C", Hours(1))
	if m.Has("a") {
		t.Fatalf("expected a to be evicted despite has calls")
	}
	if !m.Has("b") || !m.Has("c") {
		t.Fatalf("expected b and c to remain")
	}
}

func TestLRUEviction(t *testing.T) {
	m, _ := newTestManager[string](t, 2)
	mustSet(t, m, "a", "A", Hours(1))
	mustSet(t, m, "b", "B", Hours(1))

	// Touch a so b becomes LRU.
	if _, ok := m.Get("a"); !ok {
		t.Fatalf("expected a to exist")
	}
	mustSet(t, m, "c", "C", Hours(1))

	if m.Has("b") {
		t.Fatalf("expected b to be evicted")
	}
	if !m.Has("a") || !m.Has("c") {
		t.Fatalf("expected a and c to remain")
	}
	assertIntegrity(t, m)
}

func TestEviction_ExistingKeyDoesNotEvict(t *testing.T) {
	m, _ := newTestManager[int](t, 2)
	mustSet(t, m, "a", 1, Hours(1))
	mustSet(t, m, "b", 2, Hours(1))
	mustSet(t, m, "a", 3, Hours(1))

	if !m.Has("a") || !m.Has("b") {
		t.Fatalf("replacing a key must not evict")
	}
}

func TestEviction_CountsExpiredEntries(t *testing.T) {
	m, mock := newTestManager[int](t, 2)
	mustSet(t, m, "valid", 1, Hours(1))
	mustSet(t, m, "stale", 2, Milliseconds(10))
	mock.Add(time.Second)

	mustSet(t, m, "new", 3, Hours(1))

	// The least recently set entry goes, even though an expired one exists.
	if m.Has("valid") {
		t.Fatalf("expected valid to be evicted as least recently used")
	}
	if _, ok := m.DebugItem("stale"); !ok {
		t.Fatalf("expected stale to remain stored")
	}
}

func TestEvictionHook(t *testing.T) {
	var evicted []string
	m, err := New[int](1, WithClock(clock.NewMock()), WithEvictionHook(func(key string) {
		evicted = append(evicted, key)
	}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	mustSet(t, m, "a", 1, Hours(1))
	mustSet(t, m, "b", 2, Hours(1))
	mustSet(t, m, "b", 3, Hours(1))

	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("expected [a] evicted, got %v", evicted)
	}
}

func TestDelete(t *testing.T) {
	m, _ := newTestManager[string](t, 2)
	mustSet(t, m, "k", "v", Hours(1))

	if !m.Delete("k") {
		t.Fatalf("expected delete to report existing key")
	}
	if m.Delete("k") {
		t.Fatalf("expected second delete to report missing key")
	}
	if m.Has("k") {
		t.Fatalf("expected k to be gone")
	}
	assertIntegrity(t, m)
}

func TestClear_ResetsRecency(t *testing.T) {
	m, _ := newTestManager[string](t, 3)
	mustSet(t, m, "a", "A", Hours(1))
	mustSet(t, m, "b", "B", Hours(1))
	m.Clear()

	if m.Len() != 0 {
		t.Fatalf("expected empty cache")
	}
	mustSet(t, m, "c", "C", Hours(1))
	d, _ := m.DebugItem("c")
	if d.Recency != 1 {
		t.Fatalf("expected recency counter restarted, got %d", d.Recency)
	}
}

func TestPurgeExpired(t *testing.T) {
	m, mock := newTestManager[string](t, 4)
	mustSet(t, m, "short1", "v", Milliseconds(10))
	mustSet(t, m, "short2", "v", Seconds(1))
	mustSet(t, m, "long", "v", Hours(1))
	m.Get("long")
	before, _ := m.DebugItem("long")

	mock.Add(2 * time.Second)
	if n := m.PurgeExpired(); n != 2 {
		t.Fatalf("expected 2 purged, got %d", n)
	}
	if n := m.PurgeExpired(); n != 0 {
		t.Fatalf("expected nothing left to purge, got %d", n)
	}
	after, _ := m.DebugItem("long")
	if after.AccessCount != before.AccessCount || after.Recency != before.Recency {
		t.Fatalf("purge changed valid entry metadata")
	}
}

func TestScenario_StatsAndPurge(t *testing.T) {
	m, mock := newTestManager[int](t, 3)
	mustSet(t, m, "x", 1, Milliseconds(50))
	mock.Add(100 * time.Millisecond)

	st := m.Stats()
	if st.Valid != 0 || st.Expired != 1 || st.Total != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if n := m.PurgeExpired(); n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	if st := m.Stats(); st.Total != 0 {
		t.Fatalf("expected empty after purge, got %+v", st)
	}
}

func TestStats_Ages(t *testing.T) {
	m, mock := newTestManager[int](t, 4)
	mustSet(t, m, "old", 1, Hours(1))
	mock.Add(30 * time.Second)
	mustSet(t, m, "mid", 2, Hours(1))
	mock.Add(30 * time.Second)
	mustSet(t, m, "new", 3, Hours(1))
	mustSet(t, m, "gone", 4, Milliseconds(1))
	mock.Add(time.Second)

	st := m.Stats()
	if st.Total != 4 || st.Valid != 3 || st.Expired != 1 {
		t.Fatalf("unexpected counts: %+v", st)
	}
	if st.OldestAge != 61*time.Second || st.NewestAge != time.Second {
		t.Fatalf("unexpected ages: %+v", st)
	}
	if st.AverageAge != 31*time.Second {
		t.Fatalf("expected average 31s, got %s", st.AverageAge)
	}
}

func TestUtilization(t *testing.T) {
	m, _ := newTestManager[int](t, 3)
	mustSet(t, m, "a", 1, Hours(1))
	mustSet(t, m, "b", 2, Hours(1))

	u := m.Utilization()
	if u.Size != 2 || u.Capacity != 3 || u.Percent != 67 || !u.HasSpace {
		t.Fatalf("unexpected utilization: %+v", u)
	}
	mustSet(t, m, "c", 3, Hours(1))
	if u := m.Utilization(); u.Percent != 100 || u.HasSpace {
		t.Fatalf("expected full cache, got %+v", u)
	}
}

func TestKeys_SkipsExpiredWithoutRemoving(t *testing.T) {
	m, mock := newTestManager[int](t, 4)
	mustSet(t, m, "b", 1, Hours(1))
	mustSet(t, m, "a", 2, Hours(1))
	mustSet(t, m, "x", 3, Milliseconds(5))
	mock.Add(time.Second)

	keys := m.Keys()
	if fmt.Sprint(keys) != "[a b]" {
		t.Fatalf("expected [a b], got %v", keys)
	}
	if m.Len() != 3 {
		t.Fatalf("keys must not remove entries")
	}
}

func TestDebugItem(t *testing.T) {
	m, mock := newTestManager[int](t, 2)
	if _, ok := m.DebugItem("missing"); ok {
		t.Fatalf("expected no debug info for missing key")
	}
	mustSet(t, m, "k", 1, Seconds(1))
	mock.Add(2 * time.Second)

	d, ok := m.DebugItem("k")
	if !ok || !d.Expired || d.ExpiresIn != 0 {
		t.Fatalf("expected expired item, got %+v", d)
	}
	if m.Len() != 1 {
		t.Fatalf("debug must not remove entries")
	}
}

func TestDebugReport(t *testing.T) {
	m, _ := newTestManager[int](t, 2)
	mustSet(t, m, "k", 1, Hours(1))

	report := m.DebugReport()
	for _, want := range []string{"1 total", "1/2 (50%)", "- k:"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestReport_IsConsistentSnapshot(t *testing.T) {
	m, err := New[int](8)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-done:
					return
				default:
				}
				key := fmt.Sprintf("w%d-%d", w, i%12)
				if i%3 == 0 {
					m.Delete(key)
				} else {
					_ = m.Set(key, i, Milliseconds(5))
				}
			}
		}(w)
	}

	for i := 0; i < 200; i++ {
		r := m.Report()
		if r.Stats.Total != len(r.Items) || r.Stats.Total != r.Utilization.Size {
			close(done)
			wg.Wait()
			t.Fatalf("torn report: total=%d items=%d size=%d", r.Stats.Total, len(r.Items), r.Utilization.Size)
		}
		if r.Stats.Valid+r.Stats.Expired != r.Stats.Total {
			close(done)
			wg.Wait()
			t.Fatalf("valid+expired != total: %+v", r.Stats)
		}
		if len(r.Issues) != 0 {
			close(done)
			wg.Wait()
			t.Fatalf("unexpected integrity issues: %v", r.Issues)
		}
	}
	close(done)
	wg.Wait()
}

func TestConcurrentOperations_KeepIntegrity(t *testing.T) {
	m, err := New[int](8)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*7+i)%20)
				switch i % 7 {
				case 0, 1:
					if err := m.Set(key, i, Milliseconds(float64(1+i%4))); err != nil {
						t.Errorf("set %s: %v", key, err)
						return
					}
				case 2:
					m.Get(key)
				case 3:
					m.Has(key)
				case 4:
					m.Delete(key)
				case 5:
					m.PurgeExpired()
				case 6:
					_ = m.Stats()
					_ = m.Keys()
				}
				if m.Len() > m.Capacity() {
					t.Errorf("size %d exceeds capacity %d", m.Len(), m.Capacity())
					return
				}
			}
		}(g)
	}
	wg.Wait()

	assertIntegrity(t, m)
	if m.Len() > m.Capacity() {
		t.Fatalf("size %d exceeds capacity %d", m.Len(), m.Capacity())
	}
}

func TestValidateIntegrity_DetectsDesync(t *testing.T) {
	m, _ := newTestManager[int](t, 3)
	mustSet(t, m, "a", 1, Hours(1))
	mustSet(t, m, "b", 2, Hours(1))
	assertIntegrity(t, m)

	m.mu.Lock()
	delete(m.recency, "a")
	m.recency["ghost"] = 99
	m.mu.Unlock()

	if issues := m.ValidateIntegrity(); len(issues) == 0 {
		t.Fatalf("expected desync to be detected")
	}
}

func TestValidateIntegrity_DetectsBadTimestamps(t *testing.T) {
	m, mock := newTestManager[int](t, 2)
	mustSet(t, m, "a", 1, Hours(1))

	m.mu.Lock()
	m.entries["a"].createdAt = mock.Now().Add(time.Minute)
	m.entries["a"].budget = 0
	m.mu.Unlock()

	if issues := m.ValidateIntegrity(); len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", issues)
	}
}

func TestIntegrity_AfterMixedOperations(t *testing.T) {
	m, mock := newTestManager[int](t, 5)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k%d", i%13)
		switch i % 4 {
		case 0, 1:
			mustSet(t, m, key, i, Milliseconds(float64(1+i%7)))
		case 2:
			m.Get(key)
		case 3:
			m.Delete(key)
		}
		mock.Add(time.Millisecond)
		if m.Len() > m.Capacity() {
			t.Fatalf("capacity exceeded at step %d", i)
		}
	}
	assertIntegrity(t, m)
}

func TestRunPurger(t *testing.T) {
	m, mock := newTestManager[int](t, 2)
	mustSet(t, m, "k", 1, Milliseconds(10))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	purged := make(chan int, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.RunPurger(ctx, time.Second, func(n int) { purged <- n })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mock.Add(time.Second)
		select {
		case n := <-purged:
			if n != 1 {
				t.Fatalf("expected 1 purged, got %d", n)
			}
			cancel()
			<-done
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatalf("purger never ran")
}
