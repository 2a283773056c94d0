package cache

import (
	"context"
	"time"
)

// RunPurger calls PurgeExpired every interval until ctx is done, reporting
// each non-zero purge to onPurge when it is set. It blocks; run it in its
// own goroutine. A non-positive interval returns immediately.
func (m *Manager[T]) RunPurger(ctx context.Context, every time.Duration, onPurge func(removed int)) {
	if every <= 0 {
		return
	}
	ticker := m.clock.Ticker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.PurgeExpired(); n > 0 && onPurge != nil {
				onPurge(n)
			}
		}
	}
}
