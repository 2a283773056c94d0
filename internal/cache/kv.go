package cache

// Store is the get-then-set contract callers use to wrap expensive fetches.
// Implementations must be safe for concurrent use by multiple goroutines.
type Store[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T, exp Expiration) error
	Delete(key string) bool
}

// Inspector exposes read-only diagnostics plus expiry maintenance without
// tying callers to the cached value type.
type Inspector interface {
	Stats() Stats
	Utilization() Utilization
	Keys() []string
	DebugItem(key string) (ItemDebug, bool)
	Report() Report
	DebugReport() string
	ValidateIntegrity() []string
	PurgeExpired() int
}

var (
	_ Store[string] = (*Manager[string])(nil)
	_ Inspector     = (*Manager[string])(nil)
)
