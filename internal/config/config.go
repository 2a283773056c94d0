package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/leonardcser/letter-mcp/internal/cache"
)

// Environment variables read by Load.
const (
	EnvEnhanceURL     = "LETTER_MCP_ENHANCE_URL"
	EnvEnhanceKey     = "LETTER_MCP_ENHANCE_KEY"
	EnvCacheCapacity  = "LETTER_MCP_CACHE_CAPACITY"
	EnvCacheTTLMs     = "LETTER_MCP_CACHE_TTL_MS"
	EnvCacheTTLSecs   = "LETTER_MCP_CACHE_TTL_SECONDS"
	EnvCacheTTLMins   = "LETTER_MCP_CACHE_TTL_MINUTES"
	EnvCacheTTLHours  = "LETTER_MCP_CACHE_TTL_HOURS"
	EnvPurgeInterval  = "LETTER_MCP_PURGE_INTERVAL"
	EnvRateDelay      = "LETTER_MCP_RATE_DELAY"
	EnvRequestTimeout = "LETTER_MCP_REQUEST_TIMEOUT"
)

const (
	DefaultCacheCapacity  = 100
	DefaultPurgeInterval  = 5 * time.Minute
	DefaultRateDelay      = 1 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds runtime settings for the server.
type Config struct {
	EnhanceURL     string
	EnhanceKey     string
	CacheCapacity  int
	CacheTTL       cache.Expiration
	PurgeInterval  time.Duration
	RateDelay      time.Duration
	RequestTimeout time.Duration
}

// Load reads Config from the environment, applying defaults for unset
// variables. Any malformed value is an error naming the variable.
// Duration variables need a unit ("500ms", "2s", "5m"); a bare "0" is the
// only unitless value accepted.
func Load() (Config, error) {
	cfg := Config{
		EnhanceURL: strings.TrimSpace(os.Getenv(EnvEnhanceURL)),
		EnhanceKey: os.Getenv(EnvEnhanceKey),
	}

	var err error
	if cfg.CacheCapacity, err = intVar(EnvCacheCapacity, DefaultCacheCapacity); err != nil {
		return Config{}, err
	}
	if cfg.CacheCapacity <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %d", EnvCacheCapacity, cfg.CacheCapacity)
	}

	var ttl cache.ExpirationOptions
	for name, dst := range map[string]**float64{
		EnvCacheTTLMs:    &ttl.Milliseconds,
		EnvCacheTTLSecs:  &ttl.Seconds,
		EnvCacheTTLMins:  &ttl.Minutes,
		EnvCacheTTLHours: &ttl.Hours,
	} {
		if *dst, err = floatVar(name); err != nil {
			return Config{}, err
		}
	}
	cfg.CacheTTL = ttl.Expiration()
	if cfg.CacheTTL.Duration() <= 0 {
		return Config{}, fmt.Errorf("cache ttl must be positive, got %s", cfg.CacheTTL)
	}

	if cfg.PurgeInterval, err = durationVar(EnvPurgeInterval, DefaultPurgeInterval); err != nil {
		return Config{}, err
	}
	if cfg.RateDelay, err = durationVar(EnvRateDelay, DefaultRateDelay); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = durationVar(EnvRequestTimeout, DefaultRequestTimeout); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func intVar(name string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func floatVar(name string) (*float64, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &f, nil
}

func durationVar(name string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	// cast reads a bare number as nanoseconds, which is never what is meant.
	if f, err := cast.ToFloat64E(v); err == nil && f != 0 {
		return 0, fmt.Errorf("%s needs a unit, e.g. %gms or %gs, got %q", name, f, f, v)
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", name, d)
	}
	return d, nil
}
