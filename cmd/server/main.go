package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/letter-mcp/internal/cache"
	"github.com/leonardcser/letter-mcp/internal/config"
	"github.com/leonardcser/letter-mcp/internal/enhance"
	"github.com/leonardcser/letter-mcp/internal/logger"
	tools "github.com/leonardcser/letter-mcp/internal/tools"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting Letter MCP server")

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		panic(err)
	}
	if cfg.EnhanceURL == "" {
		logger.Warnf("%s is not set, enhance-letter will fail until it is configured", config.EnvEnhanceURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.New[string](cfg.CacheCapacity, cache.WithEvictionHook(func(key string) {
		logger.Infof("Evicted least recently used cache entry %s", key)
	}))
	if err != nil {
		logger.Errorf("Failed to create cache: %v", err)
		panic(err)
	}
	logger.Infof("Initialized enhancement cache (capacity=%d, ttl=%s)", cfg.CacheCapacity, cfg.CacheTTL)

	if cfg.PurgeInterval > 0 {
		go store.RunPurger(ctx, cfg.PurgeInterval, func(n int) {
			logger.Infof("Purged %d expired cache entries", n)
		})
		logger.Infof("Started cache purger every %s", cfg.PurgeInterval)
	}

	enhancer, err := enhance.New(store, enhance.Options{
		Endpoint:       cfg.EnhanceURL,
		APIKey:         cfg.EnhanceKey,
		TTL:            cfg.CacheTTL,
		RateDelay:      cfg.RateDelay,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create enhancer: %v", err)
		panic(err)
	}
	logger.Infof("Initialized enhancer with cache (rate delay %s)", cfg.RateDelay)

	s := server.NewMCPServer(
		"Letter MCP",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)
	logger.Infof("Created MCP server instance")

	toolEnhance := mcp.NewTool("enhance-letter",
		mcp.WithDescription(multiline(
			"Rewrites a letter to your future self using the AI enhancement service",
			"\nFunctionality:",
			"- Takes the letter text and an optional style",
			"- Returns the enhanced text as Markdown",
			"\nUsage notes:",
			"- Identical text and style are served from an in-memory cache",
			"- Upstream calls are rate limited; repeated requests are cheap, new ones may be slow",
		)),
		mcp.WithString("text", mcp.Required(), mcp.Description("The letter text to enhance")),
		mcp.WithString("style", mcp.Description("Tone to aim for, e.g. warm, formal, polish (default)")),
	)
	s.AddTool(toolEnhance, tools.EnhanceLetterHandler(enhancer))
	logger.Infof("Registered enhance-letter tool")

	toolStats := mcp.NewTool("cache-stats",
		mcp.WithDescription("Reports enhancement cache entry counts, ages, utilization and traffic"),
	)
	s.AddTool(toolStats, tools.CacheStatsHandler(store, enhancer))
	logger.Infof("Registered cache-stats tool")

	toolDebug := mcp.NewTool("cache-debug",
		mcp.WithDescription(multiline(
			"Inspects the enhancement cache",
			"- With a key, describes that entry",
			"- Without a key, returns a full report including integrity checks",
		)),
		mcp.WithString("key", mcp.Description("Cache key to inspect")),
	)
	s.AddTool(toolDebug, tools.CacheDebugHandler(store))
	logger.Infof("Registered cache-debug tool")

	toolPurge := mcp.NewTool("cache-purge",
		mcp.WithDescription("Removes expired entries from the enhancement cache"),
	)
	s.AddTool(toolPurge, tools.CachePurgeHandler(store))
	logger.Infof("Registered cache-purge tool")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
	logger.Debugf("Final cache state:\n%s", store.DebugReport())
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
