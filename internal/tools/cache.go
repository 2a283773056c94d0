package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/letter-mcp/internal/cache"
	"github.com/leonardcser/letter-mcp/internal/enhance"
	"github.com/leonardcser/letter-mcp/internal/logger"
)

// TrafficSource reports enhancement traffic counters.
type TrafficSource interface {
	Stats() enhance.Stats
}

// CacheStatsHandler returns the MCP tool handler for the "cache-stats" tool.
// traffic may be nil.
func CacheStatsHandler(insp cache.Inspector, traffic TrafficSource) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var ts *enhance.Stats
		if traffic != nil {
			s := traffic.Stats()
			ts = &s
		}
		return mcp.NewToolResultText(formatStats(insp.Stats(), insp.Utilization(), ts)), nil
	}
}

// CacheDebugHandler returns the MCP tool handler for the "cache-debug" tool.
// With a key it describes that entry, otherwise it renders the full report.
func CacheDebugHandler(insp cache.Inspector) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key := strings.TrimSpace(req.GetString("key", ""))
		if key == "" {
			r := insp.Report()
			if len(r.Issues) > 0 {
				logger.Errorf("cache integrity issues: %s", strings.Join(r.Issues, "; "))
			}
			return mcp.NewToolResultText(r.String()), nil
		}
		d, ok := insp.DebugItem(key)
		if !ok {
			return mcp.NewToolResultText(fmt.Sprintf("No cache entry for %q.", key)), nil
		}
		return mcp.NewToolResultText(d.String()), nil
	}
}

// CachePurgeHandler returns the MCP tool handler for the "cache-purge" tool.
func CachePurgeHandler(insp cache.Inspector) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n := insp.PurgeExpired()
		logger.Infof("cache-purge removed %d expired entries", n)
		return mcp.NewToolResultText(fmt.Sprintf("Purged %d expired entries.", n)), nil
	}
}

func formatStats(st cache.Stats, u cache.Utilization, traffic *enhance.Stats) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Entries: %d total, %d valid, %d expired\n", st.Total, st.Valid, st.Expired))
	sb.WriteString(fmt.Sprintf("Utilization: %d/%d (%d%%)", u.Size, u.Capacity, u.Percent))
	if !u.HasSpace {
		sb.WriteString(", full")
	}
	if st.Valid > 0 {
		sb.WriteString(fmt.Sprintf("\nAges: avg %s, oldest %s, newest %s",
			st.AverageAge.Round(time.Second), st.OldestAge.Round(time.Second), st.NewestAge.Round(time.Second)))
	}
	if traffic != nil {
		sb.WriteString(fmt.Sprintf("\nEnhancements: %d requests, %d cache hits, %d upstream calls, %d failures",
			traffic.Requests, traffic.CacheHits, traffic.UpstreamCalls, traffic.Failures))
	}
	return sb.String()
}
