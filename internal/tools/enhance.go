package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Enhancer rewrites letter text in a style.
type Enhancer interface {
	Enhance(ctx context.Context, text, style string) (string, error)
}

// EnhanceLetterHandler returns the MCP tool handler for the "enhance-letter" tool.
func EnhanceLetterHandler(enh Enhancer) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		style := req.GetString("style", "")

		out, err := enh.Enhance(ctx, text, style)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
