package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/persona-mcp/internal/config"
)

// versionReport is the get_version payload.
type versionReport struct {
	config.VersionInfo
	Tools     int `json:"tools"`
	Resources int `json:"resources"`
	Skipped   int `json:"skipped_operations"`
}

// VersionTool returns the mcp.Tool definition for the get_version tool.
func VersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the server version and catalog size. Use this to verify connectivity."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// VersionToolHandler reports build information and catalog size.
func VersionToolHandler(c *Catalog) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := json.Marshal(versionReport{
			VersionInfo: config.GetVersionInfo(),
			Tools:       len(c.tools),
			Resources:   len(c.resources),
			Skipped:     c.skipped,
		})
		if err != nil {
			return errorResult("failed to marshal version info"), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(out))},
		}, nil
	}
}
