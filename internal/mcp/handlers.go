package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// errorResult creates an MCP error result.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}

// failureResult reports a typed failure as a tool error whose text is the
// failure's JSON form.
func failureResult(err error) *mcp.CallToolResult {
	return errorResult(describeFailure(err))
}

// callTool is the handler registered for every generated tool.
func (c *Catalog) callTool(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := c.Invoke(ctx, r.Params.Name, r.GetArguments())
	if err != nil {
		return failureResult(err), nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(payload))}}, nil
}

// readHandler serves one resource. Resource reads have no error result
// type, so failures become protocol errors carrying the failure JSON.
func (c *Catalog) readHandler(res *Resource) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, r mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := r.Params.URI
		args, ok := res.match(uri)
		if !ok {
			args = make(map[string]any, len(res.Params))
		}
		for _, p := range res.Params {
			if v := argString(r.Params.Arguments[p]); v != "" {
				args[p] = v
			}
		}

		payload, err := c.Read(ctx, res, args)
		if err != nil {
			return nil, errors.New(describeFailure(err))
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(payload),
			},
		}, nil
	}
}

// argString flattens a URI template variable, which may arrive as a string
// or a list of strings.
func argString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return strings.Trim(string(data), `"`)
	}
}
