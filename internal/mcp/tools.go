package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Register adds every tool and resource of the catalog to s, plus the
// get_version tool.
func (c *Catalog) Register(s *server.MCPServer) {
	for _, t := range c.tools {
		tool := mcp.NewToolWithRawSchema(t.Name, t.Description, t.InputSchema)
		tool.Annotations = mcp.ToolAnnotation{
			Title:           t.Operation.Summary,
			ReadOnlyHint:    mcp.ToBoolPtr(t.Annotations.ReadOnly),
			DestructiveHint: mcp.ToBoolPtr(t.Annotations.Destructive),
			IdempotentHint:  mcp.ToBoolPtr(t.Annotations.Idempotent),
			OpenWorldHint:   mcp.ToBoolPtr(true),
		}
		s.AddTool(tool, c.callTool)
	}

	for _, r := range c.resources {
		if r.IsTemplate() {
			tmpl := mcp.NewResourceTemplate(r.URI, r.Name,
				mcp.WithTemplateDescription(r.Description),
				mcp.WithTemplateMIMEType("application/json"),
			)
			s.AddResourceTemplate(tmpl, c.readHandler(r))
			continue
		}
		res := mcp.NewResource(r.URI, r.Name,
			mcp.WithResourceDescription(r.Description),
			mcp.WithMIMEType("application/json"),
		)
		s.AddResource(res, c.readHandler(r))
	}

	s.AddTool(VersionTool(), VersionToolHandler(c))
}

// NewServer creates an MCP server exposing the catalog.
func NewServer(name, version string, c *Catalog) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)
	c.Register(s)
	return s
}
