package mcp

import (
	goMCP "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/melkeydev/mcp-tables/handlers"
)

// ServerInfo is what the server reports about itself during initialize.
type ServerInfo struct {
	Name    string
	Version string
}

// NewServer builds an MCP server whose tools and resources are all served
// by d.
func NewServer(d *handlers.Dispatcher, info ServerInfo) *server.MCPServer {
	s := server.NewMCPServer(
		info.Name,
		info.Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithLogging(),
		server.WithToolFilter(hideFallbackTool),
	)

	RegisterResources(s, d)
	RegisterTools(s, d)
	return s
}

// RegisterResources adds one resource per catalog table, plus templates so
// reads of any other store:// URI still reach the dispatcher and get an
// error body back rather than a protocol error.
func RegisterResources(s *server.MCPServer, d *handlers.Dispatcher) {
	handler := handlers.ResourceHandler(d)
	for _, resource := range d.ListResources() {
		s.AddResource(resource, handler)
	}

	tableTemplate := goMCP.NewResourceTemplate(
		handlers.ResourceURITemplate,
		"Table",
		goMCP.WithTemplateDescription("Rows from an allow-listed table"),
		goMCP.WithTemplateMIMEType(handlers.ResourceMIMEType),
	)
	s.AddResourceTemplate(tableTemplate, handler)

	catchAll := goMCP.NewResourceTemplate(
		handlers.ResourceCatchAllTemplate,
		"Store",
		goMCP.WithTemplateDescription("Any other store URI, answered with an error body"),
		goMCP.WithTemplateMIMEType(handlers.ResourceMIMEType),
	)
	s.AddResourceTemplate(catchAll, handler)
}

// RegisterTools adds the dispatcher's tools and the hidden fallback tool
// that RouteUnregistered sends unknown tool names to.
func RegisterTools(s *server.MCPServer, d *handlers.Dispatcher) {
	handler := handlers.ToolHandler(d)
	for _, tool := range d.ListTools() {
		s.AddTool(tool, handler)
	}

	s.AddTool(goMCP.NewTool(fallbackTool,
		goMCP.WithDescription("Answers calls to tools this server does not offer"),
	), handlers.FallbackToolHandler(d))
}
