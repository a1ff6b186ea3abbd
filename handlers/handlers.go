package handlers

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolHandler creates the handler shared by all three tools. The tool name
// comes from the request, so one handler serves every registration.
func ToolHandler(d *Dispatcher) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return d.CallTool(ctx, request.Params.Name, request.GetArguments()), nil
	}
}

// ResourceHandler creates the handler for store://tables/... reads, both for
// listed resources and for the URI template.
func ResourceHandler(d *Dispatcher) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := request.Params.URI
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: ResourceMIMEType,
				Text:     d.ReadResource(ctx, uri),
			},
		}, nil
	}
}

// FallbackToolHandler answers calls rerouted from tool names the server does
// not register. The requested name and arguments arrive as the "name" and
// "arguments" arguments of the rerouted call.
func FallbackToolHandler(d *Dispatcher) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		name, _ := args["name"].(string)
		inner, _ := args["arguments"].(map[string]any)
		return d.CallTool(ctx, name, inner), nil
	}
}
