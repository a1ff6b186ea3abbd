package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	goMCP "github.com/mark3labs/mcp-go/mcp"

	"github.com/melkeydev/mcp-tables/handlers"
)

// fallbackTool is registered but never listed. mcp-go answers a tools/call
// for an unregistered name with a JSON-RPC error, so such calls are
// rewritten to this tool before they reach the server.
const fallbackTool = "mcp_tables_fallback"

func hideFallbackTool(_ context.Context, tools []goMCP.Tool) []goMCP.Tool {
	out := make([]goMCP.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool.Name != fallbackTool {
			out = append(out, tool)
		}
	}
	return out
}

func offered(name string) bool {
	for _, tool := range handlers.ToolNames {
		if string(tool) == name {
			return true
		}
	}
	return false
}

// RouteUnregistered rewrites a tools/call request naming a tool the
// dispatcher does not offer into a call of the fallback tool, carrying the
// original name and arguments. Any other message is returned unchanged.
func RouteUnregistered(raw []byte) []byte {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return raw
	}
	var method string
	if err := json.Unmarshal(msg["method"], &method); err != nil || method != string(goMCP.MethodToolsCall) {
		return raw
	}

	var params map[string]json.RawMessage
	if err := json.Unmarshal(msg["params"], &params); err != nil {
		return raw
	}
	var name string
	if err := json.Unmarshal(params["name"], &name); err != nil || offered(name) {
		return raw
	}

	wrapped, err := json.Marshal(map[string]json.RawMessage{
		"name":      params["name"],
		"arguments": params["arguments"],
	})
	if err != nil {
		return raw
	}
	params["name"], _ = json.Marshal(fallbackTool)
	params["arguments"] = wrapped

	if msg["params"], err = json.Marshal(params); err != nil {
		return raw
	}
	out, err := json.Marshal(msg)
	if err != nil {
		return raw
	}
	return out
}

// routeLines applies RouteUnregistered to every newline-delimited message
// read from r.
func routeLines(r io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadBytes('\n')
			if msg := bytes.TrimRight(line, "\r\n"); len(msg) > 0 {
				if _, werr := pw.Write(append(RouteUnregistered(msg), '\n')); werr != nil {
					return
				}
			}
			if err != nil {
				pw.CloseWithError(err)
				return
			}
		}
	}()
	return pr
}

// routeRequests applies RouteUnregistered to POSTed message bodies.
func routeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			body, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			body = RouteUnregistered(body)
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
		}
		next.ServeHTTP(w, r)
	})
}
