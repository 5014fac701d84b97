// Package tools connects MCP servers and exposes their tools to the chat
// model as OpenAI function definitions.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"chatchain/internal/config"
	"chatchain/internal/logger"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sashabaranov/go-openai"
)

var emptyObjectSchema = json.RawMessage(`{"type": "object", "properties": {}}`)

// Executor is what the conversation loop needs from a tool provider.
type Executor interface {
	Tools() []openai.Tool
	Execute(ctx context.Context, name string, args map[string]any) string
}

// MCPClient is the subset of the mcp-go client used by the registry; it is
// easy to mock in tests.
type MCPClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Registry holds the connected MCP clients and the tools they provide.
// Duplicate tool names across servers keep the first registration.
type Registry struct {
	clients  []MCPClient
	byName   map[string]MCPClient
	llmTools []openai.Tool
}

// NewRegistry returns an empty registry. Register adds clients to it.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]MCPClient)}
}

// Connect builds a registry from the configured MCP servers. Servers that
// fail to connect or initialize are skipped with a log entry; a registry is
// always returned.
func Connect(ctx context.Context, servers []config.MCPServerConfig) *Registry {
	r := NewRegistry()
	for _, serverCfg := range servers {
		mcpC, err := dial(serverCfg)
		if err != nil {
			logger.L.Error("failed to create MCP client", "name", serverCfg.Name, "error", err)
			continue
		}

		if serverCfg.Type != config.ClientTypeStdio {
			if err := mcpC.Start(ctx); err != nil {
				logger.L.Error("failed to start MCP transport", "name", serverCfg.Name, "error", err)
				closeQuietly(mcpC)
				continue
			}
		}

		initReq := mcp.InitializeRequest{
			Params: mcp.InitializeParams{Capabilities: mcp.ClientCapabilities{}},
		}
		if _, err := mcpC.Initialize(ctx, initReq); err != nil {
			logger.L.Error("failed to initialize MCP client", "name", serverCfg.Name, "error", err)
			closeQuietly(mcpC)
			continue
		}
		logger.L.Info("MCP server initialized", "name", serverCfg.Name)

		if err := r.Register(ctx, serverCfg.Name, mcpC); err != nil {
			logger.L.Warn("failed to list tools from MCP server", "name", serverCfg.Name, "error", err)
		}
	}

	if len(r.clients) == 0 && len(servers) > 0 {
		logger.L.Warn("no MCP clients were successfully initialized", "configured", len(servers))
	}
	return r
}

func dial(serverCfg config.MCPServerConfig) (*client.Client, error) {
	switch serverCfg.Type {
	case config.ClientTypeSSE:
		var opts []transport.ClientOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(serverCfg.Headers))
		}
		return client.NewSSEMCPClient(serverCfg.URL, opts...)
	case config.ClientTypeStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(serverCfg.Headers))
		}
		return client.NewStreamableHttpClient(serverCfg.URL, opts...)
	case config.ClientTypeStdio:
		var env []string
		for k, v := range serverCfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		return client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
	default:
		return nil, fmt.Errorf("unsupported MCP server type %q (want sse, streamable_http or stdio)", serverCfg.Type)
	}
}

// Register lists the client's tools and adds them to the registry. The client
// is tracked for Close even when listing fails.
func (r *Registry) Register(ctx context.Context, serverName string, mcpC MCPClient) error {
	r.clients = append(r.clients, mcpC)

	listed, err := mcpC.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return err
	}

	for _, mcpTool := range listed.Tools {
		if _, exists := r.byName[mcpTool.Name]; exists {
			logger.L.Warn("tool already registered from another server; skipping", "tool", mcpTool.Name, "server", serverName)
			continue
		}
		r.byName[mcpTool.Name] = mcpC
		r.llmTools = append(r.llmTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				Parameters:  toolSchema(mcpTool),
			},
		})
		logger.L.Info("registered tool", "tool", mcpTool.Name, "server", serverName)
	}
	return nil
}

// toolSchema prefers the server's raw JSON schema and falls back to the typed
// one; a tool without a usable schema gets an empty object schema so the
// model can still call it.
func toolSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 && string(t.RawInputSchema) != "null" {
		return t.RawInputSchema
	}
	raw, err := json.Marshal(t.InputSchema)
	if err != nil || string(raw) == "{}" || string(raw) == "null" {
		return emptyObjectSchema
	}
	return raw
}

// Tools returns the function definitions to attach to a chat request.
func (r *Registry) Tools() []openai.Tool {
	return r.llmTools
}

// Execute runs a named tool and returns its text output. Failures are
// reported as text so the model can react to them.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	mcpC, ok := r.byName[name]
	if !ok {
		return fmt.Sprintf("Error: tool %s is not registered", name)
	}

	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
	result, err := mcpC.CallTool(ctx, req)
	if err != nil {
		logger.L.Warn("tool call failed", "tool", name, "error", err)
		return fmt.Sprintf("Error: tool %s failed: %v", name, err)
	}
	if result == nil {
		return fmt.Sprintf("Error: tool %s returned no result", name)
	}

	text := firstText(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool execution failed without details"
		}
		return "Error: " + text
	}
	if text != "" {
		return text
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "tool executed, but its result could not be formatted"
	}
	return string(raw)
}

// Close shuts down all connected clients.
func (r *Registry) Close() {
	for _, c := range r.clients {
		closeQuietly(c)
	}
}

func firstText(content []mcp.Content) string {
	for _, item := range content {
		if text, ok := item.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

func closeQuietly(c MCPClient) {
	if err := c.Close(); err != nil {
		logger.L.Warn("MCP client close error", "error", err)
	}
}
