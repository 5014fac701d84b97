package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

// mockMCPClient mirrors the MCPClient interface with pluggable behavior.
type mockMCPClient struct {
	ListToolsFunc func(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallToolFunc  func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	closed        bool
}

func (m *mockMCPClient) Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return &mcp.InitializeResult{}, nil
}

func (m *mockMCPClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if m.ListToolsFunc != nil {
		return m.ListToolsFunc(ctx, req)
	}
	return &mcp.ListToolsResult{}, nil
}

func (m *mockMCPClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if m.CallToolFunc != nil {
		return m.CallToolFunc(ctx, req)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "ok"}},
	}, nil
}

func (m *mockMCPClient) Close() error {
	m.closed = true
	return nil
}

func listOneTool(name string) func(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return func(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
		return &mcp.ListToolsResult{Tools: []mcp.Tool{{
			Name:           name,
			Description:    "a test tool",
			RawInputSchema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`),
		}}}, nil
	}
}

func TestRegistry_RegisterExposesTools(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(context.Background(), "srv", &mockMCPClient{ListToolsFunc: listOneTool("search")}))

	defs := r.Tools()
	require.Len(t, defs, 1)
	require.Equal(t, "search", defs[0].Function.Name)
	require.Equal(t, "a test tool", defs[0].Function.Description)
	require.JSONEq(t, `{"type":"object","properties":{"q":{"type":"string"}}}`,
		string(defs[0].Function.Parameters.(json.RawMessage)))
}

func TestRegistry_DuplicateToolKeepsFirst(t *testing.T) {
	r := NewRegistry()
	first := &mockMCPClient{ListToolsFunc: listOneTool("search")}
	second := &mockMCPClient{ListToolsFunc: listOneTool("search")}
	require.NoError(t, r.Register(context.Background(), "one", first))
	require.NoError(t, r.Register(context.Background(), "two", second))

	require.Len(t, r.Tools(), 1)

	var calledFirst bool
	first.CallToolFunc = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		calledFirst = true
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "hit"}}}, nil
	}
	out := r.Execute(context.Background(), "search", nil)
	require.Equal(t, "hit", out)
	require.True(t, calledFirst)
}

func TestRegistry_ExecuteTextResult(t *testing.T) {
	r := NewRegistry()
	client := &mockMCPClient{
		ListToolsFunc: listOneTool("search"),
		CallToolFunc: func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			require.Equal(t, "search", req.Params.Name)
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "3 results"}},
			}, nil
		},
	}
	require.NoError(t, r.Register(context.Background(), "srv", client))

	out := r.Execute(context.Background(), "search", map[string]any{"q": "go"})
	require.Equal(t, "3 results", out)
}

func TestRegistry_ExecuteToolError(t *testing.T) {
	r := NewRegistry()
	client := &mockMCPClient{
		ListToolsFunc: listOneTool("search"),
		CallToolFunc: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "index unavailable"}},
			}, nil
		},
	}
	require.NoError(t, r.Register(context.Background(), "srv", client))

	out := r.Execute(context.Background(), "search", nil)
	require.Equal(t, "Error: index unavailable", out)
}

func TestRegistry_ExecuteCallFailure(t *testing.T) {
	r := NewRegistry()
	client := &mockMCPClient{
		ListToolsFunc: listOneTool("search"),
		CallToolFunc: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("connection reset")
		},
	}
	require.NoError(t, r.Register(context.Background(), "srv", client))

	out := r.Execute(context.Background(), "search", nil)
	require.Contains(t, out, "Error")
	require.Contains(t, out, "connection reset")
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	out := r.Execute(context.Background(), "nope", nil)
	require.Contains(t, out, "not registered")
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry()
	client := &mockMCPClient{ListToolsFunc: listOneTool("search")}
	require.NoError(t, r.Register(context.Background(), "srv", client))

	r.Close()
	require.True(t, client.closed)
}
