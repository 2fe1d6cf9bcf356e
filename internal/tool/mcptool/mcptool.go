// Package mcptool is a tool.Service backed by an MCP server reached
// over stdio, grounded directly on the teacher's
// pkg/tool/mcptoolset.Toolset (mark3labs/mcp-go stdio transport),
// trimmed to the stdio path only — the HTTP/SSE transports the
// teacher also supports have no SPEC_FULL.md component that needs
// them, so they're left out rather than carried unused.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ciris-ai/ciris-core/internal/dispatch"
	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/tool"
)

// Config configures the stdio subprocess used to reach the MCP server.
type Config struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Service is a lazily-connected MCP tool backend: the first Invoke or
// Descriptors call starts the subprocess and lists its tools.
type Service struct {
	cfg Config

	mu        sync.Mutex
	client    *client.Client
	connected bool
	tools     map[string]mcp.Tool
}

func New(cfg Config) *Service {
	return &Service{cfg: cfg}
}

var _ tool.Service = (*Service)(nil)

func (s *Service) Descriptors(ctx context.Context) ([]tool.Descriptor, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tool.Descriptor, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, tool.Descriptor{Name: t.Name, Description: t.Description, Schema: convertSchema(t.InputSchema)})
	}
	return out, nil
}

// Invoke implements dispatch.ActionService: it resolves the requested
// tool by name and calls it with the flattened argument map.
func (s *Service) Invoke(ctx context.Context, dctx dispatch.DispatchContext, params dma.ActionParameters) (map[string]graph.AttrValue, error) {
	if params.Tool == nil {
		return nil, fmt.Errorf("TOOL action carries no tool parameters")
	}
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, known := s.tools[params.Tool.ToolName]
	mcpClient := s.client
	s.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("unknown tool: %s", params.Tool.ToolName)
	}

	args := make(map[string]any, len(params.Tool.Arguments))
	for k, v := range params.Tool.Arguments {
		args[k] = v.ToAny()
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = params.Tool.ToolName
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp tool call %s failed: %w", params.Tool.ToolName, err)
	}
	return parseResult(resp), nil
}

func (s *Service) ensureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	mcpClient, err := client.NewStdioMCPClient(s.cfg.Command, envSlice(s.cfg.Env), s.cfg.Args...)
	if err != nil {
		return fmt.Errorf("create mcp client %s: %w", s.cfg.Name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start mcp client %s: %w", s.cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "ciris-agent", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialize mcp client %s: %w", s.cfg.Name, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("list mcp tools %s: %w", s.cfg.Name, err)
	}

	tools := make(map[string]mcp.Tool, len(listResp.Tools))
	for _, t := range listResp.Tools {
		tools[t.Name] = t
	}

	s.client = mcpClient
	s.tools = tools
	s.connected = true
	return nil
}

// Close tears down the subprocess, if one was started.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.connected = false
	return err
}

func parseResult(resp *mcp.CallToolResult) map[string]graph.AttrValue {
	var texts []string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	out := map[string]graph.AttrValue{"is_error": graph.BoolAttr(resp.IsError)}
	switch len(texts) {
	case 0:
	case 1:
		out["result"] = graph.StringAttr(texts[0])
	default:
		list := make([]graph.AttrValue, len(texts))
		for i, t := range texts {
			list[i] = graph.StringAttr(t)
		}
		out["results"] = graph.ListAttr(list)
	}
	return out
}

// convertSchema round-trips the MCP schema through JSON to get a
// plain map, grounded on the teacher's identical approach in
// pkg/tool/mcptoolset.convertSchema.
func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
