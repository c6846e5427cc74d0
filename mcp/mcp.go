// Package mcp serves the tool registry as Model Context Protocol tools.
//
// Every registered tool is exposed under its own name with its JSON schema.
// Calls are resolved and validated by the registry exactly as they are for the
// agent loop, so MCP clients see the same error codes.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/tool"
)

// Options configures the MCP server.
type Options struct {
	Name        string
	Version     string
	ToolTimeout time.Duration
	Logger      logging.Logger
}

// Server wraps the mcp-go server around a tool registry.
type Server struct {
	mcpServer   *mcpserver.MCPServer
	registry    *tool.Registry
	toolTimeout time.Duration
	names       []string
	logger      logging.Logger
}

// New creates an MCP server exposing every tool in registry.
func New(registry *tool.Registry, optFns ...func(o *Options)) (*Server, error) {
	opts := Options{
		Name:        "wikiagent",
		Version:     "0.1.0",
		ToolTimeout: 30 * time.Second,
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}

	s := &Server{
		registry:    registry,
		toolTimeout: opts.ToolTimeout,
		logger:      logging.Ensure(opts.Logger),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		opts.Name,
		opts.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	for _, t := range registry.List() {
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			return nil, fmt.Errorf("mcp: marshal schema of %s: %w", t.Name(), err)
		}

		name := t.Name()
		s.mcpServer.AddTool(
			mcplib.NewToolWithRawSchema(name, t.Description(), schema),
			func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
				return s.call(ctx, name, request.GetArguments())
			},
		)
		s.names = append(s.names, name)
	}

	return s, nil
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ToolNames returns the exposed tool names in registration order.
func (s *Server) ToolNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Serve speaks MCP over the given streams until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp.serve.start", "tools", len(s.names))
	return mcpserver.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

// call runs one tool. Tool failures are returned as error results so the
// client model can read them; only protocol level problems return an error.
func (s *Server) call(ctx context.Context, name string, args map[string]any) (*mcplib.CallToolResult, error) {
	raw := "{}"
	if len(args) > 0 {
		b, err := json.Marshal(args)
		if err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("Error [%s]: arguments are not serializable: %v", tool.CodeValidation, err)), nil
		}
		raw = string(b)
	}

	cmd, err := s.registry.Resolve(name, raw)
	if err != nil {
		return s.failure(name, err), nil
	}

	t, err := s.registry.Get(name)
	if err == nil && !tool.IsAvailable(ctx, t) {
		return mcplib.NewToolResultError(fmt.Sprintf("Error [%s]: tool %s is currently unavailable", tool.CodeProviderUnavailable, name)), nil
	}

	callCtx := ctx
	if s.toolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.toolTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := cmd.Execute(callCtx)
	if err != nil {
		return s.failure(name, err), nil
	}

	s.logger.Debug("mcp.tool.completed", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	return mcplib.NewToolResultText(tool.Render(result)), nil
}

func (s *Server) failure(name string, err error) *mcplib.CallToolResult {
	te := tool.AsToolError(name, err)
	s.logger.Warn("mcp.tool.failed", "tool", name, "code", te.Code, "error", te.Message)
	return mcplib.NewToolResultError(fmt.Sprintf("Error [%s]: %s", te.Code, te.Message))
}
