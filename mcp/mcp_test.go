package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/wikiagent/retrieval"
	"github.com/hupe1980/wikiagent/tool"
)

type emptySearcher struct{}

func (emptySearcher) Query(context.Context, string, int) ([]retrieval.Result, error) {
	return nil, errors.New("not reached")
}

func (emptySearcher) Count(context.Context) (int, error) { return 0, nil }

func newTestServer(t *testing.T, tools ...tool.Tool) *Server {
	t.Helper()
	reg, err := tool.NewRegistry(tools...)
	require.NoError(t, err)
	s, err := New(reg)
	require.NoError(t, err)
	return s
}

func resultText(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range res.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestNew_ExposesRegistry(t *testing.T) {
	s := newTestServer(t, tool.NewCalculatorTool(), tool.NewKnowledgeTool(emptySearcher{}))
	assert.Equal(t, []string{"calculator", "wikipedia_search"}, s.ToolNames())
	assert.NotNil(t, s.MCPServer())
}

func TestCall_Calculator(t *testing.T) {
	s := newTestServer(t, tool.NewCalculatorTool())

	res, err := s.call(context.Background(), "calculator", map[string]any{"expression": "sqrt(16) + 2"})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	assert.Equal(t, "sqrt(16) + 2 = 6", resultText(t, res))
}

func TestCall_Errors(t *testing.T) {
	s := newTestServer(t, tool.NewCalculatorTool(), tool.NewKnowledgeTool(emptySearcher{}))

	tests := []struct {
		name string
		tool string
		args map[string]any
		code string
	}{
		{"missing argument", "calculator", nil, tool.CodeValidation},
		{"disallowed expression", "calculator", map[string]any{"expression": "__import__('os')"}, tool.CodeValidation},
		{"unknown tool", "shell", map[string]any{}, tool.CodeUnknownTool},
		{"unavailable", "wikipedia_search", map[string]any{"query": "go"}, tool.CodeProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.call(context.Background(), tt.tool, tt.args)
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), "Error ["+tt.code+"]")
		})
	}
}

func TestServe_ToolsList(t *testing.T) {
	s := newTestServer(t, tool.NewCalculatorTool())

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx, inR, outW)
	}()

	go func() {
		_, _ = io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`+"\n")
	}()

	lines := make(chan string, 1)
	go func() {
		sc := bufio.NewScanner(outR)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		if sc.Scan() {
			lines <- sc.Text()
		}
	}()

	var line string
	select {
	case line = <-lines:
	case <-time.After(5 * time.Second):
		t.Fatal("no response from MCP server")
	}

	var resp struct {
		ID     int `json:"id"`
		Result struct {
			Tools []struct {
				Name        string          `json:"name"`
				InputSchema json.RawMessage `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.Equal(t, 1, resp.ID)
	require.Len(t, resp.Result.Tools, 1)
	assert.Equal(t, "calculator", resp.Result.Tools[0].Name)
	assert.Contains(t, string(resp.Result.Tools[0].InputSchema), `"expression"`)

	cancel()
	_ = inW.Close()
	_ = outR.Close()
	<-done
}
