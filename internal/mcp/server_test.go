package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/ccindex/internal/config"
	"github.com/standardbeagle/ccindex/internal/service"
	"github.com/standardbeagle/ccindex/testhelpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const source = `namespace geo {
class Point {
public:
    Point(int x, int y);
    int x;
    int y;
};
}
int distance(geo::Point a, geo::Point b);
void run() {
    geo::Point p(1, 2);
    p.
    distance(p,
}
`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	file := filepath.Join(root, "main.cpp")
	require.NoError(t, os.WriteFile(file, []byte(source), 0o644))

	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Project.Name = "geo"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc, err := service.Open(ctx, cfg, service.Options{Executor: testhelpers.NoCompiler{}})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Wait(ctx))

	return NewServer(svc, NoOpLogger), file
}

func decodeResult(t *testing.T, text string, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(text), v))
}

func TestCompleteTool(t *testing.T) {
	s, file := newTestServer(t)

	text, err := s.CallTool("complete", map[string]interface{}{
		"file": file, "line": 12, "column": 7,
	})
	require.NoError(t, err)

	var resp service.CompleteResponse
	decodeResult(t, text, &resp)
	var names []string
	for _, item := range resp.Items {
		names = append(names, item.Name)
	}
	assert.Subset(t, names, []string{"x", "y"})
}

func TestCompleteToolReportsUnknownFields(t *testing.T) {
	s, file := newTestServer(t)

	text, err := s.CallTool("complete", map[string]interface{}{
		"file": file, "line": 12, "column": 7, "pattern": "x",
	})
	require.NoError(t, err)

	var resp struct {
		Result   service.CompleteResponse `json:"result"`
		Warnings []UnknownField           `json:"warnings"`
	}
	decodeResult(t, text, &resp)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "pattern", resp.Warnings[0].Name)
	assert.NotEmpty(t, resp.Result.Items)
}

func TestCallTipTool(t *testing.T) {
	s, file := newTestServer(t)

	text, err := s.CallTool("calltip", map[string]interface{}{
		"file": file, "line": 13, "column": 17,
	})
	require.NoError(t, err)

	var resp service.CallTipResponse
	decodeResult(t, text, &resp)
	require.Len(t, resp.Tips, 1)
	assert.Contains(t, resp.Tips[0], "distance(")
	assert.Equal(t, 1, resp.TypedCommas)
}

func TestCurrentFunctionTool(t *testing.T) {
	s, file := newTestServer(t)

	text, err := s.CallTool("current_function", map[string]interface{}{
		"file": file, "line": 11, "column": 5,
	})
	require.NoError(t, err)

	var resp service.FunctionResponse
	decodeResult(t, text, &resp)
	assert.True(t, resp.Found)
	assert.Equal(t, "run", resp.Proc)
}

func TestListTokensTool(t *testing.T) {
	s, _ := newTestServer(t)

	text, err := s.CallTool("list_tokens", map[string]interface{}{"kind": "class,namespace"})
	require.NoError(t, err)

	var resp service.TokensResponse
	decodeResult(t, text, &resp)
	var names []string
	for _, tok := range resp.Tokens {
		names = append(names, tok.Name)
	}
	assert.ElementsMatch(t, []string{"geo", "Point"}, names)
}

func TestBufferFunctionsTool(t *testing.T) {
	s, file := newTestServer(t)

	text, err := s.CallTool("buffer_functions", map[string]interface{}{"file": file})
	require.NoError(t, err)

	var resp service.BufferFunctionsResponse
	decodeResult(t, text, &resp)
	require.Len(t, resp.Functions, 1)
	assert.Equal(t, "run", resp.Functions[0].Name)
	assert.Equal(t, 10, resp.Functions[0].Line)
}

func TestToolErrors(t *testing.T) {
	s, file := newTestServer(t)

	tests := []struct {
		tool   string
		params map[string]interface{}
	}{
		{"complete", map[string]interface{}{"line": 1, "column": 1}},
		{"calltip", map[string]interface{}{"file": file, "line": 400, "column": 1}},
		{"reparse", map[string]interface{}{"file": filepath.Join(filepath.Dir(file), "notes.txt")}},
		{"complete", map[string]interface{}{"file": file, "line": "twelve"}},
		{"info", map[string]interface{}{"tool": "nonesuch"}},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			text, err := s.CallTool(tt.tool, tt.params)
			require.Error(t, err)

			var data map[string]interface{}
			decodeResult(t, text, &data)
			assert.Equal(t, false, data["success"])
			assert.Equal(t, tt.tool, data["operation"])
		})
	}
}

func TestInfoTool(t *testing.T) {
	s, _ := newTestServer(t)

	text, err := s.CallTool("info", nil)
	require.NoError(t, err)
	assert.Contains(t, text, "complete")

	text, err = s.CallTool("info", map[string]interface{}{"tool": "version"})
	require.NoError(t, err)
	assert.Contains(t, text, ServerName)
}

func TestStatusAndEnvironmentTools(t *testing.T) {
	s, _ := newTestServer(t)

	text, err := s.CallTool("status", nil)
	require.NoError(t, err)
	var st service.Status
	decodeResult(t, text, &st)
	assert.True(t, st.Ready)
	assert.Equal(t, 1, st.Files)

	text, err = s.CallTool("environment", nil)
	require.NoError(t, err)
	var env service.EnvironmentResponse
	decodeResult(t, text, &env)
	assert.Equal(t, "geo", env.Project)
}

func TestToolsOverTransport(t *testing.T) {
	s, file := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := s.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	tools, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"info", "complete", "calltip", "current_function", "list_tokens",
		"buffer_functions", "reparse", "status", "environment",
	}, names)

	result, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "complete",
		Arguments: map[string]any{"file": file, "line": 12, "column": 7},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.NotEmpty(t, result.Content)

	require.NoError(t, cs.Close())
	ss.Wait()
}
