package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/ccindex/internal/server"
	"github.com/standardbeagle/ccindex/internal/service"
	"github.com/standardbeagle/ccindex/testhelpers"
)

func TestMain(m *testing.M) {
	executor = testhelpers.NoCompiler{}
	os.Exit(m.Run())
}

// runCLI runs the app in-process and returns what it wrote to stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"ccindex"}, args...))
	return out.String(), err
}

func TestParsePosition(t *testing.T) {
	abs, err := filepath.Abs("main.cpp")
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    []string
		line    int
		col     int
		wantErr bool
	}{
		{"separate", []string{"main.cpp", "4:9"}, 4, 9, false},
		{"joined", []string{"main.cpp:12:3"}, 12, 3, false},
		{"missing column", []string{"main.cpp", "4"}, 0, 0, true},
		{"bad line", []string{"main.cpp", "x:1"}, 0, 0, true},
		{"no position", []string{"main.cpp"}, 0, 0, true},
		{"too many", []string{"a", "b", "c"}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, line, col, err := parsePosition(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, abs, file)
			assert.Equal(t, tt.line, line)
			assert.Equal(t, tt.col, col)
		})
	}
}

func TestCompleteCommand(t *testing.T) {
	root := testhelpers.WidgetProject(t)
	file := filepath.Join(root, "main.cpp")

	out, err := runCLI(t, "", "--root", root, "--local", "--json", "complete", file, "4:9")
	require.NoError(t, err)

	var resp service.CompleteResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "width", resp.Items[0].Name)
	assert.Equal(t, "Widget", resp.Items[0].Scope)
}

func TestCompleteCommandReadsStdin(t *testing.T) {
	root := testhelpers.WidgetProject(t)
	file := filepath.Join(root, "main.cpp")
	unsaved := strings.Replace(testhelpers.WidgetSource, "w.wi", "w.dr", 1)

	out, err := runCLI(t, unsaved, "--root", root, "--local", "complete", "--stdin", file+":4:9")
	require.NoError(t, err)
	assert.Contains(t, out, "draw")
	assert.NotContains(t, out, "width")
}

func TestCalltipCommand(t *testing.T) {
	root := testhelpers.WidgetProject(t)
	file := filepath.Join(root, "main.cpp")

	out, err := runCLI(t, "", "--root", root, "--local", "calltip", file, "5:16")
	require.NoError(t, err)
	assert.Contains(t, out, "void resize(int w, int h)")
	assert.Contains(t, out, "argument 2")
}

func TestFunctionCommand(t *testing.T) {
	root := testhelpers.WidgetProject(t)
	file := filepath.Join(root, "main.cpp")

	out, err := runCLI(t, "", "--root", root, "--local", "function", file, "3:5")
	require.NoError(t, err)
	assert.Contains(t, out, "run (line 2)")
}

func TestTokensCommand(t *testing.T) {
	root := testhelpers.WidgetProject(t)

	out, err := runCLI(t, "", "--root", root, "--local", "--json", "tokens", "--kind", "class,function")
	require.NoError(t, err)

	var resp service.TokensResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	var names []string
	for _, tok := range resp.Tokens {
		names = append(names, tok.Name)
	}
	assert.Subset(t, names, []string{"Widget", "draw", "resize", "run"})
}

func TestTokensCommandTree(t *testing.T) {
	root := testhelpers.WidgetProject(t)

	out, err := runCLI(t, "", "--root", root, "--local", "tokens", "--kind", "class,function,variable", "--tree")
	require.NoError(t, err)
	assert.Contains(t, out, "Widget (class) [widget.h:1]")
	assert.Contains(t, out, "resize(int w, int h) (function)")
}

func TestFunctionsCommand(t *testing.T) {
	root := testhelpers.WidgetProject(t)
	file := filepath.Join(root, "main.cpp")

	out, err := runCLI(t, "", "--root", root, "--local", "functions", file)
	require.NoError(t, err)
	assert.Contains(t, out, "run")
}

func TestReparseRejectsNonSource(t *testing.T) {
	root := testhelpers.WidgetProject(t)
	notes := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("notes"), 0o644))

	_, err := runCLI(t, "", "--root", root, "--local", "reparse", notes)
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	root := testhelpers.WidgetProject(t)

	out, err := runCLI(t, "", "--root", root, "--local", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:     ready")
	assert.Contains(t, out, "Files:      2")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ccindex")
}

func TestCommandsUseRunningServer(t *testing.T) {
	root := testhelpers.WidgetProject(t)

	cfg := testhelpers.TestConfig(root, "widgets")
	svc := testhelpers.OpenService(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv, err := startIndexServer(cfg, svc)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Wait(ctx)
		_ = shutdownIndexServer(srv)
	}()

	out, err := runCLI(t, "", "--root", root, "--json", "status")
	require.NoError(t, err)
	var st service.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "widgets", st.Active)

	out, err = runCLI(t, "", "--root", root, "shutdown")
	require.NoError(t, err)
	assert.Contains(t, out, "Server shut down successfully")
	<-done

	assert.False(t, server.NewClient(root).IsServerRunning())
}

func TestShutdownWithoutServer(t *testing.T) {
	_, err := runCLI(t, "", "--root", t.TempDir(), "shutdown")
	assert.Error(t, err)
}
