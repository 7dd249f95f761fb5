package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/ccindex/internal/config"
	"github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/project"
	"github.com/standardbeagle/ccindex/internal/toolchain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const widgetHeader = `class Widget {
public:
    int width;
    void draw();
    void resize(int w, int h);
};
`

const mainSource = `#include "widget.h"
void run() {
    Widget w;
    w.wi
    w.resize(1,
}
`

// fakeCompiler reports one system include directory and one macro.
type fakeCompiler struct {
	includeDir string
}

func (e fakeCompiler) Execute(_ context.Context, _ toolchain.Compiler, _ string, args []string) ([]string, []string, bool) {
	for _, a := range args {
		if a == "-dM" {
			return []string{"#define __GNUC__ 13"}, nil, true
		}
	}
	return nil, []string{
		"#include <...> search starts here:",
		" " + e.includeDir,
		"End of search list.",
	}, true
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Project.Name = filepath.Base(root)
	cfg.CodeCompletion.DefaultCompiler = "gcc"
	return cfg
}

func openService(t *testing.T, root string) *Service {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, testConfig(root), Options{Executor: fakeCompiler{includeDir: t.TempDir()}})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Wait(ctx))
	return s
}

func queryContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoadWorkspaceScansRoot(t *testing.T) {
	root := writeTree(t, map[string]string{
		"widget.h":      widgetHeader,
		"main.cpp":      mainSource,
		"README.md":     "docs",
		"build/gen.cpp": "int gen;\n",
	})
	cfg := testConfig(root)
	cfg.Exclude = append(cfg.Exclude, "build/**")

	ws, err := LoadWorkspace(cfg)
	require.NoError(t, err)
	p := ws.ActiveProject()
	require.NotNil(t, p)
	assert.Len(t, p.FileList(), 2)
	assert.False(t, p.HasFile(filepath.Join(root, "build", "gen.cpp")))
}

func TestLoadWorkspacePrefersProjectFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/main.cpp": mainSource,
		"other.cpp":    "int other;\n",
		project.FileName: `title = "app"
files = ["src/**/*.cpp"]
`,
	})
	ws, err := LoadWorkspace(testConfig(root))
	require.NoError(t, err)
	p := ws.ActiveProject()
	require.NotNil(t, p)
	assert.Equal(t, "app", p.Name())
	assert.Len(t, p.FileList(), 1)
}

func TestLoadWorkspaceReportsBadGlob(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Include = []string{"src/[.cpp"}
	_, err := LoadWorkspace(cfg)
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	root := writeTree(t, map[string]string{"widget.h": widgetHeader, "main.cpp": mainSource})
	s := openService(t, root)
	ctx := queryContext(t)

	resp, err := s.Complete(ctx, CompleteRequest{
		PositionRequest: PositionRequest{File: filepath.Join(root, "main.cpp"), Line: 4, Column: 9},
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	got := resp.Items[0]
	assert.Equal(t, "width", got.Name)
	assert.Equal(t, "variable", got.Kind)
	assert.Equal(t, "Widget", got.Scope)
	assert.Equal(t, filepath.Join(root, "widget.h"), got.File)
	assert.Equal(t, 3, got.Line)
	assert.Equal(t, 1, resp.Total)
	assert.False(t, resp.Global)
}

func TestCompleteUnsavedBuffer(t *testing.T) {
	root := writeTree(t, map[string]string{"widget.h": widgetHeader, "main.cpp": mainSource})
	s := openService(t, root)

	text := "#include \"widget.h\"\nvoid run() {\n    Widget w;\n    w.dr\n}\n"
	resp, err := s.Complete(queryContext(t), CompleteRequest{
		PositionRequest: PositionRequest{File: filepath.Join(root, "main.cpp"), Line: 4, Column: 9, Text: text},
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "draw", resp.Items[0].Name)
}

func TestCompleteRejectsBadArguments(t *testing.T) {
	root := writeTree(t, map[string]string{"main.cpp": mainSource})
	s := openService(t, root)
	ctx := queryContext(t)

	_, err := s.Complete(ctx, CompleteRequest{})
	assert.ErrorIs(t, err, errors.ErrMissingFile)

	_, err = s.Complete(ctx, CompleteRequest{
		PositionRequest: PositionRequest{File: filepath.Join(root, "main.cpp"), Line: 99, Column: 1},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidPosition)

	_, err = s.Complete(ctx, CompleteRequest{
		PositionRequest: PositionRequest{File: filepath.Join(root, "missing.cpp"), Line: 1, Column: 1},
	})
	var fe *errors.FileError
	assert.ErrorAs(t, err, &fe)
}

func TestCallTip(t *testing.T) {
	root := writeTree(t, map[string]string{"widget.h": widgetHeader, "main.cpp": mainSource})
	s := openService(t, root)

	resp, err := s.CallTip(queryContext(t), PositionRequest{File: filepath.Join(root, "main.cpp"), Line: 5, Column: 17})
	require.NoError(t, err)
	assert.Equal(t, []string{"void resize(int w, int h)"}, resp.Tips)
	assert.Equal(t, 1, resp.TypedCommas)
}

func TestCurrentFunction(t *testing.T) {
	root := writeTree(t, map[string]string{"widget.h": widgetHeader, "main.cpp": mainSource})
	s := openService(t, root)
	file := filepath.Join(root, "main.cpp")

	resp, err := s.CurrentFunction(queryContext(t), PositionRequest{File: file, Line: 3, Column: 5})
	require.NoError(t, err)
	assert.True(t, resp.Found)
	assert.Equal(t, "run", resp.Proc)
	assert.Equal(t, 2, resp.Line)

	resp, err = s.CurrentFunction(queryContext(t), PositionRequest{File: file, Line: 1, Column: 1})
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestTokens(t *testing.T) {
	root := writeTree(t, map[string]string{"widget.h": widgetHeader, "main.cpp": mainSource})
	s := openService(t, root)
	ctx := queryContext(t)

	all, err := s.Tokens(ctx, TokensRequest{})
	require.NoError(t, err)
	assert.Equal(t, all.Total, len(all.Tokens))

	classes, err := s.Tokens(ctx, TokensRequest{Kind: "class"})
	require.NoError(t, err)
	require.Len(t, classes.Tokens, 1)
	assert.Equal(t, "Widget", classes.Tokens[0].Name)

	header, err := s.Tokens(ctx, TokensRequest{File: filepath.Join(root, "widget.h"), Kind: "function"})
	require.NoError(t, err)
	var names []string
	for _, tok := range header.Tokens {
		names = append(names, tok.Name)
	}
	assert.Equal(t, []string{"draw", "resize"}, names)

	limited, err := s.Tokens(ctx, TokensRequest{Name: "RE", Max: 1})
	require.NoError(t, err)
	require.Len(t, limited.Tokens, 1)
	assert.Equal(t, "resize", limited.Tokens[0].Name)
}

func TestBufferFunctions(t *testing.T) {
	root := writeTree(t, map[string]string{"widget.h": widgetHeader, "main.cpp": mainSource})
	s := openService(t, root)

	text := "void Widget::draw()\n{\n}\n\nint helper(int x)\n{\n    return x;\n}\n"
	resp, err := s.BufferFunctions(queryContext(t), BufferRequest{File: filepath.Join(root, "extra.cpp"), Text: text})
	require.NoError(t, err)
	require.Len(t, resp.Functions, 2)
	assert.Equal(t, "draw", resp.Functions[0].Name)
	assert.Equal(t, "Widget", resp.Functions[0].Scope)
	assert.Equal(t, "helper", resp.Functions[1].Name)
	assert.Equal(t, 5, resp.Functions[1].Line)
}

func TestReparse(t *testing.T) {
	root := writeTree(t, map[string]string{"widget.h": widgetHeader, "main.cpp": mainSource})
	s := openService(t, root)
	ctx := queryContext(t)

	header := filepath.Join(root, "widget.h")
	require.NoError(t, os.WriteFile(header, []byte("class Widget {\npublic:\n    int height;\n};\n"), 0o644))
	resp, err := s.Reparse(ctx, header)
	require.NoError(t, err)
	assert.True(t, resp.Scheduled)
	require.NoError(t, s.Wait(ctx))

	toks, err := s.Tokens(ctx, TokensRequest{Name: "height"})
	require.NoError(t, err)
	assert.Len(t, toks.Tokens, 1)

	_, err = s.Reparse(ctx, filepath.Join(root, "notes.txt"))
	assert.ErrorIs(t, err, errors.ErrNotParsable)
}

func TestEnvironmentAndStatus(t *testing.T) {
	root := writeTree(t, map[string]string{"widget.h": widgetHeader, "main.cpp": mainSource})
	s := openService(t, root)

	env := s.Environment(queryContext(t))
	assert.Equal(t, filepath.Base(root), env.Project)
	assert.Contains(t, env.Macros, "__GNUC__")
	assert.NotEmpty(t, env.IncludeDirs)

	st := s.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, 1, st.Parsers)
	assert.Equal(t, 2, st.Files)
	assert.Positive(t, st.Tokens)
	assert.Empty(t, st.Busy)
}

func TestStandaloneFileGetsItsOwnParser(t *testing.T) {
	root := writeTree(t, map[string]string{"widget.h": widgetHeader, "main.cpp": mainSource})
	s := openService(t, root)

	loose := writeTree(t, map[string]string{"loose.cpp": "int loose_value;\nvoid f() {\n    loose_\n}\n"})
	file := filepath.Join(loose, "loose.cpp")
	ctx := queryContext(t)
	require.NoError(t, s.Activate(ctx, file))
	require.NoError(t, s.Wait(ctx))
	resp, err := s.Complete(ctx, CompleteRequest{
		PositionRequest: PositionRequest{File: file, Line: 3, Column: 11},
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "loose_value", resp.Items[0].Name)
	assert.Equal(t, []string{file}, s.Status().Standalone)
}
