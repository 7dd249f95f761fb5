package mcp

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticLoggerTagsRoot(t *testing.T) {
	var buf bytes.Buffer
	dl := NewWriterLogger("/src/geometry", &buf)

	dl.ToolCall("complete", 1500*time.Microsecond, nil)
	dl.ToolCall("reparse", time.Millisecond, errors.New("file is not a C/C++ source"))
	dl.Busy("calltip", "CreateParser batch of 3 file(s) in progress")
	dl.Busy("calltip", "")

	out := buf.String()
	assert.Contains(t, out, "[ccindex geometry] ")
	assert.Contains(t, out, "complete ok in 1.5ms")
	assert.Contains(t, out, "reparse failed after 1ms: file is not a C/C++ source")
	assert.Contains(t, out, "calltip answered busy: CreateParser batch of 3 file(s) in progress")
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("\n")))
	assert.Empty(t, dl.Path())
}

func TestLogPathForRoot(t *testing.T) {
	a := LogPathForRoot("/src/one")
	assert.Equal(t, a, LogPathForRoot("/src/one/"))
	assert.NotEqual(t, a, LogPathForRoot("/src/two"))
	assert.Equal(t, filepath.Join(os.TempDir(), DiagnosticLogDir), filepath.Dir(a))
}

func TestDiagnosticLoggerAppendsToRootFile(t *testing.T) {
	root := t.TempDir()
	path := LogPathForRoot(root)
	t.Cleanup(func() { os.Remove(path) })

	first := NewDiagnosticLogger(root)
	require.Equal(t, path, first.Path())
	first.Printf("first run")
	require.NoError(t, first.Close())

	second := NewDiagnosticLogger(root)
	second.Printf("second run")
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first run")
	assert.Contains(t, string(data), "second run")
}

func TestToolCallsAreLogged(t *testing.T) {
	s, file := newTestServer(t)
	var buf bytes.Buffer
	s.diagnosticLogger = NewWriterLogger(s.svc.Config().Project.Root, &buf)

	_, err := s.CallTool("complete", map[string]interface{}{
		"file": file, "line": 12, "column": 7,
	})
	require.NoError(t, err)
	_, _ = s.CallTool("reparse", map[string]interface{}{"file": filepath.Join(filepath.Dir(file), "notes.txt")})

	assert.Contains(t, buf.String(), "complete ok in")
	assert.Contains(t, buf.String(), "reparse failed after")
}
