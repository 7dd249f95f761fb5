package mcp

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DiagnosticLogger records what the MCP server does for one index root:
// tool calls with their latency, busy answers and errors. stdout carries the
// protocol, so in MCP mode the log goes to a file per root that successive
// server runs append to.
type DiagnosticLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	path   string
}

// LogPathForRoot is the diagnostic log of the index rooted at root.
func LogPathForRoot(root string) string {
	sum := uint32(xxhash.Sum64String(filepath.Clean(root)))
	return filepath.Join(os.TempDir(), DiagnosticLogDir, fmt.Sprintf("ccindex-%08x.log", sum))
}

// NewDiagnosticLogger opens the log file of root. When the file cannot be
// created the logger discards everything rather than touch stdio.
func NewDiagnosticLogger(root string) *DiagnosticLogger {
	path := LogPathForRoot(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return NewWriterLogger(root, io.Discard)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return NewWriterLogger(root, io.Discard)
	}
	dl := NewWriterLogger(root, file)
	dl.file = file
	dl.path = path
	return dl
}

// NewWriterLogger logs to w. Lines are tagged with the root's base name so
// logs of several indexes can be told apart.
func NewWriterLogger(root string, w io.Writer) *DiagnosticLogger {
	prefix := fmt.Sprintf("[ccindex %s] ", filepath.Base(root))
	return &DiagnosticLogger{logger: log.New(w, prefix, log.LstdFlags|log.Lmsgprefix)}
}

// Path is the log file, or "" when not logging to a file.
func (dl *DiagnosticLogger) Path() string {
	if dl == nil {
		return ""
	}
	return dl.path
}

func (dl *DiagnosticLogger) Printf(format string, v ...interface{}) {
	if dl == nil || dl.logger == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	dl.logger.Printf(format, v...)
}

// ToolCall records one finished tool call.
func (dl *DiagnosticLogger) ToolCall(tool string, elapsed time.Duration, err error) {
	if err != nil {
		dl.Printf("%s failed after %v: %v", tool, elapsed.Round(time.Microsecond), err)
		return
	}
	dl.Printf("%s ok in %v", tool, elapsed.Round(time.Microsecond))
}

// Busy records a query answered empty because its parser was still running.
func (dl *DiagnosticLogger) Busy(tool, reason string) {
	if reason != "" {
		dl.Printf("%s answered busy: %s", tool, reason)
	}
}

// Close closes the log file if there is one.
func (dl *DiagnosticLogger) Close() error {
	if dl == nil {
		return nil
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file != nil {
		err := dl.file.Close()
		dl.file = nil
		return err
	}
	return nil
}

// NoOpLogger is used to suppress all logging
var NoOpLogger = NewWriterLogger("", io.Discard)
