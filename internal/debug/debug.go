// Package debug is the diagnostic log used by every ccindex component.
// Output is off unless enabled at build time, by the DEBUG environment
// variable, or by SetEnabled, and it is always off in MCP mode so that stdio
// stays clean for the protocol.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Build flag for debug mode - can be overridden at build time
// go build -ldflags "-X github.com/standardbeagle/ccindex/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// MCPMode tracks if we're running as an MCP server (set by main)
var MCPMode = false

var (
	debugMutex  sync.Mutex
	debugOutput io.Writer
	debugFile   *os.File

	// forced is 0 for "follow build flag and env", 1 for on, 2 for off.
	forced atomic.Int32
)

// Component tags a log line with the subsystem that wrote it.
type Component string

const (
	Parser    Component = "PARSER"
	Resolver  Component = "RESOLVER"
	Registry  Component = "REGISTRY"
	Toolchain Component = "TOOLCHAIN"
	Watcher   Component = "WATCHER"
	MCP       Component = "MCP"
	Config    Component = "CONFIG"
)

// SetMCPMode enables MCP mode which suppresses all debug output to stdio
func SetMCPMode(enabled bool) {
	MCPMode = enabled
}

// SetEnabled overrides the build flag and environment.
func SetEnabled(on bool) {
	if on {
		forced.Store(1)
	} else {
		forced.Store(2)
	}
}

// ResetEnabled drops a SetEnabled override.
func ResetEnabled() {
	forced.Store(0)
}

// SetDebugOutput sets a custom writer for debug output.
// Pass nil to disable debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitDebugLogFile routes debug output to a timestamped file in the temp dir
// and returns its path. Call CloseDebugLog when done.
func InitDebugLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "ccindex-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", time.Now().Format("2006-01-02T150405")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile == nil {
		return nil
	}
	err := debugFile.Close()
	debugFile = nil
	debugOutput = nil
	return err
}

// IsDebugEnabled returns true if debug mode is enabled and we're not in MCP mode
func IsDebugEnabled() bool {
	if MCPMode {
		return false
	}
	switch forced.Load() {
	case 1:
		return true
	case 2:
		return false
	}
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("DEBUG")
	return v == "1" || v == "true"
}

func writer() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Printf prints an untagged debug line.
func Printf(format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	if w := writer(); w != nil {
		fmt.Fprintf(w, "[DEBUG] "+format, args...)
	}
}

// Log writes one line tagged with component.
func Log(component Component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format, append([]interface{}{string(component)}, args...)...)
}

func LogParser(format string, args ...interface{})    { Log(Parser, format, args...) }
func LogResolver(format string, args ...interface{})  { Log(Resolver, format, args...) }
func LogRegistry(format string, args ...interface{})  { Log(Registry, format, args...) }
func LogToolchain(format string, args ...interface{}) { Log(Toolchain, format, args...) }
func LogWatcher(format string, args ...interface{})   { Log(Watcher, format, args...) }
func LogMCP(format string, args ...interface{})       { Log(MCP, format, args...) }
func LogConfig(format string, args ...interface{})    { Log(Config, format, args...) }

// Fatal logs a catastrophic condition and returns it as an error. It never
// exits; callers decide what to do.
func Fatal(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if !MCPMode {
		if w := writer(); w != nil {
			fmt.Fprintf(w, "[FATAL] %s", msg)
		}
	}
	return fmt.Errorf("fatal error: %s", msg)
}
