package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/ccindex/internal/debug"
)

// DefaultExecTimeout bounds one compiler invocation.
const DefaultExecTimeout = 30 * time.Second

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as exiting. Calls that finish while the
// flag is set report failure so their output is not applied.
func SetShuttingDown(v bool) { shuttingDown.Store(v) }

// ShuttingDown reports the shutdown flag.
func ShuttingDown() bool { return shuttingDown.Load() }

// Executor runs an external program synchronously and captures its output
// lines. ok is false when the program is missing, could not be started, or
// the process is shutting down.
type Executor interface {
	Execute(ctx context.Context, c Compiler, program string, args []string) (stdout, stderr []string, ok bool)
}

// SafeExecutor runs one program at a time with the compiler's bin directory
// prepended to PATH.
type SafeExecutor struct {
	Timeout time.Duration

	busy atomic.Bool
}

// NewSafeExecutor returns an executor with the given timeout; zero selects
// DefaultExecTimeout.
func NewSafeExecutor(timeout time.Duration) *SafeExecutor {
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	return &SafeExecutor{Timeout: timeout}
}

func (e *SafeExecutor) Execute(ctx context.Context, c Compiler, program string, args []string) ([]string, []string, bool) {
	cmdPath, ok := resolveProgram(c, program)
	if !ok {
		debug.LogToolchain("invalid application command: %s\n", c.Program(program))
		return nil, nil, false
	}

	if !e.busy.CompareAndSwap(false, true) {
		debug.LogToolchain("re-entry protection: %s not run\n", cmdPath)
		return nil, nil, false
	}
	defer e.busy.Store(false)

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if bin := c.BinDir(); bin != "" {
		cmd.Env = withPathPrefix(os.Environ(), bin)
	}

	err := cmd.Run()
	if ShuttingDown() {
		return nil, nil, false
	}
	if err != nil {
		var exitErr *exec.ExitError
		// Compilers print their banner and exit non-zero when given no input.
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			debug.LogToolchain("failed application call %s %s: %v\n", cmdPath, strings.Join(args, " "), err)
			return nil, nil, false
		}
	}
	return splitLines(stdout.Bytes()), splitLines(stderr.Bytes()), true
}

func resolveProgram(c Compiler, program string) (string, bool) {
	if program == "" {
		return "", false
	}
	path := c.Program(program)
	if strings.ContainsRune(path, filepath.Separator) || filepath.IsAbs(path) {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return "", false
		}
		return path, true
	}
	found, err := exec.LookPath(path)
	if err != nil {
		return "", false
	}
	return found, true
}

func withPathPrefix(env []string, dir string) []string {
	out := make([]string, 0, len(env)+1)
	set := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			kv = "PATH=" + dir + string(os.PathListSeparator) + strings.TrimPrefix(kv, "PATH=")
			set = true
		}
		out = append(out, kv)
	}
	if !set {
		out = append(out, "PATH="+dir)
	}
	return out
}

func splitLines(b []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	return lines
}
