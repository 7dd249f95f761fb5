// Package testhelpers holds fixtures shared by the packages that test
// against a running service.
package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ccindex/internal/config"
	"github.com/standardbeagle/ccindex/internal/service"
)

// WriteTree writes files below a fresh temp directory and returns it.
// Names are slash separated and relative to the root.
func WriteTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

// WidgetProject writes the widget header and source and returns the root.
func WidgetProject(t *testing.T) string {
	t.Helper()
	return WriteTree(t, map[string]string{
		"widget.h": WidgetHeader,
		"main.cpp": WidgetSource,
	})
}

// TestConfig returns defaults rooted at root, with the project named name.
func TestConfig(root, name string) *config.Config {
	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Project.Name = name
	return cfg
}

// OpenService opens cfg with no compiler and waits for the first batch.
// The service is closed when the test ends.
func OpenService(t *testing.T, cfg *config.Config) *service.Service {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc, err := service.Open(ctx, cfg, service.Options{Executor: NoCompiler{}})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Wait(ctx))
	return svc
}

// WaitFor polls condition until it holds, failing the test after timeout.
func WaitFor(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met within %v", timeout)
			return
		}
	}
}
