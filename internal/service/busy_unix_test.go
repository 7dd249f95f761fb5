//go:build linux || darwin

package service

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A fifo source keeps the initial batch running until the test writes to it.
func TestQueriesDoNotWaitForBusyParser(t *testing.T) {
	root := writeTree(t, map[string]string{"widget.h": widgetHeader, "main.cpp": mainSource})
	slow := filepath.Join(root, "slow.cpp")
	require.NoError(t, syscall.Mkfifo(slow, 0o644))

	ctx := queryContext(t)
	s, err := Open(ctx, testConfig(root), Options{Executor: fakeCompiler{includeDir: t.TempDir()}})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	mainFile := filepath.Join(root, "main.cpp")
	pos := PositionRequest{File: mainFile, Line: 4, Column: 9}

	comp, err := s.Complete(ctx, CompleteRequest{PositionRequest: pos})
	assert.NoError(t, err)
	if assert.NotNil(t, comp) {
		assert.Empty(t, comp.Items)
		assert.Contains(t, comp.Busy, "in progress")
	}
	tip, err := s.CallTip(ctx, PositionRequest{File: mainFile, Line: 5, Column: 16})
	assert.NoError(t, err)
	if assert.NotNil(t, tip) {
		assert.Empty(t, tip.Tips)
		assert.NotEmpty(t, tip.Busy)
	}
	toks, err := s.Tokens(ctx, TokensRequest{})
	assert.NoError(t, err)
	if assert.NotNil(t, toks) {
		assert.Empty(t, toks.Tokens)
		assert.NotEmpty(t, toks.Busy)
	}
	assert.False(t, s.Status().Ready)

	written := make(chan error, 1)
	go func() {
		w, err := os.OpenFile(slow, os.O_WRONLY, 0)
		if err == nil {
			_, err = w.WriteString("int slow_value;\n")
			w.Close()
		}
		written <- err
	}()
	require.NoError(t, <-written)
	require.NoError(t, s.Wait(ctx))

	comp, err = s.Complete(ctx, CompleteRequest{PositionRequest: pos})
	require.NoError(t, err)
	assert.Empty(t, comp.Busy)
	require.Len(t, comp.Items, 1)
	assert.Equal(t, "width", comp.Items[0].Name)

	toks, err = s.Tokens(ctx, TokensRequest{Name: "slow_value"})
	require.NoError(t, err)
	assert.Len(t, toks.Tokens, 1)
}
