package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ccindex/internal/toolchain"
)

func TestWriteTree(t *testing.T) {
	root := WriteTree(t, map[string]string{"src/a.cpp": "int a;\n"})
	data, err := os.ReadFile(filepath.Join(root, "src", "a.cpp"))
	require.NoError(t, err)
	assert.Equal(t, "int a;\n", string(data))
}

func TestOpenServiceIndexesWidgets(t *testing.T) {
	root := WidgetProject(t)
	svc := OpenService(t, TestConfig(root, "widgets"))

	st := svc.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, "widgets", st.Active)
	assert.Equal(t, 2, st.Files)
}

func TestFakeCompiler(t *testing.T) {
	var exec toolchain.Executor = FakeCompiler{IncludeDir: "/opt/include"}
	out, _, ok := exec.Execute(context.Background(), toolchain.Compiler{}, "g++", []string{"-dM", "-E", "-"})
	require.True(t, ok)
	assert.Equal(t, []string{"#define __GNUC__ 13"}, out)

	_, errOut, ok := exec.Execute(context.Background(), toolchain.Compiler{}, "g++", []string{"-v", "-E", "-"})
	require.True(t, ok)
	assert.Contains(t, errOut, " /opt/include")
}

func TestWaitFor(t *testing.T) {
	var n atomic.Int32
	WaitFor(t, func() bool { return n.Add(1) >= 3 }, time.Second)
	assert.GreaterOrEqual(t, n.Load(), int32(3))
}
