package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ccindex/internal/project"
)

func fixture(t *testing.T, name string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

type call struct {
	program string
	args    []string
}

// fakeExecutor answers by program name and records each call.
type fakeExecutor struct {
	mu     sync.Mutex
	stdout map[string][]string
	stderr map[string][]string
	calls  []call
}

func (f *fakeExecutor) Execute(_ context.Context, _ Compiler, program string, args []string) ([]string, []string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{program, args})
	out, okOut := f.stdout[program]
	errOut, okErr := f.stderr[program]
	return out, errOut, okOut || okErr
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestScrapeGCCIncludeDirs(t *testing.T) {
	tests := []struct {
		fixture string
		want    []string
	}{
		{"gcc9-include.txt", []string{
			"/usr/include/c++/9",
			"/usr/include/x86_64-linux-gnu/c++/9",
			"/usr/include/c++/9/backward",
			"/usr/lib/gcc/x86_64-linux-gnu/9/include",
			"/usr/local/include",
			"/usr/include/x86_64-linux-gnu",
			"/usr/include",
		}},
		{"gcc13-include.txt", []string{
			"/usr/include/c++/13.2.1",
			"/usr/include/c++/13.2.1/x86_64-pc-linux-gnu",
			"/usr/include/c++/13.2.1/backward",
			"/usr/lib/gcc/x86_64-pc-linux-gnu/13.2.1/include",
			"/usr/local/include",
			"/usr/lib/gcc/x86_64-pc-linux-gnu/13.2.1/include-fixed",
			"/usr/include",
		}},
		{"clang15-include.txt", []string{
			"/usr/local/include",
			"/Library/Developer/CommandLineTools/usr/include/c++/v1",
			"/Library/Developer/CommandLineTools/usr/lib/clang/15.0.0/include",
			"/Library/Developer/CommandLineTools/SDKs/MacOSX.sdk/usr/include",
			"/Library/Developer/CommandLineTools/usr/include",
			"/Library/Developer/CommandLineTools/SDKs/MacOSX.sdk/System/Library/Frameworks",
		}},
	}
	if runtime.GOOS == "windows" {
		t.Skip("fixtures use slash paths")
	}
	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			assert.Equal(t, tt.want, ScrapeGCCIncludeDirs(fixture(t, tt.fixture)))
		})
	}
}

func TestScrapeGCCIncludeDirsWithoutMarker(t *testing.T) {
	assert.Empty(t, ScrapeGCCIncludeDirs([]string{"g++: fatal error: no input files"}))
	assert.Empty(t, ScrapeGCCIncludeDirs(nil))
}

func TestScrapeMSVCBanner(t *testing.T) {
	tests := []struct {
		fixture string
		want    string
	}{
		{"msvc8-banner.txt", "#define _WIN32\n#define _MSC_VER 1400\n"},
		{"msvc12-banner.txt", "#define _WIN32\n#define _MSC_VER 1800\n"},
		{"msvc19-banner.txt", "#define _WIN64\n#define _MSC_VER 1920\n"},
	}
	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			assert.Equal(t, tt.want, ScrapeMSVCBanner(fixture(t, tt.fixture)[0]))
		})
	}
	assert.Empty(t, ScrapeMSVCBanner("cl is not recognized as an internal or external command"))
}

func TestScrapeMacroDump(t *testing.T) {
	defs := ScrapeMacroDump(append([]string{"# 1 \"/dev/null\"", ""}, fixture(t, "gcc13-macros.txt")...))
	lines := strings.Split(strings.TrimSuffix(defs, "\n"), "\n")
	assert.Len(t, lines, 15)
	assert.Contains(t, defs, "#define __GNUC__ 13\n")
	assert.Contains(t, defs, "#define __cplusplus 201703L\n")
	assert.NotContains(t, defs, "# 1")
}

func TestDefineSwitches(t *testing.T) {
	opts := []string{"-DFOO=1", "-DBAR", "/DWIN=2", "-O2", "-D", "-DEQ=a=b"}
	assert.Equal(t, "#define FOO 1\n#define BAR\n#define EQ a=b\n", DefineSwitches(FamilyGCC, opts))
	assert.Equal(t, "#define FOO 1\n#define BAR\n#define WIN 2\n#define EQ a=b\n", DefineSwitches(FamilyMSVC, opts))
	assert.Empty(t, DefineSwitches(FamilyUnknown, opts))
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, FamilyGCC, FamilyOf("gcc"))
	assert.Equal(t, FamilyGCC, FamilyOf("arm-elf-gcc"))
	assert.Equal(t, FamilyGCC, FamilyOf("clang"))
	assert.Equal(t, FamilyGCC, FamilyOf("mingw64"))
	assert.Equal(t, FamilyMSVC, FamilyOf("msvc10"))
	assert.Equal(t, FamilyUnknown, FamilyOf("tcc"))
	assert.Equal(t, "msvc", FamilyMSVC.String())
}

func TestLanguageStandard(t *testing.T) {
	assert.Equal(t, "-std=c++17", LanguageStandard([]string{"-O2", "-std=c++17", "-std=c++20"}))
	assert.Equal(t, "/std:c++latest", LanguageStandard([]string{"/std:c++latest"}))
	assert.Empty(t, LanguageStandard([]string{"-Wall"}))
}

func newTestDiscoverer(exec Executor, compilers []Compiler, opts Options) *Discoverer {
	d := NewDiscoverer(exec, compilers, opts, NewCache())
	d.dirExists = func(dir string) bool { return !strings.Contains(dir, "missing") }
	d.goos = "linux"
	return d
}

func sampleProject(t *testing.T) *project.Project {
	p := project.New("engine", t.TempDir())
	p.Compiler = "gcc"
	p.IncludeDirs = []string{"include", "/opt/sdk/include", "include"}
	p.CompilerOptions = []string{"-DENGINE=1"}
	p.Targets = []project.Target{
		{Name: "debug", IncludeDirs: []string{"debug/include"}, CompilerOptions: []string{"-std=c++20", "-DDEBUG"}},
		{Name: "win", IncludeDirs: []string{"win/include"}, CompilerOptions: []string{"-DWIN"}, Platforms: []string{"windows"}},
	}
	p.VirtualTargets = map[string][]string{"all": {"debug", "win"}}
	p.ActiveTarget = "debug"
	return p
}

func TestAddCompilerDirs(t *testing.T) {
	exec := &fakeExecutor{stderr: map[string][]string{
		"g++": {"#include <...> search starts here:", " /usr/include/c++/13", " /usr/missing", " /usr/include", "End of search list."},
	}}
	compilers := []Compiler{{ID: "gcc", CPP: "g++", C: "gcc", IncludeDirs: []string{"/opt/gcc/include"}}}
	d := newTestDiscoverer(exec, compilers, Options{PlatformCheck: true})
	p := sampleProject(t)

	dirs := d.AddCompilerDirs(context.Background(), p)
	assert.Equal(t, []string{
		p.BasePath(),
		filepath.Join(p.BasePath(), "include"),
		"/opt/sdk/include",
		filepath.Join(p.BasePath(), "debug", "include"),
		"/opt/gcc/include",
		"/usr/include/c++/13",
	}, dirs, "windows-only target skipped and built-in dirs stop at the first missing one")

	d.SetOptions(Options{})
	dirs = d.AddCompilerDirs(context.Background(), p)
	assert.Contains(t, dirs, filepath.Join(p.BasePath(), "win", "include"))
	assert.Equal(t, 1, exec.callCount(), "built-in dirs are cached per executable")
}

func TestAddCompilerDirsWithoutProject(t *testing.T) {
	exec := &fakeExecutor{}
	d := newTestDiscoverer(exec, []Compiler{{ID: "gcc", CPP: "g++", IncludeDirs: []string{"/opt/inc"}}}, Options{})
	d.SetDefaultCompiler("gcc")
	assert.Equal(t, []string{"/opt/inc"}, d.AddCompilerDirs(context.Background(), nil))
}

func TestGCCPredefinedMacros(t *testing.T) {
	exec := &fakeExecutor{stdout: map[string][]string{"g++": fixture(t, "gcc13-macros.txt")}}
	d := newTestDiscoverer(exec, []Compiler{{ID: "gcc", CPP: "g++"}}, Options{WantPreprocessor: true})
	p := sampleProject(t)

	defs := d.AddCompilerPredefinedMacros(context.Background(), p)
	assert.Contains(t, defs, "#define __GNUC__ 13\n")
	require.Len(t, exec.calls, 1)
	assert.Equal(t, []string{"-E", "-dM", "-x", "c++", "-std=c++20", "/dev/null"}, exec.calls[0].args,
		"standard comes from the first target that sets one")

	assert.Equal(t, defs, d.AddCompilerPredefinedMacros(context.Background(), p))
	assert.Equal(t, 1, exec.callCount(), "cached per executable and standard")

	p.CompilerOptions = append(p.CompilerOptions, "-std=c++11")
	d.AddCompilerPredefinedMacros(context.Background(), p)
	assert.Equal(t, 2, exec.callCount(), "a different standard is a different cache entry")
	assert.Contains(t, exec.calls[1].args, "-std=c++11")
}

func TestMSVCPredefinedMacros(t *testing.T) {
	exec := &fakeExecutor{stderr: map[string][]string{"cl.exe": fixture(t, "msvc19-banner.txt")}}
	d := newTestDiscoverer(exec, []Compiler{{ID: "msvc", C: "cl.exe", CPP: "cl.exe"}}, Options{WantPreprocessor: true})
	p := project.New("win", t.TempDir())
	p.Compiler = "msvc"

	assert.Equal(t, "#define _WIN64\n#define _MSC_VER 1920\n", d.AddCompilerPredefinedMacros(context.Background(), p),
		"results are returned, not discarded")
	require.Len(t, exec.calls, 1)
	assert.Empty(t, exec.calls[0].args)
}

func TestPredefinedMacrosDegradeOnFailure(t *testing.T) {
	d := newTestDiscoverer(&fakeExecutor{}, []Compiler{{ID: "gcc", CPP: "g++"}, {ID: "tcc", CPP: "tcc"}}, Options{WantPreprocessor: true})
	p := project.New("x", t.TempDir())
	p.Compiler = "gcc"
	assert.Empty(t, d.AddCompilerPredefinedMacros(context.Background(), p))

	p.Compiler = "tcc"
	assert.Empty(t, d.AddCompilerPredefinedMacros(context.Background(), p), "unknown family")

	p.Compiler = "nope"
	assert.Empty(t, d.AddCompilerPredefinedMacros(context.Background(), p), "unknown compiler")
}

func TestAddProjectDefinedMacros(t *testing.T) {
	d := newTestDiscoverer(&fakeExecutor{}, []Compiler{{ID: "gcc", CPP: "g++"}}, Options{PlatformCheck: true})
	p := sampleProject(t)

	assert.Equal(t, "#define ENGINE 1\n#define DEBUG\n", d.AddProjectDefinedMacros(p))

	p.ActiveTarget = "all"
	assert.Equal(t, "#define ENGINE 1\n#define DEBUG\n", d.AddProjectDefinedMacros(p), "windows-only member skipped")

	d.SetOptions(Options{})
	assert.Equal(t, "#define ENGINE 1\n#define DEBUG\n#define WIN\n", d.AddProjectDefinedMacros(p))
	assert.Empty(t, d.AddProjectDefinedMacros(nil))
}

func TestEnvironment(t *testing.T) {
	exec := &fakeExecutor{stdout: map[string][]string{"g++": {"#define __GNUC__ 13"}}}
	d := newTestDiscoverer(exec, []Compiler{{ID: "gcc", CPP: "g++"}}, Options{WantPreprocessor: true})
	p := sampleProject(t)

	env := d.Environment(context.Background(), p)
	assert.Equal(t, "#define __GNUC__ 13\n#define ENGINE 1\n#define DEBUG\n", env.Macros)
	assert.Equal(t, p.BasePath(), env.IncludeDirs[0])

	d.SetOptions(Options{})
	assert.Empty(t, d.Environment(context.Background(), p).Macros)
}

func TestSafeExecutorMissingProgram(t *testing.T) {
	e := NewSafeExecutor(0)
	_, _, ok := e.Execute(context.Background(), Compiler{MasterPath: t.TempDir()}, "g++", nil)
	assert.False(t, ok)
	_, _, ok = e.Execute(context.Background(), Compiler{}, "", nil)
	assert.False(t, ok)
}

func TestSafeExecutorReentry(t *testing.T) {
	e := NewSafeExecutor(0)
	e.busy.Store(true)
	self, err := os.Executable()
	require.NoError(t, err)
	_, _, ok := e.Execute(context.Background(), Compiler{}, self, []string{"-test.run=^$"})
	assert.False(t, ok, "a call while another runs is refused")
}

func TestSafeExecutorRunsProgram(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)
	e := NewSafeExecutor(0)
	stdout, _, ok := e.Execute(context.Background(), Compiler{}, self, []string{"-test.run=^$"})
	require.True(t, ok)
	assert.NotEmpty(t, stdout)
}

func TestSafeExecutorShutdown(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)
	SetShuttingDown(true)
	defer SetShuttingDown(false)
	_, _, ok := NewSafeExecutor(0).Execute(context.Background(), Compiler{}, self, []string{"-test.run=^$"})
	assert.False(t, ok)
}

func TestWithPathPrefix(t *testing.T) {
	sep := string(os.PathListSeparator)
	env := withPathPrefix([]string{"HOME=/h", "PATH=/usr/bin"}, "/opt/gcc/bin")
	assert.Equal(t, []string{"HOME=/h", "PATH=/opt/gcc/bin" + sep + "/usr/bin"}, env)
	assert.Equal(t, []string{"PATH=/x"}, withPathPrefix(nil, "/x"))
}

func TestCompilerProgram(t *testing.T) {
	c := Compiler{ID: "gcc", MasterPath: "/opt/gcc", CPP: "g++"}
	assert.Equal(t, filepath.Join("/opt/gcc", "bin", "g++"), c.Program(c.CPP))
	assert.Equal(t, "g++", Compiler{CPP: "g++"}.Program("g++"))
	assert.Empty(t, Compiler{}.BinDir())
}
