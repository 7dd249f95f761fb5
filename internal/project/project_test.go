package project

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/types"
)

const projectTOML = `
title = "engine"
compiler = "gcc"
include_dirs = ["include", "/opt/sdk/include"]
compiler_options = ["-std=c++17", "-DENGINE=1"]
files = ["src/**/*.cpp", "include/**/*.h"]
exclude = ["src/generated/**"]
active_target = "all"

[[target]]
name = "debug"
compiler_options = ["-DDEBUG"]

[[target]]
name = "release"
compiler_options = ["-DNDEBUG"]
platforms = ["windows"]

[virtual_targets]
all = ["debug", "release"]

[extensions.code_completion]
search_paths = ["third_party", "vendor/include"]
`

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func loadSample(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		FileName:                   projectTOML,
		"src/main.cpp":             "int main() {}",
		"src/core/world.cpp":       "",
		"src/generated/parser.cpp": "",
		"src/notes.txt":            "",
		"include/world.h":          "",
	})
	p, err := Load(filepath.Join(root, FileName))
	require.NoError(t, err)
	return p
}

func TestLoadResolvesFiles(t *testing.T) {
	p := loadSample(t)

	assert.Equal(t, "engine", p.Name())
	assert.Equal(t, "gcc", p.Compiler)

	var rels []string
	for _, f := range p.FileList() {
		rels = append(rels, f.Relative)
	}
	assert.Equal(t, []string{"include/world.h", "src/core/world.cpp", "src/main.cpp"}, rels)

	assert.True(t, p.HasFile(filepath.Join(p.BasePath(), "src", "main.cpp")))
	assert.True(t, p.HasFile("src/main.cpp"), "relative paths resolve against the base path")
	assert.False(t, p.HasFile("src/generated/parser.cpp"), "excluded")

	assert.Equal(t, []string{filepath.Join(p.BasePath(), "include", "world.h")}, p.FilesOfType(types.FileHeader))
	assert.Len(t, p.FilesOfType(types.FileSource), 2)
}

func TestTargets(t *testing.T) {
	p := loadSample(t)

	assert.Nil(t, p.ActiveBuildTarget(), "active target is virtual")
	members := p.ExpandedVirtualTarget()
	require.Len(t, members, 2)
	assert.Equal(t, "debug", members[0].Name)
	assert.Equal(t, "release", members[1].Name)

	p.ActiveTarget = "debug"
	require.NotNil(t, p.ActiveBuildTarget())
	assert.Equal(t, []string{"-DDEBUG"}, p.ActiveBuildTarget().CompilerOptions)
	assert.Nil(t, p.ExpandedVirtualTarget())
}

func TestLoadRejectsUnknownTargets(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		FileName: "title = \"x\"\nactive_target = \"nope\"\n",
	})
	_, err := Load(filepath.Join(root, FileName))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownTarget))

	var cfgErr *errors.ConfigError
	require.True(t, stderrors.As(err, &cfgErr))
	assert.Equal(t, errors.ErrorTypeProject, cfgErr.Type)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	var fileErr *errors.FileError
	require.True(t, stderrors.As(err, &fileErr))
	assert.Equal(t, "read", fileErr.Operation)
}

func TestSearchDirsRoundTrip(t *testing.T) {
	p := loadSample(t)
	assert.Equal(t, []string{"third_party", "vendor/include"}, p.SearchDirs())
	assert.False(t, p.Modified())

	dirs := []string{"/usr/local/include", "extra", "/opt/x"}
	p.SetSearchDirs(dirs)
	assert.True(t, p.Modified())
	assert.Equal(t, dirs, p.SearchDirs())

	require.NoError(t, p.Save())
	assert.False(t, p.Modified())

	reloaded, err := Load(p.Path())
	require.NoError(t, err)
	assert.Equal(t, dirs, reloaded.SearchDirs(), "order kept and nothing added")
	assert.Equal(t, p.Targets, reloaded.Targets)
	assert.Equal(t, p.VirtualTargets, reloaded.VirtualTargets)
}

func TestSearchDirsAreCopied(t *testing.T) {
	p := New("x", t.TempDir())
	dirs := []string{"a", "b"}
	p.SetSearchDirs(dirs)
	dirs[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, p.SearchDirs())
}

func TestSearchDirsDropDuplicates(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		FileName: `title = "dup"

[extensions.code_completion]
search_paths = ["include", "third_party", "include", "vendor", "third_party"]
`,
	})
	p, err := Load(filepath.Join(root, FileName))
	require.NoError(t, err)
	assert.Equal(t, []string{"include", "third_party", "vendor"}, p.SearchDirs())
}

func TestSaveWithoutPath(t *testing.T) {
	err := New("x", t.TempDir()).Save()
	assert.True(t, stderrors.Is(err, errors.ErrNoProjectFile))
}

func TestAddAndRemoveFile(t *testing.T) {
	root := t.TempDir()
	p := New("x", root)

	assert.True(t, p.AddFile(filepath.Join(root, "a.cpp")))
	assert.False(t, p.AddFile(filepath.Join(root, "a.cpp")), "already present")
	assert.False(t, p.AddFile(filepath.Join(root, "README.md")), "not parsable")
	assert.False(t, p.AddFile(filepath.Join(filepath.Dir(root), "outside.cpp")))
	assert.True(t, p.AddFile("b.h"))

	assert.True(t, p.RemoveFile("a.cpp"))
	assert.False(t, p.RemoveFile("a.cpp"))
	require.Len(t, p.FileList(), 1)
	assert.True(t, p.HasFile("b.h"))
}

func TestFromDirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.c":         "",
		"lib/b.hpp":   "",
		"lib/c.tpp":   "",
		"doc/readme":  "",
		"build/x.txt": "",
	})
	p, err := FromDirectory(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root), p.Name())
	assert.Len(t, p.FileList(), 3)
	assert.Equal(t, []string{filepath.Join(p.BasePath(), "lib", "c.tpp")}, p.FilesOfType(types.FileTemplateSource))
}

func TestSupportsPlatform(t *testing.T) {
	tests := []struct {
		name      string
		platforms []string
		goos      string
		want      bool
	}{
		{"empty admits all", nil, "linux", true},
		{"all", []string{"all"}, "windows", true},
		{"unix on linux", []string{"unix"}, "linux", true},
		{"unix on darwin", []string{"unix"}, "darwin", true},
		{"unix on windows", []string{"unix"}, "windows", false},
		{"windows only", []string{"windows"}, "linux", false},
		{"mac", []string{"mac"}, "darwin", true},
		{"goos name", []string{"freebsd"}, "freebsd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SupportsPlatform(tt.platforms, tt.goos))
		})
	}
}

func TestWorkspace(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		WorkspaceFileName: "title = \"ws\"\nprojects = [\"core\", \"app/ccproject.toml\"]\nactive = \"app\"\n",
		"core/" + FileName: "title = \"core\"\n",
		"core/core.h":      "",
		"app/" + FileName:  "title = \"app\"\n",
		"app/main.cpp":     "",
	})

	ws, err := LoadWorkspace(filepath.Join(root, WorkspaceFileName))
	require.NoError(t, err)

	all := ws.All()
	require.Len(t, all, 2)
	assert.Equal(t, "core", all[0].Name())
	assert.Equal(t, "app", ws.ActiveProject().Name())

	owner := ws.ProjectByFilename(filepath.Join(root, "core", "core.h"))
	require.NotNil(t, owner)
	assert.Equal(t, "core", owner.Name())
	assert.Nil(t, ws.ProjectByFilename(filepath.Join(root, "other.cpp")))

	assert.False(t, ws.SetActive(New("stray", root)))
	assert.True(t, ws.Remove(ws.ActiveProject()))
	assert.Equal(t, "core", ws.ActiveProject().Name(), "first remaining project becomes active")
}

func TestWorkspaceUnknownActive(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		WorkspaceFileName:  "projects = [\"core\"]\nactive = \"missing\"\n",
		"core/" + FileName: "title = \"core\"\n",
	})
	_, err := LoadWorkspace(filepath.Join(root, WorkspaceFileName))
	assert.True(t, stderrors.Is(err, errors.ErrUnknownProject))
}
