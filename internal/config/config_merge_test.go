package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ccindex/internal/toolchain"
)

// Unit tests for config merging logic

func TestMergeConfigs_ExclusionsMerge(t *testing.T) {
	base := &Config{
		Exclude: []string{
			"**/third_party/**",
			"**/vendor/**",
		},
	}

	project := &Config{
		Exclude: []string{
			"**/out/**",
			"**/build/**",
		},
	}

	merged := mergeConfigs(base, project)

	assert.Equal(t, []string{"**/third_party/**", "**/vendor/**", "**/out/**", "**/build/**"}, merged.Exclude)
}

func TestMergeConfigs_ExclusionsDeduplication(t *testing.T) {
	base := &Config{Exclude: []string{"**/vendor/**", "**/out/**"}}
	project := &Config{Exclude: []string{"**/vendor/**", "**/build/**"}}

	merged := mergeConfigs(base, project)

	assert.Equal(t, []string{"**/vendor/**", "**/out/**", "**/build/**"}, merged.Exclude)
}

func TestMergeConfigs_ProjectWins(t *testing.T) {
	base := &Config{
		CodeCompletion: CodeCompletion{MaxParsers: 9, Engine: "treesitter"},
		Include:        []string{"**/*.cc"},
	}
	project := &Config{
		Project:        Project{Name: "app"},
		CodeCompletion: CodeCompletion{MaxParsers: 2, Engine: "native"},
	}

	merged := mergeConfigs(base, project)

	assert.Equal(t, "app", merged.Project.Name)
	assert.Equal(t, 2, merged.CodeCompletion.MaxParsers)
	assert.Equal(t, "native", merged.CodeCompletion.Engine)
	assert.Equal(t, []string{"**/*.cc"}, merged.Include, "base include is used when project has none")
}

func TestMergeConfigs_CompilersByID(t *testing.T) {
	base := &Config{Compilers: []toolchain.Compiler{
		{ID: "gcc", CPP: "g++-12"},
		{ID: "icc", CPP: "icpc"},
	}}
	project := &Config{Compilers: []toolchain.Compiler{
		{ID: "gcc", CPP: "g++-13"},
	}}

	merged := mergeConfigs(base, project)

	require.Len(t, merged.Compilers, 2)
	assert.Equal(t, "g++-13", merged.Compilers[0].CPP)
	assert.Equal(t, "icc", merged.Compilers[1].ID)
	assert.Len(t, project.Compilers, 1, "project config is not modified")
}

func TestLoadWithRoot_MergesHomeConfig(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	require.NoError(t, os.WriteFile(filepath.Join(tmpHome, FileName), []byte(`
exclude "**/third_party/**"
codecompletion {
    max_parsers 8
}
`), 0o644))

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, FileName), []byte(`
exclude "**/out/**"
codecompletion {
    max_parsers 2
}
`), 0o644))

	cfg, err := LoadWithRoot("", projectDir)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.CodeCompletion.MaxParsers)
	assert.Contains(t, cfg.Exclude, "**/third_party/**")
	assert.Contains(t, cfg.Exclude, "**/out/**")
	assert.Equal(t, projectDir, cfg.Project.Root)
	assert.Positive(t, cfg.Performance.MaxGoroutines, "smart defaults applied")
}

func TestLoadWithRoot_HomeOnly(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	require.NoError(t, os.WriteFile(filepath.Join(tmpHome, FileName), []byte(`
codecompletion {
    case_sensitive true
}
`), 0o644))

	projectDir := t.TempDir()
	cfg, err := LoadWithRoot("", projectDir)
	require.NoError(t, err)

	assert.True(t, cfg.CodeCompletion.CaseSensitive)
	assert.Equal(t, projectDir, cfg.Project.Root)
	assert.Equal(t, filepath.Base(projectDir), cfg.Project.Name)
}

func TestLoadWithRoot_NoConfigFiles(t *testing.T) {
	t.Setenv("HOME", "/nonexistent")

	projectDir := t.TempDir()
	cfg, err := LoadWithRoot("", projectDir)
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxParsers, cfg.CodeCompletion.MaxParsers)
	assert.Equal(t, projectDir, cfg.Project.Root)
}

func TestLoadWithRoot_ExplicitFile(t *testing.T) {
	t.Setenv("HOME", "/nonexistent")

	dir := t.TempDir()
	path := filepath.Join(dir, "custom.kdl")
	require.NoError(t, os.WriteFile(path, []byte(`watch { enabled true; }`), 0o644))

	cfg, err := LoadWithRoot(path, dir)
	require.NoError(t, err)
	assert.True(t, cfg.Watch.Enabled)
}

func TestLoadWithRoot_ExplicitFileMissing(t *testing.T) {
	t.Setenv("HOME", "/nonexistent")

	_, err := LoadWithRoot(filepath.Join(t.TempDir(), "missing.kdl"), "")
	require.Error(t, err)
}

func TestLoadWithRoot_GitignoreAndBuildTrees(t *testing.T) {
	t.Setenv("HOME", "/nonexistent")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\ncoverage/\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build-debug"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build-debug", "CMakeCache.txt"), nil, 0o644))

	cfg, err := LoadWithRoot("", dir)
	require.NoError(t, err)

	assert.Contains(t, cfg.Exclude, "**/*.log")
	assert.Contains(t, cfg.Exclude, "**/coverage/**")
	assert.Contains(t, cfg.Exclude, "build-debug/**")
}

func TestLoadWithRoot_GitignoreDisabled(t *testing.T) {
	t.Setenv("HOME", "/nonexistent")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("respect_gitignore false\n"), 0o644))

	cfg, err := LoadWithRoot("", dir)
	require.NoError(t, err)
	assert.NotContains(t, cfg.Exclude, "**/*.log")
}
