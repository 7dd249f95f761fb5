package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGitignoreParser_BasicPatterns tests fundamental gitignore pattern matching
func TestGitignoreParser_BasicPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{"simple file match", "README.md", "README.md", false, true},
		{"simple file no match", "README.md", "main.cpp", false, false},
		{"file match in subdirectory", "config.h", "src/config.h", false, true},
		{"suffix wildcard", "*.o", "obj/main.o", false, true},
		{"suffix wildcard no match", "*.o", "src/main.cpp", false, false},
		{"prefix wildcard", "moc_*", "ui/moc_window.cpp", false, true},
		{"question mark", "file?.txt", "file1.txt", false, true},
		{"character class", "*.[oa]", "lib/libfoo.a", false, true},
		{"directory pattern matches directory", "build/", "build", true, true},
		{"directory pattern does not match file", "build/", "build", false, false},
		{"directory pattern matches contents", "build/", "build/CMakeCache.txt", false, true},
		{"nested directory pattern", "build/", "sub/build/out.o", false, true},
		{"absolute pattern at root", "/Makefile", "Makefile", false, true},
		{"absolute pattern not in subdir", "/Makefile", "src/Makefile", false, false},
		{"middle slash anchors", "docs/html", "docs/html", true, true},
		{"middle slash not nested", "docs/html", "sub/docs/html", true, false},
		{"double star", "**/generated/*.cpp", "a/b/generated/x.cpp", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gp := NewGitignoreParser()
			gp.AddPattern(tt.pattern)
			assert.Equal(t, tt.expected, gp.ShouldIgnore(tt.path, tt.isDir))
		})
	}
}

func TestGitignoreParser_Negation(t *testing.T) {
	gp := NewGitignoreParser()
	gp.AddPattern("*.h")
	gp.AddPattern("!public.h")

	assert.True(t, gp.ShouldIgnore("src/private.h", false))
	assert.False(t, gp.ShouldIgnore("include/public.h", false))
}

func TestGitignoreParser_InvalidPatternDropped(t *testing.T) {
	gp := NewGitignoreParser()
	gp.AddPattern("src/[")
	assert.Empty(t, gp.ExclusionPatterns())
}

func TestGitignoreParser_LoadGitignore(t *testing.T) {
	dir := t.TempDir()
	content := "# build output\n\n*.o\n/out/\n!keep.o\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(content), 0o644))

	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(dir))

	assert.True(t, gp.ShouldIgnore("main.o", false))
	assert.False(t, gp.ShouldIgnore("keep.o", false))
	assert.True(t, gp.ShouldIgnore("out/app", false))
	assert.False(t, gp.ShouldIgnore("src/main.cpp", false))
}

func TestGitignoreParser_MissingFile(t *testing.T) {
	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(t.TempDir()))
	assert.Empty(t, gp.ExclusionPatterns())
}

func TestGitignoreParser_ExclusionPatterns(t *testing.T) {
	gp := NewGitignoreParser()
	gp.AddPattern("*.log")
	gp.AddPattern("cmake-build-*/")
	gp.AddPattern("/dist")
	gp.AddPattern("!important.log")

	assert.Equal(t, []string{
		"**/*.log", "**/*.log/**",
		"**/cmake-build-*/**",
		"dist", "dist/**",
	}, gp.ExclusionPatterns())
}
