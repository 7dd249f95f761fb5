package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArtifactDetector_BuildTrees(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build", "CMakeCache.txt"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "builddir", "meson-private"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))

	patterns := NewBuildArtifactDetector(dir).DetectOutputDirectories()
	assert.Equal(t, []string{"build/**", "builddir/**"}, patterns)
}

func TestBuildArtifactDetector_CMakePresets(t *testing.T) {
	dir := t.TempDir()
	presets := `{
  "version": 3,
  "configurePresets": [
    {"name": "debug", "binaryDir": "${sourceDir}/out/build/${presetName}"},
    {"name": "release", "binaryDir": "${sourceDir}/out/build/${presetName}"},
    {"name": "outside", "binaryDir": "/tmp/build"},
    {"name": "env", "binaryDir": "$env{BUILD_ROOT}/x"}
  ]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CMakePresets.json"), []byte(presets), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vcpkg.json"), []byte(`{"name":"app"}`), 0o644))

	patterns := NewBuildArtifactDetector(dir).DetectOutputDirectories()
	assert.Equal(t, []string{"out/build/*/**", "vcpkg_installed/**"}, patterns)
}

func TestBuildArtifactDetector_EmptyRoot(t *testing.T) {
	assert.Empty(t, NewBuildArtifactDetector(t.TempDir()).DetectOutputDirectories())
}

func TestDeduplicatePatterns(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, DeduplicatePatterns([]string{"a", "", "b", "a"}))
}
