// Build artifact detection from C/C++ build system files.
// Finds CMake, Meson and vcpkg output directories so they stay out of the index.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// BuildArtifactDetector finds build output directories under a project root
type BuildArtifactDetector struct {
	projectRoot string
}

// NewBuildArtifactDetector creates a new build artifact detector
func NewBuildArtifactDetector(projectRoot string) *BuildArtifactDetector {
	return &BuildArtifactDetector{projectRoot: projectRoot}
}

// DetectOutputDirectories returns glob patterns to exclude (e.g. "build/**")
func (bad *BuildArtifactDetector) DetectOutputDirectories() []string {
	var patterns []string

	// Out-of-source CMake and Meson build trees one level below the root
	patterns = append(patterns, bad.detectBuildTrees()...)

	// CMakePresets.json binaryDir entries
	patterns = append(patterns, bad.detectCMakePresets()...)

	// vcpkg manifest mode installs next to vcpkg.json
	if _, err := os.Stat(filepath.Join(bad.projectRoot, "vcpkg.json")); err == nil {
		patterns = append(patterns, "vcpkg_installed/**")
	}

	return DeduplicatePatterns(patterns)
}

// detectBuildTrees looks for direct subdirectories holding a CMakeCache.txt
// or a meson-private directory.
func (bad *BuildArtifactDetector) detectBuildTrees() []string {
	entries, err := os.ReadDir(bad.projectRoot)
	if err != nil {
		return nil
	}

	var patterns []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(bad.projectRoot, e.Name())
		if fileExists(filepath.Join(dir, "CMakeCache.txt")) || fileExists(filepath.Join(dir, "meson-private")) {
			patterns = append(patterns, e.Name()+"/**")
		}
	}
	sort.Strings(patterns)
	return patterns
}

type cmakePresets struct {
	ConfigurePresets []struct {
		Name      string `json:"name"`
		BinaryDir string `json:"binaryDir"`
	} `json:"configurePresets"`
}

// detectCMakePresets reads binaryDir from CMakePresets.json and
// CMakeUserPresets.json. ${sourceDir} is the root; a ${presetName} segment
// becomes a wildcard.
func (bad *BuildArtifactDetector) detectCMakePresets() []string {
	var patterns []string
	for _, name := range []string{"CMakePresets.json", "CMakeUserPresets.json"} {
		data, err := os.ReadFile(filepath.Join(bad.projectRoot, name))
		if err != nil {
			continue
		}
		var presets cmakePresets
		if json.Unmarshal(data, &presets) != nil {
			continue
		}
		for _, p := range presets.ConfigurePresets {
			if pattern := presetPattern(p.BinaryDir); pattern != "" {
				patterns = append(patterns, pattern)
			}
		}
	}
	return patterns
}

func presetPattern(binaryDir string) string {
	dir := strings.TrimSpace(binaryDir)
	if dir == "" {
		return ""
	}
	dir = strings.ReplaceAll(dir, "${sourceDir}", "")
	dir = strings.ReplaceAll(dir, "${presetName}", "*")
	dir = strings.Trim(filepath.ToSlash(dir), "/")
	// only paths inside the source tree can be excluded
	if dir == "" || strings.Contains(dir, "$") || strings.HasPrefix(dir, "..") || filepath.IsAbs(binaryDir) {
		return ""
	}
	return dir + "/**"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DeduplicatePatterns removes duplicate patterns keeping first-seen order.
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	result := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		result = append(result, p)
	}
	return result
}
