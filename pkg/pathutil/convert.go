// Package pathutil converts between the absolute paths the index stores and
// the root-relative paths shown to users.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/standardbeagle/ccindex/internal/service"
)

// ToRelative converts an absolute path to relative based on a root directory.
// The path is returned unchanged when it is already relative, lies outside
// the root, or cannot be converted.
//
// Examples:
//   - ToRelative("/home/user/project/src/main.cpp", "/home/user/project") → "src/main.cpp"
//   - ToRelative("/usr/include/stdio.h", "/home/user/project") → "/usr/include/stdio.h"
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return absPath
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return absPath
	}
	return relPath
}

// ToRelativeCompletions returns a copy of items with root-relative file names.
func ToRelativeCompletions(items []service.Completion, rootDir string) []service.Completion {
	if len(items) == 0 {
		return items
	}
	converted := make([]service.Completion, len(items))
	copy(converted, items)
	for i := range converted {
		converted[i].File = ToRelative(converted[i].File, rootDir)
	}
	return converted
}

// ToRelativeTokens returns a copy of tokens with root-relative declaration
// and implementation file names.
func ToRelativeTokens(tokens []service.TokenInfo, rootDir string) []service.TokenInfo {
	if len(tokens) == 0 {
		return tokens
	}
	converted := make([]service.TokenInfo, len(tokens))
	copy(converted, tokens)
	for i := range converted {
		converted[i].File = ToRelative(converted[i].File, rootDir)
		converted[i].ImplFile = ToRelative(converted[i].ImplFile, rootDir)
	}
	return converted
}
