package parser

import (
	"os"
	"path/filepath"
)

// resolveInclude finds the file named by an #include directive. Quoted
// includes are looked up next to the including file first; both forms then
// try the include dirs in order.
func resolveInclude(inc include, from string, dirs []string) (string, bool) {
	if filepath.IsAbs(inc.name) {
		return existingFile(inc.name)
	}
	if !inc.global {
		if path, ok := existingFile(filepath.Join(filepath.Dir(from), inc.name)); ok {
			return path, true
		}
	}
	for _, dir := range dirs {
		if path, ok := existingFile(filepath.Join(dir, inc.name)); ok {
			return path, true
		}
	}
	return "", false
}

func existingFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return filepath.Clean(path), true
}
