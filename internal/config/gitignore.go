package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GitignoreParser handles parsing and matching .gitignore files
type GitignoreParser struct {
	patterns []GitignorePattern
}

type GitignorePattern struct {
	Pattern   string
	Negate    bool
	Directory bool
	Absolute  bool

	// glob is the doublestar form matched against slash paths relative to
	// the root.
	glob string
}

// NewGitignoreParser creates a new gitignore parser
func NewGitignoreParser() *GitignoreParser {
	return &GitignoreParser{
		patterns: make([]GitignorePattern, 0),
	}
}

// LoadGitignore loads patterns from rootPath/.gitignore. A missing file is
// not an error.
func (gp *GitignoreParser) LoadGitignore(rootPath string) error {
	file, err := os.Open(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		return nil
	}
	defer file.Close()

	return gp.scanAndParsePatterns(file)
}

func (gp *GitignoreParser) scanAndParsePatterns(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		gp.AddPattern(line)
	}
	return scanner.Err()
}

// AddPattern adds a single pattern line. Lines that do not form a valid glob
// are dropped.
func (gp *GitignoreParser) AddPattern(line string) {
	pattern := parsePattern(line)
	if pattern.Pattern == "" || !doublestar.ValidatePattern(pattern.glob) {
		return
	}
	gp.patterns = append(gp.patterns, pattern)
}

func parsePattern(line string) GitignorePattern {
	pattern := GitignorePattern{}

	if strings.HasPrefix(line, "!") {
		pattern.Negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		pattern.Directory = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		pattern.Absolute = true
		line = line[1:]
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		// a slash in the middle anchors the pattern like a leading one
		pattern.Absolute = true
	}

	pattern.Pattern = line
	pattern.glob = toGlob(pattern)
	return pattern
}

func toGlob(p GitignorePattern) string {
	g := p.Pattern
	if !p.Absolute && !strings.HasPrefix(g, "**/") {
		g = "**/" + g
	}
	return g
}

// ShouldIgnore reports whether a root-relative path is ignored. The last
// matching pattern wins, so a later negation re-includes a path.
func (gp *GitignoreParser) ShouldIgnore(path string, isDir bool) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")

	ignored := false
	for _, pattern := range gp.patterns {
		if matchesPattern(pattern, path, isDir) {
			ignored = !pattern.Negate
		}
	}
	return ignored
}

func matchesPattern(p GitignorePattern, path string, isDir bool) bool {
	if ok, _ := doublestar.Match(p.glob, path); ok {
		return isDir || !p.Directory
	}
	// anything under a matched directory is matched too
	if ok, _ := doublestar.Match(p.glob+"/**", path); ok {
		return true
	}
	return false
}

// ExclusionPatterns converts the non-negated patterns to exclusion globs.
// Negations cannot be represented in a plain exclusion list and are skipped.
func (gp *GitignoreParser) ExclusionPatterns() []string {
	var exclusions []string
	for _, pattern := range gp.patterns {
		if pattern.Negate {
			continue
		}
		if pattern.Directory {
			exclusions = append(exclusions, pattern.glob+"/**")
			continue
		}
		exclusions = append(exclusions, pattern.glob, pattern.glob+"/**")
	}
	return exclusions
}
