package types

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileType classifies a project file for parse ordering.
type FileType uint8

const (
	FileOther FileType = iota
	FileHeader
	FileSource
	FileTemplateSource
)

func (ft FileType) String() string {
	switch ft {
	case FileHeader:
		return "header"
	case FileSource:
		return "source"
	case FileTemplateSource:
		return "template-source"
	}
	return "other"
}

var (
	headerExts   = []string{".h", ".hh", ".hpp", ".hxx", ".h++", ".inl"}
	sourceExts   = []string{".c", ".cc", ".cpp", ".cxx", ".c++"}
	templateExts = []string{".tcc", ".tpp", ".txx"}
)

// FileClassifier assigns FileType values by extension, with optional glob
// overrides checked first.
type FileClassifier struct {
	Overrides map[string]FileType
}

// DefaultClassifier uses extension tables only.
var DefaultClassifier = &FileClassifier{}

// FileTypeOf classifies path with the default classifier.
func FileTypeOf(path string) FileType {
	return DefaultClassifier.Classify(path)
}

// Classify returns the FileType of path.
func (c *FileClassifier) Classify(path string) FileType {
	slashed := filepath.ToSlash(path)
	for pattern, ft := range c.Overrides {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return ft
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case contains(headerExts, ext):
		return FileHeader
	case contains(sourceExts, ext):
		return FileSource
	case contains(templateExts, ext):
		return FileTemplateSource
	}
	return FileOther
}

// IsParsable reports whether files of this type are fed to a parser.
func (ft FileType) IsParsable() bool {
	return ft != FileOther
}

// CompanionExtensions lists the extensions of the opposite family, used to
// look up a header for a source file and vice versa.
func CompanionExtensions(path string) []string {
	switch FileTypeOf(path) {
	case FileHeader:
		return append(append([]string{}, sourceExts...), templateExts...)
	case FileSource, FileTemplateSource:
		return headerExts
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
