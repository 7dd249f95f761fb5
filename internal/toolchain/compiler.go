// Package toolchain discovers the include directories and predefined macros
// a compiler contributes to a parser.
//
// Compilers are invoked through an Executor. Their human-readable output is
// scraped by the Scrape functions, which are pinned to captured fixtures.
package toolchain

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/standardbeagle/ccindex/internal/project"
)

// Family groups compilers whose discovery commands and output match.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyGCC
	FamilyMSVC
)

func (f Family) String() string {
	switch f {
	case FamilyGCC:
		return "gcc"
	case FamilyMSVC:
		return "msvc"
	}
	return "unknown"
}

// FamilyOf classifies a compiler id.
func FamilyOf(id string) Family {
	id = strings.ToLower(id)
	switch {
	case strings.HasPrefix(id, "msvc"):
		return FamilyMSVC
	case strings.Contains(id, "gcc"), strings.HasPrefix(id, "clang"), strings.HasPrefix(id, "mingw"):
		return FamilyGCC
	}
	return FamilyUnknown
}

// Compiler is one configured toolchain.
type Compiler struct {
	ID string
	// MasterPath is the installation root; programs live in its bin
	// directory. Empty means the programs are looked up on PATH.
	MasterPath  string
	CPP         string
	C           string
	IncludeDirs []string
	Options     []string
	Platforms   []string
}

// Family classifies the compiler by id.
func (c Compiler) Family() Family { return FamilyOf(c.ID) }

// BinDir is the directory prepended to PATH while the compiler runs.
func (c Compiler) BinDir() string {
	if c.MasterPath == "" {
		return ""
	}
	return filepath.Join(c.MasterPath, "bin")
}

// Program resolves one of the compiler's programs to the path it runs from.
func (c Compiler) Program(name string) string {
	if c.MasterPath == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.BinDir(), name)
}

// SupportsCurrentPlatform reports whether the compiler runs on this OS.
func (c Compiler) SupportsCurrentPlatform() bool {
	return project.SupportsPlatform(c.Platforms, runtime.GOOS)
}

// DefaultCompilers is the table used when the configuration names none.
func DefaultCompilers() []Compiler {
	return []Compiler{
		{ID: "gcc", CPP: "g++", C: "gcc", Platforms: []string{"all"}},
		{ID: "clang", CPP: "clang++", C: "clang", Platforms: []string{"all"}},
		{ID: "msvc", CPP: "cl.exe", C: "cl.exe", Platforms: []string{"windows"}},
	}
}

// DefaultCompilerID is used for projects that name no compiler and for
// standalone files.
func DefaultCompilerID() string {
	if runtime.GOOS == "darwin" {
		return "clang"
	}
	return "gcc"
}
