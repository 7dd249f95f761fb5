// Package project models the build configuration ccindex indexes: projects,
// their build targets, and workspaces grouping several projects.
//
// Projects are stored in ccproject.toml files next to the sources they
// describe. Workspaces in ccworkspace.toml list the project files they hold.
package project

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/types"
)

// FileName is the default project file name.
const FileName = "ccproject.toml"

// DefaultFilePatterns are used when a project names no file globs.
var DefaultFilePatterns = []string{
	"**/*.{c,cc,cpp,cxx,c++}",
	"**/*.{h,hh,hpp,hxx,h++,inl}",
	"**/*.{tcc,tpp,txx}",
}

// Target is one build target of a project.
type Target struct {
	Name            string   `toml:"name"`
	Compiler        string   `toml:"compiler,omitempty"`
	IncludeDirs     []string `toml:"include_dirs,omitempty"`
	CompilerOptions []string `toml:"compiler_options,omitempty"`
	Platforms       []string `toml:"platforms,omitempty"`
}

// SupportsCurrentPlatform reports whether the target builds on this OS.
func (t *Target) SupportsCurrentPlatform() bool {
	return SupportsPlatform(t.Platforms, runtime.GOOS)
}

// CodeCompletion is the project's own code-completion metadata.
type CodeCompletion struct {
	SearchPaths []string `toml:"search_paths,omitempty"`
}

// Extensions holds tool-specific project metadata.
type Extensions struct {
	CodeCompletion CodeCompletion `toml:"code_completion,omitempty"`
}

// File is one resolved project file.
type File struct {
	Path     string
	Relative string
	Type     types.FileType
}

// Project is a loaded ccproject.toml.
type Project struct {
	Title           string              `toml:"title"`
	Compiler        string              `toml:"compiler,omitempty"`
	IncludeDirs     []string            `toml:"include_dirs,omitempty"`
	CompilerOptions []string            `toml:"compiler_options,omitempty"`
	Platforms       []string            `toml:"platforms,omitempty"`
	Files           []string            `toml:"files,omitempty"`
	Exclude         []string            `toml:"exclude,omitempty"`
	ActiveTarget    string              `toml:"active_target,omitempty"`
	Targets         []Target            `toml:"target,omitempty"`
	VirtualTargets  map[string][]string `toml:"virtual_targets,omitempty"`
	Extensions      Extensions          `toml:"extensions,omitempty"`

	path     string
	basePath string

	mu       sync.RWMutex
	files    []File
	byPath   map[string]int
	modified bool
}

// New creates an in-memory project rooted at basePath.
func New(title, basePath string) *Project {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		abs = basePath
	}
	return &Project{
		Title:    title,
		basePath: filepath.Clean(abs),
		byPath:   make(map[string]int),
	}
}

// Load reads a project file. The file's directory becomes the base path and
// the project's files are resolved from its globs.
func Load(path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.NewFileError("resolve", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.NewFileError("read", abs, err)
	}

	p := New("", filepath.Dir(abs))
	if err := toml.Unmarshal(data, p); err != nil {
		return nil, errors.NewProjectError("toml", abs, err)
	}
	p.path = abs
	if p.Title == "" {
		p.Title = filepath.Base(p.basePath)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := p.ResolveFiles(); err != nil {
		return nil, err
	}
	debug.LogConfig("loaded project %q from %s: %d file(s)\n", p.Title, abs, len(p.files))
	return p, nil
}

// FromDirectory builds a project for a directory that has no project file.
// Every C/C++ file below dir belongs to it.
func FromDirectory(dir string) (*Project, error) {
	p := New("", dir)
	p.Title = filepath.Base(p.basePath)
	if err := p.ResolveFiles(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Project) validate() error {
	seen := make(map[string]bool, len(p.Targets))
	for _, t := range p.Targets {
		if t.Name == "" {
			return errors.NewProjectError("target.name", "", errors.ErrMissingName)
		}
		if seen[t.Name] {
			return errors.NewProjectError("target.name", t.Name, errors.ErrDuplicateName)
		}
		seen[t.Name] = true
	}
	if p.ActiveTarget != "" && !seen[p.ActiveTarget] {
		if _, ok := p.VirtualTargets[p.ActiveTarget]; !ok {
			return errors.NewProjectError("active_target", p.ActiveTarget, errors.ErrUnknownTarget)
		}
	}
	for name, members := range p.VirtualTargets {
		for _, m := range members {
			if !seen[m] {
				return errors.NewProjectError("virtual_targets."+name, m, errors.ErrUnknownTarget)
			}
		}
	}
	return nil
}

// Name identifies the project in logs and parser events.
func (p *Project) Name() string {
	if p.Title != "" {
		return p.Title
	}
	return filepath.Base(p.basePath)
}

// Path is the project file, or empty for an in-memory project.
func (p *Project) Path() string { return p.path }

// BasePath is the directory relative paths are resolved against.
func (p *Project) BasePath() string { return p.basePath }

// Modified reports unsaved metadata changes.
func (p *Project) Modified() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modified
}

// Abs resolves a project-relative path.
func (p *Project) Abs(path string) string {
	if path == "" {
		return p.basePath
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.basePath, path)
}

// ResolveFiles expands the file globs below the base path, dropping excluded
// and unparsable files.
func (p *Project) ResolveFiles() error {
	patterns := p.Files
	if len(patterns) == 0 {
		patterns = DefaultFilePatterns
	}
	fsys := os.DirFS(p.basePath)

	found := make(map[string]bool)
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return errors.NewProjectError("files", pattern, doublestar.ErrBadPattern)
		}
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return errors.NewFileError("glob", filepath.Join(p.basePath, pattern), err)
		}
		for _, m := range matches {
			found[m] = true
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = p.files[:0]
	p.byPath = make(map[string]int, len(found))
	rels := make([]string, 0, len(found))
	for rel := range found {
		if p.excluded(rel) {
			continue
		}
		if info, err := fs.Stat(fsys, rel); err != nil || info.IsDir() {
			continue
		}
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	for _, rel := range rels {
		p.addLocked(rel)
	}
	return nil
}

func (p *Project) excluded(rel string) bool {
	for _, pattern := range p.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (p *Project) addLocked(rel string) bool {
	abs := filepath.Join(p.basePath, filepath.FromSlash(rel))
	if _, ok := p.byPath[abs]; ok {
		return false
	}
	ft := types.FileTypeOf(abs)
	if !ft.IsParsable() {
		return false
	}
	p.byPath[abs] = len(p.files)
	p.files = append(p.files, File{Path: abs, Relative: filepath.ToSlash(rel), Type: ft})
	return true
}

// AddFile adds a file below the base path. It reports false for files that
// are outside the project, excluded, unparsable or already present.
func (p *Project) AddFile(path string) bool {
	rel, ok := p.relative(path)
	if !ok || p.excluded(rel) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(rel)
}

// RemoveFile drops a file from the project.
func (p *Project) RemoveFile(path string) bool {
	abs := p.Abs(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.byPath[abs]
	if !ok {
		return false
	}
	p.files = append(p.files[:i], p.files[i+1:]...)
	delete(p.byPath, abs)
	for j := i; j < len(p.files); j++ {
		p.byPath[p.files[j].Path] = j
	}
	return true
}

func (p *Project) relative(path string) (string, bool) {
	rel, err := filepath.Rel(p.basePath, p.Abs(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// HasFile reports whether path is one of the project's files.
func (p *Project) HasFile(path string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byPath[p.Abs(path)]
	return ok
}

// FileList returns the project's files in resolution order.
func (p *Project) FileList() []File {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]File(nil), p.files...)
}

// FilesOfType returns the absolute paths of the files of one type.
func (p *Project) FilesOfType(ft types.FileType) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for _, f := range p.files {
		if f.Type == ft {
			out = append(out, f.Path)
		}
	}
	return out
}

// Target returns the named build target.
func (p *Project) Target(name string) *Target {
	for i := range p.Targets {
		if p.Targets[i].Name == name {
			return &p.Targets[i]
		}
	}
	return nil
}

// ActiveBuildTarget returns the active target, or nil when the active name
// is empty or names a virtual target.
func (p *Project) ActiveBuildTarget() *Target {
	return p.Target(p.ActiveTarget)
}

// ExpandedVirtualTarget lists the targets grouped under the active virtual
// target, or nil when the active target is a real one.
func (p *Project) ExpandedVirtualTarget() []*Target {
	members, ok := p.VirtualTargets[p.ActiveTarget]
	if !ok {
		return nil
	}
	out := make([]*Target, 0, len(members))
	for _, name := range members {
		if t := p.Target(name); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// SupportsCurrentPlatform reports whether the project builds on this OS.
func (p *Project) SupportsCurrentPlatform() bool {
	return SupportsPlatform(p.Platforms, runtime.GOOS)
}

// SupportsPlatform reports whether a platform list admits goos. An empty
// list or "all" admits everything; "unix" covers every non-Windows OS.
func SupportsPlatform(platforms []string, goos string) bool {
	if len(platforms) == 0 {
		return true
	}
	for _, pl := range platforms {
		switch strings.ToLower(pl) {
		case "all":
			return true
		case "windows", "win":
			if goos == "windows" {
				return true
			}
		case "unix":
			if goos != "windows" {
				return true
			}
		case "mac", "macos", "darwin":
			if goos == "darwin" {
				return true
			}
		case "linux":
			if goos == "linux" {
				return true
			}
		default:
			if strings.EqualFold(pl, goos) {
				return true
			}
		}
	}
	return false
}

// SearchDirs returns the extra code-completion search paths stored in the
// project metadata, in the order they were written. A path listed twice is
// returned once.
func (p *Project) SearchDirs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	paths := p.Extensions.CodeCompletion.SearchPaths
	out := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, d := range paths {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// SetSearchDirs replaces the stored search paths and marks the project
// modified. Empty entries are skipped.
func (p *Project) SetSearchDirs(dirs []string) {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d != "" {
			out = append(out, d)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Extensions.CodeCompletion.SearchPaths = out
	p.modified = true
}

// Marshal encodes the project as TOML.
func (p *Project) Marshal() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(p); err != nil {
		return nil, errors.NewProjectError("toml", p.Title, err)
	}
	return buf.Bytes(), nil
}

// Save writes the project back to the file it was loaded from.
func (p *Project) Save() error {
	if p.path == "" {
		return errors.NewProjectError("path", p.Title, errors.ErrNoProjectFile)
	}
	return p.SaveAs(p.path)
}

// SaveAs writes the project to path and makes it the project file.
func (p *Project) SaveAs(path string) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.NewFileError("resolve", path, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return errors.NewFileError("write", abs, err)
	}
	p.mu.Lock()
	p.path = abs
	p.modified = false
	p.mu.Unlock()
	return nil
}
