package project

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/errors"
)

// WorkspaceFileName is the default workspace file name.
const WorkspaceFileName = "ccworkspace.toml"

// Workspace is an ordered set of projects with one active project.
type Workspace struct {
	Title    string   `toml:"title"`
	Projects []string `toml:"projects"`
	Active   string   `toml:"active,omitempty"`

	path string

	mu       sync.RWMutex
	loaded   []*Project
	active   *Project
	byPath   map[string]*Project
	basePath string
}

// NewWorkspace creates an empty in-memory workspace.
func NewWorkspace(title, basePath string) *Workspace {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		abs = basePath
	}
	return &Workspace{Title: title, basePath: abs, byPath: make(map[string]*Project)}
}

// LoadWorkspace reads a workspace file and loads every project it lists.
// Project paths are relative to the workspace file.
func LoadWorkspace(path string) (*Workspace, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.NewFileError("resolve", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.NewFileError("read", abs, err)
	}
	ws := NewWorkspace("", filepath.Dir(abs))
	if err := toml.Unmarshal(data, ws); err != nil {
		return nil, errors.NewProjectError("toml", abs, err)
	}
	ws.path = abs

	var errs []error
	for _, rel := range ws.Projects {
		p, err := Load(ws.resolve(rel))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ws.add(p)
	}
	if err := errors.NewMultiError(errs); err != nil {
		return nil, err
	}
	if ws.Active != "" {
		if ws.Find(ws.Active) == nil {
			return nil, errors.NewProjectError("active", ws.Active, errors.ErrUnknownProject)
		}
		ws.SetActive(ws.Find(ws.Active))
	}
	debug.LogConfig("loaded workspace %q: %d project(s)\n", ws.Title, len(ws.loaded))
	return ws, nil
}

func (ws *Workspace) resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	p := filepath.Join(ws.basePath, rel)
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		p = filepath.Join(p, FileName)
	}
	return p
}

func (ws *Workspace) add(p *Project) bool {
	key := p.Path()
	if key == "" {
		key = p.BasePath()
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if _, ok := ws.byPath[key]; ok {
		return false
	}
	ws.byPath[key] = p
	ws.loaded = append(ws.loaded, p)
	if ws.active == nil {
		ws.active = p
	}
	return true
}

// Add puts a project into the workspace. The first project added becomes
// active.
func (ws *Workspace) Add(p *Project) bool {
	return ws.add(p)
}

// Remove takes a project out of the workspace.
func (ws *Workspace) Remove(p *Project) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for i, q := range ws.loaded {
		if q != p {
			continue
		}
		ws.loaded = append(ws.loaded[:i], ws.loaded[i+1:]...)
		for k, v := range ws.byPath {
			if v == p {
				delete(ws.byPath, k)
			}
		}
		if ws.active == p {
			ws.active = nil
			if len(ws.loaded) > 0 {
				ws.active = ws.loaded[0]
			}
		}
		return true
	}
	return false
}

// All returns the workspace's projects in load order.
func (ws *Workspace) All() []*Project {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return append([]*Project(nil), ws.loaded...)
}

// Find returns the project with the given name.
func (ws *Workspace) Find(name string) *Project {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	for _, p := range ws.loaded {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// ActiveProject returns the active project, or nil for an empty workspace.
func (ws *Workspace) ActiveProject() *Project {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.active
}

// SetActive makes p the active project. Projects outside the workspace are
// ignored.
func (ws *Workspace) SetActive(p *Project) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, q := range ws.loaded {
		if q == p {
			ws.active = p
			return true
		}
	}
	return false
}

// ProjectByFilename returns the first project that owns file.
func (ws *Workspace) ProjectByFilename(file string) *Project {
	for _, p := range ws.All() {
		if p.HasFile(file) {
			return p
		}
	}
	return nil
}

// Path is the workspace file, or empty for an in-memory workspace.
func (ws *Workspace) Path() string { return ws.path }
