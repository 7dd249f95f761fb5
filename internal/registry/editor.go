package registry

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/parser"
	"github.com/standardbeagle/ccindex/internal/project"
	"github.com/standardbeagle/ccindex/internal/types"
)

// OnEditorActivated focuses file. p is the file's project when the caller
// knows it; otherwise it is looked up. A file no project owns is a
// standalone file and is parsed by a parser bound to no project.
func (r *Registry) OnEditorActivated(ctx context.Context, file string, p *project.Project) {
	if _, err := os.Stat(file); err != nil {
		return
	}
	file = filepath.Clean(file)

	r.lock()
	defer r.unlock()

	r.focus = focus{file: file, project: p}
	if p == nil {
		p = r.projectByFilename(file)
	}

	if p != nil && r.isStandalone(file) {
		r.dropStandalone(file)
	}

	pp := r.strat.lookup(r, p)
	if pp == nil {
		if types.FileTypeOf(file) != types.FileOther {
			pp = r.createParser(ctx, p)
		}
		if pp != nil {
			if p == nil && r.addFileToParser(ctx, nil, file, pp) {
				pp.AddIncludeDir(filepath.Dir(file))
				r.addStandalone(file)
			}
		} else {
			pp = r.temp
		}
	} else if p == nil {
		if !pp.IsFileParsed(file) && !r.isStandalone(file) && r.addFileToParser(ctx, nil, file, pp) {
			pp.AddIncludeDir(filepath.Dir(file))
			r.addStandalone(file)
		}
	}

	if pp != r.active {
		debug.LogRegistry("Start switch from OnEditorActivated\n")
		r.switchParser(p, pp)
	}
	r.removeObsoleteParsers(nil)
}

// OnEditorClosed forgets a standalone file. The standalone parser goes away
// with the last one.
func (r *Registry) OnEditorClosed(file string) {
	file = filepath.Clean(file)
	r.lock()
	defer r.unlock()

	if r.focus.file == file {
		r.focus = focus{}
	}
	if r.isStandalone(file) {
		r.dropStandalone(file)
	}
}

// StandaloneFiles lists the open files that belong to no project.
func (r *Registry) StandaloneFiles() []string {
	r.lock()
	defer r.unlock()
	return append([]string(nil), r.standalone...)
}

func (r *Registry) isStandalone(file string) bool {
	for _, f := range r.standalone {
		if f == file {
			return true
		}
	}
	return false
}

func (r *Registry) addStandalone(file string) {
	if !r.isStandalone(file) {
		r.standalone = append(r.standalone, file)
	}
}

func (r *Registry) dropStandalone(file string) {
	for i, f := range r.standalone {
		if f == file {
			r.standalone = append(r.standalone[:i], r.standalone[i+1:]...)
			break
		}
	}
	if len(r.standalone) == 0 {
		r.strat.delete(r, nil)
	} else {
		r.removeFileFromParser(nil, file)
	}
}

// GetAllPathsByFilename finds the companion files of file: same base name,
// other extension family. The file's own directory is searched first; when
// it holds no companion, the owning project's file list is.
func (r *Registry) GetAllPathsByFilename(file string) []string {
	file = filepath.Clean(file)
	exts := types.CompanionExtensions(file)
	if len(exts) == 0 {
		return nil
	}
	stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	isCompanion := func(path string) bool {
		base := filepath.Base(path)
		ext := filepath.Ext(base)
		if strings.TrimSuffix(base, ext) != stem {
			return false
		}
		ext = strings.ToLower(ext)
		for _, e := range exts {
			if e == ext {
				return true
			}
		}
		return false
	}

	var found []string
	dir := filepath.Dir(file)
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && isCompanion(e.Name()) {
				found = append(found, filepath.Join(dir, e.Name()))
			}
		}
	}
	if len(found) > 0 {
		sort.Strings(found)
		return found
	}

	r.lock()
	var p *project.Project
	if r.cc.ParserPerWorkspace {
		p = r.currentProject()
	} else {
		p = r.projectByParser(r.active)
	}
	r.unlock()
	if p == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, f := range p.FileList() {
		if isCompanion(f.Path) && !seen[f.Path] {
			seen[f.Path] = true
			found = append(found, f.Path)
		}
	}
	sort.Strings(found)
	return found
}

// parserForFile is the parser a query on file should use: the parser of its
// project, or the active one.
func (r *Registry) parserForFile(file string) *parser.Parser {
	if pp := r.strat.lookup(r, r.projectByFilename(file)); pp != nil {
		return pp
	}
	return r.active
}

// ParserForFile returns the parser of file's project, falling back to the
// active parser.
func (r *Registry) ParserForFile(file string) *parser.Parser {
	r.lock()
	defer r.unlock()
	return r.parserForFile(filepath.Clean(file))
}
