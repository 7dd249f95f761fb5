package registry

import (
	"context"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/parser"
	"github.com/standardbeagle/ccindex/internal/project"
)

// strategy is the binding mode. Every method runs with the registry lock
// held.
type strategy interface {
	lookup(r *Registry, p *project.Project) *parser.Parser
	create(ctx context.Context, r *Registry, p *project.Project) *parser.Parser
	delete(r *Registry, p *project.Project) bool
	addProject(ctx context.Context, r *Registry, p *project.Project) bool
}

func strategyFor(perWorkspace bool) strategy {
	if perWorkspace {
		return perWorkspaceStrategy{}
	}
	return perProjectStrategy{}
}

// perProjectStrategy gives every project its own parser.
type perProjectStrategy struct{}

func (perProjectStrategy) lookup(r *Registry, p *project.Project) *parser.Parser {
	for _, e := range r.entries {
		if e.project == p {
			return e.parser
		}
	}
	return nil
}

func (perProjectStrategy) create(ctx context.Context, r *Registry, p *project.Project) *parser.Parser {
	return r.newParser(ctx, p, projectName(p))
}

func (perProjectStrategy) delete(r *Registry, p *project.Project) bool {
	for i, e := range r.entries {
		if e.project == p {
			r.destroy(i)
			return true
		}
	}
	debug.LogRegistry("DeleteParser: parser does not exist for delete %q\n", projectName(p))
	return false
}

func (perProjectStrategy) addProject(context.Context, *Registry, *project.Project) bool {
	return false
}

// perWorkspaceStrategy merges every project into one shared parser.
type perWorkspaceStrategy struct{}

func (perWorkspaceStrategy) lookup(r *Registry, p *project.Project) *parser.Parser {
	if len(r.entries) > 0 && r.isParsed(p) {
		return r.entries[0].parser
	}
	return nil
}

func (perWorkspaceStrategy) create(ctx context.Context, r *Registry, p *project.Project) *parser.Parser {
	if len(r.parsed) > 0 && len(r.entries) > 0 {
		return r.entries[0].parser
	}
	name := projectName(p)
	if r.ws != nil && r.ws.Title != "" {
		name = r.ws.Title
	}
	r.parsed = append(r.parsed, p)
	return r.newParser(ctx, p, name)
}

func (perWorkspaceStrategy) delete(r *Registry, p *project.Project) bool {
	if len(r.entries) == 0 {
		debug.LogRegistry("DeleteParser: parser does not exist for delete %q\n", projectName(p))
		return false
	}
	removed := r.removeProjectFromParser(p)
	if len(r.parsed) == 0 {
		r.destroy(0)
		return true
	}
	return removed
}

func (perWorkspaceStrategy) addProject(ctx context.Context, r *Registry, p *project.Project) bool {
	return r.addProjectToParser(ctx, p)
}
