package watcher

import (
	"context"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/project"
	"github.com/standardbeagle/ccindex/internal/registry"
)

// RegistryHandler applies watcher events to the parsers of a registry.
type RegistryHandler struct {
	ctx context.Context
	reg *registry.Registry
}

func NewRegistryHandler(ctx context.Context, reg *registry.Registry) *RegistryHandler {
	return &RegistryHandler{ctx: ctx, reg: reg}
}

// FileRemoved drops the file's tokens and takes it out of its project.
func (h *RegistryHandler) FileRemoved(path string) {
	p := h.reg.GetProjectByFilename(path)
	if !h.reg.RemoveFileFromParser(p, path) {
		debug.LogWatcher("removed %s: no parser holds it\n", path)
	}
	if p != nil {
		p.RemoveFile(path)
	}
}

// FileChanged reparses the file in the parser of its project.
func (h *RegistryHandler) FileChanged(path string) {
	p := h.reg.GetProjectByFilename(path)
	if !h.reg.ReparseFile(h.ctx, p, path) {
		debug.LogWatcher("changed %s: nothing to reparse\n", path)
	}
}

// FileCreated adds the file to the first workspace project whose tree holds
// it and parses it there.
func (h *RegistryHandler) FileCreated(path string) {
	p := h.owner(path)
	if p == nil {
		debug.LogWatcher("created %s: outside every project\n", path)
		return
	}
	h.reg.AddFileToParser(h.ctx, p, path)
}

func (h *RegistryHandler) owner(path string) *project.Project {
	ws := h.reg.Workspace()
	if ws == nil {
		return nil
	}
	for _, p := range ws.All() {
		if p.HasFile(path) || p.AddFile(path) {
			return p
		}
	}
	return nil
}
