// Package registry binds parsers to projects. It owns the parser list, the
// active parser and the fallback temp parser, runs compiler discovery when a
// parser is created, evicts parsers over the configured cap and turns parser
// events into browser notifications.
package registry

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/ccindex/internal/browser"
	"github.com/standardbeagle/ccindex/internal/config"
	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/parser"
	"github.com/standardbeagle/ccindex/internal/project"
	"github.com/standardbeagle/ccindex/internal/resolver"
	"github.com/standardbeagle/ccindex/internal/toolchain"
	"github.com/standardbeagle/ccindex/internal/types"
)

// Options wires a registry. A nil Config selects config.Default().
type Options struct {
	Config     *config.Config
	Workspace  *project.Workspace
	Discoverer *toolchain.Discoverer
	// Notify receives browser notifications. It is called outside the
	// registry lock.
	Notify func(browser.Notification)
}

type entry struct {
	project *project.Project
	parser  *parser.Parser
}

type focus struct {
	file    string
	project *project.Project
}

// Registry is safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	cc         config.CodeCompletion
	parserOpts parser.Options
	disc       *toolchain.Discoverer
	ws         *project.Workspace
	strat      strategy

	entries    []entry
	parsed     []*project.Project // workspace mode only
	active     *parser.Parser
	temp       *parser.Parser
	sessions   map[*parser.Parser]*resolver.Session
	standalone []string
	focus      focus

	notify func(browser.Notification)
	notes  []browser.Notification

	queue         eventQueue
	attachPending atomic.Bool
}

// New builds a registry whose active parser is the temp parser.
func New(opts Options) *Registry {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Registry{
		cc:         cfg.CodeCompletion,
		parserOpts: cfg.ParserOptions(),
		disc:       opts.Discoverer,
		ws:         opts.Workspace,
		sessions:   make(map[*parser.Parser]*resolver.Session),
		notify:     opts.Notify,
	}
	r.queue.wake = make(chan struct{}, 1)
	r.strat = strategyFor(r.cc.ParserPerWorkspace)
	r.temp = parser.New("", r.parserOpts)
	r.active = r.temp
	return r
}

func (r *Registry) lock() { r.mu.Lock() }

// unlock releases the lock and then delivers the notifications queued while
// it was held.
func (r *Registry) unlock() {
	notes := r.notes
	r.notes = nil
	r.mu.Unlock()
	if r.notify == nil {
		return
	}
	for _, n := range notes {
		r.notify(n)
	}
}

func (r *Registry) note(kind browser.NotificationKind, p *parser.Parser) {
	name := ""
	if p != nil {
		name = p.Project()
	}
	r.notes = append(r.notes, browser.Notification{Kind: kind, Project: name, Parser: p})
}

func projectName(p *project.Project) string {
	if p == nil {
		return "*NONE*"
	}
	return p.Name()
}

// ParserPerWorkspace reports the current binding mode.
func (r *Registry) ParserPerWorkspace() bool {
	r.lock()
	defer r.unlock()
	return r.cc.ParserPerWorkspace
}

// Workspace returns the workspace the registry serves, possibly nil.
func (r *Registry) Workspace() *project.Workspace { return r.ws }

// Active returns the active parser. It is the temp parser when no project
// parser has been activated.
func (r *Registry) Active() *parser.Parser {
	r.lock()
	defer r.unlock()
	return r.active
}

// TempParser is the fallback parser, never bound to a project.
func (r *Registry) TempParser() *parser.Parser { return r.temp }

// Parsers lists the registered parsers, oldest first.
func (r *Registry) Parsers() []*parser.Parser {
	r.lock()
	defer r.unlock()
	out := make([]*parser.Parser, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.parser)
	}
	return out
}

// Session returns the query session bound to p, creating it on first use.
func (r *Registry) Session(p *parser.Parser) *resolver.Session {
	r.lock()
	defer r.unlock()
	return r.session(p)
}

func (r *Registry) session(p *parser.Parser) *resolver.Session {
	s, ok := r.sessions[p]
	if !ok {
		s = resolver.NewSession(p)
		r.sessions[p] = s
	}
	return s
}

// ActiveSession is Session(Active()).
func (r *Registry) ActiveSession() *resolver.Session {
	r.lock()
	defer r.unlock()
	return r.session(r.active)
}

func (r *Registry) GetParserByProject(p *project.Project) *parser.Parser {
	r.lock()
	defer r.unlock()
	return r.strat.lookup(r, p)
}

func (r *Registry) GetParserByFilename(file string) *parser.Parser {
	r.lock()
	defer r.unlock()
	return r.strat.lookup(r, r.projectByFilename(file))
}

func (r *Registry) GetProjectByParser(p *parser.Parser) *project.Project {
	r.lock()
	defer r.unlock()
	return r.projectByParser(p)
}

func (r *Registry) projectByParser(p *parser.Parser) *project.Project {
	for _, e := range r.entries {
		if e.parser == p {
			return e.project
		}
	}
	return nil
}

// GetProjectByFilename returns the active project when its parser has the
// file or the project lists it, and otherwise the first other project that
// does.
func (r *Registry) GetProjectByFilename(file string) *project.Project {
	r.lock()
	defer r.unlock()
	return r.projectByFilename(file)
}

func (r *Registry) projectByFilename(file string) *project.Project {
	if r.ws == nil {
		return nil
	}
	owns := func(p *project.Project) bool {
		if pp := r.strat.lookup(r, p); pp != nil && pp.IsFileParsed(file) {
			return true
		}
		return p.HasFile(file)
	}
	active := r.ws.ActiveProject()
	if active == nil {
		return nil
	}
	if owns(active) {
		return active
	}
	for _, p := range r.ws.All() {
		if p != active && owns(p) {
			return p
		}
	}
	return nil
}

// currentProject is the focused editor's project, or the workspace's active
// project.
func (r *Registry) currentProject() *project.Project {
	if r.focus.file != "" {
		if p := r.focusProject(); p != nil {
			return p
		}
	}
	if r.ws != nil {
		return r.ws.ActiveProject()
	}
	return nil
}

func (r *Registry) focusProject() *project.Project {
	if r.focus.project != nil {
		return r.focus.project
	}
	return r.projectByFilename(r.focus.file)
}

// currentEditorInfo returns the focused editor's project and its parser.
func (r *Registry) currentEditorInfo() (*project.Project, *parser.Parser) {
	if r.focus.file == "" {
		return nil, nil
	}
	p := r.focusProject()
	return p, r.strat.lookup(r, p)
}

// Done reports whether every parser, the temp parser included, is idle.
func (r *Registry) Done() bool {
	r.lock()
	defer r.unlock()
	for _, e := range r.entries {
		if !e.parser.Done() {
			return false
		}
	}
	return r.temp.Done()
}

// CreateParser builds, discovers and starts parsing a parser for p. It
// returns nil when p already has one. In workspace mode the shared parser is
// returned once any project was merged into it.
func (r *Registry) CreateParser(ctx context.Context, p *project.Project) *parser.Parser {
	r.lock()
	defer r.unlock()
	return r.createParser(ctx, p)
}

func (r *Registry) createParser(ctx context.Context, p *project.Project) *parser.Parser {
	if r.strat.lookup(r, p) != nil {
		debug.LogRegistry("CreateParser: %v\n", errors.NewRegistryError("create", projectName(p), errors.ErrParserExists))
		return nil
	}
	return r.strat.create(ctx, r, p)
}

// newParser runs the full setup of a fresh parser and registers it.
func (r *Registry) newParser(ctx context.Context, p *project.Project, name string) *parser.Parser {
	pp := parser.New(name, r.parserOpts)
	pp.SetEventSink(r.queue.push)
	r.doFullParsing(ctx, p, pp)

	if r.active == r.temp {
		r.setParser(pp)
	}
	r.entries = append(r.entries, entry{project: p, parser: pp})
	debug.LogRegistry("CreateParser: finish creating a new parser for project %q\n", projectName(p))

	r.removeObsoleteParsers(pp)
	return pp
}

func (r *Registry) applyEnvironment(ctx context.Context, p *project.Project, pp *parser.Parser) bool {
	if r.disc == nil {
		return false
	}
	env := r.disc.Environment(ctx, p)
	for _, dir := range env.IncludeDirs {
		pp.AddIncludeDir(dir)
	}
	pp.AddPredefinedMacros(env.Macros)
	return env.Macros != ""
}

func (r *Registry) doFullParsing(ctx context.Context, p *project.Project, pp *parser.Parser) {
	r.applyEnvironment(ctx, p, pp)
	if p == nil {
		return
	}
	if !r.cc.PlatformCheck || p.SupportsCurrentPlatform() {
		for _, dir := range p.SearchDirs() {
			pp.AddIncludeDir(p.Abs(dir))
		}
	}
	// headers are reached through includes
	sources := p.FilesOfType(types.FileSource)
	if len(sources) > 0 {
		debug.LogRegistry("DoFullParsing: added %d source file(s) for project %q to batch-parser\n", len(sources), projectName(p))
		pp.Parse(ctx, sources)
	}
}

// DeleteParser removes p's parser. In workspace mode it removes p from the
// shared parser and destroys the parser once no project is left.
func (r *Registry) DeleteParser(p *project.Project) bool {
	r.lock()
	defer r.unlock()
	return r.strat.delete(r, p)
}

// destroy closes the parser of entries[i] and falls back to the temp parser
// when it was active.
func (r *Registry) destroy(i int) {
	e := r.entries[i]
	debug.LogRegistry("DeleteParser: deleting parser for project %q\n", projectName(e.project))
	e.parser.Close()
	if e.parser == r.active {
		r.active = nil
		r.setParser(r.temp)
	}
	delete(r.sessions, e.parser)
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
}

// SwitchParser activates parser for p. It refuses a nil parser, the parser
// already active, and a parser not bound to p.
func (r *Registry) SwitchParser(p *project.Project, pp *parser.Parser) bool {
	r.lock()
	defer r.unlock()
	return r.switchParser(p, pp)
}

func (r *Registry) switchParser(p *project.Project, pp *parser.Parser) bool {
	if pp == nil || pp == r.active || r.strat.lookup(r, p) != pp {
		return false
	}
	r.setParser(pp)
	debug.LogRegistry("Switch parser to project %q\n", projectName(p))
	return true
}

// SetParser makes pp active without checking its binding.
func (r *Registry) SetParser(pp *parser.Parser) {
	r.lock()
	defer r.unlock()
	r.setParser(pp)
}

func (r *Registry) setParser(pp *parser.Parser) {
	if r.active == pp {
		return
	}
	if r.active != nil {
		// the previous parser's locals must not outlive the switch
		s := r.session(r.active)
		s.ClearTemporaries()
		s.Invalidate()
	}
	r.active = pp
	r.touch(pp)
	r.note(browser.ParserSwitched, pp)
}

// touch moves pp to the newest end of the list so eviction sees the least
// recently activated parsers first.
func (r *Registry) touch(pp *parser.Parser) {
	for i, e := range r.entries {
		if e.parser == pp {
			r.entries = append(append(r.entries[:i:i], r.entries[i+1:]...), e)
			return
		}
	}
}

// ClearParsers deletes every parser.
func (r *Registry) ClearParsers() {
	r.lock()
	defer r.unlock()
	r.clearParsers()
}

func (r *Registry) clearParsers() {
	if r.cc.ParserPerWorkspace {
		for len(r.parsed) > 0 && r.strat.delete(r, r.parsed[0]) {
		}
		return
	}
	for len(r.entries) > 0 && r.strat.delete(r, r.entries[0].project) {
	}
}

// RemoveObsoleteParsers evicts parsers over the max_parsers cap.
func (r *Registry) RemoveObsoleteParsers() {
	r.lock()
	defer r.unlock()
	r.removeObsoleteParsers(nil)
}

// removeObsoleteParsers deletes parsers oldest first until the cap is met.
// The active parser, the focused editor's parser and keep are never removed.
func (r *Registry) removeObsoleteParsers(keep *parser.Parser) {
	limit := r.cc.MaxParsers
	if limit <= 0 {
		return
	}
	_, focused := r.currentEditorInfo()

	var removed []string
	for len(r.entries) > limit {
		deleted := false
		for _, e := range r.entries {
			if e.parser == focused || e.parser == r.active || e.parser == keep {
				continue
			}
			name := projectName(e.project)
			if r.strat.delete(r, e.project) {
				removed = append(removed, name)
				deleted = true
				break
			}
		}
		if !deleted {
			break
		}
	}
	for _, name := range removed {
		debug.LogRegistry("RemoveObsoleteParsers: removed obsolete parser of %q\n", name)
	}
}

// ReparseFile reparses one file of p in the background.
func (r *Registry) ReparseFile(ctx context.Context, p *project.Project, file string) bool {
	if types.FileTypeOf(file) == types.FileOther {
		return false
	}
	r.lock()
	defer r.unlock()
	pp := r.strat.lookup(r, p)
	if pp == nil {
		return false
	}
	pp.Reparse(ctx, file)
	return true
}

// AddFileToParser parses a file that is new to p's parser.
func (r *Registry) AddFileToParser(ctx context.Context, p *project.Project, file string) bool {
	r.lock()
	defer r.unlock()
	return r.addFileToParser(ctx, p, file, nil)
}

func (r *Registry) addFileToParser(ctx context.Context, p *project.Project, file string, pp *parser.Parser) bool {
	if types.FileTypeOf(file) == types.FileOther {
		return false
	}
	if pp == nil {
		if pp = r.strat.lookup(r, p); pp == nil {
			return false
		}
	}
	pp.AddFile(ctx, file)
	return true
}

func (r *Registry) RemoveFileFromParser(p *project.Project, file string) bool {
	r.lock()
	defer r.unlock()
	return r.removeFileFromParser(p, file)
}

func (r *Registry) removeFileFromParser(p *project.Project, file string) bool {
	pp := r.strat.lookup(r, p)
	if pp == nil {
		return false
	}
	pp.RemoveFile(file)
	return true
}

// ReparseCurrentProject recreates the parser of the current project.
func (r *Registry) ReparseCurrentProject(ctx context.Context) bool {
	r.lock()
	defer r.unlock()
	p := r.currentProject()
	if p == nil {
		return false
	}
	r.strat.delete(r, p)
	return r.createParser(ctx, p) != nil
}

// ReparseSelectedProject recreates the parser of p.
func (r *Registry) ReparseSelectedProject(ctx context.Context, p *project.Project) bool {
	if p == nil {
		return false
	}
	r.lock()
	defer r.unlock()
	r.strat.delete(r, p)
	return r.createParser(ctx, p) != nil
}

// RereadParserOptions applies a new configuration. A change of binding mode
// clears every parser and recreates the current project's. Otherwise the
// options are pushed into the existing parsers and used by their next batch.
func (r *Registry) RereadParserOptions(ctx context.Context, cfg *config.Config) {
	r.lock()
	defer r.unlock()

	perWorkspace := cfg.CodeCompletion.ParserPerWorkspace
	flipped := perWorkspace != r.cc.ParserPerWorkspace
	r.parserOpts = cfg.ParserOptions()
	if r.disc != nil {
		r.disc.SetOptions(cfg.DiscoveryOptions())
		if cfg.CodeCompletion.DefaultCompiler != "" {
			r.disc.SetDefaultCompiler(cfg.CodeCompletion.DefaultCompiler)
		}
	}

	if r.active == r.temp {
		r.cc = cfg.CodeCompletion
		r.strat = strategyFor(perWorkspace)
		r.temp.SetOptions(r.parserOpts)
		return
	}

	r.cc.MaxParsers = cfg.CodeCompletion.MaxParsers
	r.removeObsoleteParsers(nil)

	if !flipped {
		r.cc = cfg.CodeCompletion
		for _, e := range r.entries {
			e.parser.SetOptions(r.parserOpts)
		}
		r.temp.SetOptions(r.parserOpts)
		return
	}

	current := r.currentProject()
	r.clearParsers()
	r.cc = cfg.CodeCompletion
	r.strat = strategyFor(perWorkspace)
	r.temp.SetOptions(r.parserOpts)
	r.createParser(ctx, current)
}

// AddProjectToParser merges p into the shared workspace parser, headers
// first. It reports whether anything had to be parsed.
func (r *Registry) AddProjectToParser(ctx context.Context, p *project.Project) bool {
	r.lock()
	defer r.unlock()
	return r.strat.addProject(ctx, r, p)
}

func (r *Registry) addProjectToParser(ctx context.Context, p *project.Project) bool {
	if r.strat.lookup(r, p) != nil || len(r.parsed) == 0 {
		return false
	}
	r.parsed = append(r.parsed, p)
	pp := r.strat.lookup(r, p)
	if pp == nil {
		r.unparse(p)
		return false
	}
	debug.LogRegistry("AddProjectToParser: add project (%s) to parser\n", projectName(p))
	needMacros := r.applyEnvironment(ctx, p, pp)

	if p == nil {
		file := r.focus.file
		if file != "" && r.addFileToParser(ctx, nil, file, pp) {
			pp.AddIncludeDir(filepath.Dir(file))
			r.addStandalone(file)
			return true
		}
		return false
	}

	var files []string
	for _, ft := range []types.FileType{types.FileHeader, types.FileSource, types.FileTemplateSource} {
		for _, f := range p.FilesOfType(ft) {
			if !pp.IsFileParsed(f) {
				files = append(files, f)
			}
		}
	}
	if len(files) > 0 {
		pp.AddFiles(ctx, files)
	}
	debug.LogRegistry("AddProjectToParser: done adding %d files of project (%s) to parser\n", len(files), projectName(p))
	return len(files) > 0 || needMacros
}

// RemoveProjectFromParser takes p out of the shared parser and drops its
// files' tokens.
func (r *Registry) RemoveProjectFromParser(p *project.Project) bool {
	r.lock()
	defer r.unlock()
	return r.removeProjectFromParser(p)
}

func (r *Registry) removeProjectFromParser(p *project.Project) bool {
	pp := r.strat.lookup(r, p)
	if pp == nil {
		return false
	}
	r.unparse(p)
	if p == nil || len(r.parsed) == 0 {
		return true
	}
	debug.LogRegistry("Remove project (%s) from parser\n", projectName(p))
	for _, f := range p.FileList() {
		if f.Type.IsParsable() {
			pp.RemoveFile(f.Path)
		}
	}
	return true
}

func (r *Registry) isParsed(p *project.Project) bool {
	for _, q := range r.parsed {
		if q == p {
			return true
		}
	}
	return false
}

func (r *Registry) unparse(p *project.Project) {
	for i, q := range r.parsed {
		if q == p {
			r.parsed = append(r.parsed[:i], r.parsed[i+1:]...)
			return
		}
	}
}

// Close destroys every parser, the temp parser included.
func (r *Registry) Close() {
	r.lock()
	defer r.unlock()
	for _, e := range r.entries {
		e.parser.Close()
	}
	r.entries = nil
	r.parsed = nil
	r.temp.Close()
	r.active = r.temp
}
