// Package service hosts one workspace index: it loads the workspace, wires
// compiler discovery into a parser registry, keeps the registry's event loop
// running and answers completion queries against it.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/standardbeagle/ccindex/internal/browser"
	"github.com/standardbeagle/ccindex/internal/config"
	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/editor"
	"github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/parser"
	"github.com/standardbeagle/ccindex/internal/project"
	"github.com/standardbeagle/ccindex/internal/registry"
	"github.com/standardbeagle/ccindex/internal/resolver"
	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/toolchain"
	"github.com/standardbeagle/ccindex/internal/types"
)

const pollInterval = 10 * time.Millisecond

// Options overrides parts of the wiring, mostly for tests.
type Options struct {
	// Executor runs compilers during discovery. Nil selects a
	// SafeExecutor bounded by the configured exec timeout.
	Executor toolchain.Executor
	// Workspace replaces loading the workspace from the configuration.
	Workspace *project.Workspace
	// View is refreshed when the active parser finishes a batch.
	View browser.View
}

// Service is safe for concurrent use. Queries are serialized because the
// resolver keeps per-parser state between calls.
type Service struct {
	cfg    *config.Config
	ws     *project.Workspace
	disc   *toolchain.Discoverer
	reg    *registry.Registry
	bridge *browser.Bridge

	queryMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open loads the workspace described by cfg and starts parsing its active
// project in the background.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	ws := opts.Workspace
	if ws == nil {
		var err error
		if ws, err = LoadWorkspace(cfg); err != nil {
			return nil, err
		}
	}

	exec := opts.Executor
	if exec == nil {
		exec = toolchain.NewSafeExecutor(cfg.ExecTimeout())
	}
	disc := toolchain.NewDiscoverer(exec, cfg.CompilerTable(), cfg.DiscoveryOptions(), nil)
	if id := cfg.CodeCompletion.DefaultCompiler; id != "" {
		disc.SetDefaultCompiler(id)
	}

	view := opts.View
	if view == nil {
		view = browser.ViewFunc(func(name string, p *parser.Parser) {
			debug.LogRegistry("browser refresh for %q: %d token(s)\n", name, p.TokenTree().Size())
		})
	}
	bridge := browser.NewBridge(view)

	reg := registry.New(registry.Options{
		Config:     cfg,
		Workspace:  ws,
		Discoverer: disc,
		Notify:     func(n browser.Notification) { bridge.Handle(n) },
	})

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Service{cfg: cfg, ws: ws, disc: disc, reg: reg, bridge: bridge, cancel: cancel}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		reg.Run(runCtx, cfg.AttachInterval())
	}()

	if p := ws.ActiveProject(); p != nil {
		reg.CreateParser(ctx, p)
	}
	return s, nil
}

// LoadWorkspace finds what to index below the configured root: an explicit
// project or workspace file, a ccworkspace.toml, a ccproject.toml, or else
// every C/C++ file under the root as one project.
func LoadWorkspace(cfg *config.Config) (*project.Workspace, error) {
	root := cfg.Project.Root
	if file := cfg.ProjectFile(); file != "" {
		if filepath.Base(file) == project.WorkspaceFileName {
			return project.LoadWorkspace(file)
		}
		p, err := project.Load(file)
		if err != nil {
			return nil, err
		}
		return single(cfg, p), nil
	}
	if path := filepath.Join(root, project.WorkspaceFileName); exists(path) {
		return project.LoadWorkspace(path)
	}
	if path := filepath.Join(root, project.FileName); exists(path) {
		p, err := project.Load(path)
		if err != nil {
			return nil, err
		}
		return single(cfg, p), nil
	}

	p := project.New(cfg.Project.Name, root)
	p.Files = cfg.Include
	p.Exclude = cfg.Exclude
	if err := p.ResolveFiles(); err != nil {
		return nil, err
	}
	debug.LogConfig("indexing %d file(s) below %s\n", len(p.FileList()), root)
	return single(cfg, p), nil
}

func single(cfg *config.Config, p *project.Project) *project.Workspace {
	ws := project.NewWorkspace(cfg.Project.Name, p.BasePath())
	ws.Add(p)
	return ws
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Service) Config() *config.Config { return s.cfg }

func (s *Service) Registry() *registry.Registry { return s.reg }

func (s *Service) Workspace() *project.Workspace { return s.ws }

func (s *Service) Discoverer() *toolchain.Discoverer { return s.disc }

// Wait blocks until every parser is idle or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	if s.reg.Done() {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", errors.ErrNotReady, ctx.Err())
		case <-ticker.C:
			if s.reg.Done() {
				return nil
			}
		}
	}
}

// Close stops the event loop and every parser.
func (s *Service) Close() {
	s.bridge.Shutdown()
	s.cancel()
	s.wg.Wait()
	s.reg.Close()
}

// query is one resolved caret: the document, the offset and the session of
// the parser that owns the file.
type query struct {
	doc     *editor.Document
	pos     int
	parser  *parser.Parser
	session *resolver.Session
}

func (q query) data() resolver.SearchData {
	return resolver.SearchData{Buffer: q.doc}
}

func absFile(file string) (string, error) {
	if file == "" {
		return "", errors.ErrMissingFile
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", errors.NewFileError("resolve", file, err)
	}
	return abs, nil
}

func openDocument(file, text string) (*editor.Document, error) {
	if text != "" {
		return editor.NewDocument(file, text), nil
	}
	doc, err := editor.OpenDocument(file)
	if err != nil {
		return nil, errors.NewFileError("read", file, err)
	}
	return doc, nil
}

// focus activates file in the registry and returns the parser owning it.
// It does not wait; a parser that is still busy answers through busyReason.
func (s *Service) focus(ctx context.Context, file string) *parser.Parser {
	s.reg.OnEditorActivated(ctx, file, nil)
	return s.reg.ParserForFile(file)
}

// Activate focuses file the way a query would, so that a caller willing to
// block can Wait for its parser before querying.
func (s *Service) Activate(ctx context.Context, file string) error {
	abs, err := absFile(file)
	if err != nil {
		return err
	}
	s.focus(ctx, abs)
	return nil
}

// busyReason is empty when pp can be queried.
func busyReason(pp *parser.Parser) string {
	if pp.Done() {
		return ""
	}
	if reason := pp.NotDoneReason(); reason != "" {
		return reason
	}
	return fmt.Sprintf("parser of %q is busy", pp.Project())
}

func (s *Service) prepare(ctx context.Context, req PositionRequest) (query, error) {
	file, err := absFile(req.File)
	if err != nil {
		return query{}, err
	}
	doc, err := openDocument(file, req.Text)
	if err != nil {
		return query{}, err
	}
	lines := doc.LineFromPosition(doc.Length()) + 1
	if req.Line < 1 || req.Line > lines || req.Column < 1 {
		return query{}, fmt.Errorf("%w: %d:%d", errors.ErrInvalidPosition, req.Line, req.Column)
	}
	pos := doc.PositionFromLineColumn(req.Line, req.Column)
	doc.SetCurrentPos(pos)

	pp := s.focus(ctx, file)
	return query{doc: doc, pos: pos, parser: pp, session: s.reg.Session(pp)}, nil
}

// Complete lists what may be typed at the caret.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	q, err := s.prepare(ctx, req.PositionRequest)
	if err != nil {
		return nil, err
	}
	if busy := busyReason(q.parser); busy != "" {
		debug.LogResolver("Complete: %s\n", busy)
		return &CompleteResponse{Items: []Completion{}, Busy: busy}, nil
	}
	s.queryMu.Lock()
	defer s.queryMu.Unlock()

	cc := s.cfg.CodeCompletion
	var set types.IndexSet
	q.session.MarkItemsByAI(q.data(), &set, cc.UseSmartSense, !req.Exact, req.CaseSensitive || cc.CaseSensitive, q.pos)
	typed := q.doc.TextRange(q.doc.WordStartPosition(q.pos, true), q.pos)

	resp := &CompleteResponse{Global: q.session.LastAISearchWasGlobal()}
	q.parser.TokenTree().With(func(g *tokentree.Guard) {
		cands := resolver.Candidates(g, set, typed)
		resp.Total = len(cands)
		if req.Max > 0 && len(cands) > req.Max {
			cands = cands[:req.Max]
		}
		resp.Items = make([]Completion, 0, len(cands))
		for _, c := range cands {
			tok := g.At(c.Index)
			resp.Items = append(resp.Items, Completion{
				Name:    c.Name,
				Display: c.Display,
				Kind:    c.Kind.String(),
				Scope:   strings.TrimSuffix(parser.ScopeName(g, tok.ParentIndex), "::"),
				Type:    tok.BaseType,
				File:    tok.File,
				Line:    tok.Line,
				Image:   int(c.Image),
				Score:   c.Score,
			})
		}
	})
	return resp, nil
}

// CallTip returns the signatures of the call the caret is inside.
func (s *Service) CallTip(ctx context.Context, req PositionRequest) (*CallTipResponse, error) {
	q, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if busy := busyReason(q.parser); busy != "" {
		return &CallTipResponse{Tips: []string{}, Busy: busy}, nil
	}
	s.queryMu.Lock()
	defer s.queryMu.Unlock()

	tips, commas, start := q.session.GetCallTips(q.data(), 0, q.pos)
	if tips == nil {
		tips = []string{}
	}
	return &CallTipResponse{Tips: tips, TypedCommas: commas, Start: start}, nil
}

// CurrentFunction names the function enclosing the caret.
func (s *Service) CurrentFunction(ctx context.Context, req PositionRequest) (*FunctionResponse, error) {
	q, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if busy := busyReason(q.parser); busy != "" {
		return &FunctionResponse{Busy: busy}, nil
	}
	s.queryMu.Lock()
	defer s.queryMu.Unlock()

	fs := q.session.FindCurrentFunctionStart(q.data(), q.pos)
	if fs.Pos < 0 {
		return &FunctionResponse{}, nil
	}
	return &FunctionResponse{
		Found:     true,
		Namespace: fs.Namespace,
		Proc:      fs.Proc,
		Line:      q.doc.LineFromPosition(fs.Pos) + 1,
	}, nil
}

// Tokens lists tokens of the active parser, or of the parser owning
// req.File.
func (s *Service) Tokens(ctx context.Context, req TokensRequest) (*TokensResponse, error) {
	pp := s.reg.Active()
	file := ""
	if req.File != "" {
		var err error
		if file, err = absFile(req.File); err != nil {
			return nil, err
		}
		pp = s.focus(ctx, file)
	}
	if busy := busyReason(pp); busy != "" {
		return &TokensResponse{Tokens: []TokenInfo{}, Busy: busy}, nil
	}

	mask := types.ParseKindMask(req.Kind)
	resp := &TokensResponse{Tokens: []TokenInfo{}}
	pp.TokenTree().With(func(g *tokentree.Guard) {
		add := func(tok *types.Token) {
			if tok.IsTemp || !tok.Kind.Matches(mask) {
				return
			}
			if req.Name != "" && !tokentree.NameMatches(tok.Name, req.Name, false, true) {
				return
			}
			resp.Tokens = append(resp.Tokens, TokenInfo{
				Name:     tok.Name,
				Kind:     tok.Kind.String(),
				Scope:    strings.TrimSuffix(parser.ScopeName(g, tok.ParentIndex), "::"),
				Args:     tok.Args,
				Type:     tok.BaseType,
				File:     tok.File,
				Line:     tok.Line,
				ImplFile: tok.ImplFile,
				ImplLine: tok.ImplLine,
			})
		}
		if file != "" {
			for _, idx := range g.FindTokensInFile(file, mask).Slice() {
				if tok := g.At(idx); tok != nil {
					add(tok)
				}
			}
			return
		}
		g.Each(func(tok *types.Token) bool {
			add(tok)
			return true
		})
	})

	sort.Slice(resp.Tokens, func(i, j int) bool {
		a, b := resp.Tokens[i], resp.Tokens[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Name < b.Name
	})
	resp.Total = len(resp.Tokens)
	if req.Max > 0 && len(resp.Tokens) > req.Max {
		resp.Tokens = resp.Tokens[:req.Max]
	}
	return resp, nil
}

// BufferFunctions lists the functions implemented in a buffer without
// touching the index.
func (s *Service) BufferFunctions(ctx context.Context, req BufferRequest) (*BufferFunctionsResponse, error) {
	file, err := absFile(req.File)
	if err != nil {
		return nil, err
	}
	doc, err := openDocument(file, req.Text)
	if err != nil {
		return nil, err
	}
	s.queryMu.Lock()
	defer s.queryMu.Unlock()

	pp := s.reg.ParserForFile(file)
	funcs := pp.ParseBufferForFunctions(file, doc.Text())
	resp := &BufferFunctionsResponse{Functions: make([]FunctionInfo, 0, len(funcs))}
	for _, f := range funcs {
		resp.Functions = append(resp.Functions, FunctionInfo{
			Name:      f.Name,
			Scope:     strings.TrimSuffix(f.Scope, "::"),
			Display:   f.DisplayName,
			Kind:      f.Kind.String(),
			Line:      f.Line,
			BodyStart: f.ImplLineStart,
			BodyEnd:   f.ImplLineEnd,
		})
	}
	return resp, nil
}

// Reparse schedules a background reparse of file in its project's parser.
func (s *Service) Reparse(ctx context.Context, file string) (*ReparseResponse, error) {
	abs, err := absFile(file)
	if err != nil {
		return nil, err
	}
	if types.FileTypeOf(abs) == types.FileOther {
		return nil, errors.NewFileError("reparse", abs, errors.ErrNotParsable)
	}
	p := s.reg.GetProjectByFilename(abs)
	return &ReparseResponse{File: abs, Scheduled: s.reg.ReparseFile(ctx, p, abs)}, nil
}

// Environment runs compiler discovery for the active project.
func (s *Service) Environment(ctx context.Context) *EnvironmentResponse {
	p := s.ws.ActiveProject()
	env := s.disc.Environment(ctx, p)
	resp := &EnvironmentResponse{IncludeDirs: env.IncludeDirs, Macros: env.Macros}
	if resp.IncludeDirs == nil {
		resp.IncludeDirs = []string{}
	}
	if p != nil {
		resp.Project = p.Name()
	}
	return resp
}

func (s *Service) Status() Status {
	active := s.reg.Active()
	st := Status{
		Ready:      s.reg.Done(),
		Parsers:    len(s.reg.Parsers()),
		Active:     active.Project(),
		Files:      len(active.Files()),
		Tokens:     active.TokenTree().Size(),
		Standalone: s.reg.StandaloneFiles(),
		Refreshes:  s.bridge.Refreshes(),
		Busy:       active.NotDoneReason(),
	}
	return st
}
