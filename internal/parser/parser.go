// Package parser fills a parser's token trees from C/C++ files and buffers.
//
// Whole files are parsed in background batches. Buffer parses are
// synchronous and are what the resolver uses to pick up function arguments and
// local declarations of the code being edited.
package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/security"
	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/types"
)

// Engine selects the file parser.
type Engine string

const (
	EngineNative     Engine = "native"
	EngineTreeSitter Engine = "treesitter"
)

// PredefinedFile is the pseudo file that owns compiler and project macros.
const PredefinedFile = "<predefined>"

// Options controls what a parser records and which files it follows.
type Options struct {
	FollowLocalIncludes  bool
	FollowGlobalIncludes bool
	WantPreprocessor     bool
	ParseComplexMacros   bool
	Engine               Engine
	// MaxWorkers bounds the files parsed at once in a batch. Zero means one
	// per CPU.
	MaxWorkers int
}

// DefaultOptions returns the options a new parser starts with.
func DefaultOptions() Options {
	return Options{
		FollowLocalIncludes:  true,
		FollowGlobalIncludes: true,
		WantPreprocessor:     true,
		Engine:               EngineNative,
	}
}

func (o Options) scanConfig() scanConfig {
	return scanConfig{
		evaluate:    o.WantPreprocessor,
		storeMacros: o.WantPreprocessor,
		macroUses:   o.ParseComplexMacros,
	}
}

func (o Options) workers() int {
	if o.MaxWorkers > 0 {
		return o.MaxWorkers
	}
	return runtime.NumCPU()
}

var parserIDs atomic.Uint64

// Parser owns the token trees of one project (or of a whole workspace).
type Parser struct {
	id      uint64
	project string
	main    *tokentree.Tree
	temp    *tokentree.Tree

	mu          sync.Mutex
	opts        Options
	includeDirs []string
	macros      strings.Builder
	macrosDirty bool
	hashes      map[string]uint64
	sink        EventSink
	reason      string
	ts          *treeSitterEngine
	validator   *security.FileValidator

	running atomic.Int32
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates an idle parser with empty trees.
func New(project string, opts Options) *Parser {
	ctx, cancel := context.WithCancel(context.Background())
	id := parserIDs.Add(1)
	return &Parser{
		id:        id,
		project:   project,
		main:      tokentree.New(fmt.Sprintf("parser-%d", id)),
		temp:      tokentree.New(fmt.Sprintf("parser-%d-temp", id)),
		opts:      opts,
		hashes:    make(map[string]uint64),
		validator: security.NewFileValidator(security.DefaultThresholdKB),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (p *Parser) ID() uint64 { return p.id }

// Project is the name of the project the parser was created for.
func (p *Parser) Project() string { return p.project }

// TokenTree is the main tree: file tokens plus the current query's
// temporaries.
func (p *Parser) TokenTree() *tokentree.Tree { return p.main }

// TempTokenTree is scratch space for buffer analysis.
func (p *Parser) TempTokenTree() *tokentree.Tree { return p.temp }

func (p *Parser) Options() Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

// SetOptions replaces the options. Running batches keep the options they
// started with.
func (p *Parser) SetOptions(opts Options) {
	p.mu.Lock()
	p.opts = opts
	p.mu.Unlock()
}

func (p *Parser) SetEventSink(sink EventSink) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

func (p *Parser) AddIncludeDir(dir string) {
	if dir == "" {
		return
	}
	dir = filepath.Clean(dir)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.includeDirs {
		if existing == dir {
			return
		}
	}
	p.includeDirs = append(p.includeDirs, dir)
}

func (p *Parser) IncludeDirs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.includeDirs...)
}

// AddPredefinedMacros appends #define lines. They are turned into macro
// tokens of PredefinedFile at the start of the next batch.
func (p *Parser) AddPredefinedMacros(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.macros.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		p.macros.WriteByte('\n')
	}
	p.macrosDirty = true
}

func (p *Parser) ClearPredefinedMacros() {
	p.mu.Lock()
	p.macros.Reset()
	p.macrosDirty = true
	p.mu.Unlock()
}

// PredefinedMacros returns the accumulated #define text.
func (p *Parser) PredefinedMacros() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.macros.String()
}

// Done reports whether no batch is running.
func (p *Parser) Done() bool {
	return p.running.Load() == 0
}

// NotDoneReason describes the running batch, or is empty when done.
func (p *Parser) NotDoneReason() string {
	if p.Done() {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// Files lists every file parsed into the main tree, sorted.
func (p *Parser) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	files := make([]string, 0, len(p.hashes))
	for f := range p.hashes {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// IsFileParsed reports whether the file's tokens are in the main tree.
func (p *Parser) IsFileParsed(file string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.hashes[filepath.Clean(file)]
	return ok
}

// Parse starts the initial batch for a project's files.
func (p *Parser) Parse(ctx context.Context, files []string) {
	p.startBatch(ctx, StateCreateParser, files, true)
}

// AddFile parses one more file in the background.
func (p *Parser) AddFile(ctx context.Context, file string) {
	p.startBatch(ctx, StateAddFileToParser, []string{file}, true)
}

// AddFiles parses several files as one add-file batch.
func (p *Parser) AddFiles(ctx context.Context, files []string) {
	p.startBatch(ctx, StateAddFileToParser, files, true)
}

// Reparse refreshes a file in the background. A file whose content hash is
// unchanged is left alone.
func (p *Parser) Reparse(ctx context.Context, file string) {
	p.startBatch(ctx, StateReparseFile, []string{file}, false)
}

// RemoveFile drops a file's tokens.
func (p *Parser) RemoveFile(file string) int {
	file = filepath.Clean(file)
	p.mu.Lock()
	delete(p.hashes, file)
	p.mu.Unlock()

	g := p.main.Lock()
	defer g.Unlock()
	return g.RemoveFile(file)
}

// Wait blocks until every started batch has finished.
func (p *Parser) Wait() {
	p.wg.Wait()
}

// Close cancels running batches and waits for them.
func (p *Parser) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Parser) emit(ev Event) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	ev.Project = p.project
	ev.Parser = p
	if sink != nil {
		sink(ev)
	}
}

func (p *Parser) startBatch(ctx context.Context, state State, files []string, force bool) {
	p.running.Add(1)
	p.mu.Lock()
	p.reason = fmt.Sprintf("%s batch of %d file(s) in progress", state, len(files))
	p.mu.Unlock()
	p.emit(Event{Phase: PhaseStart, State: state, Message: fmt.Sprintf("%d file(s)", len(files))})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		batchCtx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(p.ctx, cancel)
		defer func() {
			stop()
			cancel()
		}()

		parsed, err := p.runBatch(batchCtx, files, force)
		p.running.Add(-1)

		end := Event{Phase: PhaseEnd, State: state, Message: fmt.Sprintf("%d file(s) parsed", parsed)}
		if err != nil {
			debug.LogParser("%s batch for %q stopped: %v\n", state, p.project, err)
			end.State = StateUndefined
			end.Message = err.Error()
		}
		p.emit(end)
	}()
}

// runBatch parses files in rounds. Headers go first; includes discovered in
// one round are parsed in the next.
func (p *Parser) runBatch(ctx context.Context, files []string, force bool) (int, error) {
	p.flushMacros()

	opts := p.Options()
	dirs := p.IncludeDirs()

	seen := make(map[string]bool, len(files))
	var queue []string
	for _, f := range files {
		f = filepath.Clean(f)
		if !seen[f] {
			seen[f] = true
			queue = append(queue, f)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return types.FileTypeOf(queue[i]) == types.FileHeader && types.FileTypeOf(queue[j]) != types.FileHeader
	})

	var parsed atomic.Int32
	for len(queue) > 0 {
		var (
			mu   sync.Mutex
			next []string
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.workers())
		for _, file := range queue {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				includes, ok, err := p.parseFile(file, opts, force)
				if err != nil {
					debug.LogParser("%v\n", err)
					return nil
				}
				if ok {
					parsed.Add(1)
				}
				for _, inc := range includes {
					if inc.global && !opts.FollowGlobalIncludes || !inc.global && !opts.FollowLocalIncludes {
						continue
					}
					path, found := resolveInclude(inc, file, dirs)
					if !found || p.IsFileParsed(path) {
						continue
					}
					mu.Lock()
					if !seen[path] {
						seen[path] = true
						next = append(next, path)
					}
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return int(parsed.Load()), err
		}
		queue = next
		force = false
	}
	return int(parsed.Load()), nil
}

// parseFile replaces the tokens of one file. It reports false when the file
// was skipped because its content is unchanged.
func (p *Parser) parseFile(path string, opts Options, force bool) ([]include, bool, error) {
	if err := p.validator.ValidateLargeFile(path); err != nil {
		return nil, false, errors.NewParseError(path, 0, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false, errors.NewParseError(path, 0, err)
	}
	sum := xxhash.Sum64(content)

	p.mu.Lock()
	old, known := p.hashes[path]
	p.mu.Unlock()
	if !force && known && old == sum {
		debug.LogParser("unchanged, skipping %s\n", path)
		return nil, false, nil
	}

	includes := p.scanFile(path, content, opts)

	p.mu.Lock()
	p.hashes[path] = sum
	p.mu.Unlock()
	return includes, true, nil
}

func (p *Parser) scanFile(path string, content []byte, opts Options) []include {
	cfg := opts.scanConfig()
	if opts.Engine == EngineTreeSitter {
		if tree := p.treeSitter().parse(path, content); tree != nil {
			defer tree.Close()
			g := p.main.Lock()
			defer g.Unlock()
			g.RemoveFile(path)
			w := newTSWalker(g, content, FileOptions(path), cfg)
			w.run(tree)
			return w.sc.includes
		}
		debug.LogParser("tree-sitter gave no tree for %s, using native engine\n", path)
	}

	lexemes := NewLexer(string(content)).Tokenize()
	g := p.main.Lock()
	defer g.Unlock()
	g.RemoveFile(path)
	s := newScanner(g, lexemes, FileOptions(path), cfg)
	s.run()
	return s.includes
}

func (p *Parser) treeSitter() *treeSitterEngine {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ts == nil {
		p.ts = newTreeSitterEngine()
	}
	return p.ts
}

// flushMacros turns pending predefined macros into tokens.
func (p *Parser) flushMacros() {
	p.mu.Lock()
	if !p.macrosDirty {
		p.mu.Unlock()
		return
	}
	text := p.macros.String()
	p.macrosDirty = false
	p.mu.Unlock()

	lexemes := NewLexer(text).Tokenize()
	g := p.main.Lock()
	defer g.Unlock()
	g.RemoveFile(PredefinedFile)
	s := newScanner(g, lexemes, FileOptions(PredefinedFile), scanConfig{storeMacros: true})
	s.run()
}

// ParseBuffer parses a snippet into the main tree.
func (p *Parser) ParseBuffer(buffer string, opts BufferOptions) bool {
	g := p.main.Lock()
	defer g.Unlock()
	return p.ParseBufferWith(g, buffer, opts)
}

// ParseBufferWith is ParseBuffer for callers that already hold one of the
// parser's trees.
func (p *Parser) ParseBufferWith(g *tokentree.Guard, buffer string, opts BufferOptions) bool {
	if !g.Owns(p.main) && !g.Owns(p.temp) {
		debug.LogParser("ParseBufferWith: guard does not belong to parser %d\n", p.id)
		return false
	}
	cfg := p.Options().scanConfig()
	cfg.macroUses = false
	s := newScanner(g, NewLexer(buffer).Tokenize(), opts, cfg)
	s.run()
	return true
}

// BufferFunction is a function implemented in an analysed buffer.
type BufferFunction struct {
	Name          string
	Scope         string
	DisplayName   string
	Kind          types.TokenKind
	Line          int
	ImplLineStart int
	ImplLineEnd   int
}

// ParseBufferForFunctions lists the functions implemented in buffer. The
// temp tree is used; the main tree is not touched.
func (p *Parser) ParseBufferForFunctions(filename, buffer string) []BufferFunction {
	g := p.temp.Lock()
	defer g.Unlock()
	g.Clear()
	p.ParseBufferWith(g, buffer, BufferOptions{File: filename, ParentIdx: types.GlobalScope, InitLine: 1, IsTemp: true})

	var out []BufferFunction
	const mask = types.KindFunction | types.KindConstructor | types.KindDestructor
	g.Each(func(tok *types.Token) bool {
		if tok.Kind.Matches(mask) && tok.ImplLineEnd > 0 {
			out = append(out, BufferFunction{
				Name:          tok.Name,
				Scope:         ScopeName(g, tok.ParentIndex) + tok.NamespacePrefix,
				DisplayName:   tok.DisplayName(),
				Kind:          tok.Kind,
				Line:          tok.ImplLine,
				ImplLineStart: tok.ImplLineStart,
				ImplLineEnd:   tok.ImplLineEnd,
			})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ScopeName renders the qualified name of idx followed by "::", skipping
// anonymous containers. The global scope renders as "".
func ScopeName(g *tokentree.Guard, idx int) string {
	var parts []string
	for tok := g.At(idx); tok != nil; tok = g.At(tok.ParentIndex) {
		if !tok.Unnamed() {
			parts = append(parts, tok.NamespacePrefix+tok.Name)
		}
		if tok.ParentIndex == types.GlobalScope {
			break
		}
	}
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
		b.WriteString("::")
	}
	return b.String()
}
