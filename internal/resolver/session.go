// Package resolver answers "what is valid here" for a caret position in an
// editor buffer. It reads the token tree of one parser, adds the current
// function's arguments and locals as temporaries, and resolves the
// expression left of the caret through scopes and declared types.
package resolver

import (
	"strings"
	"sync/atomic"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/editor"
	"github.com/standardbeagle/ccindex/internal/parser"
	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/types"
)

// SearchData is the buffer a query runs against. File defaults to the
// buffer's own file name.
type SearchData struct {
	Buffer editor.Buffer
	File   string
}

func (sd SearchData) file() string {
	if sd.File != "" {
		return sd.File
	}
	if sd.Buffer == nil {
		return ""
	}
	return sd.Buffer.Filename()
}

// caret resolves -1 to the buffer's current position and reports whether
// the result lies inside the buffer.
func (sd SearchData) caret(pos int) (int, bool) {
	if sd.Buffer == nil {
		return 0, false
	}
	if pos == -1 {
		pos = sd.Buffer.CurrentPos()
	}
	return pos, pos >= 0 && pos <= sd.Buffer.Length()
}

// Session holds the per-parser query state: the function-start cache, the
// function whose locals were parsed last, and the flags of the last search.
// A Session is not safe for concurrent queries. Invalidate may be called
// from any goroutine.
type Session struct {
	parser *parser.Parser

	// generation is bumped by Invalidate; the cache only hits while it
	// still matches. cache itself is only touched under the tree lock.
	generation  atomic.Uint64
	cache       functionCache
	lastFuncIdx int

	lastGlobal       bool
	lastGlobalSearch string
}

// NewSession binds a session to p.
func NewSession(p *parser.Parser) *Session {
	return &Session{parser: p, lastFuncIdx: -1}
}

// Parser returns the parser this session queries.
func (s *Session) Parser() *parser.Parser { return s.parser }

// Invalidate forgets the cached function start. Call it when the token tree
// changed under the session.
func (s *Session) Invalidate() {
	s.generation.Add(1)
}

// LastAISearchWasGlobal reports whether the last AI query had at most one
// component, so that a caller may widen it to the whole tree.
func (s *Session) LastAISearchWasGlobal() bool { return s.lastGlobal }

// LastAIGlobalSearch is the first component of the last AI query.
func (s *Session) LastAIGlobalSearch() string { return s.lastGlobalSearch }

// ClearTemporaries empties the scratch tree and removes every temporary
// token from the main tree.
func (s *Session) ClearTemporaries() {
	s.parser.TempTokenTree().Clear()
	s.parser.TokenTree().With(func(g *tokentree.Guard) {
		s.clearTemporaries(g)
	})
}

func (s *Session) clearTemporaries(g *tokentree.Guard) {
	if s.lastFuncIdx != -1 {
		g.RemoveTempChildren(s.lastFuncIdx)
	}
	if n := g.RemoveTemps(); n > 0 {
		debug.LogResolver("removed %d temporary token(s)\n", n)
	}
	s.lastFuncIdx = -1
}

// MarkItemsByAI fills result with the tokens valid at caretPos and returns
// how many there are. With reallyUseAI false every token of the tree is
// returned once locals are in place. A busy parser yields nothing.
func (s *Session) MarkItemsByAI(sd SearchData, result *types.IndexSet, reallyUseAI, isPrefix, caseSensitive bool, caretPos int) int {
	result.Clear()
	if !s.parser.Done() {
		debug.LogResolver("The Parser is still parsing files. %s\n", s.parser.NotDoneReason())
		return 0
	}
	// Out-of-range carets leave the trees untouched, temporaries included.
	if _, ok := sd.caret(caretPos); !ok {
		return 0
	}
	s.parser.TempTokenTree().Clear()

	g := s.parser.TokenTree().Lock()
	defer g.Unlock()
	return s.markItems(g, sd, result, reallyUseAI, isPrefix, caseSensitive, caretPos)
}

func (s *Session) markItems(g *tokentree.Guard, sd SearchData, result *types.IndexSet, reallyUseAI, isPrefix, caseSensitive bool, caretPos int) int {
	if _, ok := sd.caret(caretPos); !ok {
		return 0
	}
	s.clearTemporaries(g)

	var searchScope types.IndexSet
	s.parseUsingNamespace(g, sd, &searchScope, caretPos)
	s.parseFunctionArguments(g, sd, caretPos)
	s.parseLocalBlock(g, sd, &searchScope, caretPos)

	if !reallyUseAI {
		result.Union(g.Indices())
		return result.Len()
	}
	return s.ai(g, sd, result, "", isPrefix, caseSensitive, &searchScope, caretPos)
}

// AI resolves the expression ending at caretPos. When lineText is empty the
// text from the start of the caret's line is used. searchScope may be nil;
// otherwise it is extended with the current function's scopes.
func (s *Session) AI(sd SearchData, result *types.IndexSet, lineText string, isPrefix, caseSensitive bool, searchScope *types.IndexSet, caretPos int) int {
	g := s.parser.TokenTree().Lock()
	defer g.Unlock()
	return s.ai(g, sd, result, lineText, isPrefix, caseSensitive, searchScope, caretPos)
}

func (s *Session) ai(g *tokentree.Guard, sd SearchData, result *types.IndexSet, lineText string, isPrefix, caseSensitive bool, searchScope *types.IndexSet, caretPos int) int {
	s.lastGlobal = false
	s.lastGlobalSearch = ""

	pos, ok := sd.caret(caretPos)
	if !ok {
		return 0
	}
	actual := lineText
	if actual == "" {
		line := sd.Buffer.LineFromPosition(pos)
		actual = sd.Buffer.TextRange(sd.Buffer.PositionFromLine(line), pos)
	}
	actual = strings.TrimRight(actual, " \t\r\n")

	procResult := s.findCurrentFunctionToken(g, sd, pos)
	scopeResult := findCurrentFunctionScope(g, procResult)

	if searchScope == nil {
		searchScope = &types.IndexSet{}
	}
	searchScope.Union(scopeResult)
	CleanupSearchScope(g, searchScope)

	components := BreakUpComponents(actual)
	s.lastGlobal = len(components) <= 1
	if len(components) > 0 {
		s.lastGlobalSearch = components[0].Name
	}
	debug.LogResolver("AI: %q -> %d component(s), %d scope(s)\n", actual, len(components), searchScope.Len())

	result.Union(ResolveExpression(g, components, *searchScope, caseSensitive, isPrefix))
	return result.Len()
}
