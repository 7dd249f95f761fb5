package resolver

import (
	"strings"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/parser"
	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/types"
)

// FunctionStart describes the function or class enclosing a caret.
type FunctionStart struct {
	// Pos is the buffer offset of the body's opening brace for functions,
	// or of the start of the declaration line for classes. -1 if none.
	Pos       int
	Namespace string
	Proc      string
	Index     int
}

var noFunction = FunctionStart{Pos: -1, Index: -1}

type functionCache struct {
	valid      bool
	generation uint64
	line       int
	identity   uint64
	revision   uint64
	file       string
	start      FunctionStart
}

func (c *functionCache) hit(generation uint64, line int, identity, revision uint64, file string) bool {
	return c.valid && c.generation == generation && c.line == line &&
		c.identity == identity && c.revision == revision && c.file == file
}

// FindCurrentFunctionStart locates the function (or class) containing the
// caret. Results are cached per line, buffer and revision.
func (s *Session) FindCurrentFunctionStart(sd SearchData, caretPos int) FunctionStart {
	g := s.parser.TokenTree().Lock()
	defer g.Unlock()
	return s.findCurrentFunctionStart(g, sd, caretPos)
}

func (s *Session) findCurrentFunctionStart(g *tokentree.Guard, sd SearchData, caretPos int) FunctionStart {
	pos, ok := sd.caret(caretPos)
	if !ok {
		return noFunction
	}
	buf := sd.Buffer
	file := sd.file()
	line := buf.LineFromPosition(pos) + 1
	generation := s.generation.Load()

	if s.cache.hit(generation, line, buf.Identity(), buf.Revision(), file) {
		if st := s.cache.start; st.Index == -1 || stillNamed(g, st.Index, st.Proc) {
			debug.LogResolver("FindCurrentFunctionStart: cached %q at line %d\n", st.Proc, line)
			return st
		}
	}

	start := noFunction
	tokens := g.FindTokensInFile(file, types.KindAnyFunction|types.KindClass)
	if idx := getTokenFromCurrentLine(g, tokens, line, file); idx != -1 {
		tok := g.At(idx)
		start = FunctionStart{
			Pos:       buf.PositionFromLine(tok.ImplLine - 1),
			Namespace: parser.ScopeName(g, tok.ParentIndex) + tok.NamespacePrefix,
			Proc:      tok.Name,
			Index:     idx,
		}
		if tok.Kind.Matches(types.KindAnyFunction) {
			start.Pos = openingBrace(sd, start.Pos)
		}
	}

	s.cache = functionCache{
		valid:      true,
		generation: generation,
		line:       line,
		identity:   buf.Identity(),
		revision:   buf.Revision(),
		file:       file,
		start:      start,
	}
	return start
}

func stillNamed(g *tokentree.Guard, idx int, name string) bool {
	tok := g.At(idx)
	return tok != nil && tok.Name == name
}

// openingBrace scans forward from pos to the first code '{'.
func openingBrace(sd SearchData, pos int) int {
	buf := sd.Buffer
	for n := buf.Length(); pos >= 0 && pos < n; pos++ {
		if buf.CharAt(pos) == '{' {
			if st := buf.StyleAt(pos); !st.IsComment() && !st.IsCharacterOrString() {
				return pos
			}
		}
	}
	return -1
}

// getTokenFromCurrentLine picks the function whose implementation in file
// spans line. Failing that the innermost class around the line wins.
func getTokenFromCurrentLine(g *tokentree.Guard, tokens types.IndexSet, line int, file string) int {
	class := -1
	for _, idx := range tokens.Slice() {
		tok := g.At(idx)
		if tok == nil {
			continue
		}
		switch {
		case tok.Kind.Matches(types.KindAnyFunction):
			if tok.ImplFile == file && tok.ImplLine > 0 && tok.ImplLine <= line && line <= tok.ImplLineEnd {
				return idx
			}
		case tok.Kind == types.KindClass:
			if tok.ImplFile == file && tok.ContainsLine(line) {
				class = idx
			}
		}
	}
	return class
}

// FindCurrentFunctionToken returns the tokens that name the function around
// the caret: the one found by line, and every overload reachable through its
// qualified scope name.
func (s *Session) FindCurrentFunctionToken(sd SearchData, caretPos int) types.IndexSet {
	g := s.parser.TokenTree().Lock()
	defer g.Unlock()
	return s.findCurrentFunctionToken(g, sd, caretPos)
}

func (s *Session) findCurrentFunctionToken(g *tokentree.Guard, sd SearchData, caretPos int) types.IndexSet {
	var result types.IndexSet
	start := s.findCurrentFunctionStart(g, sd, caretPos)
	if start.Proc == "" {
		return result
	}
	if start.Index != -1 {
		result.Insert(start.Index)
	}

	scopes := findAIMatches(g, strings.TrimSuffix(start.Namespace, "::"))
	if scopes.Empty() {
		scopes.Insert(types.GlobalScope)
	}
	for _, sc := range scopes.Slice() {
		result.Union(GenerateResultSet(g, start.Proc, sc, true, false, types.KindAnyFunction|types.KindClass))
	}
	return result
}

// findAIMatches resolves a qualified container name from the global scope.
func findAIMatches(g *tokentree.Guard, qualified string) types.IndexSet {
	var scopes types.IndexSet
	if qualified == "" {
		return scopes
	}
	scopes.Insert(types.GlobalScope)
	for _, part := range strings.Split(qualified, "::") {
		var next types.IndexSet
		for _, sc := range scopes.Slice() {
			next.Union(GenerateResultSet(g, part, sc, true, false, types.KindAnyContainer))
		}
		if next.Empty() {
			return next
		}
		scopes = next
	}
	return scopes
}

// findCurrentFunctionScope turns the current function tokens into search
// scopes: the function itself (its locals hang off it) and every enclosing
// class or namespace.
func findCurrentFunctionScope(g *tokentree.Guard, procResult types.IndexSet) types.IndexSet {
	var scopes types.IndexSet
	for _, idx := range procResult.Slice() {
		tok := g.At(idx)
		if tok == nil {
			continue
		}
		if tok.Kind == types.KindClass || tok.Kind.Matches(types.KindAnyFunction) {
			scopes.Insert(idx)
		}
		if tok.NamespacePrefix != "" {
			scopes.Union(findAIMatches(g, strings.TrimSuffix(tok.NamespacePrefix, "::")))
		}
		p := tok.ParentIndex
		for steps := 0; p != types.GlobalScope && steps < 64; steps++ {
			parent := g.At(p)
			if parent == nil {
				break
			}
			if parent.Kind == types.KindNamespace || parent.Kind == types.KindClass {
				scopes.Insert(p)
			}
			p = parent.ParentIndex
		}
	}
	return scopes
}
