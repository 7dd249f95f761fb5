package parser

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/types"
)

// BufferOptions places the tokens produced by one buffer parse.
type BufferOptions struct {
	File      string
	ParentIdx int
	// InitLine is the 1-based line in File where the buffer starts.
	InitLine int
	IsTemp   bool
	IsLocal  bool
}

// FileOptions is the placement used for a whole file.
func FileOptions(file string) BufferOptions {
	return BufferOptions{File: file, ParentIdx: types.GlobalScope, InitLine: 1}
}

type scopeKind uint8

const (
	scopeFile scopeKind = iota
	scopeClass
	scopeLocal
)

// scanConfig carries the parser options that change what the scanner records.
type scanConfig struct {
	// evaluate enables #ifdef and defined() evaluation against known macros.
	evaluate    bool
	storeMacros bool
	macroUses   bool
}

// scanner is the native declaration engine. It walks lexemes once and writes
// tokens through a held guard; it never takes the tree lock itself.
type scanner struct {
	g    *tokentree.Guard
	lx   []Lexeme
	pos  int
	opts BufferOptions
	cfg  scanConfig

	includes []include
	anon     int
}

func newScanner(g *tokentree.Guard, lexemes []Lexeme, opts BufferOptions, cfg scanConfig) *scanner {
	if opts.InitLine <= 0 {
		opts.InitLine = 1
	}
	if g.At(opts.ParentIdx) == nil {
		opts.ParentIdx = types.GlobalScope
	}
	lexemes = filterConditionals(lexemes, cfg.evaluate, func(name string) bool {
		return g.TokenExists(name, types.GlobalScope, types.KindMacroDef) >= 0
	})
	return &scanner{g: g, lx: lexemes, opts: opts, cfg: cfg}
}

// run parses the whole input. A stray closing brace ends a scope early, so the
// top level is resumed until the input is exhausted.
func (s *scanner) run() {
	kind := scopeFile
	if s.opts.IsLocal {
		kind = scopeLocal
	}
	for s.peek(0).Kind != LexEOF {
		s.parseScope(s.opts.ParentIdx, kind, types.ScopeUndefined)
	}
}

func (s *scanner) peek(n int) Lexeme {
	if i := s.pos + n; i >= 0 && i < len(s.lx) {
		return s.lx[i]
	}
	line := 1
	if len(s.lx) > 0 {
		line = s.lx[len(s.lx)-1].Line
	}
	return Lexeme{Kind: LexEOF, Line: line}
}

// line maps a lexeme to its line in the target file.
func (s *scanner) line(lx Lexeme) int {
	return s.opts.InitLine + lx.Line - 1
}

func (s *scanner) newToken(name string, kind types.TokenKind, parent int, at Lexeme) *types.Token {
	return s.newTokenAt(name, kind, parent, s.line(at))
}

func (s *scanner) newTokenAt(name string, kind types.TokenKind, parent, line int) *types.Token {
	tok := types.NewToken(name, kind)
	tok.ParentIndex = parent
	tok.File = s.opts.File
	tok.Line = line
	tok.IsTemp = s.opts.IsTemp
	tok.IsLocal = s.opts.IsLocal
	return tok
}

// parseScope consumes statements up to and including the closing brace of the
// current scope and returns the line of that brace.
func (s *scanner) parseScope(parent int, kind scopeKind, access types.TokenScope) int {
	for {
		lx := s.peek(0)
		start := s.pos
		switch {
		case lx.Kind == LexEOF:
			return s.line(lx)
		case lx.Is("}"):
			s.pos++
			return s.line(lx)
		case lx.Is(";"):
			s.pos++
		case lx.Is("{"):
			if kind == scopeLocal {
				s.pos++
				s.parseScope(parent, scopeLocal, access)
			} else {
				s.skipGroup()
			}
		case lx.Kind == LexDirective:
			s.pos++
			s.handleDirective(lx)
		case lx.Kind == LexIdentifier:
			access = s.parseStatement(parent, kind, access)
		case lx.Is("::") || lx.Is("~"):
			s.parseDeclaration(parent, kind, access)
		case lx.Is("[") && s.peek(1).Is("["):
			s.skipGroup()
		default:
			s.skipStatement()
		}
		if s.pos == start {
			s.pos++
		}
	}
}

func (s *scanner) parseStatement(parent int, kind scopeKind, access types.TokenScope) types.TokenScope {
	lx := s.peek(0)
	switch lx.Text {
	case "namespace":
		s.parseNamespace(parent)
	case "inline":
		if s.peek(1).IsIdent("namespace") {
			s.pos++
			s.parseNamespace(parent)
		} else {
			s.parseDeclaration(parent, kind, access)
		}
	case "using":
		s.parseUsing(parent, access)
	case "template":
		s.pos++
		if s.peek(0).Is("<") {
			s.skipGroup()
		}
	case "class", "struct", "union":
		s.parseClassStatement(parent, kind, access)
	case "enum":
		s.parseEnumStatement(parent, kind, access)
	case "typedef":
		s.parseTypedef(parent, kind, access)
	case "extern":
		if s.peek(1).Kind != LexString {
			s.pos++
			break
		}
		if s.peek(2).Is("{") {
			s.pos += 3
			s.parseScope(parent, kind, access)
		} else {
			s.pos += 2
		}
	case "public", "protected", "private":
		if !s.peek(1).Is(":") {
			s.pos++
			break
		}
		s.pos += 2
		if kind == scopeClass {
			return accessOf(lx.Text)
		}
	case "friend", "static_assert", "asm", "__asm__", "__asm",
		"return", "goto", "break", "continue", "throw", "delete",
		"co_return", "co_yield", "co_await":
		s.skipStatement()
	case "case", "default":
		s.skipLabel()
	case "if", "for", "while", "switch", "catch":
		if kind == scopeLocal {
			s.parseControlHeader(parent)
		} else {
			s.skipStatement()
		}
	case "else", "do", "try":
		s.pos++
	default:
		if s.skipMacro(parent) {
			break
		}
		s.parseDeclaration(parent, kind, access)
	}
	return access
}

func accessOf(word string) types.TokenScope {
	switch word {
	case "public":
		return types.ScopePublic
	case "protected":
		return types.ScopeProtected
	}
	return types.ScopePrivate
}

func (s *scanner) handleDirective(lx Lexeme) {
	d := parseDirective(lx.Text)
	switch d.name {
	case "define":
		if s.cfg.storeMacros {
			s.addMacro(d.rest, lx)
		}
	case "include", "include_next", "import":
		if inc, ok := parseInclude(d.rest, s.line(lx)); ok {
			s.includes = append(s.includes, inc)
		}
	}
}

func (s *scanner) addMacro(rest string, at Lexeme) {
	name, args, value := splitMacro(rest)
	if name == "" {
		return
	}
	if idx := s.g.TokenExists(name, types.GlobalScope, types.KindMacroDef); idx >= 0 {
		if tok := s.g.At(idx); tok.File == s.opts.File {
			tok.Args, tok.BaseType = args, value
			return
		}
	}
	tok := s.newToken(name, types.KindMacroDef, types.GlobalScope, at)
	tok.Args, tok.BaseType = args, value
	tok.IsLocal = false
	s.g.Insert(tok)
}

func (s *scanner) addMacroUse(at Lexeme, parent int) {
	if !s.cfg.macroUses {
		return
	}
	s.g.Insert(s.newToken(at.Text, types.KindMacroUse, parent, at))
}

// skipMacro handles statements that start with a known macro: a function-like
// invocation is recorded and skipped, an empty object-like macro is dropped.
func (s *scanner) skipMacro(parent int) bool {
	lx := s.peek(0)
	idx := s.g.TokenExists(lx.Text, types.GlobalScope, types.KindMacroDef)
	if idx < 0 {
		return false
	}
	macro := s.g.At(idx)
	switch {
	case macro.IsFunctionLike() && s.peek(1).Is("("):
		s.addMacroUse(lx, parent)
		s.pos++
		s.skipGroup()
		if s.peek(0).Is(";") {
			s.pos++
		}
		return true
	case !macro.IsFunctionLike() && macro.BaseType == "":
		s.pos++
		return true
	}
	return false
}

func (s *scanner) parseNamespace(parent int) {
	s.pos++
	var names []Lexeme
	for s.peek(0).Kind == LexIdentifier {
		names = append(names, s.peek(0))
		s.pos++
		if !s.peek(0).Is("::") {
			break
		}
		s.pos++
		if s.peek(0).IsIdent("inline") {
			s.pos++
		}
	}
	s.skipAttributes()

	switch {
	case s.peek(0).Is("=") && len(names) == 1:
		s.pos++
		start := s.pos
		end := s.skipStatement()
		tok := s.newToken(names[0].Text, types.KindTypedef, parent, names[0])
		tok.BaseType = joinLexemes(s.lx[start:end])
		s.g.Insert(tok)
	case s.peek(0).Is("{"):
		s.pos++
		idx := parent
		for _, name := range names {
			idx = s.namespaceToken(name, idx)
		}
		s.parseScope(idx, scopeFile, types.ScopeUndefined)
	default:
		s.skipStatement()
	}
}

func (s *scanner) namespaceToken(name Lexeme, parent int) int {
	if idx := s.g.TokenExists(name.Text, parent, types.KindNamespace); idx >= 0 {
		return idx
	}
	return s.g.Insert(s.newToken(name.Text, types.KindNamespace, parent, name))
}

func (s *scanner) parseUsing(parent int, access types.TokenScope) {
	s.pos++
	switch {
	case s.peek(0).IsIdent("namespace"):
		// Collected separately by ParseBufferForUsingNamespace.
		s.skipStatement()
	case s.peek(0).Kind == LexIdentifier && s.peek(1).Is("="):
		name := s.peek(0)
		s.pos += 2
		start := s.pos
		end := s.skipStatement()
		tok := s.newToken(name.Text, types.KindTypedef, parent, name)
		tok.BaseType = joinLexemes(s.lx[start:end])
		tok.Scope = access
		s.g.Insert(tok)
	default:
		s.skipStatement()
	}
}

// parseControlHeader scans the parenthesised header of if/for/while/switch/
// catch as local declarations, so that "for (int i = 0; ...)" yields i.
func (s *scanner) parseControlHeader(parent int) {
	s.pos++
	for s.peek(0).IsIdent("constexpr") || s.peek(0).IsIdent("consteval") {
		s.pos++
	}
	if !s.peek(0).Is("(") {
		return
	}
	// skipGroup stops at ';', which a for header contains.
	open, end, depth := s.pos, -1, 0
	for i := open; i < len(s.lx) && end < 0; i++ {
		switch lx := s.lx[i]; {
		case lx.Is("("):
			depth++
		case lx.Is(")"):
			if depth--; depth == 0 {
				end = i
			}
		case lx.Is("{") || lx.Is("}"):
			i = len(s.lx)
		}
	}
	if end < 0 {
		s.pos++
		return
	}
	s.pos = end + 1
	sub := &scanner{g: s.g, lx: s.lx[open+1 : end], opts: s.opts, cfg: s.cfg}
	for sub.peek(0).Kind != LexEOF {
		sub.parseScope(parent, scopeLocal, types.ScopeUndefined)
	}
}

func (s *scanner) skipLabel() {
	for {
		lx := s.peek(0)
		switch {
		case lx.Kind == LexEOF || lx.Is("}"):
			return
		case lx.Is(":") || lx.Is(";"):
			s.pos++
			return
		}
		s.pos++
	}
}

func (s *scanner) skipAttributes() {
	for {
		lx := s.peek(0)
		switch {
		case lx.Kind == LexIdentifier && attributeWords[lx.Text]:
			s.pos++
			if s.peek(0).Is("(") {
				s.skipGroup()
			}
		case lx.Is("[") && s.peek(1).Is("["):
			s.skipGroup()
		default:
			return
		}
	}
}

var closing = map[string]string{"(": ")", "[": "]", "{": "}", "<": ">"}

// skipGroup moves past the bracketed group opening at s.pos and returns the
// closing lexeme. Only brackets of the opening kind are counted, so a body with
// broken parentheses still ends at its brace. Parenthesised groups give up at
// a statement end.
func (s *scanner) skipGroup() Lexeme {
	open := s.peek(0).Text
	closer, ok := closing[open]
	if !ok {
		s.pos++
		return s.peek(-1)
	}
	depth, braces := 0, 0
	for {
		lx := s.peek(0)
		if lx.Kind == LexEOF {
			return lx
		}
		switch {
		case lx.Is(open):
			depth++
		case lx.Is(closer):
			depth--
			if depth == 0 {
				s.pos++
				return lx
			}
		case open != "{" && lx.Is("{"):
			braces++
		case open != "{" && lx.Is("}"):
			if braces == 0 {
				return lx
			}
			braces--
		case open != "{" && lx.Is(";") && braces == 0:
			return lx
		}
		s.pos++
	}
}

// skipStatement moves past the next ';' at nesting depth zero and returns its
// index. A closing brace at depth zero ends the statement without being
// consumed.
func (s *scanner) skipStatement() int {
	depth := 0
	for {
		lx := s.peek(0)
		switch {
		case lx.Kind == LexEOF:
			return s.pos
		case lx.Is("(") || lx.Is("[") || lx.Is("{"):
			depth++
		case lx.Is(")") || lx.Is("]"):
			if depth > 0 {
				depth--
			}
		case lx.Is("}"):
			if depth == 0 {
				return s.pos
			}
			depth--
		case lx.Is(";") && depth == 0:
			end := s.pos
			s.pos++
			return end
		}
		s.pos++
	}
}

// skipInitializer stops before the ',' ';' or '}' that ends an initializer.
func (s *scanner) skipInitializer() {
	depth := 0
	for {
		lx := s.peek(0)
		switch {
		case lx.Kind == LexEOF:
			return
		case lx.Is("(") || lx.Is("[") || lx.Is("{"):
			depth++
		case lx.Is(")") || lx.Is("]"):
			if depth > 0 {
				depth--
			}
		case lx.Is("}"):
			if depth == 0 {
				return
			}
			depth--
		case depth == 0 && (lx.Is(",") || lx.Is(";")):
			return
		}
		s.pos++
	}
}

// lookupScope resolves a qualified scope such as A::B starting from the scope
// from and walking outwards for the first component.
func (s *scanner) lookupScope(parts []string, from int) int {
	const mask = types.KindAnyContainer | types.KindEnum
	first := -1
	for p := from; ; {
		if idx := s.g.TokenExists(parts[0], p, mask); idx >= 0 {
			first = idx
			break
		}
		if p == types.GlobalScope {
			break
		}
		if tok := s.g.At(p); tok != nil {
			p = tok.ParentIndex
		} else {
			p = types.GlobalScope
		}
	}
	if first < 0 {
		return -1
	}
	idx := first
	for _, part := range parts[1:] {
		if idx = s.g.TokenExists(part, idx, mask); idx < 0 {
			return -1
		}
	}
	return idx
}

func (s *scanner) anonName(kind string) string {
	s.anon++
	return fmt.Sprintf("%s%s%d", types.UnnamedPrefix, kind, s.anon)
}

func splitScope(name string) []string {
	return strings.Split(strings.TrimPrefix(name, "::"), "::")
}
