package parser

import (
	"strings"

	"github.com/standardbeagle/ccindex/internal/types"
)

type itemKind uint8

const (
	itemWord itemKind = iota
	itemSymbol
	itemGroup
)

// item is one element of a declaration head: a possibly qualified name, a
// single symbol, or a bracketed group. from and to delimit its lexemes.
type item struct {
	kind itemKind
	// text is the name for words, the symbol, or the opening bracket for groups.
	text     string
	lx       Lexeme
	from, to int
}

var attributeWords = map[string]bool{
	"__attribute__": true, "__declspec": true, "alignas": true, "__extension__": true,
}

// declSpecifiers never name the declared type.
var declSpecifiers = map[string]bool{
	"static": true, "inline": true, "virtual": true, "explicit": true, "extern": true,
	"constexpr": true, "consteval": true, "constinit": true, "mutable": true,
	"thread_local": true, "register": true, "friend": true, "typename": true,
	"const": true, "volatile": true, "__inline": true, "__inline__": true,
	"__forceinline": true, "__stdcall": true, "__cdecl": true, "__fastcall": true,
}

// storageWords are left out of recorded type text.
var storageWords = map[string]bool{
	"static": true, "inline": true, "virtual": true, "explicit": true, "extern": true,
	"constexpr": true, "consteval": true, "constinit": true, "mutable": true,
	"thread_local": true, "register": true, "friend": true, "typename": true,
	"__inline": true, "__inline__": true, "__forceinline": true,
}

// reserved words cannot be declared names.
var reserved = map[string]bool{
	"void": true, "bool": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true, "auto": true,
	"wchar_t": true, "char8_t": true, "char16_t": true, "char32_t": true,
	"return": true, "if": true, "else": true, "while": true, "for": true, "do": true,
	"switch": true, "case": true, "default": true, "break": true, "continue": true,
	"goto": true, "sizeof": true, "alignof": true, "decltype": true, "typeid": true,
	"new": true, "delete": true, "this": true, "throw": true, "try": true, "catch": true,
	"namespace": true, "using": true, "template": true, "class": true, "struct": true,
	"union": true, "enum": true, "typedef": true, "public": true, "private": true,
	"protected": true, "true": true, "false": true, "nullptr": true, "noexcept": true,
	"static_cast": true, "dynamic_cast": true, "const_cast": true, "reinterpret_cast": true,
	"requires": true, "concept": true, "co_await": true, "override": true, "final": true,
}

// collectHead advances to the end of a declaration head: ';' '{' or '}' at
// bracket depth zero, or '=' ',' ':' outside template argument lists.
func (s *scanner) collectHead() (from, to int) {
	from = s.pos
	parens, braces, angles := 0, 0, 0
	for {
		lx := s.peek(0)
		switch {
		case lx.Kind == LexEOF || lx.Kind == LexDirective:
			return from, s.pos
		case lx.IsIdent("operator"):
			s.pos = s.operatorEnd(s.pos+1, len(s.lx))
			continue
		case lx.Is("(") || lx.Is("["):
			parens++
		case lx.Is(")") || lx.Is("]"):
			if parens > 0 {
				parens--
			}
		case lx.Is("{"):
			if parens == 0 {
				return from, s.pos
			}
			braces++
		case lx.Is("}"):
			if braces == 0 {
				return from, s.pos
			}
			braces--
		case lx.Is(";"):
			return from, s.pos
		case parens == 0 && lx.Is("<") && s.pos > from && s.lx[s.pos-1].Kind == LexIdentifier:
			angles++
		case parens == 0 && angles > 0 && lx.Is(">"):
			angles--
		case parens == 0 && angles == 0 && (lx.Is("=") || lx.Is(",") || lx.Is(":")):
			return from, s.pos
		}
		s.pos++
	}
}

func (s *scanner) groupItems(from, to int) []item {
	var items []item
	for i := from; i < to; {
		lx := s.lx[i]
		switch {
		case lx.Kind == LexIdentifier && attributeWords[lx.Text]:
			i++
			if i < to && s.lx[i].Is("(") {
				i = s.matchClose(i, to) + 1
			}
		case lx.Is("[") && i+1 < to && s.lx[i+1].Is("["):
			i = s.matchClose(i, to) + 1
		case lx.Kind == LexIdentifier,
			lx.Is("~") && i+1 < to && s.lx[i+1].Kind == LexIdentifier,
			lx.Is("::") && i+1 < to && (s.lx[i+1].Kind == LexIdentifier || s.lx[i+1].Is("~")):
			j := s.wordEnd(i, to)
			start := i
			if lx.Is("::") {
				start++
			}
			word := item{kind: itemWord, text: joinLexemes(s.lx[start:j]), lx: s.lx[j-1], from: i, to: j}
			// Foo<T>::bar collapses into one qualified word.
			if n := len(items); lx.Is("::") && n >= 2 && items[n-1].kind == itemGroup && items[n-1].text == "<" && items[n-2].kind == itemWord {
				prev := items[n-2]
				word.text = prev.text + "::" + word.text
				word.from = prev.from
				items = items[:n-2]
			}
			items = append(items, word)
			i = j
		case lx.Is("(") || lx.Is("["),
			lx.Is("<") && len(items) > 0 && items[len(items)-1].kind == itemWord:
			j := s.matchClose(i, to) + 1
			items = append(items, item{kind: itemGroup, text: lx.Text, lx: lx, from: i, to: j})
			i = j
		default:
			items = append(items, item{kind: itemSymbol, text: lx.Text, lx: lx, from: i, to: i + 1})
			i++
		}
	}
	return items
}

// matchClose returns the index of the bracket closing the one at i, or to-1.
func (s *scanner) matchClose(i, to int) int {
	open := s.lx[i].Text
	closer := closing[open]
	depth := 0
	for j := i; j < to; j++ {
		switch {
		case s.lx[j].Is(open):
			depth++
		case s.lx[j].Is(closer):
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return to - 1
}

// wordEnd returns the end of the qualified name starting at i.
func (s *scanner) wordEnd(i, to int) int {
	j := i
	if s.lx[j].Is("::") {
		j++
	}
	for j < to {
		if s.lx[j].Is("~") {
			j++
		}
		if j >= to || s.lx[j].Kind != LexIdentifier {
			break
		}
		if s.lx[j].Text == "operator" {
			return s.operatorEnd(j+1, to)
		}
		j++
		if j+1 < to && s.lx[j].Is("::") && (s.lx[j+1].Kind == LexIdentifier || s.lx[j+1].Is("~")) {
			j++
			continue
		}
		break
	}
	return j
}

// operatorEnd returns the end of an operator function name whose symbol
// starts at j.
func (s *scanner) operatorEnd(j, to int) int {
	if j >= to || j >= len(s.lx) {
		return j
	}
	lx := s.lx[j]
	next := func(k int, text string) bool { return k < to && k < len(s.lx) && s.lx[k].Is(text) }
	switch {
	case lx.Is("(") && next(j+1, ")"), lx.Is("[") && next(j+1, "]"):
		return j + 2
	case lx.IsIdent("new") || lx.IsIdent("delete"):
		if next(j+1, "[") && next(j+2, "]") {
			return j + 3
		}
		return j + 1
	case lx.Kind == LexOperator || lx.Is(","):
		// ">>" and ">>=" are lexed in pieces.
		if lx.Text == ">" && (next(j+1, ">") || next(j+1, ">=")) {
			return j + 2
		}
		return j + 1
	case lx.Kind == LexIdentifier:
		// Conversion operator: the type runs up to the parameter list.
		for j < to && j < len(s.lx) && !s.lx[j].Is("(") && !s.lx[j].Is(";") {
			j++
		}
	}
	return j
}

// funcDecl is a head recognised as a function declarator.
type funcDecl struct {
	name    item
	args    item
	retType string
	isConst bool
}

// parseDeclaration handles a statement that is not introduced by a keyword
// the scope loop knows: function and variable declarations, or anything else,
// which is skipped.
func (s *scanner) parseDeclaration(parent int, kind scopeKind, access types.TokenScope) {
	from, to := s.collectHead()
	items := s.groupItems(from, to)

	if fn, ok := s.matchFunction(items, kind, parent); ok {
		s.finishFunction(parent, access, fn)
		return
	}
	if name, typ, base, isConst, ok := s.matchVariable(items, kind); ok {
		s.addVariable(parent, access, name, typ, isConst)
		if s.skipDeclaratorTail() {
			s.declaratorList(parent, kind, access, base, isConst)
		}
		return
	}

	if len(items) > 0 && items[0].kind == itemWord &&
		s.g.TokenExists(items[0].text, types.GlobalScope, types.KindMacroDef) >= 0 {
		s.addMacroUse(items[0].lx, parent)
	}
	switch term := s.peek(0); {
	case term.Is("{"):
		// The scope loop descends into or skips the block.
	case term.Is(":"):
		s.pos++
	default:
		s.skipStatement()
	}
}

func (s *scanner) matchFunction(items []item, kind scopeKind, parent int) (funcDecl, bool) {
	if kind == scopeLocal {
		return funcDecl{}, false
	}
	for p := 1; p < len(items); p++ {
		args := items[p]
		if args.kind != itemGroup || args.text != "(" {
			continue
		}
		name := items[p-1]
		if name.kind != itemWord || reserved[name.text] || declSpecifiers[name.text] {
			return funcDecl{}, false
		}
		// "void (*fp)(int)" and the like are variables.
		if inner := s.lx[args.from+1 : args.to-1]; len(inner) > 0 && (inner[0].Is("*") || inner[0].Is("&") || inner[0].Is("^")) {
			return funcDecl{}, false
		}

		typeItems := items[:p-1]
		hasType := false
		for _, it := range typeItems {
			switch {
			case it.kind == itemGroup && it.text != "<":
				return funcDecl{}, false
			case it.kind == itemWord && !declSpecifiers[it.text]:
				hasType = true
			}
		}
		parts := splitScope(name.text)
		last := parts[len(parts)-1]
		if !hasType && len(parts) == 1 && !strings.HasPrefix(last, "~") &&
			!strings.HasPrefix(last, "operator") && !s.isClassNamed(parent, last) {
			return funcDecl{}, false
		}

		isConst, retType, ok := s.functionTrailer(items[p+1:])
		if !ok {
			return funcDecl{}, false
		}
		if retType == "" {
			retType = s.typeText(typeItems)
		}
		return funcDecl{name: name, args: args, retType: retType, isConst: isConst}, true
	}
	return funcDecl{}, false
}

// functionTrailer accepts what may follow a parameter list: cv and ref
// qualifiers, virt-specifiers, exception specs and a trailing return type.
func (s *scanner) functionTrailer(items []item) (isConst bool, retType string, ok bool) {
	for i := 0; i < len(items); i++ {
		it := items[i]
		switch {
		case it.kind == itemWord:
			switch it.text {
			case "const":
				isConst = true
			case "volatile", "override", "final", "noexcept", "throw", "try", "mutable":
			default:
				return isConst, "", false
			}
		case it.kind == itemGroup && it.text == "(" && i > 0 &&
			(items[i-1].text == "throw" || items[i-1].text == "noexcept"):
		case it.kind == itemSymbol && (it.text == "&" || it.text == "&&"):
		case it.kind == itemSymbol && it.text == "->":
			return isConst, s.typeText(items[i+1:]), true
		default:
			return isConst, "", false
		}
	}
	return isConst, "", true
}

func (s *scanner) isClassNamed(idx int, name string) bool {
	tok := s.g.At(idx)
	return tok != nil && tok.Kind == types.KindClass && tok.Name == name
}

func (s *scanner) finishFunction(parent int, access types.TokenScope, fn funcDecl) {
	line := s.line(fn.name.lx)
	term := s.peek(0)
	if term.Is(":") {
		s.pos++
		s.skipInitializers()
		term = s.peek(0)
	}
	switch {
	case term.Is("{"):
		open := s.peek(0)
		closer := s.skipGroup()
		s.addFunction(parent, access, fn, true, line, s.line(open), s.line(closer))
	case term.Is(";"):
		s.pos++
		s.addFunction(parent, access, fn, false, line, 0, 0)
	default:
		// "= 0", "= default", "= delete", or a list of declarators.
		s.addFunction(parent, access, fn, false, line, 0, 0)
		s.skipStatement()
	}
}

// skipInitializers moves past a constructor's member initializer list up to
// the function body. Brace initialisation of a member is told apart from the
// body by the name or template argument list before it.
func (s *scanner) skipInitializers() {
	for {
		lx := s.peek(0)
		switch {
		case lx.Kind == LexEOF || lx.Is(";") || lx.Is("}"):
			return
		case lx.Is("{"):
			if prev := s.peek(-1); prev.Kind != LexIdentifier && !prev.Is(">") {
				return
			}
			s.skipGroup()
			continue
		case lx.Is("(") || lx.Is("<"):
			s.skipGroup()
			continue
		}
		s.pos++
	}
}

func (s *scanner) addFunction(parent int, access types.TokenScope, fn funcDecl, defined bool, line, start, end int) int {
	args := joinLexemes(s.lx[fn.args.from:fn.args.to])
	return s.declareFunction(functionSpec{
		parent:    parent,
		access:    access,
		qualified: fn.name.text,
		line:      s.line(fn.name.lx),
		args:      args,
		argc:      countArgs(s.lx[fn.args.from+1 : fn.args.to-1]),
		retType:   fn.retType,
		isConst:   fn.isConst,
		defined:   defined,
		implLine:  line,
		start:     start,
		end:       end,
	})
}

// functionSpec is a function declarator as either engine sees it.
type functionSpec struct {
	parent    int
	access    types.TokenScope
	qualified string
	line      int
	args      string
	argc      int
	retType   string
	isConst   bool

	defined             bool
	implLine, start, end int
}

// declareFunction inserts a function token, or, when a declaration with the
// same scope, name and arity exists, completes it with the implementation.
func (s *scanner) declareFunction(fn functionSpec) int {
	parts := splitScope(fn.qualified)
	name := parts[len(parts)-1]
	scope, prefix := fn.parent, ""
	if n := len(parts); n > 1 {
		if idx := s.lookupScope(parts[:n-1], fn.parent); idx >= 0 {
			scope = idx
		} else {
			prefix = strings.Join(parts[:n-1], "::") + "::"
		}
	}

	kind := types.KindFunction
	switch {
	case strings.HasPrefix(name, "~"):
		kind = types.KindDestructor
	case s.isClassNamed(scope, name), prefix != "" && parts[len(parts)-2] == name:
		kind = types.KindConstructor
	}

	for _, idx := range s.g.Lookup(name, scope, kind) {
		tok := s.g.At(idx)
		if tok.IsConst != fn.isConst || tok.NamespacePrefix != prefix || ArgumentCount(tok.Args) != fn.argc {
			continue
		}
		if fn.defined {
			tok.Args = fn.args
			s.g.SetImplementation(idx, s.opts.File, fn.implLine, fn.start, fn.end)
		}
		return idx
	}

	tok := s.newTokenAt(name, kind, scope, fn.line)
	tok.Args = fn.args
	tok.BaseType = fn.retType
	tok.IsConst = fn.isConst
	tok.NamespacePrefix = prefix
	if scope == fn.parent {
		tok.Scope = fn.access
	}
	idx := s.g.Insert(tok)
	if fn.defined {
		s.g.SetImplementation(idx, s.opts.File, fn.implLine, fn.start, fn.end)
	}
	return idx
}

// matchVariable recognises "type name", "type name[N]", function pointers and,
// in local scope, "type name(args)".
func (s *scanner) matchVariable(items []item, kind scopeKind) (name Lexeme, typ, base string, isConst bool, ok bool) {
	for i, it := range items {
		if it.kind != itemGroup || it.text != "(" || i == 0 {
			continue
		}
		inner := s.lx[it.from+1 : it.to-1]
		if len(inner) < 2 || !(inner[0].Is("*") || inner[0].Is("&")) {
			break
		}
		last := inner[len(inner)-1]
		if last.Kind != LexIdentifier {
			return name, "", "", false, false
		}
		var rest []Lexeme
		for _, after := range items[i+1:] {
			rest = append(rest, s.lx[after.from:after.to]...)
		}
		typ = s.typeText(items[:i]) + "(*)" + joinLexemes(rest)
		return last, typ, s.typeText(items[:i]), s.hasConst(items[:i]), true
	}

	n := len(items) - 1
	for n >= 0 && items[n].kind == itemGroup && items[n].text == "[" {
		n--
	}
	if kind == scopeLocal && n >= 0 && items[n].kind == itemGroup && items[n].text == "(" {
		n--
	}
	if n < 1 {
		return name, "", "", false, false
	}
	nameItem := items[n]
	if nameItem.kind != itemWord || reserved[nameItem.text] || declSpecifiers[nameItem.text] ||
		strings.Contains(nameItem.text, "::") || strings.HasPrefix(nameItem.text, "~") {
		return name, "", "", false, false
	}
	typeItems := items[:n]
	hasType := false
	for _, it := range typeItems {
		switch it.kind {
		case itemWord:
			if !declSpecifiers[it.text] {
				hasType = true
			}
		case itemSymbol:
			if it.text != "*" && it.text != "&" && it.text != "&&" && it.text != "..." {
				return name, "", "", false, false
			}
		case itemGroup:
			if it.text != "<" {
				return name, "", "", false, false
			}
		}
	}
	if !hasType {
		return name, "", "", false, false
	}

	typ = s.typeText(typeItems)
	b := len(typeItems)
	for b > 0 && (typeItems[b-1].kind == itemSymbol || typeItems[b-1].text == "const") {
		b--
	}
	return nameItem.lx, typ, s.typeText(typeItems[:b]), s.hasConst(typeItems), true
}

// nextDeclarator reads a declarator after a comma: pointer marks, a name and
// array bounds, typed by the shared base type.
func (s *scanner) nextDeclarator(items []item, base string, kind scopeKind) (Lexeme, string, bool) {
	marks := ""
	for len(items) > 0 && items[0].kind == itemSymbol && (items[0].text == "*" || items[0].text == "&" || items[0].text == "&&") {
		marks += items[0].text
		items = items[1:]
	}
	if len(items) == 0 || items[0].kind != itemWord || reserved[items[0].text] || strings.Contains(items[0].text, "::") {
		return Lexeme{}, "", false
	}
	for _, it := range items[1:] {
		if it.kind != itemGroup || !(it.text == "[" || kind == scopeLocal && it.text == "(") {
			return Lexeme{}, "", false
		}
	}
	return items[0].lx, base + marks, true
}

func (s *scanner) declaratorList(parent int, kind scopeKind, access types.TokenScope, base string, isConst bool) {
	for {
		from, to := s.collectHead()
		if name, typ, ok := s.nextDeclarator(s.groupItems(from, to), base, kind); ok {
			s.addVariable(parent, access, name, typ, isConst)
		}
		if !s.skipDeclaratorTail() {
			return
		}
	}
}

// skipDeclaratorTail moves past an initializer, brace initializer or bit-field
// width and reports whether another declarator follows.
func (s *scanner) skipDeclaratorTail() bool {
	for {
		lx := s.peek(0)
		switch {
		case lx.Is("=") || lx.Is(":"):
			s.pos++
			s.skipInitializer()
		case lx.Is("{"):
			s.skipGroup()
		case lx.Is(","):
			s.pos++
			return true
		case lx.Is(";"):
			s.pos++
			return false
		default:
			return false
		}
	}
}

func (s *scanner) addVariable(parent int, access types.TokenScope, name Lexeme, typ string, isConst bool) {
	tok := s.newToken(name.Text, types.KindVariable, parent, name)
	tok.BaseType = typ
	tok.IsConst = isConst
	if !s.opts.IsLocal {
		tok.Scope = access
	}
	s.g.Insert(tok)
}

func (s *scanner) hasConst(items []item) bool {
	for _, it := range items {
		if it.kind == itemWord && it.text == "const" {
			return true
		}
	}
	return false
}

// typeText renders items as type text without storage specifiers.
func (s *scanner) typeText(items []item) string {
	var lexemes []Lexeme
	for _, it := range items {
		if it.kind == itemWord && storageWords[it.text] {
			continue
		}
		lexemes = append(lexemes, s.lx[it.from:it.to]...)
	}
	return joinLexemes(lexemes)
}

// joinLexemes renders lexemes as compact source text: words are separated by
// one space, as are list items and assignments.
func joinLexemes(lexemes []Lexeme) string {
	var b strings.Builder
	for i, lx := range lexemes {
		if i > 0 {
			prev := lexemes[i-1]
			switch {
			case wordLike(prev) && wordLike(lx),
				prev.Is(","),
				lx.Is("=") || prev.Is("="),
				wordLike(lx) && afterTypeMarks(lexemes[:i]):
				b.WriteByte(' ')
			}
		}
		b.WriteString(lx.Text)
	}
	return b.String()
}

// afterTypeMarks reports whether lexemes end in pointer or reference marks
// that follow a word, as in "char**".
func afterTypeMarks(lexemes []Lexeme) bool {
	i := len(lexemes) - 1
	for i >= 0 && (lexemes[i].Is("*") || lexemes[i].Is("&") || lexemes[i].Is("&&")) {
		i--
	}
	return i >= 0 && i < len(lexemes)-1 && (wordLike(lexemes[i]) || lexemes[i].Is(">"))
}

func wordLike(lx Lexeme) bool {
	switch lx.Kind {
	case LexIdentifier, LexNumber, LexString, LexChar:
		return true
	}
	return false
}

// countArgs counts the parameters in the lexemes between a list's parens.
func countArgs(inner []Lexeme) int {
	if len(inner) == 0 || len(inner) == 1 && inner[0].IsIdent("void") {
		return 0
	}
	count := 1
	depth, angles := 0, 0
	for i, lx := range inner {
		switch {
		case lx.Is("(") || lx.Is("[") || lx.Is("{"):
			depth++
		case lx.Is(")") || lx.Is("]") || lx.Is("}"):
			if depth > 0 {
				depth--
			}
		case lx.Is("<") && i > 0 && inner[i-1].Kind == LexIdentifier:
			angles++
		case lx.Is(">") && angles > 0:
			angles--
		case lx.Is(",") && depth == 0 && angles == 0:
			count++
		}
	}
	return count
}

// ArgumentCount returns the number of parameters in an argument list such as
// "(int a, char b)".
func ArgumentCount(args string) int {
	lexemes := NewLexer(args).Tokenize()
	lexemes = lexemes[:len(lexemes)-1]
	if len(lexemes) >= 2 && lexemes[0].Is("(") && lexemes[len(lexemes)-1].Is(")") {
		lexemes = lexemes[1 : len(lexemes)-1]
	}
	return countArgs(lexemes)
}
