package resolver

import (
	"strings"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/editor"
	"github.com/standardbeagle/ccindex/internal/parser"
	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/types"
)

// ParseUsingNamespace adds the namespaces named by "using namespace"
// directives before the caret to searchScope. Directives inside function
// bodies are left to ParseLocalBlock.
func (s *Session) ParseUsingNamespace(sd SearchData, searchScope *types.IndexSet, caretPos int) bool {
	g := s.parser.TokenTree().Lock()
	defer g.Unlock()
	return s.parseUsingNamespace(g, sd, searchScope, caretPos)
}

func (s *Session) parseUsingNamespace(g *tokentree.Guard, sd SearchData, searchScope *types.IndexSet, caretPos int) bool {
	pos, ok := sd.caret(caretPos)
	if !ok {
		return false
	}
	return addUsingNamespaces(g, sd.Buffer.TextRange(0, pos), searchScope, true)
}

// addUsingNamespaces resolves each directive of buffer component by
// component. A namespace that is not known contributes the global scope.
func addUsingNamespaces(g *tokentree.Guard, buffer string, searchScope *types.IndexSet, skipBlocks bool) bool {
	for _, ns := range parser.ParseBufferForUsingNamespace(buffer, skipBlocks) {
		parent := types.GlobalScope
		for _, comp := range strings.Split(ns, "::") {
			if comp == "" {
				continue
			}
			idx := g.TokenExists(comp, parent, types.KindNamespace)
			if idx == -1 {
				if alias := g.TokenExists(comp, parent, types.KindTypedef); alias != -1 {
					if target := resolveTypeName(g, g.At(alias).BaseType, parent, types.IndexSet{}, 0).Slice(); len(target) > 0 {
						idx = target[0]
					}
				}
			}
			if idx == -1 {
				parent = types.GlobalScope
				break
			}
			parent = idx
		}
		debug.LogResolver("using namespace %s -> scope %d\n", ns, parent)
		searchScope.Insert(parent)
	}
	return true
}

// ParseFunctionArguments adds the parameters of the function around the
// caret as temporaries under that function.
func (s *Session) ParseFunctionArguments(sd SearchData, caretPos int) bool {
	g := s.parser.TokenTree().Lock()
	defer g.Unlock()
	return s.parseFunctionArguments(g, sd, caretPos)
}

func (s *Session) parseFunctionArguments(g *tokentree.Guard, sd SearchData, caretPos int) bool {
	pos, ok := sd.caret(caretPos)
	if !ok {
		return false
	}
	buf := sd.Buffer
	file := sd.file()
	curLine := buf.LineFromPosition(pos) + 1

	found := false
	for _, idx := range s.findCurrentFunctionToken(g, sd, pos).Slice() {
		tok := g.At(idx)
		if tok == nil || !tok.Kind.Matches(types.KindFunction|types.KindConstructor|types.KindDestructor) {
			continue
		}
		if tok.ImplFile != file || !tok.ContainsLine(curLine) {
			continue
		}
		decls := argumentsToDeclarations(tok.Args)
		if decls == "" {
			continue
		}

		// the parameters start after the '(' on or below the implementation line
		paraPos := buf.PositionFromLine(tok.ImplLine - 1)
		n := buf.Length()
		for paraPos >= 0 && paraPos < n && buf.CharAt(paraPos) != '(' {
			paraPos++
		}
		paraPos++
		for paraPos < n && buf.CharAt(paraPos) < ' ' {
			paraPos++
		}
		initLine := buf.LineFromPosition(paraPos) + 1

		debug.LogResolver("ParseFunctionArguments: %q at line %d\n", decls, initLine)
		if s.parser.ParseBufferWith(g, decls, parser.BufferOptions{
			File:      file,
			ParentIdx: idx,
			InitLine:  initLine,
			IsTemp:    true,
			IsLocal:   true,
		}) {
			found = true
		}
	}
	return found
}

// argumentsToDeclarations rewrites "(int a, std::map<K, V> m)" into
// "int a; std::map<K, V> m;". Commas nested in (), [], {} or <> do not
// split parameters.
func argumentsToDeclarations(args string) string {
	args = strings.TrimSpace(args)
	if strings.HasPrefix(args, "(") && strings.HasSuffix(args, ")") {
		args = args[1 : len(args)-1]
	}
	args = strings.TrimSpace(args)
	if args == "" || args == "void" {
		return ""
	}

	var b strings.Builder
	emit := func(param string) {
		param = strings.TrimSpace(param)
		if param == "" || param == "..." {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(param)
		b.WriteByte(';')
	}
	depth, start := 0, 0
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}':
			depth--
		case '>':
			if i > 0 && args[i-1] == '-' {
				continue
			}
			depth--
		case ',':
			if depth == 0 {
				emit(args[start:i])
				start = i + 1
			}
		}
	}
	emit(args[start:])
	return b.String()
}

// ParseLocalBlock parses the current function body up to the end of the
// caret's line as temporaries under the function. Blocks that closed before
// the caret are emptied so their declarations stay out of scope, and
// "using namespace" directives in the body are added to searchScope.
func (s *Session) ParseLocalBlock(sd SearchData, searchScope *types.IndexSet, caretPos int) bool {
	g := s.parser.TokenTree().Lock()
	defer g.Unlock()
	return s.parseLocalBlock(g, sd, searchScope, caretPos)
}

func (s *Session) parseLocalBlock(g *tokentree.Guard, sd SearchData, searchScope *types.IndexSet, caretPos int) bool {
	pos, ok := sd.caret(caretPos)
	if !ok {
		return false
	}
	buf := sd.Buffer

	start := s.findCurrentFunctionStart(g, sd, pos)
	initLine := 0
	if start.Index != -1 {
		tok := g.At(start.Index)
		if tok == nil || !tok.Kind.Matches(types.KindAnyFunction) {
			return false
		}
		s.lastFuncIdx = start.Index
		initLine = tok.ImplLineStart
	}
	if start.Pos == -1 || pos <= start.Pos {
		return false
	}

	blockStart := start.Pos + 1
	blockEnd := buf.LineEndPosition(buf.LineFromPosition(pos))
	if blockEnd < pos {
		blockEnd = pos
	}
	buffer := condenseBlock(buf, blockStart, blockEnd, pos)
	debug.LogResolver("ParseLocalBlock: %d byte(s) from line %d\n", len(buffer), initLine)

	addUsingNamespaces(g, buffer, searchScope, false)
	return s.parser.ParseBufferWith(g, buffer, parser.BufferOptions{
		File:      sd.file(),
		ParentIdx: s.lastFuncIdx,
		InitLine:  initLine,
		IsTemp:    true,
		IsLocal:   true,
	})
}

// condenseBlock returns the text of [blockStart, blockEnd) with the bodies
// of brace blocks that close before pos removed. Removed lines are kept as
// newlines so line numbers still match the buffer, and a closed for/if/
// while/catch keeps an empty header so its declarations vanish too.
func condenseBlock(buf editor.Buffer, blockStart, blockEnd, pos int) string {
	var parts []string
	prepend := func(s string) { parts = append(parts, s) }
	newlines := func(from, to int) string {
		if d := buf.LineFromPosition(to) - buf.LineFromPosition(from); d > 0 {
			return strings.Repeat("\n", d)
		}
		return ""
	}
	code := func(p int) bool {
		st := buf.StyleAt(p)
		return !st.IsComment() && !st.IsCharacterOrString()
	}
	skipBack := func(p int) int {
		for p > blockStart && (editor.IsSpace(buf.CharAt(p)) || !code(p)) {
			p--
		}
		return p
	}

	scanPos := blockEnd
	for curPos := pos - 1; curPos > blockStart; curPos-- {
		if buf.CharAt(curPos) != '}' || !code(curPos) {
			continue
		}
		scopeStart := buf.BraceMatch(curPos)
		if scopeStart < blockStart {
			break
		}
		prepend(buf.TextRange(curPos, scanPos))
		prepend(newlines(scopeStart, curPos))
		scanPos = scopeStart + 1
		curPos = scopeStart

		prev := skipBack(scopeStart - 1)
		if prev <= blockStart || buf.CharAt(prev) != ')' {
			continue
		}
		paramStart := buf.BraceMatch(prev)
		if paramStart <= blockStart {
			continue
		}
		word := skipBack(paramStart - 1)
		if word <= blockStart {
			continue
		}
		ws := buf.WordStartPosition(word, true)
		we := buf.WordEndPosition(word, true)
		var header string
		switch buf.TextRange(ws, we) {
		case "for":
			header = "(;;){"
		case "if", "while", "catch":
			header = "(0){"
		default:
			continue
		}
		prepend(newlines(we, scopeStart))
		prepend(header)
		scanPos = we
		curPos = ws
	}
	prepend(buf.TextRange(blockStart, scanPos))

	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
	}
	return strings.TrimRight(b.String(), " \t\r\n")
}
