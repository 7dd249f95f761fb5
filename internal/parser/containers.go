package parser

import (
	"strings"

	"github.com/standardbeagle/ccindex/internal/types"
)

func (s *scanner) parseClassStatement(parent int, kind scopeKind, access types.TokenScope) {
	start := s.pos
	idx, defined := s.parseClass(parent, access)
	if defined {
		s.declaratorList(parent, kind, access, s.g.At(idx).Name, false)
		return
	}
	if s.peek(0).Is(";") {
		// Forward declaration.
		s.pos++
		return
	}
	// Elaborated type in a declaration: "struct stat st;".
	s.pos = start + 1
	s.parseDeclaration(parent, kind, access)
}

// parseClass parses class, struct and union definitions starting at the
// keyword. It returns false, with nothing inserted, when no body follows.
func (s *scanner) parseClass(parent int, access types.TokenScope) (int, bool) {
	kw := s.peek(0)
	s.pos++

	var name []string
	nameLx := kw
head:
	for {
		lx := s.peek(0)
		switch {
		case lx.Kind == LexIdentifier && attributeWords[lx.Text], lx.Is("[") && s.peek(1).Is("["):
			s.skipAttributes()
		case lx.IsIdent("final") && len(name) > 0 && (s.peek(1).Is("{") || s.peek(1).Is(":")):
			s.pos++
		case lx.Kind == LexIdentifier:
			// The last plain word wins, so export macros before the name drop out.
			name, nameLx = []string{lx.Text}, lx
			s.pos++
			for s.peek(0).Is("::") && s.peek(1).Kind == LexIdentifier {
				name = append(name, s.peek(1).Text)
				nameLx = s.peek(1)
				s.pos += 2
			}
		case lx.Is("<") && len(name) > 0:
			s.skipGroup()
		default:
			break head
		}
	}

	var ancestors []string
	if s.peek(0).Is(":") {
		save := s.pos
		s.pos++
		ancestors = s.parseBaseClause()
		if !s.peek(0).Is("{") {
			s.pos = save
			return -1, false
		}
	}
	if !s.peek(0).Is("{") {
		return -1, false
	}

	scope, prefix := parent, ""
	className := ""
	if n := len(name); n > 0 {
		className = name[n-1]
		if n > 1 {
			if idx := s.lookupScope(name[:n-1], parent); idx >= 0 {
				scope = idx
			} else {
				prefix = strings.Join(name[:n-1], "::") + "::"
			}
		}
	} else {
		className = s.anonName(kw.Text)
	}

	tok := s.newToken(className, types.KindClass, scope, nameLx)
	tok.Ancestors = ancestors
	tok.NamespacePrefix = prefix
	if scope == parent {
		tok.Scope = access
	}
	idx := s.g.Insert(tok)

	open := s.peek(0)
	s.pos++
	defaultAccess := types.ScopePublic
	if kw.Text == "class" {
		defaultAccess = types.ScopePrivate
	}
	end := s.parseScope(idx, scopeClass, defaultAccess)
	s.g.SetImplementation(idx, s.opts.File, s.line(nameLx), s.line(open), end)
	return idx, true
}

// parseBaseClause collects base class names up to the class body. Template
// arguments and access keywords are dropped.
func (s *scanner) parseBaseClause() []string {
	var bases, cur []string
	flush := func() {
		if len(cur) > 0 {
			bases = append(bases, strings.Join(cur, "::"))
			cur = nil
		}
	}
	for {
		lx := s.peek(0)
		switch {
		case lx.Kind == LexEOF || lx.Is("{") || lx.Is(";") || lx.Is("}"):
			flush()
			return bases
		case lx.Is(","):
			flush()
		case lx.Is("<"):
			s.skipGroup()
			continue
		case lx.Kind == LexIdentifier:
			switch lx.Text {
			case "public", "protected", "private", "virtual":
			default:
				if len(cur) > 0 && !s.peek(-1).Is("::") {
					cur = nil
				}
				cur = append(cur, lx.Text)
			}
		}
		s.pos++
	}
}

func (s *scanner) parseEnumStatement(parent int, kind scopeKind, access types.TokenScope) {
	start := s.pos
	idx, defined := s.parseEnum(parent, access)
	if defined {
		s.declaratorList(parent, kind, access, s.g.At(idx).Name, false)
		return
	}
	if s.peek(0).Is(";") {
		s.pos++
		return
	}
	s.pos = start + 1
	s.parseDeclaration(parent, kind, access)
}

// parseEnum parses an enum definition starting at the keyword. Enumerators
// become children of the enum token.
func (s *scanner) parseEnum(parent int, access types.TokenScope) (int, bool) {
	kw := s.peek(0)
	s.pos++
	scoped := false
	if s.peek(0).IsIdent("class") || s.peek(0).IsIdent("struct") {
		scoped = true
		s.pos++
	}
	s.skipAttributes()

	nameLx, name := kw, ""
	if s.peek(0).Kind == LexIdentifier {
		nameLx = s.peek(0)
		name = nameLx.Text
		s.pos++
		for s.peek(0).Is("::") && s.peek(1).Kind == LexIdentifier {
			nameLx = s.peek(1)
			name = nameLx.Text
			s.pos += 2
		}
	}
	if s.peek(0).Is(":") {
		// Underlying type.
		s.pos++
		for lx := s.peek(0); lx.Kind != LexEOF && !lx.Is("{") && !lx.Is(";") && !lx.Is("}"); lx = s.peek(0) {
			s.pos++
		}
	}
	if !s.peek(0).Is("{") {
		return -1, false
	}
	if name == "" {
		name = s.anonName("enum")
	}

	tok := s.newToken(name, types.KindEnum, parent, nameLx)
	tok.IsScoped = scoped
	tok.Scope = access
	idx := s.g.Insert(tok)

	open := s.peek(0)
	s.pos++
	end := s.line(open)
	for done := false; !done; {
		lx := s.peek(0)
		switch {
		case lx.Kind == LexEOF:
			end = s.line(lx)
			done = true
		case lx.Is("}"):
			s.pos++
			end = s.line(lx)
			done = true
		case lx.Kind == LexIdentifier:
			s.g.Insert(s.newToken(lx.Text, types.KindEnumerator, idx, lx))
			s.pos++
			s.skipAttributes()
			if s.peek(0).Is("=") {
				s.pos++
				s.skipInitializer()
			}
		case lx.Kind == LexDirective:
			s.pos++
			s.handleDirective(lx)
		default:
			s.pos++
		}
	}
	s.g.SetImplementation(idx, s.opts.File, s.line(nameLx), s.line(open), end)
	return idx, true
}

func (s *scanner) parseTypedef(parent int, kind scopeKind, access types.TokenScope) {
	s.pos++
	if lx := s.peek(0); lx.IsIdent("struct") || lx.IsIdent("class") || lx.IsIdent("union") || lx.IsIdent("enum") {
		start := s.pos
		var idx int
		var defined bool
		if lx.IsIdent("enum") {
			idx, defined = s.parseEnum(parent, access)
		} else {
			idx, defined = s.parseClass(parent, access)
		}
		if defined {
			s.typedefContainer(parent, access, idx)
			return
		}
		s.pos = start
	}

	from := s.pos
	end := s.skipStatement()
	base := ""
	for i, part := range s.splitTopLevel(from, end) {
		items := s.groupItems(part[0], part[1])
		if i == 0 {
			name, typ, args, ok := s.typedefHead(items)
			if !ok {
				return
			}
			base = strings.TrimRight(typ, "*& ")
			s.addTypedef(parent, access, name, typ, args)
			continue
		}
		if name, typ, ok := s.nextDeclarator(items, base, kind); ok {
			s.addTypedef(parent, access, name, typ, "")
		}
	}
}

// typedefHead reads the first declarator of "typedef T name" and of function
// pointer typedefs "typedef R (*name)(args)".
func (s *scanner) typedefHead(items []item) (name Lexeme, typ, args string, ok bool) {
	for i, it := range items {
		if it.kind != itemGroup || it.text != "(" || i == 0 {
			continue
		}
		inner := s.lx[it.from+1 : it.to-1]
		if len(inner) == 0 || !(inner[0].Is("*") || inner[0].Is("&") || inner[0].Is("^")) {
			continue
		}
		for j := len(inner) - 1; j >= 0; j-- {
			if inner[j].Kind == LexIdentifier {
				name = inner[j]
				break
			}
		}
		if name.Kind != LexIdentifier {
			return name, "", "", false
		}
		var rest []Lexeme
		for _, after := range items[i+1:] {
			rest = append(rest, s.lx[after.from:after.to]...)
		}
		return name, s.typeText(items[:i]), joinLexemes(rest), true
	}

	n := len(items) - 1
	for n >= 0 && items[n].kind == itemGroup && items[n].text == "[" {
		n--
	}
	if n < 1 || items[n].kind != itemWord || reserved[items[n].text] {
		return name, "", "", false
	}
	return items[n].lx, s.typeText(items[:n]), "", true
}

// typedefContainer handles the declarators after "typedef struct {...}". The
// first plain name names an anonymous container; the others become typedefs.
func (s *scanner) typedefContainer(parent int, access types.TokenScope, idx int) {
	from := s.pos
	end := s.skipStatement()
	for _, part := range s.splitTopLevel(from, end) {
		items := s.groupItems(part[0], part[1])
		marks := ""
		for len(items) > 0 && items[0].kind == itemSymbol {
			marks += items[0].text
			items = items[1:]
		}
		if len(items) == 0 || items[0].kind != itemWord {
			continue
		}
		name := items[0].lx
		tok := s.g.At(idx)
		if marks == "" && tok.Unnamed() {
			s.g.Rename(idx, name.Text)
			continue
		}
		s.addTypedef(parent, access, name, tok.Name+marks, "")
	}
}

func (s *scanner) addTypedef(parent int, access types.TokenScope, name Lexeme, typ, args string) {
	tok := s.newToken(name.Text, types.KindTypedef, parent, name)
	tok.BaseType = typ
	tok.Args = args
	tok.Scope = access
	s.g.Insert(tok)
}

// splitTopLevel splits [from, to) at commas outside brackets and template
// argument lists.
func (s *scanner) splitTopLevel(from, to int) [][2]int {
	var parts [][2]int
	depth, angles := 0, 0
	start := from
	for i := from; i < to; i++ {
		lx := s.lx[i]
		switch {
		case lx.Is("(") || lx.Is("[") || lx.Is("{"):
			depth++
		case lx.Is(")") || lx.Is("]") || lx.Is("}"):
			if depth > 0 {
				depth--
			}
		case lx.Is("<") && i > from && s.lx[i-1].Kind == LexIdentifier:
			angles++
		case lx.Is(">") && angles > 0:
			angles--
		case lx.Is(",") && depth == 0 && angles == 0:
			parts = append(parts, [2]int{start, i})
			start = i + 1
		}
	}
	if start < to {
		parts = append(parts, [2]int{start, to})
	}
	return parts
}
