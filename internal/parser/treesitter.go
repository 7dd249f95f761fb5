package parser

import (
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/types"
)

// treeSitterEngine parses whole files with tree-sitter-cpp. Parsers are not
// safe for concurrent use, so each batch worker borrows one from the pool.
type treeSitterEngine struct {
	pool sync.Pool
}

func newTreeSitterEngine() *treeSitterEngine {
	e := &treeSitterEngine{}
	e.pool.New = func() any {
		parser := tree_sitter.NewParser()
		if err := parser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_cpp.Language())); err != nil {
			debug.LogParser("tree-sitter-cpp language setup failed: %v\n", err)
			parser.Close()
			return nil
		}
		return parser
	}
	return e
}

// parse returns the syntax tree for content, or nil. The caller closes it.
func (e *treeSitterEngine) parse(path string, content []byte) (tree *tree_sitter.Tree) {
	v := e.pool.Get()
	parser, ok := v.(*tree_sitter.Parser)
	if !ok || parser == nil {
		return nil
	}
	defer e.pool.Put(parser)

	defer func() {
		if r := recover(); r != nil {
			debug.LogParser("TREE-SITTER PANIC in file %s: %v\n", path, r)
			tree = nil
		}
	}()

	// The C side may scribble on its input.
	buf := make([]byte, len(content))
	copy(buf, content)
	return parser.Parse(buf, nil)
}

// tsWalker turns a syntax tree into tokens. Token placement and function
// matching are shared with the native scanner.
type tsWalker struct {
	sc  *scanner
	src []byte
}

func newTSWalker(g *tokentree.Guard, src []byte, opts BufferOptions, cfg scanConfig) *tsWalker {
	if opts.InitLine <= 0 {
		opts.InitLine = 1
	}
	return &tsWalker{sc: &scanner{g: g, opts: opts, cfg: cfg}, src: src}
}

func (w *tsWalker) run(tree *tree_sitter.Tree) {
	root := tree.RootNode()
	if root == nil {
		return
	}
	w.walkBody(root, w.sc.opts.ParentIdx, types.ScopeUndefined)
}

func (w *tsWalker) text(n *tree_sitter.Node) string {
	return string(w.src[n.StartByte():n.EndByte()])
}

// normalized lexes node text and renders it the way the native engine does.
func (w *tsWalker) normalized(n *tree_sitter.Node) string {
	lexemes := NewLexer(w.text(n)).Tokenize()
	return joinLexemes(lexemes[:len(lexemes)-1])
}

func (w *tsWalker) line(n *tree_sitter.Node) int {
	return int(n.StartPosition().Row) + w.sc.opts.InitLine
}

func (w *tsWalker) endLine(n *tree_sitter.Node) int {
	return int(n.EndPosition().Row) + w.sc.opts.InitLine
}

func children(n *tree_sitter.Node) []*tree_sitter.Node {
	count := n.ChildCount()
	out := make([]*tree_sitter.Node, 0, count)
	for i := uint(0); i < count; i++ {
		if child := n.Child(i); child != nil {
			out = append(out, child)
		}
	}
	return out
}

func (w *tsWalker) walkBody(n *tree_sitter.Node, parent int, access types.TokenScope) types.TokenScope {
	for _, child := range children(n) {
		access = w.visit(child, parent, access)
	}
	return access
}

func (w *tsWalker) visit(n *tree_sitter.Node, parent int, access types.TokenScope) types.TokenScope {
	switch n.Kind() {
	case "namespace_definition":
		w.namespace(n, parent)
	case "linkage_specification":
		if body := n.ChildByFieldName("body"); body != nil {
			if body.Kind() == "declaration_list" {
				w.walkBody(body, parent, access)
			} else {
				w.visit(body, parent, access)
			}
		}
	case "template_declaration", "declaration_list", "field_declaration_list",
		"preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif":
		return w.walkBody(n, parent, access)
	case "class_specifier", "struct_specifier", "union_specifier":
		w.class(n, parent, access)
	case "enum_specifier":
		w.enum(n, parent, access)
	case "function_definition":
		w.function(n, parent, access)
	case "declaration", "field_declaration":
		w.declaration(n, parent, access)
	case "type_definition":
		w.typedef(n, parent, access)
	case "alias_declaration":
		name, typ := n.ChildByFieldName("name"), n.ChildByFieldName("type")
		if name != nil && typ != nil {
			tok := w.token(w.text(name), types.KindTypedef, parent, name)
			tok.BaseType = w.normalized(typ)
			tok.Scope = access
			w.sc.g.Insert(tok)
		}
	case "namespace_alias_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			tok := w.token(w.text(name), types.KindTypedef, parent, name)
			for _, k := range children(n) {
				if k.StartByte() > name.StartByte() && (k.Kind() == "nested_namespace_specifier" || k.Kind() == "namespace_identifier") {
					tok.BaseType = w.normalized(k)
				}
			}
			w.sc.g.Insert(tok)
		}
	case "preproc_def", "preproc_function_def":
		w.macro(n)
	case "preproc_include":
		if path := n.ChildByFieldName("path"); path != nil {
			text := w.text(path)
			if inc, ok := parseInclude(text, w.line(n)); ok {
				w.sc.includes = append(w.sc.includes, inc)
			}
		}
	case "access_specifier":
		return accessOf(strings.TrimSuffix(strings.TrimSpace(w.text(n)), ":"))
	}
	return access
}

func (w *tsWalker) token(name string, kind types.TokenKind, parent int, at *tree_sitter.Node) *types.Token {
	return w.sc.newTokenAt(name, kind, parent, w.line(at))
}

func (w *tsWalker) namespace(n *tree_sitter.Node, parent int) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	idx := parent
	if name := n.ChildByFieldName("name"); name != nil {
		for _, part := range splitScope(w.normalized(name)) {
			part = strings.TrimSpace(strings.TrimPrefix(part, "inline "))
			if existing := w.sc.g.TokenExists(part, idx, types.KindNamespace); existing >= 0 {
				idx = existing
				continue
			}
			idx = w.sc.g.Insert(w.token(part, types.KindNamespace, idx, name))
		}
	}
	w.walkBody(body, idx, types.ScopeUndefined)
}

// className returns the written name of a class or enum without template
// arguments.
func (w *tsWalker) className(n *tree_sitter.Node) string {
	name := n.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	if name.Kind() == "template_type" {
		if inner := name.ChildByFieldName("name"); inner != nil {
			name = inner
		}
	}
	return w.normalized(name)
}

func (w *tsWalker) class(n *tree_sitter.Node, parent int, access types.TokenScope) int {
	body := n.ChildByFieldName("body")
	if body == nil {
		return -1
	}
	kw := strings.TrimSuffix(n.Kind(), "_specifier")

	scope, prefix := parent, ""
	name := w.className(n)
	if parts := splitScope(name); name != "" && len(parts) > 1 {
		name = parts[len(parts)-1]
		if idx := w.sc.lookupScope(parts[:len(parts)-1], parent); idx >= 0 {
			scope = idx
		} else {
			prefix = strings.Join(parts[:len(parts)-1], "::") + "::"
		}
	}
	if name == "" {
		name = w.sc.anonName(kw)
	}

	at := n
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		at = nameNode
	}
	tok := w.token(name, types.KindClass, scope, at)
	tok.NamespacePrefix = prefix
	if scope == parent {
		tok.Scope = access
	}
	for _, child := range children(n) {
		if child.Kind() == "base_class_clause" {
			tok.Ancestors = w.bases(child)
		}
	}
	idx := w.sc.g.Insert(tok)

	defaultAccess := types.ScopePublic
	if kw == "class" {
		defaultAccess = types.ScopePrivate
	}
	w.walkBody(body, idx, defaultAccess)
	w.sc.g.SetImplementation(idx, w.sc.opts.File, w.line(at), w.line(body), w.endLine(body))
	return idx
}

func (w *tsWalker) bases(clause *tree_sitter.Node) []string {
	var out []string
	for _, child := range children(clause) {
		switch child.Kind() {
		case "type_identifier", "qualified_identifier":
			out = append(out, w.normalized(child))
		case "template_type":
			if name := child.ChildByFieldName("name"); name != nil {
				out = append(out, w.normalized(name))
			}
		}
	}
	return out
}

func (w *tsWalker) enum(n *tree_sitter.Node, parent int, access types.TokenScope) int {
	body := n.ChildByFieldName("body")
	if body == nil {
		return -1
	}
	name := w.className(n)
	if name == "" {
		name = w.sc.anonName("enum")
	}
	at := n
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		at = nameNode
	}
	tok := w.token(name, types.KindEnum, parent, at)
	tok.Scope = access
	for _, child := range children(n) {
		if k := child.Kind(); k == "class" || k == "struct" {
			tok.IsScoped = true
		}
	}
	idx := w.sc.g.Insert(tok)
	for _, child := range children(body) {
		if child.Kind() != "enumerator" {
			continue
		}
		if en := child.ChildByFieldName("name"); en != nil {
			w.sc.g.Insert(w.token(w.text(en), types.KindEnumerator, idx, en))
		}
	}
	w.sc.g.SetImplementation(idx, w.sc.opts.File, w.line(at), w.line(body), w.endLine(body))
	return idx
}

// unwrap strips pointer, reference, array and init declarators and returns
// the core declarator with the marks collected on the way.
func unwrap(n *tree_sitter.Node) (*tree_sitter.Node, string) {
	marks := ""
	for n != nil {
		var inner *tree_sitter.Node
		switch n.Kind() {
		case "pointer_declarator":
			marks += "*"
			inner = n.ChildByFieldName("declarator")
		case "reference_declarator":
			marks += "&"
			if count := n.ChildCount(); count > 0 {
				inner = n.Child(count - 1)
			}
		case "init_declarator", "array_declarator", "attributed_declarator":
			inner = n.ChildByFieldName("declarator")
		default:
			return n, marks
		}
		if inner == nil {
			return n, marks
		}
		n = inner
	}
	return n, marks
}

func isDeclarator(kind string) bool {
	switch kind {
	case "identifier", "field_identifier", "type_identifier", "init_declarator", "pointer_declarator",
		"reference_declarator", "array_declarator", "function_declarator", "attributed_declarator":
		return true
	}
	return false
}

// innermostIdentifier finds the name inside a parenthesised declarator such
// as "(*fp)".
func innermostIdentifier(n *tree_sitter.Node) *tree_sitter.Node {
	switch n.Kind() {
	case "identifier", "field_identifier", "type_identifier":
		return n
	}
	for _, child := range children(n) {
		if found := innermostIdentifier(child); found != nil {
			return found
		}
	}
	return nil
}

func (w *tsWalker) isConstFunction(fd *tree_sitter.Node) bool {
	for _, child := range children(fd) {
		if child.Kind() == "type_qualifier" && w.text(child) == "const" {
			return true
		}
	}
	return false
}

// typeOf renders the declared type of a declaration, declaring an inline
// class or enum definition on the way.
func (w *tsWalker) typeOf(n *tree_sitter.Node, parent int, access types.TokenScope) (string, int) {
	typ := n.ChildByFieldName("type")
	if typ == nil {
		return "", -1
	}
	container := -1
	text := ""
	switch typ.Kind() {
	case "class_specifier", "struct_specifier", "union_specifier":
		if container = w.class(typ, parent, access); container >= 0 {
			text = w.sc.g.At(container).Name
		}
	case "enum_specifier":
		if container = w.enum(typ, parent, access); container >= 0 {
			text = w.sc.g.At(container).Name
		}
	}
	if text == "" {
		if name := w.className(typ); name != "" && typ.ChildByFieldName("body") == nil && strings.HasSuffix(typ.Kind(), "_specifier") {
			text = name
		} else {
			text = w.normalized(typ)
		}
	}
	for _, child := range children(n) {
		if child.Kind() == "type_qualifier" && child.StartByte() < typ.StartByte() {
			text = w.text(child) + " " + text
		}
	}
	return text, container
}

func (w *tsWalker) function(n *tree_sitter.Node, parent int, access types.TokenScope) {
	retType, _ := w.typeOf(n, parent, access)
	core, marks := unwrap(n.ChildByFieldName("declarator"))
	if core == nil || core.Kind() != "function_declarator" {
		return
	}
	w.declareFunction(core, parent, access, retType+marks, n.ChildByFieldName("body"))
}

func (w *tsWalker) declareFunction(fd *tree_sitter.Node, parent int, access types.TokenScope, retType string, body *tree_sitter.Node) int {
	nameNode := fd.ChildByFieldName("declarator")
	params := fd.ChildByFieldName("parameters")
	if nameNode == nil || params == nil {
		return -1
	}
	if nameNode.Kind() == "template_function" {
		if inner := nameNode.ChildByFieldName("name"); inner != nil {
			nameNode = inner
		}
	}
	args := w.normalized(params)
	spec := functionSpec{
		parent:    parent,
		access:    access,
		qualified: w.normalized(nameNode),
		line:      w.line(nameNode),
		args:      args,
		argc:      ArgumentCount(args),
		retType:   retType,
		isConst:   w.isConstFunction(fd),
	}
	if body != nil {
		spec.defined = true
		spec.implLine = spec.line
		spec.start = w.line(body)
		spec.end = w.endLine(body)
	}
	return w.sc.declareFunction(spec)
}

func (w *tsWalker) declaration(n *tree_sitter.Node, parent int, access types.TokenScope) {
	typ := n.ChildByFieldName("type")
	base, _ := w.typeOf(n, parent, access)
	isConst := strings.HasPrefix(base, "const ")
	for _, child := range children(n) {
		if typ != nil && child.Id() == typ.Id() || !isDeclarator(child.Kind()) {
			continue
		}
		core, marks := unwrap(child)
		if core.Kind() == "function_declarator" {
			inner := core.ChildByFieldName("declarator")
			if inner != nil && inner.Kind() == "parenthesized_declarator" {
				if id := innermostIdentifier(inner); id != nil {
					w.variable(id, parent, access, base+marks+"(*)"+w.normalizedField(core, "parameters"), isConst)
				}
				continue
			}
			w.declareFunction(core, parent, access, base+marks, nil)
			continue
		}
		switch core.Kind() {
		case "identifier", "field_identifier":
			w.variable(core, parent, access, base+marks, isConst)
		}
	}
}

func (w *tsWalker) normalizedField(n *tree_sitter.Node, field string) string {
	if f := n.ChildByFieldName(field); f != nil {
		return w.normalized(f)
	}
	return ""
}

func (w *tsWalker) variable(name *tree_sitter.Node, parent int, access types.TokenScope, typ string, isConst bool) {
	tok := w.token(w.text(name), types.KindVariable, parent, name)
	tok.BaseType = typ
	tok.IsConst = isConst
	tok.Scope = access
	w.sc.g.Insert(tok)
}

func (w *tsWalker) typedef(n *tree_sitter.Node, parent int, access types.TokenScope) {
	typ := n.ChildByFieldName("type")
	base, container := w.typeOf(n, parent, access)
	for _, child := range children(n) {
		if typ != nil && child.Id() == typ.Id() || !isDeclarator(child.Kind()) {
			continue
		}
		core, marks := unwrap(child)
		args := ""
		nameNode := core
		if core.Kind() == "function_declarator" {
			args = w.normalizedField(core, "parameters")
			if inner := core.ChildByFieldName("declarator"); inner != nil {
				nameNode = innermostIdentifier(inner)
			}
		}
		if nameNode == nil {
			continue
		}
		name := w.text(nameNode)
		if container >= 0 && marks == "" && args == "" {
			if tok := w.sc.g.At(container); tok.Unnamed() {
				w.sc.g.Rename(container, name)
				base = name
				continue
			}
		}
		tok := w.token(name, types.KindTypedef, parent, nameNode)
		tok.BaseType = base + marks
		tok.Args = args
		tok.Scope = access
		w.sc.g.Insert(tok)
	}
}

func (w *tsWalker) macro(n *tree_sitter.Node) {
	if !w.sc.cfg.storeMacros {
		return
	}
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	tok := w.token(w.text(name), types.KindMacroDef, types.GlobalScope, name)
	if params := n.ChildByFieldName("parameters"); params != nil {
		tok.Args = w.normalized(params)
	}
	if value := n.ChildByFieldName("value"); value != nil {
		tok.BaseType = strings.TrimSpace(w.text(value))
	}
	tok.IsLocal = false
	w.sc.g.Insert(tok)
}
