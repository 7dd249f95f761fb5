package resolver

import (
	"strings"

	"github.com/standardbeagle/ccindex/internal/editor"
	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/types"
)

// maxTypeDepth bounds typedef chains and inheritance walks.
const maxTypeDepth = 8

const (
	typeKinds     = types.KindClass | types.KindNamespace | types.KindTypedef | types.KindEnum
	memberKinds   = types.KindAll &^ types.KindMacroUse
	scopeKeepMask = types.KindNamespace | types.KindClass | types.KindTypedef | types.KindAnyFunction
)

// CleanupSearchScope drops indices that cannot own members and makes sure
// the global scope is searched. Functions stay because temporaries are
// their children.
func CleanupSearchScope(g *tokentree.Guard, scope *types.IndexSet) {
	for _, idx := range scope.Slice() {
		if idx == types.GlobalScope {
			continue
		}
		if tok := g.At(idx); tok == nil || !tok.Kind.Matches(scopeKeepMask) {
			scope.Remove(idx)
		}
	}
	scope.Insert(types.GlobalScope)
}

// ResolveExpression resolves a component chain against the search scopes.
// Every link but the last is matched exactly and turned into the scopes of
// its type; the last is matched with the caller's prefix and case rules.
func ResolveExpression(g *tokentree.Guard, components []Component, searchScope types.IndexSet, caseSensitive, isPrefix bool) types.IndexSet {
	var result types.IndexSet
	if len(components) == 0 {
		return result
	}
	scopes := searchScope.Clone()
	for i, c := range components {
		if i == len(components)-1 {
			for _, sc := range scopes.Slice() {
				result.Union(GenerateResultSet(g, c.Name, sc, caseSensitive, isPrefix, memberKinds))
			}
			return result
		}
		scopes = nextScopes(g, c, i == 0, scopes, searchScope)
		if scopes.Empty() {
			return result
		}
	}
	return result
}

func nextScopes(g *tokentree.Guard, c Component, first bool, scopes, searchScope types.IndexSet) types.IndexSet {
	var next types.IndexSet
	switch {
	case first && c.Name == "" && c.Tokens == OpScope:
		next.Insert(types.GlobalScope)
		return next
	case first && c.Name == "this":
		for _, idx := range searchScope.Slice() {
			if tok := g.At(idx); tok != nil && tok.Kind == types.KindClass {
				next.Insert(idx)
			}
		}
		return next
	}
	mask := memberKinds
	if c.Tokens == OpScope {
		mask = typeKinds
	}
	for _, sc := range scopes.Slice() {
		for _, idx := range GenerateResultSet(g, c.Name, sc, true, false, mask).Slice() {
			next.Union(typeScopes(g, idx, searchScope, 0))
		}
	}
	return next
}

// typeScopes is the set of scopes whose members follow the token at idx.
func typeScopes(g *tokentree.Guard, idx int, searchScope types.IndexSet, depth int) types.IndexSet {
	var out types.IndexSet
	tok := g.At(idx)
	if tok == nil || depth > maxTypeDepth {
		return out
	}
	switch tok.Kind {
	case types.KindNamespace, types.KindClass, types.KindEnum:
		out.Insert(idx)
	case types.KindTypedef:
		out.Union(resolveTypeName(g, tok.BaseType, tok.ParentIndex, searchScope, depth+1))
	case types.KindVariable, types.KindFunction:
		out.Union(resolveTypeName(g, StripType(tok.BaseType), tok.ParentIndex, searchScope, depth+1))
	case types.KindConstructor:
		if tok.ParentIndex != types.GlobalScope {
			out.Insert(tok.ParentIndex)
		}
	case types.KindMacroDef:
		if isIdentifier(tok.BaseType) {
			for _, sc := range searchScope.Slice() {
				for _, m := range GenerateResultSet(g, tok.BaseType, sc, true, false, memberKinds).Slice() {
					if m != idx {
						out.Union(typeScopes(g, m, searchScope, depth+1))
					}
				}
			}
		}
	}
	return out
}

// resolveTypeName finds the containers a type name such as "ns::Foo" refers
// to, looking outward from the scope "from" and then in the search scopes.
func resolveTypeName(g *tokentree.Guard, name string, from int, searchScope types.IndexSet, depth int) types.IndexSet {
	var out types.IndexSet
	if name == "" || depth > maxTypeDepth {
		return out
	}
	parts := strings.Split(name, "::")
	if parts[0] == "" {
		parts = parts[1:]
		from = types.GlobalScope
		searchScope = types.IndexSet{}
	}
	if len(parts) == 0 {
		return out
	}

	var cands types.IndexSet
	for sc, steps := from, 0; steps <= maxTypeDepth*4; steps++ {
		cands = GenerateResultSet(g, parts[0], sc, true, false, typeKinds)
		if !cands.Empty() || sc == types.GlobalScope {
			break
		}
		parent := g.At(sc)
		if parent == nil {
			sc = types.GlobalScope
			continue
		}
		sc = parent.ParentIndex
	}
	if cands.Empty() {
		for _, sc := range searchScope.Slice() {
			cands.Union(GenerateResultSet(g, parts[0], sc, true, false, typeKinds))
		}
	}

	for _, part := range parts[1:] {
		var next types.IndexSet
		for _, c := range cands.Slice() {
			for _, container := range containerOf(g, c, searchScope, depth).Slice() {
				next.Union(GenerateResultSet(g, part, container, true, false, typeKinds))
			}
		}
		cands = next
		if cands.Empty() {
			return out
		}
	}
	for _, c := range cands.Slice() {
		out.Union(containerOf(g, c, searchScope, depth))
	}
	return out
}

func containerOf(g *tokentree.Guard, idx int, searchScope types.IndexSet, depth int) types.IndexSet {
	tok := g.At(idx)
	if tok != nil && tok.Kind == types.KindTypedef {
		return resolveTypeName(g, StripType(tok.BaseType), tok.ParentIndex, searchScope, depth+1)
	}
	return types.NewIndexSet(idx)
}

// GenerateResultSet collects the tokens called search that are visible as
// members of parent. Transparent children (unscoped enums, anonymous
// unions) are looked through and class members include inherited ones.
// The global parent searches the whole tree for top-level tokens.
func GenerateResultSet(g *tokentree.Guard, search string, parent int, caseSensitive, isPrefix bool, mask types.TokenKind) types.IndexSet {
	var result types.IndexSet
	c := collector{
		g:             g,
		search:        search,
		caseSensitive: caseSensitive,
		isPrefix:      isPrefix,
		mask:          mask,
		result:        &result,
		visited:       map[int]bool{},
	}
	if parent == types.GlobalScope {
		c.global()
	} else {
		c.members(parent, 0)
	}
	return result
}

type collector struct {
	g             *tokentree.Guard
	search        string
	caseSensitive bool
	isPrefix      bool
	mask          types.TokenKind
	result        *types.IndexSet
	visited       map[int]bool
}

func (c *collector) match(tok *types.Token) {
	if tok.Unnamed() || !tok.Kind.Matches(c.mask) {
		return
	}
	if tokentree.NameMatches(tok.Name, c.search, c.caseSensitive, c.isPrefix) {
		c.result.Insert(tok.Index)
	}
}

func (c *collector) global() {
	if c.search == "" && c.isPrefix {
		c.children(types.GlobalScope)
		return
	}
	for _, idx := range c.g.FindMatches(c.search, c.caseSensitive, c.isPrefix, c.mask).Slice() {
		if tok := c.g.At(idx); tok != nil && effectiveParent(c.g, tok) == types.GlobalScope {
			c.match(tok)
		}
	}
}

func (c *collector) children(parent int) {
	for _, idx := range c.g.Children(parent) {
		tok := c.g.At(idx)
		if tok == nil {
			continue
		}
		c.match(tok)
		if tok.Transparent() && !c.visited[idx] {
			c.visited[idx] = true
			c.children(idx)
		}
	}
}

func (c *collector) members(parent, depth int) {
	if c.visited[parent] || depth > maxTypeDepth {
		return
	}
	c.visited[parent] = true
	tok := c.g.At(parent)
	if tok == nil {
		return
	}
	c.children(parent)
	if tok.Kind != types.KindClass {
		return
	}
	for _, ancestor := range tok.Ancestors {
		for _, base := range resolveTypeName(c.g, StripType(ancestor), tok.ParentIndex, types.IndexSet{}, depth+1).Slice() {
			c.members(base, depth+1)
		}
	}
}

// effectiveParent skips transparent containers on the way up.
func effectiveParent(g *tokentree.Guard, tok *types.Token) int {
	p := tok.ParentIndex
	for steps := 0; p != types.GlobalScope && steps < maxTypeDepth; steps++ {
		pt := g.At(p)
		if pt == nil || !pt.Transparent() {
			break
		}
		p = pt.ParentIndex
	}
	return p
}

var typeQualifiers = map[string]bool{
	"const": true, "volatile": true, "struct": true, "class": true, "union": true,
	"enum": true, "typename": true, "static": true, "inline": true, "extern": true,
	"mutable": true, "register": true, "constexpr": true, "virtual": true,
	"friend": true, "explicit": true, "public": true, "protected": true, "private": true,
}

// StripType reduces declared type text to the bare type name:
// "const std::vector<int>&" becomes "std::vector".
func StripType(s string) string {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case '(', '[', '=':
			if depth == 0 {
				i = len(s)
			}
		case '*', '&':
			if depth == 0 {
				b.WriteByte(' ')
			}
		default:
			if depth == 0 {
				b.WriteByte(c)
			}
		}
	}
	fields := strings.Fields(b.String())
	name := ""
	for _, f := range fields {
		if typeQualifiers[f] {
			continue
		}
		name = f
	}
	name = strings.Trim(name, ":")
	if name == "auto" || name == "void" {
		return ""
	}
	return name
}

func isIdentifier(s string) bool {
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !editor.IsWordChar(s[i]) {
			return false
		}
	}
	return true
}
