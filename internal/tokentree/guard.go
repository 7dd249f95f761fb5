package tokentree

import (
	"sort"
	"strings"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/types"
)

// Guard is the only handle through which a Tree can be read or changed.
// It is valid from Tree.Lock until Unlock; a released guard behaves as an
// empty tree and never touches the mutex again.
type Guard struct {
	t        *Tree
	released bool
}

// Unlock releases the tree. Calling it twice is a no-op.
func (g *Guard) Unlock() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.t.mu.Unlock()
}

// Valid reports whether the guard still holds its tree.
func (g *Guard) Valid() bool {
	return g != nil && !g.released
}

func (g *Guard) tree() (*Tree, bool) {
	if !g.Valid() {
		debug.LogResolver("token tree accessed through a released guard\n")
		return nil, false
	}
	return g.t, true
}

// Size returns the number of live tokens.
func (g *Guard) Size() int {
	t, ok := g.tree()
	if !ok {
		return 0
	}
	return t.live
}

// At returns the token stored at idx, or nil for a free or out of range slot.
func (g *Guard) At(idx int) *types.Token {
	t, ok := g.tree()
	if !ok || idx < 0 || idx >= len(t.tokens) {
		return nil
	}
	return t.tokens[idx]
}

// Clear drops every token.
func (g *Guard) Clear() {
	t, ok := g.tree()
	if !ok {
		return
	}
	t.tokens = nil
	t.free = nil
	t.live = 0
	t.top.Clear()
	t.temps.Clear()
	t.byName = make(map[string]types.IndexSet)
	t.byFile = make(map[string]types.IndexSet)
}

// Insert stores tok, assigns its index and links it into its parent. A parent
// index that does not name a live token is reset to the global scope.
func (g *Guard) Insert(tok *types.Token) int {
	t, ok := g.tree()
	if !ok || tok == nil {
		return -1
	}

	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
		t.tokens[idx] = tok
	} else {
		idx = len(t.tokens)
		t.tokens = append(t.tokens, tok)
	}
	tok.Index = idx
	tok.Children.Clear()
	t.live++

	if parent := g.At(tok.ParentIndex); parent != nil && tok.ParentIndex != idx {
		parent.Children.Insert(idx)
	} else {
		tok.ParentIndex = types.GlobalScope
		t.top.Insert(idx)
	}

	addTo(t.byName, strings.ToLower(tok.Name), idx)
	if tok.File != "" {
		addTo(t.byFile, tok.File, idx)
	}
	if tok.ImplFile != "" && tok.ImplFile != tok.File {
		addTo(t.byFile, tok.ImplFile, idx)
	}
	if tok.IsTemp {
		t.temps.Insert(idx)
	}
	return idx
}

// SetImplementation records where the body of an existing token lives.
func (g *Guard) SetImplementation(idx int, file string, line, start, end int) {
	t, ok := g.tree()
	tok := g.At(idx)
	if !ok || tok == nil {
		return
	}
	if tok.ImplFile != "" && tok.ImplFile != tok.File && tok.ImplFile != file {
		removeFrom(t.byFile, tok.ImplFile, idx)
	}
	tok.ImplFile = file
	tok.ImplLine = line
	tok.ImplLineStart = start
	tok.ImplLineEnd = end
	if file != "" {
		addTo(t.byFile, file, idx)
	}
}

// Rename changes the name of the token at idx and keeps the name index in step.
func (g *Guard) Rename(idx int, name string) {
	t, ok := g.tree()
	tok := g.At(idx)
	if !ok || tok == nil || tok.Name == name {
		return
	}
	removeFrom(t.byName, strings.ToLower(tok.Name), idx)
	tok.Name = name
	addTo(t.byName, strings.ToLower(name), idx)
}

// Remove deletes the token at idx together with its whole subtree.
func (g *Guard) Remove(idx int) {
	t, ok := g.tree()
	tok := g.At(idx)
	if !ok || tok == nil {
		return
	}

	for _, child := range tok.Children.Slice() {
		g.Remove(child)
	}

	if parent := g.At(tok.ParentIndex); parent != nil {
		parent.Children.Remove(idx)
	}
	t.top.Remove(idx)
	t.temps.Remove(idx)
	removeFrom(t.byName, strings.ToLower(tok.Name), idx)
	removeFrom(t.byFile, tok.File, idx)
	removeFrom(t.byFile, tok.ImplFile, idx)

	t.tokens[idx] = nil
	t.free = append(t.free, idx)
	t.live--
}

// RemoveFile drops every token declared in file. Tokens declared elsewhere but
// implemented in file keep their declaration and lose the implementation info.
// Namespaces are shared between files: one that still has members from other
// files survives and is handed over to one of them. It returns the number of
// tokens removed.
func (g *Guard) RemoveFile(file string) int {
	t, ok := g.tree()
	if !ok {
		return 0
	}
	set, exists := t.byFile[file]
	if !exists {
		return 0
	}

	before := t.live
	var namespaces []int
	for _, idx := range set.Slice() {
		tok := g.At(idx)
		if tok == nil {
			continue
		}
		switch {
		case tok.File == file && tok.Kind == types.KindNamespace:
			namespaces = append(namespaces, idx)
		case tok.File == file:
			g.Remove(idx)
		default:
			tok.ImplFile = ""
			tok.ImplLine = 0
			tok.ImplLineStart = 0
			tok.ImplLineEnd = 0
		}
	}

	// Innermost first, so a parent sees its emptied children.
	for i := len(namespaces) - 1; i >= 0; i-- {
		idx := namespaces[i]
		tok := g.At(idx)
		if tok == nil {
			continue
		}
		if heir := g.firstChildFile(tok); heir != "" {
			tok.File = heir
			addTo(t.byFile, heir, idx)
			continue
		}
		g.Remove(idx)
	}
	delete(t.byFile, file)
	return before - t.live
}

func (g *Guard) firstChildFile(tok *types.Token) string {
	for _, child := range tok.Children.Slice() {
		if c := g.At(child); c != nil && c.File != "" && c.File != tok.File {
			return c.File
		}
	}
	return ""
}

// TokenExists returns the index of the first token called name whose parent
// is parent and whose kind matches mask, or -1.
func (g *Guard) TokenExists(name string, parent int, mask types.TokenKind) int {
	t, ok := g.tree()
	if !ok || name == "" {
		return -1
	}
	for _, idx := range t.byName[strings.ToLower(name)].Slice() {
		tok := t.tokens[idx]
		if tok.Name == name && tok.ParentIndex == parent && tok.Kind.Matches(mask) {
			return idx
		}
	}
	return -1
}

// Lookup returns every token called name under parent whose kind matches
// mask, in index order.
func (g *Guard) Lookup(name string, parent int, mask types.TokenKind) []int {
	t, ok := g.tree()
	if !ok || name == "" {
		return nil
	}
	var out []int
	for _, idx := range t.byName[strings.ToLower(name)].Slice() {
		tok := t.tokens[idx]
		if tok.Name == name && tok.ParentIndex == parent && tok.Kind.Matches(mask) {
			out = append(out, idx)
		}
	}
	return out
}

// Owns reports whether the guard holds tree.
func (g *Guard) Owns(tree *Tree) bool {
	return g.Valid() && g.t == tree
}

// FindTokensInFile returns the tokens declared or implemented in file whose
// kind matches mask.
func (g *Guard) FindTokensInFile(file string, mask types.TokenKind) types.IndexSet {
	var result types.IndexSet
	t, ok := g.tree()
	if !ok {
		return result
	}
	for _, idx := range t.byFile[file].Slice() {
		if tok := t.tokens[idx]; tok != nil && tok.Kind.Matches(mask) {
			result.Insert(idx)
		}
	}
	return result
}

// FindMatches searches the whole tree by name.
func (g *Guard) FindMatches(name string, caseSensitive, isPrefix bool, mask types.TokenKind) types.IndexSet {
	var result types.IndexSet
	t, ok := g.tree()
	if !ok {
		return result
	}
	lower := strings.ToLower(name)
	for key, set := range t.byName {
		if isPrefix {
			if !strings.HasPrefix(key, lower) {
				continue
			}
		} else if key != lower {
			continue
		}
		for _, idx := range set.Slice() {
			tok := t.tokens[idx]
			if tok == nil || !tok.Kind.Matches(mask) {
				continue
			}
			if caseSensitive && !NameMatches(tok.Name, name, true, isPrefix) {
				continue
			}
			result.Insert(tok.Index)
		}
	}
	return result
}

// Children returns the direct children of parent in ascending order. The
// global scope yields the top-level tokens.
func (g *Guard) Children(parent int) []int {
	t, ok := g.tree()
	if !ok {
		return nil
	}
	if parent == types.GlobalScope {
		return t.top.Slice()
	}
	tok := g.At(parent)
	if tok == nil {
		return nil
	}
	return tok.Children.Slice()
}

// Each calls fn for every live token in index order until fn returns false.
func (g *Guard) Each(fn func(tok *types.Token) bool) {
	t, ok := g.tree()
	if !ok {
		return
	}
	for _, tok := range t.tokens {
		if tok != nil && !fn(tok) {
			return
		}
	}
}

// Indices returns every live index.
func (g *Guard) Indices() types.IndexSet {
	var result types.IndexSet
	g.Each(func(tok *types.Token) bool {
		result.Insert(tok.Index)
		return true
	})
	return result
}

// Files lists every file that contributed tokens.
func (g *Guard) Files() []string {
	t, ok := g.tree()
	if !ok {
		return nil
	}
	files := make([]string, 0, len(t.byFile))
	for f := range t.byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// TempCount returns how many temporary tokens the tree holds.
func (g *Guard) TempCount() int {
	t, ok := g.tree()
	if !ok {
		return 0
	}
	return t.temps.Len()
}

// RemoveTemps drops every temporary token and returns how many went away.
func (g *Guard) RemoveTemps() int {
	t, ok := g.tree()
	if !ok {
		return 0
	}
	before := t.live
	for _, idx := range t.temps.Slice() {
		g.Remove(idx)
	}
	t.temps.Clear()
	return before - t.live
}

// RemoveTempChildren drops the temporary children of the function at idx.
func (g *Guard) RemoveTempChildren(idx int) int {
	t, ok := g.tree()
	tok := g.At(idx)
	if !ok || tok == nil {
		return 0
	}
	before := t.live
	for _, child := range tok.Children.Slice() {
		if c := g.At(child); c != nil && c.IsTemp {
			g.Remove(child)
		}
	}
	return before - t.live
}

// NameMatches compares a token name against a searched text.
func NameMatches(tokenName, search string, caseSensitive, isPrefix bool) bool {
	if !caseSensitive {
		tokenName = strings.ToLower(tokenName)
		search = strings.ToLower(search)
	}
	if isPrefix {
		return strings.HasPrefix(tokenName, search)
	}
	return tokenName == search
}

func addTo(m map[string]types.IndexSet, key string, idx int) {
	set := m[key]
	set.Insert(idx)
	m[key] = set
}

func removeFrom(m map[string]types.IndexSet, key string, idx int) {
	set, ok := m[key]
	if !ok {
		return
	}
	set.Remove(idx)
	if set.Empty() {
		delete(m, key)
		return
	}
	m[key] = set
}
