// Package tokentree holds the mutable forest of declaration tokens owned by
// one parser.
//
// All access goes through a Guard. A Guard is only ever created by
// Tree.Lock, so any function that takes a *Guard is proof that the caller
// holds the tree's mutex. Recursive helpers pass the Guard down instead of
// locking again; the mutex is not reentrant.
package tokentree

import (
	"sync"

	"github.com/standardbeagle/ccindex/internal/types"
)

// Tree is a token forest guarded by a single mutex.
type Tree struct {
	mu   sync.Mutex
	name string

	// Storage and secondary indexes.
	// Protected by mu; only reachable through a Guard.
	tokens []*types.Token
	free   []int
	live   int
	top    types.IndexSet
	byName map[string]types.IndexSet
	byFile map[string]types.IndexSet
	temps  types.IndexSet
}

// New creates an empty tree. The name is only used in debug output.
func New(name string) *Tree {
	return &Tree{
		name:   name,
		byName: make(map[string]types.IndexSet),
		byFile: make(map[string]types.IndexSet),
	}
}

// Name returns the tree's debug name.
func (t *Tree) Name() string {
	return t.name
}

// Lock acquires the tree and returns the handle every operation goes through.
// The caller must call Unlock on the returned Guard exactly once.
func (t *Tree) Lock() *Guard {
	t.mu.Lock()
	return &Guard{t: t}
}

// With runs fn while holding the tree.
func (t *Tree) With(fn func(g *Guard)) {
	g := t.Lock()
	defer g.Unlock()
	fn(g)
}

// Size is a convenience entry point for callers that need nothing else.
func (t *Tree) Size() int {
	g := t.Lock()
	defer g.Unlock()
	return g.Size()
}

// Clear is a convenience entry point that empties the tree.
func (t *Tree) Clear() {
	g := t.Lock()
	defer g.Unlock()
	g.Clear()
}
