// Package browser is the presentation side of the index: it turns registry
// notifications into view refreshes and maps tokens to browser images.
package browser

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/parser"
)

// NotificationKind says why the registry is talking to the bridge.
type NotificationKind uint8

const (
	ParserSwitched NotificationKind = iota + 1
	BatchFinished
	RefreshBrowser
)

func (k NotificationKind) String() string {
	switch k {
	case ParserSwitched:
		return "parser-switched"
	case BatchFinished:
		return "batch-finished"
	case RefreshBrowser:
		return "refresh-browser"
	}
	return "unknown"
}

// Notification is one message from the registry.
type Notification struct {
	Kind    NotificationKind
	Project string
	Parser  *parser.Parser
}

// View is whatever displays the token tree of a parser.
type View interface {
	Refresh(project string, p *parser.Parser)
}

// ViewFunc adapts a function to View.
type ViewFunc func(project string, p *parser.Parser)

func (f ViewFunc) Refresh(project string, p *parser.Parser) { f(project, p) }

// Bridge forwards notifications to a View. It refreshes only for the active
// parser, only when that parser is idle, and never while shutting down.
type Bridge struct {
	view         View
	mu           sync.Mutex
	active       *parser.Parser
	shuttingDown atomic.Bool
	refreshes    atomic.Int64
}

// NewBridge returns a bridge driving view. A nil view discards refreshes.
func NewBridge(view View) *Bridge {
	return &Bridge{view: view}
}

// Active returns the parser the bridge currently follows.
func (b *Bridge) Active() *parser.Parser {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Shutdown stops every further refresh.
func (b *Bridge) Shutdown() {
	b.shuttingDown.Store(true)
}

// Refreshes returns how many times the view was refreshed.
func (b *Bridge) Refreshes() int64 {
	return b.refreshes.Load()
}

// Handle applies one notification and reports whether the view refreshed.
func (b *Bridge) Handle(n Notification) bool {
	if b.shuttingDown.Load() {
		return false
	}
	b.mu.Lock()
	if n.Kind == ParserSwitched {
		b.active = n.Parser
	}
	active := b.active
	b.mu.Unlock()

	if n.Parser == nil || n.Parser != active {
		debug.LogRegistry("browser: %s for inactive parser of %q ignored\n", n.Kind, n.Project)
		return false
	}
	if !n.Parser.Done() {
		debug.LogRegistry("browser: parser of %q busy, %s deferred\n", n.Project, n.Kind)
		return false
	}
	if n.Kind == BatchFinished {
		return false
	}
	if b.view != nil {
		b.view.Refresh(n.Project, n.Parser)
	}
	b.refreshes.Add(1)
	return true
}

// Run consumes notifications until ctx is done or ch is closed.
func (b *Bridge) Run(ctx context.Context, ch <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			b.Handle(n)
		}
	}
}
