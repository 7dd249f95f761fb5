package registry

import (
	"context"
	"sync"
	"time"

	"github.com/standardbeagle/ccindex/internal/browser"
	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/parser"
)

// DefaultAttachInterval paces the one-by-one attach scheduler.
const DefaultAttachInterval = 500 * time.Millisecond

// eventQueue collects parser events from batch goroutines. push never
// blocks, so a parser can be closed while the registry lock is held.
type eventQueue struct {
	mu    sync.Mutex
	items []parser.Event
	wake  chan struct{}
}

func (q *eventQueue) push(ev parser.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []parser.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Wake is signalled whenever parser events are waiting for ProcessEvents.
func (r *Registry) Wake() <-chan struct{} { return r.queue.wake }

// ProcessEvents dispatches every queued parser event and returns how many
// there were.
func (r *Registry) ProcessEvents() int {
	events := r.queue.drain()
	for _, ev := range events {
		if ev.Phase == parser.PhaseStart {
			r.OnParserStart(ev)
		} else {
			r.OnParserEnd(ev)
		}
	}
	return len(events)
}

// OnParserStart handles the start of a batch. A create-parser batch switches
// to the focused editor's parser when that one is not active.
func (r *Registry) OnParserStart(ev parser.Event) {
	r.lock()
	defer r.unlock()

	switch ev.State {
	case parser.StateCreateParser:
		debug.LogRegistry("OnParserStart: starting batch parsing for project %q...\n", ev.Project)
		if p, pp := r.currentEditorInfo(); pp != nil && pp != r.active {
			r.switchParser(p, pp)
		}
	case parser.StateAddFileToParser:
		debug.LogRegistry("OnParserStart: starting add file parsing for project %q...\n", ev.Project)
	case parser.StateReparseFile:
		debug.LogRegistry("OnParserStart: starting re-parsing for project %q...\n", ev.Project)
	case parser.StateUndefined:
		if ev.Message == "" {
			debug.LogRegistry("OnParserStart: batch parsing error in project %q\n", ev.Project)
		} else {
			debug.LogRegistry("OnParserStart: %s in project %q\n", ev.Message, ev.Project)
		}
	}
}

// OnParserEnd handles the end of a batch: it refreshes the browser and
// schedules the next attach step. Failed batches only log.
func (r *Registry) OnParserEnd(ev parser.Event) {
	r.lock()
	defer r.unlock()

	switch ev.State {
	case parser.StateCreateParser:
		debug.LogRegistry("OnParserEnd: project %q parsing stage done!\n", ev.Project)
	case parser.StateReparseFile:
		if ev.Parser != r.active {
			if p, pp := r.currentEditorInfo(); pp != nil && pp != r.active {
				r.switchParser(p, pp)
			}
		}
	case parser.StateUndefined:
		debug.LogRegistry("OnParserEnd: parser event handling error of project %q: %s\n", ev.Project, ev.Message)
		return
	}

	if ev.Message != "" {
		debug.LogRegistry("%s\n", ev.Message)
	}
	if s, ok := r.sessions[ev.Parser]; ok {
		s.Invalidate()
	}
	r.note(browser.BatchFinished, ev.Parser)
	r.note(browser.RefreshBrowser, ev.Parser)
	r.attachPending.Store(true)
}

// AttachStep is one step of the background attach. In workspace mode it
// merges the focused file's project, the active project, or the next project
// with something to parse. In project mode it creates the parser of the
// current project when it has none.
func (r *Registry) AttachStep(ctx context.Context) {
	r.lock()
	defer r.unlock()

	p, pp := r.currentEditorInfo()
	if !r.cc.ParserPerWorkspace {
		if p == nil && r.focus.file == "" {
			p = r.currentProject()
			pp = r.strat.lookup(r, p)
		}
		if p != nil && pp == nil {
			pp = r.createParser(ctx, p)
			if pp != nil && pp != r.active {
				r.switchParser(p, pp)
			}
		}
		return
	}

	if pp == nil && r.focus.file != "" {
		r.addProjectToParser(ctx, p)
		debug.LogRegistry("AttachStep: add foreign active editor to current active project's parser\n")
		return
	}
	if r.ws == nil {
		return
	}
	if active := r.ws.ActiveProject(); active != nil && !r.isParsed(active) {
		r.addProjectToParser(ctx, active)
		debug.LogRegistry("AttachStep: add new (un-parsed) active project to parser\n")
		return
	}
	for _, q := range r.ws.All() {
		if r.isParsed(q) {
			continue
		}
		if !r.addProjectToParser(ctx, q) {
			debug.LogRegistry("AttachStep: nothing need to parse in project %q, try next project\n", q.Name())
			continue
		}
		debug.LogRegistry("AttachStep: add additional (next) project %q to parser\n", q.Name())
		break
	}
}

// ScheduleAttach makes the next Run tick call AttachStep.
func (r *Registry) ScheduleAttach() { r.attachPending.Store(true) }

// Run processes parser events as they arrive and runs a scheduled attach
// step every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAttachInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.queue.wake:
			r.ProcessEvents()
		case <-ticker.C:
			if r.attachPending.CompareAndSwap(true, false) {
				r.AttachStep(ctx)
			}
		}
	}
}
