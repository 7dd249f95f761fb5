// Package watcher turns file system changes under a project root into
// parser updates.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/ccindex/internal/config"
	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/types"
)

// Handler receives debounced file events. A flush calls FileRemoved for
// every removed path, then FileChanged, then FileCreated.
type Handler interface {
	FileRemoved(path string)
	FileChanged(path string)
	FileCreated(path string)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Removed func(path string)
	Changed func(path string)
	Created func(path string)
}

func (h HandlerFuncs) FileRemoved(path string) {
	if h.Removed != nil {
		h.Removed(path)
	}
}

func (h HandlerFuncs) FileChanged(path string) {
	if h.Changed != nil {
		h.Changed(path)
	}
}

func (h HandlerFuncs) FileCreated(path string) {
	if h.Created != nil {
		h.Created(path)
	}
}

// EventType is the debounced kind of a file event.
type EventType int

const (
	EventCreate EventType = iota
	EventWrite
	EventRemove
	EventRename
)

// Watcher monitors a project tree for C/C++ file changes.
type Watcher struct {
	watcher   *fsnotify.Watcher
	config    *config.Config
	handler   Handler
	debouncer *debouncer
	root      string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	eventsProcessed int64
	errorCount      int64
	lastEventTime   time.Time
	statsMu         sync.RWMutex

	onBatchStart func(count int)
	onBatchEnd   func(count int, duration time.Duration)
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg *config.Config, h Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher: fsw,
		config:  cfg,
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
	}
	w.debouncer = newDebouncer(cfg.WatchDebounce(), w.dispatch)
	return w, nil
}

// SetProgressCallbacks sets callbacks around each flushed batch.
func (w *Watcher) SetProgressCallbacks(onBatchStart func(count int), onBatchEnd func(count int, duration time.Duration)) {
	w.onBatchStart = onBatchStart
	w.onBatchEnd = onBatchEnd
}

// Start watches root and every directory below it that is not excluded.
func (w *Watcher) Start(root string) error {
	if !w.config.Watch.Enabled {
		debug.LogWatcher("file watching disabled in configuration\n")
		return nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.root = abs
	debug.LogWatcher("starting file watcher for %s\n", abs)

	if err := w.addWatches(abs); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop ends watching. Events still waiting in the debouncer are dropped.
func (w *Watcher) Stop() error {
	w.cancel()
	w.debouncer.stop()
	err := w.watcher.Close()
	w.wg.Wait()
	debug.LogWatcher("file watcher stopped\n")
	return err
}

func (w *Watcher) addWatches(root string) error {
	// symlinked directories can form cycles
	visited := make(map[string]bool)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if path != root && w.excluded(path, true) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("Warning: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) relative(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) excluded(path string, isDir bool) bool {
	rel := w.relative(path)
	for _, pattern := range w.config.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if isDir && strings.HasSuffix(pattern, "/**") {
			if ok, _ := doublestar.Match(strings.TrimSuffix(pattern, "/**"), rel); ok {
				return true
			}
		}
	}
	return false
}

// shouldProcess reports whether a file event for path is of interest: a C or
// C++ file, matching the include globs when there are any, and not excluded.
func (w *Watcher) shouldProcess(path string) bool {
	if types.FileTypeOf(path) == types.FileOther || w.excluded(path, false) {
		return false
	}
	if len(w.config.Include) == 0 {
		return true
	}
	rel := w.relative(path)
	for _, pattern := range w.config.Include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.incrementStats(0, 1)
			debug.LogWatcher("watcher error: %v\n", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	debug.LogWatcher("received %v for %s\n", ev.Op, path)

	info, err := os.Stat(path)
	if err != nil {
		// gone: a remove, or the old name of a rename
		if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && w.shouldProcess(path) {
			w.debouncer.add(path, EventRemove)
		}
		return
	}
	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 && !w.excluded(path, true) {
			if err := w.addWatches(path); err != nil {
				debug.LogWatcher("failed to watch new directory %s: %v\n", path, err)
			}
		}
		return
	}
	if !w.shouldProcess(path) {
		return
	}

	var t EventType
	switch {
	case ev.Op&fsnotify.Create != 0:
		t = EventCreate
	case ev.Op&fsnotify.Write != 0:
		t = EventWrite
	case ev.Op&fsnotify.Rename != 0:
		t = EventRename
	default:
		return
	}
	w.debouncer.add(path, t)
}

// dispatch runs one flushed batch through the handler.
func (w *Watcher) dispatch(removes, changes, creates []string) {
	count := len(removes) + len(changes) + len(creates)
	if w.onBatchStart != nil {
		w.onBatchStart(count)
	}
	start := time.Now()
	debug.LogWatcher("processing %d debounced file event(s)\n", count)

	for _, path := range removes {
		w.handler.FileRemoved(path)
	}
	for _, path := range changes {
		w.handler.FileChanged(path)
	}
	for _, path := range creates {
		w.handler.FileCreated(path)
	}
	w.incrementStats(int64(count), 0)

	if w.onBatchEnd != nil {
		w.onBatchEnd(count, time.Since(start))
	}
}

func (w *Watcher) incrementStats(events, errors int64) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.eventsProcessed += events
	w.errorCount += errors
	w.lastEventTime = time.Now()
}

// Stats contains counters about the watch session.
type Stats struct {
	EventsProcessed int64
	ErrorCount      int64
	LastEventTime   time.Time
	IsActive        bool
}

func (w *Watcher) Stats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return Stats{
		EventsProcessed: w.eventsProcessed,
		ErrorCount:      w.errorCount,
		LastEventTime:   w.lastEventTime,
		IsActive:        w.ctx.Err() == nil,
	}
}

// debouncer keeps the latest event per path and flushes once no event has
// arrived for the debounce interval.
type debouncer struct {
	mu       sync.Mutex
	events   map[string]EventType
	interval time.Duration
	timer    *time.Timer
	stopped  bool
	inflight sync.WaitGroup
	flushFn  func(removes, changes, creates []string)
}

func newDebouncer(interval time.Duration, flush func(removes, changes, creates []string)) *debouncer {
	return &debouncer{
		events:   make(map[string]EventType),
		interval: interval,
		flushFn:  flush,
	}
}

func (d *debouncer) add(path string, t EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	// a file created and then written in one window is still new
	if prev, ok := d.events[path]; ok && prev == EventCreate && t == EventWrite {
		t = EventCreate
	}
	d.events[path] = t

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.flush)
}

// stop drops pending events and waits for a flush already under way.
func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.events = make(map[string]EventType)
	d.mu.Unlock()
	d.inflight.Wait()
}

func (d *debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.events) == 0 {
		d.mu.Unlock()
		return
	}
	d.inflight.Add(1)
	defer d.inflight.Done()
	events := d.events
	d.events = make(map[string]EventType)
	d.mu.Unlock()

	var creates, removes, changes []string
	for path, t := range events {
		switch t {
		case EventCreate:
			creates = append(creates, path)
		case EventRemove:
			removes = append(removes, path)
		case EventWrite, EventRename:
			changes = append(changes, path)
		}
	}
	sort.Strings(removes)
	sort.Strings(changes)
	sort.Strings(creates)
	d.flushFn(removes, changes, creates)
}
