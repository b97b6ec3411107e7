// Package watch runs tasks when source files matching a glob change.
//
// Each Binding ties a pattern to a task name. Directories below the pattern's
// static base are watched recursively with fsnotify; events are matched with
// doublestar and coalesced per binding by a short debounce, so one editor save
// triggers one run.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/incremental"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// DefaultDebounce is used when no debounce is configured.
const DefaultDebounce = 100 * time.Millisecond

// Binding ties a glob pattern to a task.
type Binding struct {
	Pattern string
	Task    string
}

// TriggerFunc is called with the bound task name once a burst of matching
// events settled. Calls happen on timer goroutines and may overlap.
type TriggerFunc func(task string, changed []string)

// Watcher is a set of immutable bindings over one fsnotify watcher.
type Watcher struct {
	fs       *fsnotify.Watcher
	bindings []Binding
	debounce time.Duration
	trigger  TriggerFunc

	mu      sync.Mutex
	timers  map[int]*time.Timer
	pending map[int][]string
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New validates the bindings, starts watching their base directories and
// returns the running watcher. While a base directory does not exist, its
// nearest existing ancestor is watched instead and the base is picked up once
// it is created.
func New(bindings []Binding, debounce time.Duration, trigger TriggerFunc) (*Watcher, error) {
	if trigger == nil {
		return nil, errors.InternalError("watch trigger must not be nil").Build()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	for _, b := range bindings {
		if b.Task == "" {
			return nil, errors.ConfigError("watch binding has no task").WithContext("pattern", b.Pattern).Build()
		}
		if err := incremental.Validate(b.Pattern); err != nil {
			return nil, err
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to create file watcher").Build()
	}

	w := &Watcher{
		fs:       fw,
		bindings: append([]Binding(nil), bindings...),
		debounce: debounce,
		trigger:  trigger,
		timers:   make(map[int]*time.Timer),
		pending:  make(map[int][]string),
		done:     make(chan struct{}),
	}

	for _, b := range w.bindings {
		base := incremental.Base(b.Pattern)
		if !w.arm(base) {
			slog.Warn("Watch base directory does not exist yet", logfields.Pattern(b.Pattern), logfields.File(base))
			continue
		}
		slog.Debug("Watching", logfields.Pattern(b.Pattern), logfields.Task(b.Task))
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Bindings returns a copy of the watcher's bindings.
func (w *Watcher) Bindings() []Binding {
	return append([]Binding(nil), w.bindings...)
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || shouldIgnoreEvent(ev.Name) {
		return
	}
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			w.dirCreated(filepath.Clean(ev.Name))
			return
		}
	}

	path := filepath.Clean(ev.Name)
	for i, b := range w.bindings {
		if incremental.Match(b.Pattern, path) {
			slog.Debug("File change detected", logfields.File(path), slog.String("op", ev.Op.String()), logfields.Task(b.Task))
			w.schedule(i, path)
		}
	}
}

// arm watches base recursively. While base does not exist, its nearest
// existing ancestor is watched so that the creation shows up as an event.
// It reports whether base itself is watched.
func (w *Watcher) arm(base string) bool {
	for {
		if fi, err := os.Stat(base); err == nil && fi.IsDir() {
			addDirsRecursive(w.fs, base)
			return true
		}
		dir := nearestExistingDir(base)
		if err := w.fs.Add(dir); err != nil {
			slog.Warn("watch add failed", "dir", dir, logfields.Error(err))
			return false
		}
		// A level created before the watch was added produced no event.
		if _, err := os.Stat(base); err != nil && nearestExistingDir(base) == dir {
			return false
		}
	}
}

// dirCreated handles a new directory. Inside a binding's base it is watched
// with everything below it; on the way to a missing base the next level is
// armed. Files that landed in it before the watch was added are scheduled.
func (w *Watcher) dirCreated(dir string) {
	added := false
	for i, b := range w.bindings {
		base := filepath.Clean(incremental.Base(b.Pattern))
		switch {
		case within(base, dir):
			if !added {
				addDirsRecursive(w.fs, dir)
				added = true
			}
			w.scheduleExisting(i, dir)
		case within(dir, base):
			if w.arm(base) {
				slog.Debug("Watching", logfields.Pattern(b.Pattern), logfields.Task(b.Task))
				w.scheduleExisting(i, base)
			}
		}
	}
}

func (w *Watcher) scheduleExisting(i int, dir string) {
	pattern := w.bindings[i].Pattern
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || shouldIgnoreEvent(path) {
			return nil
		}
		if incremental.Match(pattern, path) {
			w.schedule(i, path)
		}
		return nil
	})
}

func nearestExistingDir(path string) string {
	dir := filepath.Dir(filepath.Clean(path))
	for {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// schedule (re)arms the debounce timer of binding i.
func (w *Watcher) schedule(i int, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[i] = appendUnique(w.pending[i], path)
	if t, ok := w.timers[i]; ok {
		t.Stop()
	}
	w.timers[i] = time.AfterFunc(w.debounce, func() { w.fire(i) })
}

func (w *Watcher) fire(i int) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	changed := w.pending[i]
	delete(w.pending, i)
	delete(w.timers, i)
	w.mu.Unlock()

	w.trigger(w.bindings[i].Task, changed)
}

// Close stops watching. Pending debounced triggers are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func addDirsRecursive(w *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				slog.Warn("watch add failed", "dir", path, logfields.Error(err))
			}
		}
		return nil
	})
}

// shouldIgnoreEvent returns true for editor swap files and OS metadata files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db"
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
