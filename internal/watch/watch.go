// Package watch runs a handler for TED files dropped into an inbox
// directory.
//
// Events for one path are debounced: the handler runs once the file has
// been quiet for the debounce period, so a file written in several chunks
// is handled once. Calls for the same path never overlap.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/ted/internal/logging"
)

// DefaultDebounce is used when New is given a non-positive debounce.
const DefaultDebounce = 500 * time.Millisecond

// Ext is the file extension the watcher handles.
const Ext = ".ted"

// Handler processes one file. Errors are logged; they do not stop the
// watcher.
type Handler func(ctx context.Context, path string) error

// Watcher watches one directory.
type Watcher struct {
	dir      string
	handler  Handler
	debounce time.Duration
	ready    chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
	locks  map[string]*pathLock
	closed bool
	wg     sync.WaitGroup
}

// pathLock serializes handlers of one path. refs counts the handlers
// holding or waiting for it; the entry is dropped when it reaches zero.
type pathLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a watcher for dir.
func New(dir string, handler Handler, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: debounce,
		ready:    make(chan struct{}),
		timers:   make(map[string]*time.Timer),
		locks:    make(map[string]*pathLock),
	}
}

// Matches reports whether name is a file the watcher handles. Hidden
// files, including the temporary files of an atomic save, are skipped.
func Matches(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(filepath.Ext(base), Ext)
}

// Ready is closed once Run has started watching.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Scan runs the handler for every matching file already in the
// directory, in name order, and returns how many it handled.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", w.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && Matches(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		w.handle(ctx, filepath.Join(w.dir, name))
	}
	return len(names), nil
}

// Run watches the directory until ctx is done, then waits for running
// handlers and returns.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	close(w.ready)

	logger := logging.FromContext(ctx).With("dir", w.dir)
	logger.Info("watching inbox", "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				w.stop()
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !Matches(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				w.stop()
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.fire(ctx, path) })
}

func (w *Watcher) fire(ctx context.Context, path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.timers, path)
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	w.handle(ctx, path)
}

// handle runs the handler for path, serialized per path.
func (w *Watcher) handle(ctx context.Context, path string) {
	w.mu.Lock()
	lock, ok := w.locks[path]
	if !ok {
		lock = &pathLock{}
		w.locks[path] = lock
	}
	lock.refs++
	w.mu.Unlock()

	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		w.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(w.locks, path)
		}
		w.mu.Unlock()
	}()

	logger := logging.WithFields(ctx, "path", path)
	start := time.Now()
	if err := w.handler(logging.NewContext(ctx, logger), path); err != nil {
		logger.Warn("handling file failed", "error", err)
		return
	}
	logger.Debug("handled file", "duration_ms", time.Since(start).Milliseconds())
}

// stop cancels pending timers and waits for running handlers.
func (w *Watcher) stop() {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
}
