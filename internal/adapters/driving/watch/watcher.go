// Package watch keeps the index in step with directories on disk. File
// events are debounced and turned into ingest and delete calls.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// DefaultDebounce is how long a path must be quiet before it is applied.
const DefaultDebounce = 500 * time.Millisecond

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("watch: watcher is closed")

// ChangeType is what happened to a file.
type ChangeType int

const (
	// ChangeUpsert means the file was created or written.
	ChangeUpsert ChangeType = iota
	// ChangeDelete means the file was removed or renamed away.
	ChangeDelete
)

// String returns the change name.
func (c ChangeType) String() string {
	if c == ChangeDelete {
		return "delete"
	}
	return "upsert"
}

// Change is a pending update for one path.
type Change struct {
	Path string
	Type ChangeType
}

// Watcher ingests indexable files below a set of directories as they change.
type Watcher struct {
	svc      driving.RetrievalService
	dirs     []string
	debounce time.Duration
	onApply  func(Change, error)

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period applied to each path.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnApply registers a callback invoked after each change is applied.
func WithOnApply(fn func(Change, error)) Option {
	return func(w *Watcher) {
		w.onApply = fn
	}
}

// New creates a watcher for dirs.
func New(svc driving.RetrievalService, dirs []string, opts ...Option) *Watcher {
	w := &Watcher{
		svc:      svc,
		dirs:     slices.Clone(dirs),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled or Close is called. Pending changes
// are dropped on exit.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()
	defer cancel()

	if len(w.dirs) == 0 {
		return fmt.Errorf("%w: no directories to watch", domain.ErrInvalidInput)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	for _, dir := range w.dirs {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("root path error: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, dir)
		}
		if err := addTree(fsw, dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	logger.Info("watching %d directories", len(w.dirs))

	pending := newDebouncer(w.debounce)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if isNewDir(event) {
				if err := addTree(fsw, event.Name); err != nil {
					logger.Warn("watch: adding %s: %v", event.Name, err)
				}
				continue
			}
			change := handleFsEvent(event)
			if change == nil {
				continue
			}
			pending.add(*change, time.Now())
			schedule(timer, pending)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: %v", err)

		case <-timer.C:
			w.flush(ctx, pending.due(time.Now()))
			schedule(timer, pending)
		}
	}
}

// Close stops a running watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

// schedule arms timer for the earliest pending deadline.
func schedule(timer *time.Timer, d *debouncer) {
	if next, ok := d.next(); ok {
		timer.Reset(time.Until(next))
	}
}

// debouncer holds the latest change per path with its own quiet deadline,
// so events on one path never postpone another.
type debouncer struct {
	quiet   time.Duration
	pending map[string]pendingChange
}

type pendingChange struct {
	typ ChangeType
	due time.Time
}

func newDebouncer(quiet time.Duration) *debouncer {
	return &debouncer{quiet: quiet, pending: make(map[string]pendingChange)}
}

// add records c and restarts the quiet period of its path.
func (d *debouncer) add(c Change, now time.Time) {
	d.pending[c.Path] = pendingChange{typ: c.Type, due: now.Add(d.quiet)}
}

// due removes and returns, in path order, the changes whose path has been
// quiet until now.
func (d *debouncer) due(now time.Time) []Change {
	var ready []Change
	for path, p := range d.pending {
		if !p.due.After(now) {
			ready = append(ready, Change{Path: path, Type: p.typ})
			delete(d.pending, path)
		}
	}
	slices.SortFunc(ready, func(a, b Change) int { return strings.Compare(a.Path, b.Path) })
	return ready
}

// next returns the earliest pending deadline.
func (d *debouncer) next() (time.Time, bool) {
	var earliest time.Time
	for _, p := range d.pending {
		if earliest.IsZero() || p.due.Before(earliest) {
			earliest = p.due
		}
	}
	return earliest, !earliest.IsZero()
}

// flush applies changes in order.
func (w *Watcher) flush(ctx context.Context, changes []Change) {
	for _, c := range changes {
		if ctx.Err() != nil {
			return
		}
		err := w.apply(ctx, c)
		if err != nil {
			logger.Warn("watch: %s %s: %v", c.Type, c.Path, err)
		}
		if w.onApply != nil {
			w.onApply(c, err)
		}
	}
}

// apply sends one change to the retrieval service. A file that no longer
// has text is removed from the index.
func (w *Watcher) apply(ctx context.Context, c Change) error {
	if c.Type == ChangeUpsert {
		res, err := services.IngestFile(ctx, w.svc, c.Path)
		switch {
		case err == nil:
			logger.Debug("watch: indexed %s (%d chunks)", c.Path, res.ChunkCount)
			return nil
		case errors.Is(err, domain.ErrEmptyDocument):
		case errors.Is(err, fs.ErrNotExist):
		default:
			return err
		}
	}
	return w.svc.Delete(ctx, services.FileDocumentID(c.Path))
}

// handleFsEvent converts a filesystem event into a change, or nil when the
// event does not concern an indexable file.
func handleFsEvent(event fsnotify.Event) *Change {
	if isHidden(event.Name) || !services.IsIndexable(event.Name) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return &Change{Path: event.Name, Type: ChangeDelete}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return &Change{Path: event.Name, Type: ChangeDelete}
		}
		if info.IsDir() {
			return nil
		}
		return &Change{Path: event.Name, Type: ChangeUpsert}
	}
	return nil
}

// isNewDir reports whether event created a visible directory.
func isNewDir(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) || isHidden(event.Name) {
		return false
	}
	info, err := os.Stat(event.Name)
	return err == nil && info.IsDir()
}

// addTree watches dir and every visible directory below it.
func addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
