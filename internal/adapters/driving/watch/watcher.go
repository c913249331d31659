// Package watch implements a drop folder: files written into a watched
// directory are uploaded for ingestion.
//
// Events are debounced per path so a file written in several chunks is
// uploaded once, after the writer goes quiet. Hidden files and files whose
// extension has no normaliser are ignored.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
	"github.com/custodia-labs/kb/internal/logger"
)

// DefaultDebounce is how long a path must stay quiet before it is uploaded.
const DefaultDebounce = 500 * time.Millisecond

// UploadFunc is notified after every upload attempt.
type UploadFunc func(path string, doc *domain.Document, err error)

// fileKey identifies one version of a file.
type fileKey struct {
	size    int64
	modTime time.Time
}

// Watcher uploads files dropped into a directory.
type Watcher struct {
	dir        string
	ingestion  driving.IngestionService
	permission domain.PermissionLevel
	debounce   time.Duration
	existing   bool
	onUpload   UploadFunc

	mu       sync.Mutex
	pending  map[string]*time.Timer
	uploaded map[string]fileKey
	wg       sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPermission sets the level given to uploaded documents.
func WithPermission(level domain.PermissionLevel) Option {
	return func(w *Watcher) {
		w.permission = level
	}
}

// WithDebounce sets the quiet period before a file is uploaded.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExisting uploads files already present when Run starts.
func WithExisting(enabled bool) Option {
	return func(w *Watcher) {
		w.existing = enabled
	}
}

// WithOnUpload registers a callback for upload results.
func WithOnUpload(fn UploadFunc) Option {
	return func(w *Watcher) {
		w.onUpload = fn
	}
}

// New creates a watcher for dir.
func New(dir string, ingestion driving.IngestionService, opts ...Option) (*Watcher, error) {
	if ingestion == nil {
		return nil, errors.New("watch: ingestion service is required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, abs)
	}

	w := &Watcher{
		dir:        abs,
		ingestion:  ingestion,
		permission: domain.PermissionPrivate,
		debounce:   DefaultDebounce,
		pending:    make(map[string]*time.Timer),
		uploaded:   make(map[string]fileKey),
	}
	for _, opt := range opts {
		opt(w)
	}
	if !w.permission.IsValid() {
		return nil, fmt.Errorf("%w: permission %q", domain.ErrInvalidInput, w.permission)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run watches the directory until ctx is cancelled.
// Uploads already scheduled are cancelled; uploads in progress are awaited.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	logger.Info("Watching %s for new documents", w.dir)

	if w.existing {
		w.scheduleExisting(ctx)
	}

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch %s: %v", w.dir, err)
		}
	}
}

// handleEvent schedules or cancels an upload. It reports whether an upload was scheduled.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) bool {
	path := event.Name
	if !w.eligible(path) {
		return false
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.cancel(path)
		return false
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	w.schedule(ctx, path)
	return true
}

func (w *Watcher) scheduleExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn("listing %s: %v", w.dir, err)
		return
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.eligible(path) {
			w.schedule(ctx, path)
		}
	}
}

func (w *Watcher) eligible(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	if isHidden(rel) {
		return false
	}
	return domain.SourceTypeFromFilename(path).IsValid()
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if _, ok := w.pending[path]; !ok {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.wg.Add(1)
		w.mu.Unlock()

		defer w.wg.Done()
		w.upload(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// upload sends one file to ingestion unless this version was already sent.
func (w *Watcher) upload(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}
	key := fileKey{size: info.Size(), modTime: info.ModTime()}

	w.mu.Lock()
	prev, seen := w.uploaded[path]
	w.mu.Unlock()
	if seen && prev == key {
		logger.Debug("Skipping unchanged %s", path)
		return
	}

	content, err := os.ReadFile(path) //nolint:gosec // G304: path is inside the watched directory
	if err != nil {
		w.notify(path, nil, fmt.Errorf("reading %s: %w", path, err))
		return
	}

	doc, err := w.ingestion.Upload(ctx, driving.UploadRequest{
		Filename:   filepath.Base(path),
		Content:    content,
		Permission: w.permission,
		Metadata:   map[string]any{"source_path": path},
	})
	if err != nil {
		logger.Warn("Upload of %s failed: %v", path, err)
		w.notify(path, nil, err)
		return
	}

	w.mu.Lock()
	w.uploaded[path] = key
	w.mu.Unlock()

	logger.Info("Uploaded %s as %s", path, doc.ID)
	w.notify(path, doc, nil)
}

func (w *Watcher) notify(path string, doc *domain.Document, err error) {
	if w.onUpload != nil {
		w.onUpload(path, doc, err)
	}
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
