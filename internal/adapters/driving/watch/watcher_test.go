package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

type mockIngestion struct {
	mu      sync.Mutex
	uploads []driving.UploadRequest
	err     error
}

func (m *mockIngestion) Upload(_ context.Context, req driving.UploadRequest) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.uploads = append(m.uploads, req)
	return &domain.Document{ID: "doc-" + req.Filename, Status: domain.StatusPending}, nil
}

func (m *mockIngestion) Retry(_ context.Context, _ string) (*domain.Document, error) {
	return nil, domain.ErrNotImplemented
}

func (m *mockIngestion) Wait(_ context.Context, _ string) (*domain.Document, error) {
	return nil, domain.ErrNotImplemented
}

func (m *mockIngestion) Stats() driving.IngestionStats {
	return driving.IngestionStats{}
}

func (m *mockIngestion) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

type uploadResult struct {
	path string
	doc  *domain.Document
	err  error
}

func collect() (UploadFunc, <-chan uploadResult) {
	ch := make(chan uploadResult, 16)
	return func(path string, doc *domain.Document, err error) {
		ch <- uploadResult{path: path, doc: doc, err: err}
	}, ch
}

func waitResult(t *testing.T, ch <-chan uploadResult) uploadResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for upload")
		return uploadResult{}
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	tests := []struct {
		name      string
		dir       string
		ingestion driving.IngestionService
		opts      []Option
		wantErr   error
	}{
		{name: "valid", dir: dir, ingestion: &mockIngestion{}},
		{name: "missing directory", dir: filepath.Join(dir, "nope"), ingestion: &mockIngestion{}, wantErr: domain.ErrInvalidInput},
		{name: "file instead of directory", dir: file, ingestion: &mockIngestion{}, wantErr: domain.ErrInvalidInput},
		{
			name:      "unknown permission",
			dir:       dir,
			ingestion: &mockIngestion{},
			opts:      []Option{WithPermission("secret")},
			wantErr:   domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(tt.dir, tt.ingestion, tt.opts...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, w)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(w.Dir()))
			assert.Equal(t, domain.PermissionPrivate, w.permission)
			assert.Equal(t, DefaultDebounce, w.debounce)
		})
	}

	t.Run("nil ingestion", func(t *testing.T) {
		_, err := New(dir, nil)
		require.Error(t, err)
	})
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"dir/.git/config", true},
		{".config/.cache/data", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"..", false},
		{"path/./file", false},
		{"", false},
		{"file.hidden", false},
		{"directory.name/file", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}

func TestHandleEvent(t *testing.T) {
	tests := []struct {
		name          string
		file          string
		isDir         bool
		create        bool
		op            fsnotify.Op
		wantScheduled bool
	}{
		{name: "create markdown", file: "notes.md", create: true, op: fsnotify.Create, wantScheduled: true},
		{name: "write pdf", file: "report.pdf", create: true, op: fsnotify.Write, wantScheduled: true},
		{name: "write and chmod", file: "a.txt", create: true, op: fsnotify.Write | fsnotify.Chmod, wantScheduled: true},
		{name: "chmod only", file: "a.txt", create: true, op: fsnotify.Chmod},
		{name: "unsupported extension", file: "image.png", create: true, op: fsnotify.Create},
		{name: "hidden file", file: ".draft.md", create: true, op: fsnotify.Create},
		{name: "directory", file: "sub.md", isDir: true, op: fsnotify.Create},
		{name: "vanished before stat", file: "gone.txt", op: fsnotify.Create},
		{name: "remove", file: "old.txt", op: fsnotify.Remove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			switch {
			case tt.isDir:
				require.NoError(t, os.Mkdir(path, 0o755))
			case tt.create:
				require.NoError(t, os.WriteFile(path, []byte("content"), 0o600))
			}

			w, err := New(dir, &mockIngestion{}, WithDebounce(time.Hour))
			require.NoError(t, err)
			defer w.stop()

			scheduled := w.handleEvent(context.Background(), fsnotify.Event{Name: path, Op: tt.op})
			assert.Equal(t, tt.wantScheduled, scheduled)
		})
	}
}

func TestRemoveCancelsPendingUpload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o600))

	ing := &mockIngestion{}
	w, err := New(dir, ing, WithDebounce(time.Hour))
	require.NoError(t, err)

	require.True(t, w.handleEvent(context.Background(), fsnotify.Event{Name: path, Op: fsnotify.Create}))
	w.handleEvent(context.Background(), fsnotify.Event{Name: path, Op: fsnotify.Remove})

	w.mu.Lock()
	assert.Empty(t, w.pending)
	w.mu.Unlock()
	w.stop()
	assert.Zero(t, ing.count())
}

func TestUploadSkipsUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("# A"), 0o600))

	ing := &mockIngestion{}
	w, err := New(dir, ing, WithPermission(domain.PermissionDepartment))
	require.NoError(t, err)

	w.upload(context.Background(), path)
	w.upload(context.Background(), path)
	require.Equal(t, 1, ing.count())

	assert.Equal(t, "a.md", ing.uploads[0].Filename)
	assert.Equal(t, []byte("# A"), ing.uploads[0].Content)
	assert.Equal(t, domain.PermissionDepartment, ing.uploads[0].Permission)
	assert.Equal(t, path, ing.uploads[0].Metadata["source_path"])

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte("# A, revised"), 0o600))
	require.NoError(t, os.Chtimes(path, later, later))
	w.upload(context.Background(), path)
	assert.Equal(t, 2, ing.count())
}

func TestUploadReportsFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	onUpload, results := collect()
	ing := &mockIngestion{err: errors.New("queue closed")}
	w, err := New(dir, ing, WithOnUpload(onUpload))
	require.NoError(t, err)

	w.upload(context.Background(), path)
	r := waitResult(t, results)
	assert.Equal(t, path, r.path)
	assert.Nil(t, r.doc)
	assert.EqualError(t, r.err, "queue closed")
}

func TestRun(t *testing.T) {
	if testing.Short() {
		t.Skip("filesystem watch test")
	}

	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o600))

	onUpload, results := collect()
	ing := &mockIngestion{}
	w, err := New(dir, ing,
		WithDebounce(20*time.Millisecond),
		WithExisting(true),
		WithOnUpload(onUpload),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	r := waitResult(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, existing, r.path)

	dropped := filepath.Join(dir, "dropped.md")
	require.NoError(t, os.WriteFile(dropped, []byte("# Dropped"), 0o600))

	r = waitResult(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, dropped, r.path)
	assert.Equal(t, "doc-dropped.md", r.doc.ID)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.md"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.png"), []byte("x"), 0o600))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 2, ing.count())
}
