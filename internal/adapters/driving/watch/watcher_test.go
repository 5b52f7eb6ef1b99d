package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

// recordingService records the calls a watcher makes.
type recordingService struct {
	mu       sync.Mutex
	ingested []domain.IngestRequest
	deleted  []string
}

func (r *recordingService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	if req.Text == "" {
		return nil, domain.ErrEmptyDocument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingested = append(r.ingested, req)
	return &domain.IngestResult{DocumentID: req.ID, ChunkCount: 1}, nil
}

func (r *recordingService) Query(context.Context, domain.QueryRequest) ([]domain.SearchResult, error) {
	return nil, nil
}

func (r *recordingService) BuildContext(context.Context, domain.QueryRequest) (*domain.ContextPayload, error) {
	return &domain.ContextPayload{}, nil
}

func (r *recordingService) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *recordingService) Health(context.Context) domain.HealthStatus {
	return domain.HealthStatus{}
}

func (r *recordingService) ingestedSources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ingested))
	for i, req := range r.ingested {
		out[i] = req.Source
	}
	return out
}

func (r *recordingService) deletedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}

// startWatcher runs a watcher on dir and waits until it is watching.
func startWatcher(t *testing.T, svc *recordingService, dir string) {
	t.Helper()
	w := New(svc, []string{dir}, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	// Give fsnotify time to register the directory.
	time.Sleep(100 * time.Millisecond)
}

func TestNew(t *testing.T) {
	t.Run("default debounce", func(t *testing.T) {
		w := New(&recordingService{}, []string{"a"})
		assert.Equal(t, DefaultDebounce, w.debounce)
	})

	t.Run("custom debounce", func(t *testing.T) {
		w := New(&recordingService{}, nil, WithDebounce(time.Second))
		assert.Equal(t, time.Second, w.debounce)
	})

	t.Run("non-positive debounce ignored", func(t *testing.T) {
		w := New(&recordingService{}, nil, WithDebounce(0))
		assert.Equal(t, DefaultDebounce, w.debounce)
	})
}

func TestChangeType_String(t *testing.T) {
	assert.Equal(t, "upsert", ChangeUpsert.String())
	assert.Equal(t, "delete", ChangeDelete.String())
}

func TestHandleFsEvent(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		create    bool
		dir       bool
		operation fsnotify.Op
		want      *ChangeType
	}{
		{name: "create markdown", file: "a.md", create: true, operation: fsnotify.Create, want: ptr(ChangeUpsert)},
		{name: "write text", file: "a.txt", create: true, operation: fsnotify.Write, want: ptr(ChangeUpsert)},
		{name: "combined write chmod", file: "a.txt", create: true, operation: fsnotify.Write | fsnotify.Chmod, want: ptr(ChangeUpsert)},
		{name: "remove", file: "gone.md", operation: fsnotify.Remove, want: ptr(ChangeDelete)},
		{name: "rename", file: "old.md", operation: fsnotify.Rename, want: ptr(ChangeDelete)},
		{name: "write to vanished file", file: "vanished.md", operation: fsnotify.Write, want: ptr(ChangeDelete)},
		{name: "chmod only", file: "a.md", create: true, operation: fsnotify.Chmod},
		{name: "unsupported extension", file: "image.png", create: true, operation: fsnotify.Create},
		{name: "hidden file", file: ".notes.md", create: true, operation: fsnotify.Create},
		{name: "directory", file: "notes.md", dir: true, operation: fsnotify.Create},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if tt.create {
				require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
			}
			if tt.dir {
				require.NoError(t, os.Mkdir(path, 0o755))
			}

			change := handleFsEvent(fsnotify.Event{Name: path, Op: tt.operation})

			if tt.want == nil {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, *tt.want, change.Type)
			assert.Equal(t, path, change.Path)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestWatcher_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert ingests file", func(t *testing.T) {
		svc := &recordingService{}
		path := filepath.Join(t.TempDir(), "policy.md")
		require.NoError(t, os.WriteFile(path, []byte("보안 정책"), 0o644))

		require.NoError(t, New(svc, nil).apply(ctx, Change{Path: path, Type: ChangeUpsert}))

		assert.Equal(t, []string{path}, svc.ingestedSources())
		assert.Empty(t, svc.deletedIDs())
	})

	t.Run("emptied file is deleted", func(t *testing.T) {
		svc := &recordingService{}
		path := filepath.Join(t.TempDir(), "empty.md")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		require.NoError(t, New(svc, nil).apply(ctx, Change{Path: path, Type: ChangeUpsert}))

		assert.Equal(t, []string{services.FileDocumentID(path)}, svc.deletedIDs())
	})

	t.Run("missing file is deleted", func(t *testing.T) {
		svc := &recordingService{}
		path := filepath.Join(t.TempDir(), "missing.md")

		require.NoError(t, New(svc, nil).apply(ctx, Change{Path: path, Type: ChangeUpsert}))

		assert.Equal(t, []string{services.FileDocumentID(path)}, svc.deletedIDs())
	})

	t.Run("delete removes document", func(t *testing.T) {
		svc := &recordingService{}
		path := filepath.Join(t.TempDir(), "old.md")

		require.NoError(t, New(svc, nil).apply(ctx, Change{Path: path, Type: ChangeDelete}))

		assert.Equal(t, []string{services.FileDocumentID(path)}, svc.deletedIDs())
	})
}

func TestWatcher_Run(t *testing.T) {
	t.Run("indexes created files", func(t *testing.T) {
		dir := t.TempDir()
		svc := &recordingService{}
		startWatcher(t, svc, dir)

		path := filepath.Join(dir, "onboarding.md")
		require.NoError(t, os.WriteFile(path, []byte("신입 사원 온보딩"), 0o644))

		assert.Eventually(t, func() bool {
			return len(svc.ingestedSources()) > 0
		}, 3*time.Second, 20*time.Millisecond)
		assert.Contains(t, svc.ingestedSources(), path)
	})

	t.Run("deletes removed files", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "marketing.md")
		require.NoError(t, os.WriteFile(path, []byte("마케팅 계획"), 0o644))

		svc := &recordingService{}
		startWatcher(t, svc, dir)
		require.NoError(t, os.Remove(path))

		assert.Eventually(t, func() bool {
			return len(svc.deletedIDs()) > 0
		}, 3*time.Second, 20*time.Millisecond)
		assert.Equal(t, services.FileDocumentID(path), svc.deletedIDs()[0])
	})

	t.Run("watches new subdirectories", func(t *testing.T) {
		dir := t.TempDir()
		svc := &recordingService{}
		startWatcher(t, svc, dir)

		sub := filepath.Join(dir, "team")
		require.NoError(t, os.Mkdir(sub, 0o755))
		time.Sleep(100 * time.Millisecond)

		path := filepath.Join(sub, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("회의록"), 0o644))

		assert.Eventually(t, func() bool {
			for _, s := range svc.ingestedSources() {
				if s == path {
					return true
				}
			}
			return false
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("ignores unsupported files", func(t *testing.T) {
		dir := t.TempDir()
		svc := &recordingService{}
		startWatcher(t, svc, dir)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("jpg"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.md"), []byte("hidden"), 0o644))
		time.Sleep(200 * time.Millisecond)

		assert.Empty(t, svc.ingestedSources())
	})

	t.Run("reports applied changes", func(t *testing.T) {
		dir := t.TempDir()
		applied := make(chan Change, 4)
		w := New(&recordingService{}, []string{dir},
			WithDebounce(20*time.Millisecond),
			WithOnApply(func(c Change, err error) {
				assert.NoError(t, err)
				applied <- c
			}))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx) //nolint:errcheck
		time.Sleep(100 * time.Millisecond)

		path := filepath.Join(dir, "quality.md")
		require.NoError(t, os.WriteFile(path, []byte("품질 관리"), 0o644))

		select {
		case c := <-applied:
			assert.Equal(t, Change{Path: path, Type: ChangeUpsert}, c)
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for change")
		}
	})

	t.Run("busy path does not hold back others", func(t *testing.T) {
		dir := t.TempDir()
		svc := &recordingService{}
		w := New(svc, []string{dir}, WithDebounce(200*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()
		t.Cleanup(func() {
			cancel()
			assert.NoError(t, <-done)
		})
		time.Sleep(100 * time.Millisecond)

		busy := filepath.Join(dir, "busy.md")
		stop := make(chan struct{})
		writing := make(chan struct{})
		go func() {
			defer close(writing)
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				case <-time.After(50 * time.Millisecond):
					_ = os.WriteFile(busy, []byte(strings.Repeat("수정 ", i+1)), 0o644)
				}
			}
		}()
		defer func() {
			close(stop)
			<-writing
		}()

		quiet := filepath.Join(dir, "quiet.md")
		require.NoError(t, os.WriteFile(quiet, []byte("조용한 문서"), 0o644))

		assert.Eventually(t, func() bool {
			return slices.Contains(svc.ingestedSources(), quiet)
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("missing directory", func(t *testing.T) {
		w := New(&recordingService{}, []string{"/non/existent/path"})
		err := w.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "root path error")
	})

	t.Run("file instead of directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file.md")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		err := New(&recordingService{}, []string{path}).Run(context.Background())
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("no directories", func(t *testing.T) {
		err := New(&recordingService{}, nil).Run(context.Background())
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestDebouncer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }
	d := newDebouncer(500 * time.Millisecond)

	_, ok := d.next()
	assert.False(t, ok)

	d.add(Change{Path: "a.md", Type: ChangeUpsert}, at(0))
	d.add(Change{Path: "b.md", Type: ChangeUpsert}, at(300))

	next, ok := d.next()
	require.True(t, ok)
	assert.Equal(t, at(500), next)

	// b.md keeps changing; a.md is still due on its own schedule.
	d.add(Change{Path: "b.md", Type: ChangeDelete}, at(450))
	assert.Empty(t, d.due(at(499)))
	assert.Equal(t, []Change{{Path: "a.md", Type: ChangeUpsert}}, d.due(at(500)))

	next, ok = d.next()
	require.True(t, ok)
	assert.Equal(t, at(950), next)

	d.add(Change{Path: "c.md", Type: ChangeUpsert}, at(100))
	assert.Equal(t, []Change{
		{Path: "b.md", Type: ChangeDelete},
		{Path: "c.md", Type: ChangeUpsert},
	}, d.due(at(1000)))

	_, ok = d.next()
	assert.False(t, ok)
}

func TestWatcher_Close(t *testing.T) {
	t.Run("stops running watcher", func(t *testing.T) {
		w := New(&recordingService{}, []string{t.TempDir()})
		done := make(chan error, 1)
		go func() { done <- w.Run(context.Background()) }()
		time.Sleep(50 * time.Millisecond)

		require.NoError(t, w.Close())

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("watcher did not stop")
		}
	})

	t.Run("run after close", func(t *testing.T) {
		w := New(&recordingService{}, []string{t.TempDir()})
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())

		err := w.Run(context.Background())
		assert.True(t, errors.Is(err, ErrClosed))
	})
}
