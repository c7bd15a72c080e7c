package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodewright/miller/internal/extract"
	"github.com/kodewright/miller/internal/ignore"
	"github.com/kodewright/miller/internal/store"
	"github.com/kodewright/miller/internal/watcher"
)

func newTestScanner(t *testing.T, root string) (*Scanner, store.RelationalStore, store.VectorStore) {
	t.Helper()
	rel, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rel.Close() })

	vec, err := store.NewDualStore("", store.VectorStoreConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vec.Close() })

	matcher, err := ignore.Load(root)
	require.NoError(t, err)

	ws := &store.Workspace{ID: "sample-00000000", Name: "sample", RootPath: root}
	s := New(ws, rel, vec, extract.New(), nil, nil, matcher, Config{})
	t.Cleanup(func() { s.extractor.Close() })
	return s, rel, vec
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	abs := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestIndexWorkspace_NewFiles_AreDiscoveredAndIndexed(t *testing.T) {
	// Given a workspace with one Go file
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	s, rel, _ := newTestScanner(t, root)

	// When indexing the workspace for the first time
	result, err := s.IndexWorkspace(context.Background())

	// Then the file is indexed and its symbol is persisted
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
	assert.Equal(t, 0, result.FilesSkipped)

	count, err := rel.CountFiles(context.Background(), s.ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndexWorkspace_SecondRunWithNoChanges_SkipsEverything(t *testing.T) {
	// Given a workspace already indexed once
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	s, _, _ := newTestScanner(t, root)
	_, err := s.IndexWorkspace(context.Background())
	require.NoError(t, err)

	// When indexing again with no file changes
	result, err := s.IndexWorkspace(context.Background())

	// Then every file is skipped rather than re-extracted
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesIndexed)
	assert.Equal(t, 0, result.FilesUpdated)
	assert.Equal(t, 1, result.FilesSkipped)
}

func TestIndexWorkspace_ModifiedFile_IsReindexedAsUpdate(t *testing.T) {
	// Given an indexed workspace
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	s, _, _ := newTestScanner(t, root)
	_, err := s.IndexWorkspace(context.Background())
	require.NoError(t, err)

	// When the file's content changes before the next index run
	writeFile(t, root, "main.go", "package main\n\nfunc main() { println(1) }\n")
	result, err := s.IndexWorkspace(context.Background())

	// Then it is counted as updated, not newly indexed or skipped
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesIndexed)
	assert.Equal(t, 1, result.FilesUpdated)
}

func TestIndexWorkspace_RemovedFile_IsDeletedFromStore(t *testing.T) {
	// Given an indexed workspace with one file
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	s, rel, _ := newTestScanner(t, root)
	_, err := s.IndexWorkspace(context.Background())
	require.NoError(t, err)

	// When the file is removed from disk before the next index run
	require.NoError(t, os.Remove(filepath.Join(root, "main.go")))
	result, err := s.IndexWorkspace(context.Background())

	// Then it is swept from the relational store
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesDeleted)
	count, err := rel.CountFiles(context.Background(), s.ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCheckIfIndexingNeeded_EmptyStore_ReturnsTrue(t *testing.T) {
	// Given a workspace that has never been indexed
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	s, _, _ := newTestScanner(t, root)

	// When checking staleness before any index run
	needed, err := s.CheckIfIndexingNeeded(context.Background())

	// Then indexing is reported as needed
	require.NoError(t, err)
	assert.True(t, needed)
}

func TestCheckIfIndexingNeeded_FreshlyIndexed_ReturnsFalse(t *testing.T) {
	// Given a workspace indexed once with no further changes
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	s, _, _ := newTestScanner(t, root)
	_, err := s.IndexWorkspace(context.Background())
	require.NoError(t, err)

	// When checking staleness immediately after
	needed, err := s.CheckIfIndexingNeeded(context.Background())

	// Then no re-index is needed
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestOnFilesChanged_DeleteEventAfterCreate_WinsDedup(t *testing.T) {
	// Given an indexed workspace and a burst containing both a create and a
	// delete for the same path within one debounce window
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "extra.go", "package main\n\nfunc helper() {}\n")
	s, rel, _ := newTestScanner(t, root)
	_, err := s.IndexWorkspace(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "extra.go")))
	events := []watcher.FileEvent{
		{Path: "extra.go", Operation: watcher.OpCreate},
		{Path: "extra.go", Operation: watcher.OpDelete},
	}

	// When the watcher callback processes the deduped burst
	result, err := s.OnFilesChanged(context.Background(), events)

	// Then the file is deleted, not re-indexed
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesDeleted)
	assert.Equal(t, 0, result.FilesUpdated)

	count, err := rel.CountFiles(context.Background(), s.ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOnFilesChanged_CreateEvent_IndexesNewFile(t *testing.T) {
	// Given an indexed workspace
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	s, rel, _ := newTestScanner(t, root)
	_, err := s.IndexWorkspace(context.Background())
	require.NoError(t, err)

	// When a new file appears and its create event arrives
	writeFile(t, root, "added.go", "package main\n\nfunc added() {}\n")
	result, err := s.OnFilesChanged(context.Background(), []watcher.FileEvent{
		{Path: "added.go", Operation: watcher.OpCreate},
	})

	// Then it is indexed and persisted alongside the original file
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesUpdated)
	count, err := rel.CountFiles(context.Background(), s.ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
