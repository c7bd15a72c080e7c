// Package scan implements the Workspace Scanner: the central
// indexing orchestrator that walks a workspace, detects changed files,
// drives extraction and embedding in batches, and commits results to the
// Relational and Vector Stores atomically.
package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kodewright/miller/internal/extract"
	"github.com/kodewright/miller/internal/ignore"
	"github.com/kodewright/miller/internal/reachability"
	"github.com/kodewright/miller/internal/scanner"
	"github.com/kodewright/miller/internal/store"
	"github.com/kodewright/miller/internal/workspace"
)

// DefaultBatchSize is the number of files committed per batch.
const DefaultBatchSize = 50

// DefaultMaxFileSize skips pathologically large files during discovery, the
// same cap OnFilesChanged applies to individual change events.
const DefaultMaxFileSize = 10 * 1024 * 1024

// Embedder batches text into vectors. Treated as an external collaborator;
// nil is a legal, degraded Embedder — callers that haven't
// wired one yet still get a fully consistent relational index, just with
// zero vectors until one is configured.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Config tunes one Scanner.
type Config struct {
	BatchSize   int
	MaxFileSize int64
	Concurrency int // parallel extraction workers per batch
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Scanner drives incremental indexing for one workspace.
type Scanner struct {
	ws        *store.Workspace
	relStore  store.RelationalStore
	vecStore  store.VectorStore
	extractor *extract.Adapter
	embedder  Embedder
	reach     *reachability.Engine
	matcher   *ignore.Matcher
	config    Config
}

// New builds a Scanner. matcher may be nil, meaning no ignore filtering
// beyond what has already been applied upstream (tests, embedded use).
func New(ws *store.Workspace, rel store.RelationalStore, vec store.VectorStore, extractor *extract.Adapter, embedder Embedder, reach *reachability.Engine, matcher *ignore.Matcher, cfg Config) *Scanner {
	return &Scanner{
		ws:        ws,
		relStore:  rel,
		vecStore:  vec,
		extractor: extractor,
		embedder:  embedder,
		reach:     reach,
		matcher:   matcher,
		config:    cfg.withDefaults(),
	}
}

// Result summarizes one IndexWorkspace run.
type Result struct {
	FilesIndexed int
	FilesUpdated int
	FilesSkipped int
	FilesDeleted int
	Counts       store.IncrementalUpdateCounts
	Duration     time.Duration
}

// discoveredFile is one file found on disk during the walk.
type discoveredFile struct {
	relPath string // slash-separated, relative to workspace root
	absPath string
	size    int64
	modTime time.Time
}

// IndexWorkspace runs the full incremental-indexing algorithm:
// discover, bucket by change, batch-process, rebuild FTS once, sweep
// deletions, then update reference counts and optimize storage.
func (s *Scanner) IndexWorkspace(ctx context.Context) (*Result, error) {
	start := time.Now()

	discovered, err := s.discover()
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	storedHashes, err := s.relStore.GetFileHashes(ctx, s.ws.ID)
	if err != nil {
		return nil, fmt.Errorf("load stored hashes: %w", err)
	}

	toIndex, toUpdate, toSkip, err := s.bucketChanges(discovered, storedHashes)
	if err != nil {
		return nil, fmt.Errorf("bucket changes: %w", err)
	}
	toDelete := deletedPaths(s.ws.ID, discovered, storedHashes)

	result := &Result{FilesSkipped: len(toSkip)}

	work := append(append([]changedFile{}, toIndex...), toUpdate...)
	for batchStart := 0; batchStart < len(work); batchStart += s.config.BatchSize {
		end := batchStart + s.config.BatchSize
		if end > len(work) {
			end = len(work)
		}
		counts, err := s.processBatch(ctx, work[batchStart:end])
		if err != nil {
			return nil, fmt.Errorf("process batch [%d:%d]: %w", batchStart, end, err)
		}
		result.Counts.FilesCleaned += counts.FilesCleaned
		result.Counts.FilesAdded += counts.FilesAdded
		result.Counts.SymbolsAdded += counts.SymbolsAdded
		result.Counts.SymbolsSkipped += counts.SymbolsSkipped
		result.Counts.IdentifiersAdded += counts.IdentifiersAdded
		result.Counts.IdentifiersSkipped += counts.IdentifiersSkipped
		result.Counts.RelationshipsAdded += counts.RelationshipsAdded
		result.Counts.RelationshipsSkipped += counts.RelationshipsSkipped
	}
	result.FilesIndexed = len(toIndex)
	result.FilesUpdated = len(toUpdate)

	if len(work) > 0 {
		if err := s.vecStore.RebuildFTSIndex(ctx); err != nil {
			return nil, fmt.Errorf("rebuild fts index: %w", err)
		}
	}

	if len(toDelete) > 0 {
		if _, err := s.relStore.DeleteFilesBatch(ctx, toDelete); err != nil {
			return nil, fmt.Errorf("delete files: %w", err)
		}
		if err := s.vecStore.DeleteFilesBatch(ctx, toDelete); err != nil {
			return nil, fmt.Errorf("delete vectors: %w", err)
		}
		result.FilesDeleted = len(toDelete)
	}

	if err := s.relStore.UpdateReferenceCounts(ctx, s.ws.ID); err != nil {
		return nil, fmt.Errorf("update reference counts: %w", err)
	}
	if err := s.relStore.Optimize(ctx); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}

	if s.reach != nil {
		if err := s.reach.Refresh(ctx, s.ws.ID); err != nil {
			slog.Warn("reachability_refresh_failed", slog.String("workspace_id", s.ws.ID), slog.String("error", err.Error()))
		}
	}

	result.Duration = time.Since(start)
	slog.Info("workspace_indexed",
		slog.String("workspace_id", s.ws.ID),
		slog.Int("indexed", result.FilesIndexed),
		slog.Int("updated", result.FilesUpdated),
		slog.Int("skipped", result.FilesSkipped),
		slog.Int("deleted", result.FilesDeleted),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// discover walks the workspace root, skipping directories/symlinks and
// ignore-spec matches.
func (s *Scanner) discover() ([]discoveredFile, error) {
	var out []discoveredFile
	err := filepath.Walk(s.ws.RootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort: skip unreadable entries
		}
		if path == s.ws.RootPath {
			return nil
		}
		rel, relErr := filepath.Rel(s.ws.RootPath, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.Mode()&os.ModeSymlink != 0 {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if s.matcher != nil && s.matcher.Match(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if info.Size() > s.config.MaxFileSize {
			return nil
		}
		out = append(out, discoveredFile{relPath: rel, absPath: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// changedFile pairs a discovered file with its action ("indexed" for new,
// "updated" for hash-changed).
type changedFile struct {
	file   discoveredFile
	action string
}

// bucketChanges compares each discovered file's current hash against the
// stored hash: new files need no read here, updated/
// unchanged do, to know which bucket they land in.
func (s *Scanner) bucketChanges(discovered []discoveredFile, storedHashes map[string]string) (indexed, updated, skipped []changedFile, err error) {
	for _, f := range discovered {
		qp := workspace.QualifiedPath(s.ws.ID, f.relPath)
		storedHash, known := storedHashes[qp]
		if !known {
			indexed = append(indexed, changedFile{file: f, action: "indexed"})
			continue
		}
		content, readErr := os.ReadFile(f.absPath)
		if readErr != nil {
			continue
		}
		hash := hashContent(content)
		if hash == storedHash {
			skipped = append(skipped, changedFile{file: f, action: "skipped"})
		} else {
			updated = append(updated, changedFile{file: f, action: "updated"})
		}
	}
	return indexed, updated, skipped, nil
}

// deletedPaths is stored ∧ ¬discovered.
func deletedPaths(workspaceID string, discovered []discoveredFile, storedHashes map[string]string) []string {
	present := make(map[string]bool, len(discovered))
	for _, f := range discovered {
		present[workspace.QualifiedPath(workspaceID, f.relPath)] = true
	}
	var out []string
	for qp := range storedHashes {
		if !present[qp] {
			out = append(out, qp)
		}
	}
	sort.Strings(out)
	return out
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// detectLanguage maps a path to a language using an extension/filename
// table, treating language detection as an external library concern.
func detectLanguage(relPath string) string {
	return scanner.DetectLanguage(relPath)
}
