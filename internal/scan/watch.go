package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kodewright/miller/internal/watcher"
	"github.com/kodewright/miller/internal/workspace"
)

// OnFilesChanged reacts to a batch of File Watcher events: events are deduped by path with DELETE always winning,
// split into a delete set and an index set, then processed through the same
// atomic batch path IndexWorkspace uses.
func (s *Scanner) OnFilesChanged(ctx context.Context, events []watcher.FileEvent) (*Result, error) {
	deduped := dedupeEvents(events)

	var toDelete []string
	var toIndex []changedFile
	for relPath, op := range deduped {
		qp := workspace.QualifiedPath(s.ws.ID, relPath)
		if op == watcher.OpDelete {
			toDelete = append(toDelete, qp)
			continue
		}
		absPath := filepath.Join(s.ws.RootPath, filepath.FromSlash(relPath))
		info, err := os.Stat(absPath)
		if err != nil {
			// Raced with a delete between event emission and processing.
			toDelete = append(toDelete, qp)
			continue
		}
		if info.Size() > s.config.MaxFileSize {
			continue
		}
		if s.matcher != nil && s.matcher.Match(relPath, false) {
			continue
		}
		action := "updated"
		if op == watcher.OpCreate {
			action = "indexed"
		}
		toIndex = append(toIndex, changedFile{
			file:   discoveredFile{relPath: relPath, absPath: absPath, size: info.Size(), modTime: info.ModTime()},
			action: action,
		})
	}

	result := &Result{}
	if len(toDelete) > 0 {
		if _, err := s.relStore.DeleteFilesBatch(ctx, toDelete); err != nil {
			return nil, fmt.Errorf("delete files: %w", err)
		}
		if err := s.vecStore.DeleteFilesBatch(ctx, toDelete); err != nil {
			return nil, fmt.Errorf("delete vectors: %w", err)
		}
		result.FilesDeleted = len(toDelete)
	}

	for batchStart := 0; batchStart < len(toIndex); batchStart += s.config.BatchSize {
		end := batchStart + s.config.BatchSize
		if end > len(toIndex) {
			end = len(toIndex)
		}
		counts, err := s.processBatch(ctx, toIndex[batchStart:end])
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
	if len(toIndex) > 0 {
		if err := s.vecStore.RebuildFTSIndex(ctx); err != nil {
			return nil, fmt.Errorf("rebuild fts index: %w", err)
		}
	}
	result.FilesUpdated = len(toIndex)

	if result.FilesDeleted > 0 || result.FilesUpdated > 0 {
		if err := s.relStore.UpdateReferenceCounts(ctx, s.ws.ID); err != nil {
			return nil, fmt.Errorf("update reference counts: %w", err)
		}
		if s.reach != nil {
			if err := s.reach.Refresh(ctx, s.ws.ID); err != nil {
				return result, fmt.Errorf("refresh reachability: %w", err)
			}
		}
	}

	return result, nil
}

// dedupeEvents collapses a burst of events per path to a single effective
// operation, with DELETE always winning regardless of arrival order (a
// create-then-delete and a delete-then-create within one debounce window
// both end up deleted).
func dedupeEvents(events []watcher.FileEvent) map[string]watcher.Operation {
	out := make(map[string]watcher.Operation, len(events))
	for _, ev := range events {
		if ev.IsDir {
			continue
		}
		if existing, ok := out[ev.Path]; ok && existing == watcher.OpDelete {
			continue
		}
		out[ev.Path] = ev.Operation
	}
	return out
}
