package scan

import (
	"context"
	"fmt"
	"os"

	"github.com/kodewright/miller/internal/workspace"
)

// CheckIfIndexingNeeded must never return a false negative: if the engine
// would otherwise serve stale data, it returns true. The checks
// are cheap-to-expensive ordered: empty store, corrupted prior run, then a
// per-file mtime/membership scan.
func (s *Scanner) CheckIfIndexingNeeded(ctx context.Context) (bool, error) {
	fileCount, err := s.relStore.CountFiles(ctx, s.ws.ID)
	if err != nil {
		return false, fmt.Errorf("count files: %w", err)
	}
	if fileCount == 0 {
		return true, nil
	}

	symbolCount, err := s.relStore.CountSymbols(ctx, s.ws.ID)
	if err != nil {
		return false, fmt.Errorf("count symbols: %w", err)
	}
	if symbolCount == 0 {
		return true, nil // stored files but no symbols: an interrupted prior run
	}

	lastIndexed, err := s.relStore.GetFileLastIndexed(ctx, s.ws.ID)
	if err != nil {
		return false, fmt.Errorf("load last-indexed times: %w", err)
	}

	discovered, err := s.discover()
	if err != nil {
		return false, fmt.Errorf("discover: %w", err)
	}

	for _, f := range discovered {
		qp := workspace.QualifiedPath(s.ws.ID, f.relPath)
		storedAt, known := lastIndexed[qp]
		if !known {
			return true, nil
		}
		info, statErr := os.Stat(f.absPath)
		if statErr != nil {
			continue
		}
		if info.ModTime().After(storedAt) {
			return true, nil
		}
	}

	return false, nil
}
