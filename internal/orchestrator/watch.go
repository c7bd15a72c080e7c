package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/kodewright/miller/internal/store"
	"github.com/kodewright/miller/internal/watcher"
)

// watchedWorkspace pairs a running HybridWatcher with the cancellation
// needed to stop its event-pumping goroutine.
type watchedWorkspace struct {
	w      *watcher.HybridWatcher
	cancel context.CancelFunc
	done   chan struct{}
}

func (ww *watchedWorkspace) stop() {
	ww.cancel()
	_ = ww.w.Stop()
	<-ww.done
}

// startWatching builds a HybridWatcher rooted at ws.RootPath and pumps its
// batched Events()/Errors() channels into the Scanner's OnFilesChanged,
// the same atomic batch path IndexWorkspace uses.
func (o *Orchestrator) startWatching(ctx context.Context, ws *store.Workspace) error {
	o.mu.Lock()
	if _, exists := o.watchers[ws.ID]; exists {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	hw, err := watcher.NewHybridWatcher(watcher.Options{DebounceWindow: o.cfg.WatchDebounce})
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	if err := hw.Start(watchCtx, ws.RootPath); err != nil {
		cancel()
		return err
	}

	ww := &watchedWorkspace{w: hw, cancel: cancel, done: make(chan struct{})}
	o.mu.Lock()
	o.watchers[ws.ID] = ww
	o.mu.Unlock()

	go o.pumpWatcher(watchCtx, ws.ID, hw, ww.done)
	return nil
}

func (o *Orchestrator) stopWatching(workspaceID string) {
	o.mu.Lock()
	ww, ok := o.watchers[workspaceID]
	if ok {
		delete(o.watchers, workspaceID)
	}
	o.mu.Unlock()
	if ok {
		ww.stop()
	}
}

// pumpWatcher forwards debounced event batches to the workspace's Scanner
// and watcher-level errors to structured logging, until its channels close.
func (o *Orchestrator) pumpWatcher(ctx context.Context, workspaceID string, hw *watcher.HybridWatcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-hw.Events():
			if !ok {
				return
			}
			o.handleWatchBatch(ctx, workspaceID, events)
		case err, ok := <-hw.Errors():
			if !ok {
				return
			}
			o.log.Warn("watch_error", slog.String("workspace_id", workspaceID), slog.String("error", err.Error()))
		}
	}
}

func (o *Orchestrator) handleWatchBatch(ctx context.Context, workspaceID string, events []watcher.FileEvent) {
	ws, ok := o.registry.Get(workspaceID)
	if !ok {
		return
	}

	if needsReload(events) {
		o.mu.Lock()
		delete(o.matchers, workspaceID)
		o.mu.Unlock()
	}

	lock := o.lockFor(workspaceID)
	lock.Lock()
	scanner, err := o.scannerFor(ws)
	if err != nil {
		lock.Unlock()
		o.log.Warn("watch_scanner_build_failed", slog.String("workspace_id", workspaceID), slog.String("error", err.Error()))
		return
	}

	indexCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	result, err := scanner.OnFilesChanged(indexCtx, events)
	cancel()
	lock.Unlock()

	if err != nil {
		o.log.Warn("watch_index_failed", slog.String("workspace_id", workspaceID), slog.String("error", err.Error()))
		return
	}
	if result.FilesUpdated > 0 || result.FilesDeleted > 0 {
		fileCount, symbolCount, statErr := o.WorkspaceStats(ctx, workspaceID)
		if statErr == nil {
			_ = o.registry.MarkIndexed(workspaceID, time.Now().UTC(), fileCount, symbolCount)
		}
	}
}

// needsReload reports whether a batch contains a .gitignore/.millerignore
// or config change, which invalidates the cached ignore matcher.
func needsReload(events []watcher.FileEvent) bool {
	for _, ev := range events {
		if ev.Operation == watcher.OpGitignoreChange || ev.Operation == watcher.OpConfigChange {
			return true
		}
	}
	return false
}
