// Package orchestrator composes the Workspace Registry, the Workspace
// Scanner and the File Watcher into the single entry point the MCP server
// and CLI both drive: it is the concrete mcp.WorkspaceManager and
// search.StoreResolver for a miller process. It owns the one Relational
// Store and one Vector Store shared by every registered workspace
// (primary and reference alike, distinguished by qualified path) and the
// per-workspace ignore matchers and watchers layered on top of them.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	mmerrors "github.com/kodewright/miller/internal/errors"
	"github.com/kodewright/miller/internal/extract"
	"github.com/kodewright/miller/internal/ignore"
	"github.com/kodewright/miller/internal/mcp"
	"github.com/kodewright/miller/internal/reachability"
	"github.com/kodewright/miller/internal/scan"
	"github.com/kodewright/miller/internal/search"
	"github.com/kodewright/miller/internal/store"
	"github.com/kodewright/miller/internal/watcher"
	"github.com/kodewright/miller/internal/workspace"
)

// Config tunes the Orchestrator's shared stores and per-workspace scan
// behavior.
type Config struct {
	DataDir           string // holds registry.json and indexes/
	RelationalPath    string // relative to DataDir, "" for in-memory
	VectorPath        string // relative to DataDir, "" for in-memory
	VectorStoreConfig store.VectorStoreConfig
	Reachability      reachability.Config
	Scan              scan.Config
	WatchEnabled      bool
	WatchDebounce     time.Duration
}

// Orchestrator implements mcp.WorkspaceManager and search.StoreResolver
// over one shared Relational/Vector Store pair and a per-workspace file
// watcher.
type Orchestrator struct {
	cfg Config
	log *slog.Logger

	registry  *workspace.Registry
	relStore  store.RelationalStore
	vecStore  store.VectorStore
	reach     *reachability.Engine
	extractor *extract.Adapter
	embedder  mcp.Embedder // nil is legal: degraded, vectors come out zero

	mu        sync.Mutex
	matchers  map[string]*ignore.Matcher
	watchers  map[string]*watchedWorkspace
	indexLock map[string]*sync.Mutex // one lock per workspace id, never held across watcher I/O
	breakers  map[string]*mmerrors.CircuitBreaker
}

var (
	_ mcp.WorkspaceManager = (*Orchestrator)(nil)
	_ search.StoreResolver = (*Orchestrator)(nil)
)

// New opens the shared stores rooted at cfg.DataDir and returns a ready
// Orchestrator. A startup failure here is Fatal-class: the caller should
// refuse to signal MCP readiness.
func New(cfg Config, embedder mcp.Embedder, log *slog.Logger) (*Orchestrator, error) {
	if log == nil {
		log = slog.Default()
	}
	reg, err := workspace.Open(cfg.DataDir)
	if err != nil {
		return nil, mmerrors.FatalError("open workspace registry", err)
	}

	relPath := joinIfSet(cfg.DataDir, cfg.RelationalPath)
	rel, err := store.NewSQLiteStore(relPath)
	if err != nil {
		return nil, mmerrors.FatalError("open relational store", err)
	}

	vecPath := joinIfSet(cfg.DataDir, cfg.VectorPath)
	vec, err := store.NewDualStore(vecPath, cfg.VectorStoreConfig)
	if err != nil {
		_ = rel.Close()
		return nil, mmerrors.FatalError("open vector store", err)
	}

	return &Orchestrator{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		relStore:  rel,
		vecStore:  vec,
		reach:     reachability.New(rel, cfg.Reachability),
		extractor: extract.New(),
		embedder:  embedder,
		matchers:  make(map[string]*ignore.Matcher),
		watchers:  make(map[string]*watchedWorkspace),
		indexLock: make(map[string]*sync.Mutex),
		breakers:  make(map[string]*mmerrors.CircuitBreaker),
	}, nil
}

func joinIfSet(dir, rel string) string {
	if rel == "" {
		return ""
	}
	return filepath.Join(dir, rel)
}

// Close stops every running watcher and closes the shared stores. Safe to
// call once at shutdown after in-flight indexing has drained.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	for id, w := range o.watchers {
		w.stop()
		delete(o.watchers, id)
	}
	o.mu.Unlock()

	o.extractor.Close()
	var firstErr error
	if err := o.vecStore.Close(); err != nil {
		firstErr = err
	}
	if err := o.relStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (o *Orchestrator) ListWorkspaces() []*store.Workspace {
	return o.registry.List()
}

func (o *Orchestrator) GetWorkspace(workspaceID string) (*store.Workspace, bool) {
	return o.registry.Get(workspaceID)
}

// WorkspaceStats always queries the Relational Store live rather than
// trusting registry.json: stale registry counts must never be served.
func (o *Orchestrator) WorkspaceStats(ctx context.Context, workspaceID string) (int, int, error) {
	if _, ok := o.registry.Get(workspaceID); !ok {
		return 0, 0, mmerrors.ContractError(fmt.Sprintf("unknown workspace %q", workspaceID), nil)
	}
	files, err := o.relStore.CountFiles(ctx, workspaceID)
	if err != nil {
		return 0, 0, fmt.Errorf("count files: %w", err)
	}
	symbols, err := o.relStore.CountSymbols(ctx, workspaceID)
	if err != nil {
		return 0, 0, fmt.Errorf("count symbols: %w", err)
	}
	return files, symbols, nil
}

func (o *Orchestrator) AddWorkspace(ctx context.Context, rootPath, name string, wtype store.WorkspaceType) (*store.Workspace, error) {
	ws, err := o.registry.Add(rootPath, name, wtype)
	if err != nil {
		return nil, fmt.Errorf("register workspace: %w", err)
	}
	if o.cfg.WatchEnabled {
		if err := o.startWatching(ctx, ws); err != nil {
			o.log.Warn("watch_start_failed", slog.String("workspace_id", ws.ID), slog.String("error", err.Error()))
		}
	}
	return ws, nil
}

func (o *Orchestrator) RemoveWorkspace(ctx context.Context, workspaceID string) error {
	if _, ok := o.registry.Get(workspaceID); !ok {
		return mmerrors.ContractError(fmt.Sprintf("unknown workspace %q", workspaceID), nil)
	}
	o.stopWatching(workspaceID)

	if err := o.relStore.ClearWorkspace(ctx, workspaceID); err != nil {
		return fmt.Errorf("clear relational data: %w", err)
	}
	if err := o.vecStore.ClearWorkspace(ctx, workspaceID); err != nil {
		return fmt.Errorf("clear vector data: %w", err)
	}

	o.mu.Lock()
	delete(o.matchers, workspaceID)
	delete(o.breakers, workspaceID)
	o.mu.Unlock()

	return o.registry.Remove(workspaceID)
}

// IndexWorkspace always runs a full discover-and-reconcile pass, regardless
// of whether the staleness check thinks one is needed.
func (o *Orchestrator) IndexWorkspace(ctx context.Context, workspaceID string) (*scan.Result, error) {
	return o.runIndex(ctx, workspaceID, false)
}

// RefreshWorkspace only reindexes when CheckIfIndexingNeeded says the
// on-disk state has drifted from what's stored.
func (o *Orchestrator) RefreshWorkspace(ctx context.Context, workspaceID string) (*scan.Result, error) {
	return o.runIndex(ctx, workspaceID, true)
}

func (o *Orchestrator) runIndex(ctx context.Context, workspaceID string, onlyIfStale bool) (*scan.Result, error) {
	ws, ok := o.registry.Get(workspaceID)
	if !ok {
		return nil, mmerrors.ContractError(fmt.Sprintf("unknown workspace %q", workspaceID), nil)
	}

	lock := o.lockFor(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	breaker := o.breakerFor(workspaceID)
	if !breaker.Allow() {
		return nil, mmerrors.IntegrityError(fmt.Sprintf("workspace %q refusing writes after repeated integrity failures", workspaceID), nil)
	}

	scanner, err := o.scannerFor(ws)
	if err != nil {
		breaker.RecordFailure()
		return nil, err
	}

	if onlyIfStale {
		needed, err := scanner.CheckIfIndexingNeeded(ctx)
		if err != nil {
			breaker.RecordFailure()
			return nil, fmt.Errorf("check staleness: %w", err)
		}
		if !needed {
			return &scan.Result{}, nil
		}
	}

	result, err := scanner.IndexWorkspace(ctx)
	if err != nil {
		if mmerrors.GetClass(err) == mmerrors.ClassIntegrity {
			breaker.RecordFailure()
		}
		return nil, err
	}
	breaker.RecordSuccess()

	fileCount, symbolCount, statErr := o.WorkspaceStats(ctx, workspaceID)
	if statErr == nil {
		if err := o.registry.MarkIndexed(workspaceID, time.Now().UTC(), fileCount, symbolCount); err != nil {
			o.log.Warn("mark_indexed_failed", slog.String("workspace_id", workspaceID), slog.String("error", err.Error()))
		}
	}
	return result, nil
}

func (o *Orchestrator) CleanWorkspace(ctx context.Context, workspaceID string) error {
	if _, ok := o.registry.Get(workspaceID); !ok {
		return mmerrors.ContractError(fmt.Sprintf("unknown workspace %q", workspaceID), nil)
	}
	lock := o.lockFor(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	if err := o.relStore.ClearWorkspace(ctx, workspaceID); err != nil {
		return fmt.Errorf("clear relational data: %w", err)
	}
	if err := o.vecStore.ClearWorkspace(ctx, workspaceID); err != nil {
		return fmt.Errorf("clear vector data: %w", err)
	}
	return o.registry.MarkIndexed(workspaceID, time.Time{}, 0, 0)
}

// ReindexFile reindexes a single absolute path as a synthetic watcher
// event, the same path rename_symbol uses after rewriting a file.
func (o *Orchestrator) ReindexFile(ctx context.Context, workspaceID, absPath string) error {
	ws, ok := o.registry.Get(workspaceID)
	if !ok {
		return mmerrors.ContractError(fmt.Sprintf("unknown workspace %q", workspaceID), nil)
	}
	relPath, err := filepath.Rel(ws.RootPath, absPath)
	if err != nil {
		return fmt.Errorf("resolve relative path: %w", err)
	}

	lock := o.lockFor(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	scanner, err := o.scannerFor(ws)
	if err != nil {
		return err
	}
	_, err = scanner.OnFilesChanged(ctx, []watcher.FileEvent{{
		Path:      filepath.ToSlash(relPath),
		Operation: watcher.OpModify,
		Timestamp: time.Now(),
	}})
	return err
}

// Health reports degraded-but-serving conditions: a tripped circuit
// breaker, an unavailable embedder, a workspace whose live counts cannot be
// read, or one with indexed files but zero symbols. Registry counts are not
// compared with live counts.
func (o *Orchestrator) Health(ctx context.Context) mcp.HealthReport {
	workspaces := o.registry.List()
	report := mcp.HealthReport{Healthy: true, WorkspaceCount: len(workspaces)}

	if o.embedder != nil && !o.embedder.Available(ctx) {
		report.DegradedFeatures = append(report.DegradedFeatures, "semantic_search")
	}

	o.mu.Lock()
	for id, breaker := range o.breakers {
		if breaker.State() != mmerrors.StateClosed {
			report.Healthy = false
			report.Issues = append(report.Issues, fmt.Sprintf("workspace %q: writes suspended after integrity failures", id))
		}
	}
	o.mu.Unlock()

	for _, ws := range workspaces {
		files, symbols, err := o.WorkspaceStats(ctx, ws.ID)
		if err != nil {
			report.Healthy = false
			report.Issues = append(report.Issues, fmt.Sprintf("workspace %q: %v", ws.ID, err))
			continue
		}
		if files > 0 && symbols == 0 {
			report.Issues = append(report.Issues, fmt.Sprintf("workspace %q: files indexed but zero symbols, likely an interrupted run", ws.ID))
		}
	}
	return report
}

// Resolve implements search.StoreResolver: every workspace shares the same
// Relational and Vector Store, scoped by workspace id at query time, so
// resolution is just a registry membership check.
func (o *Orchestrator) Resolve(ctx context.Context, workspaceID string) (search.Stores, error) {
	if _, ok := o.registry.Get(workspaceID); !ok {
		return search.Stores{}, mmerrors.ContractError(fmt.Sprintf("unknown workspace %q", workspaceID), nil)
	}
	return search.Stores{Relational: o.relStore, Vector: o.vecStore, Reach: o.reach}, nil
}

func (o *Orchestrator) scannerFor(ws *store.Workspace) (*scan.Scanner, error) {
	matcher, err := o.matcherFor(ws)
	if err != nil {
		return nil, fmt.Errorf("build ignore matcher: %w", err)
	}
	return scan.New(ws, o.relStore, o.vecStore, o.extractor, o.embedder, o.reach, matcher, o.cfg.Scan), nil
}

func (o *Orchestrator) matcherFor(ws *store.Workspace) (*ignore.Matcher, error) {
	o.mu.Lock()
	if m, ok := o.matchers[ws.ID]; ok {
		o.mu.Unlock()
		return m, nil
	}
	o.mu.Unlock()

	m, err := ignore.Load(ws.RootPath)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.matchers[ws.ID] = m
	o.mu.Unlock()
	return m, nil
}

func (o *Orchestrator) lockFor(workspaceID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.indexLock[workspaceID]
	if !ok {
		l = &sync.Mutex{}
		o.indexLock[workspaceID] = l
	}
	return l
}

func (o *Orchestrator) breakerFor(workspaceID string) *mmerrors.CircuitBreaker {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.breakers[workspaceID]
	if !ok {
		b = mmerrors.NewCircuitBreaker(workspaceID, mmerrors.WithMaxFailures(3), mmerrors.WithResetTimeout(time.Minute))
		o.breakers[workspaceID] = b
	}
	return b
}
