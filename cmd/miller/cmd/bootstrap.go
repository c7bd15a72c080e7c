package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kodewright/miller/internal/config"
	"github.com/kodewright/miller/internal/embed"
	"github.com/kodewright/miller/internal/orchestrator"
	"github.com/kodewright/miller/internal/reachability"
	"github.com/kodewright/miller/internal/scan"
	"github.com/kodewright/miller/internal/store"
)

// engine bundles everything a CLI command needs to talk to one workspace:
// the resolved config, the embedding adapter, the orchestrator driving the
// shared stores, and the primary workspace registered at its root.
type engine struct {
	cfg     *config.Config
	embed   *embed.Adapter
	orch    *orchestrator.Orchestrator
	primary *store.Workspace
}

// bootstrap resolves config for root, opens (or registers) the primary
// workspace, and wires the Embedding Adapter into a fresh Orchestrator. The
// caller owns the returned engine and must call engine.Close() when done.
func bootstrap(ctx context.Context, root string, offline bool) (*engine, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if offline {
		cfg.Embeddings.OfflineOnly = true
	}

	embAdapter, err := embed.NewAdapter(ctx, cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	dataDir := cfg.Workspace.StateDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(root, dataDir)
	}

	orchCfg := orchestrator.Config{
		DataDir:        dataDir,
		RelationalPath: cfg.Relational.Path,
		VectorPath:     cfg.Vector.Path,
		VectorStoreConfig: store.VectorStoreConfig{
			Dimensions:     cfg.Embeddings.Dimensions,
			Metric:         "cos",
			M:              cfg.Vector.HNSWM,
			EfConstruction: cfg.Vector.HNSWEfConstruction,
			EfSearch:       cfg.Vector.HNSWEfSearch,
			RRFConstant:    cfg.Search.RRFConstant,
		},
		Reachability: reachability.Config{MaxDepth: cfg.Reachability.MaxDepth},
		Scan: scan.Config{
			BatchSize:   cfg.Indexing.FlushFiles,
			MaxFileSize: cfg.Ignore.MaxFileSizeBytes,
			Concurrency: cfg.Indexing.Workers,
		},
		WatchEnabled:  cfg.Watch.Enabled,
		WatchDebounce: cfg.Watch.Debounce,
	}

	orch, err := orchestrator.New(orchCfg, embAdapter, slog.Default())
	if err != nil {
		_ = embAdapter.Close()
		return nil, fmt.Errorf("start orchestrator: %w", err)
	}

	primary, err := findOrRegisterPrimary(ctx, orch, root)
	if err != nil {
		_ = orch.Close()
		_ = embAdapter.Close()
		return nil, err
	}

	return &engine{cfg: cfg, embed: embAdapter, orch: orch, primary: primary}, nil
}

// findOrRegisterPrimary returns the workspace already registered at root,
// or registers a new primary workspace there if none exists yet.
func findOrRegisterPrimary(ctx context.Context, orch *orchestrator.Orchestrator, root string) (*store.Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	for _, ws := range orch.ListWorkspaces() {
		if ws.RootPath == abs && ws.Type == store.WorkspaceTypePrimary {
			return ws, nil
		}
	}
	ws, err := orch.AddWorkspace(ctx, abs, filepath.Base(abs), store.WorkspaceTypePrimary)
	if err != nil {
		return nil, fmt.Errorf("register workspace: %w", err)
	}
	return ws, nil
}

// resolveRoot defaults an empty root to the enclosing project root found
// from the current directory.
func resolveRoot(root string) (string, error) {
	if root != "" {
		return root, nil
	}
	return config.FindProjectRoot(".")
}

// Close releases the orchestrator and embedder in the right order.
func (e *engine) Close() error {
	var firstErr error
	if err := e.orch.Close(); err != nil {
		firstErr = err
	}
	if err := e.embed.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
