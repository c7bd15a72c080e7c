// Package reachability computes and serves the materialized transitive
// closure over the call/reference graph: bounded BFS from
// every symbol that has outbound relationships, persisted as
// (source_id, target_id, min_distance) rows in the Relational Store.
package reachability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kodewright/miller/internal/store"
)

// DefaultMaxDepth bounds BFS expansion so a densely connected codebase
// can't make closure computation unbounded.
const DefaultMaxDepth = 10

// Config tunes the engine; zero-value Config uses DefaultMaxDepth and a
// worker count of 4.
type Config struct {
	MaxDepth int
	Workers  int
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// Engine computes and queries reachability over a RelationalStore.
type Engine struct {
	store  store.RelationalStore
	config Config
}

func New(s store.RelationalStore, cfg Config) *Engine {
	return &Engine{store: s, config: cfg.withDefaults()}
}

// ShouldComputeClosure reports whether a refresh is worth running at all:
// skip when there are no relationships yet (fresh/empty workspace).
func (e *Engine) ShouldComputeClosure(ctx context.Context, workspaceID string) (bool, error) {
	for _, kind := range []store.RelationshipKind{store.RelCall, store.RelExtends, store.RelImplements, store.RelReference} {
		rels, err := e.store.GetRelationshipsByKind(ctx, workspaceID, kind)
		if err != nil {
			return false, err
		}
		if len(rels) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// IsStale reports whether the materialized closure predates the newest
// relationship, meaning edges were added/changed since the last refresh.
func (e *Engine) IsStale(ctx context.Context) (bool, error) {
	_, maxRel, err := e.store.ReachabilityStats(ctx)
	if err != nil {
		return true, err
	}
	refreshedAt, err := e.store.MaxReachabilityTimestamp(ctx)
	if err != nil {
		return true, err
	}
	if refreshedAt.IsZero() {
		return true, nil
	}
	return maxRel.After(refreshedAt), nil
}

// Refresh recomputes the full transitive closure for workspaceID: a
// bounded BFS per source symbol, run across a worker pool
// (golang.org/x/sync/errgroup), replacing the prior closure atomically
// from the caller's point of view.
func (e *Engine) Refresh(ctx context.Context, workspaceID string) error {
	// Build adjacency once; BFS then walks the in-memory graph rather than
	// re-querying the store per hop.
	adjacency := make(map[string][]string)
	sourceSet := make(map[string]bool)
	for _, kind := range []store.RelationshipKind{store.RelCall, store.RelExtends, store.RelImplements, store.RelReference} {
		rels, err := e.store.GetRelationshipsByKind(ctx, workspaceID, kind)
		if err != nil {
			return fmt.Errorf("load %s edges: %w", kind, err)
		}
		for _, r := range rels {
			adjacency[r.FromSymbolID] = append(adjacency[r.FromSymbolID], r.ToSymbolID)
			sourceSet[r.FromSymbolID] = true
		}
	}

	if err := e.store.ClearReachability(ctx); err != nil {
		return fmt.Errorf("clear reachability: %w", err)
	}

	sourceIDs := make([]string, 0, len(sourceSet))
	for id := range sourceSet {
		sourceIDs = append(sourceIDs, id)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	rowsCh := make(chan []*store.ReachabilityRow, e.config.Workers*2)

	for _, src := range sourceIDs {
		src := src
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			rows := bfs(src, adjacency, e.config.MaxDepth)
			if len(rows) > 0 {
				select {
				case rowsCh <- rows:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait(); close(rowsCh) }()

	var total int
	for rows := range rowsCh {
		if err := e.store.AddReachabilityBatch(ctx, rows); err != nil {
			return fmt.Errorf("persist reachability batch: %w", err)
		}
		total += len(rows)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("reachability bfs: %w", err)
	}

	if err := e.store.SetState(ctx, "reachability_refreshed_at", time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record refresh timestamp: %w", err)
	}
	slog.Info("reachability_refreshed",
		slog.String("workspace_id", workspaceID),
		slog.Int("sources", len(sourceIDs)),
		slog.Int("rows", total))
	return nil
}

// bfs computes shortest hop-count from src to every reachable node within
// maxDepth, excluding src itself.
func bfs(src string, adjacency map[string][]string, maxDepth int) []*store.ReachabilityRow {
	visited := map[string]int{src: 0}
	queue := []string{src}
	var rows []*store.ReachabilityRow

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		dist := visited[cur]
		if dist >= maxDepth {
			continue
		}
		for _, next := range adjacency[cur] {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = dist + 1
			rows = append(rows, &store.ReachabilityRow{SourceID: src, TargetID: next, MinDistance: dist + 1})
			queue = append(queue, next)
		}
	}
	return rows
}

// CanReach reports whether source can reach target within maxDistance hops
// (0 = unbounded, subject to the materialized MaxDepth ceiling).
func (e *Engine) CanReach(ctx context.Context, sourceID, targetID string, maxDistance int) (bool, int, error) {
	rows, err := e.store.GetReachabilityFromSource(ctx, sourceID, maxDistance)
	if err != nil {
		return false, 0, err
	}
	for _, r := range rows {
		if r.TargetID == targetID {
			return true, r.MinDistance, nil
		}
	}
	return false, 0, nil
}

// Downstream returns everything sourceID can reach, nearest first.
func (e *Engine) Downstream(ctx context.Context, sourceID string, maxDistance int) ([]*store.ReachabilityRow, error) {
	return e.store.GetReachabilityFromSource(ctx, sourceID, maxDistance)
}

// Upstream returns everything that can reach targetID, nearest first.
func (e *Engine) Upstream(ctx context.Context, targetID string, maxDistance int) ([]*store.ReachabilityRow, error) {
	return e.store.GetReachabilityForTarget(ctx, targetID, maxDistance)
}
