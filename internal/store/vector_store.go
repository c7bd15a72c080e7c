package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// defaultRRFConstant is used when VectorStoreConfig.RRFConstant is unset;
// "hybrid" is also a valid Vector Store search method in its own right,
// independent of the Search Pipeline's cross-store fusion, so it carries
// its own configurable constant rather than importing the config package.
const defaultRRFConstant = 60

// DualStore composes the three real on-disk indexes behind the single
// VectorStore contract: an HNSW graph for semantic
// nearest-neighbor search, a SQLite FTS5 table for tokenized text search,
// and a Bleve index for literal code-pattern search. "hybrid" fuses all
// available methods with reciprocal rank fusion.
type DualStore struct {
	mu          sync.RWMutex
	hnsw        *hnswIndex
	fts         *ftsIndex
	pattern     *patternIndex
	rows        map[string]VectorRow // symbol metadata kept for hydration-free lean results
	rrfConstant int
	closed      bool
}

// NewDualStore opens (or creates) the three underlying indexes rooted at
// basePath: "<basePath>.hnsw" metadata kept in memory, "<basePath>.fts.db",
// and "<basePath>.pattern.bleve". An empty basePath opens all three
// in-memory, used by tests.
func NewDualStore(basePath string, cfg VectorStoreConfig) (*DualStore, error) {
	var ftsPath, patternPath string
	if basePath != "" {
		ftsPath = basePath + ".fts.db"
		patternPath = basePath + ".pattern.bleve"
	}

	fts, err := newFTSIndex(ftsPath)
	if err != nil {
		return nil, fmt.Errorf("open fts index: %w", err)
	}
	pattern, err := newPatternIndex(patternPath)
	if err != nil {
		_ = fts.close()
		return nil, fmt.Errorf("open pattern index: %w", err)
	}

	rrf := cfg.RRFConstant
	if rrf <= 0 {
		rrf = defaultRRFConstant
	}
	return &DualStore{
		hnsw:        newHNSWIndex(cfg),
		fts:         fts,
		pattern:     pattern,
		rows:        make(map[string]VectorRow),
		rrfConstant: rrf,
	}, nil
}

func (d *DualStore) AddSymbols(ctx context.Context, rows []VectorRow) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rows))
	vectors := make([][]float32, 0, len(rows))
	for _, r := range rows {
		if len(r.Vector) > 0 {
			ids = append(ids, r.ID)
			vectors = append(vectors, r.Vector)
		}
	}
	if len(ids) > 0 {
		if err := d.hnsw.add(ids, vectors); err != nil {
			return fmt.Errorf("add to semantic index: %w", err)
		}
	}
	if err := d.fts.index(ctx, rows); err != nil {
		return fmt.Errorf("add to text index: %w", err)
	}
	if err := d.pattern.index(ctx, rows); err != nil {
		return fmt.Errorf("add to pattern index: %w", err)
	}

	d.mu.Lock()
	for _, r := range rows {
		d.rows[r.ID] = r
	}
	d.mu.Unlock()
	return nil
}

func (d *DualStore) UpdateFileSymbols(ctx context.Context, qualifiedPath string, rows []VectorRow) error {
	if err := d.DeleteFilesBatch(ctx, []string{qualifiedPath}); err != nil {
		return err
	}
	return d.AddSymbols(ctx, rows)
}

func (d *DualStore) DeleteFilesBatch(ctx context.Context, qualifiedPaths []string) error {
	if len(qualifiedPaths) == 0 {
		return nil
	}
	inPaths := make(map[string]bool, len(qualifiedPaths))
	for _, p := range qualifiedPaths {
		inPaths[p] = true
	}

	d.mu.Lock()
	var toDelete []string
	for id, r := range d.rows {
		if inPaths[r.FilePath] {
			toDelete = append(toDelete, id)
		}
	}
	for _, id := range toDelete {
		delete(d.rows, id)
	}
	d.mu.Unlock()

	if len(toDelete) == 0 {
		return nil
	}
	d.hnsw.delete(toDelete)
	if err := d.fts.delete(ctx, toDelete); err != nil {
		return fmt.Errorf("delete from text index: %w", err)
	}
	if err := d.pattern.delete(toDelete); err != nil {
		return fmt.Errorf("delete from pattern index: %w", err)
	}
	return nil
}

// Search dispatches on method. "auto" and "hybrid" both fuse every method
// that has inputs available (semantic when a query vector is supplied,
// text and pattern when the query is non-empty); "auto" returns a lone
// available list as-is instead of fusing it.
func (d *DualStore) Search(ctx context.Context, query string, queryVector []float32, method SearchMethod, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	switch method {
	case MethodText:
		return d.fts.search(ctx, query, limit)
	case MethodPattern:
		return d.pattern.search(ctx, query, limit)
	case MethodSemantic:
		if len(queryVector) == 0 {
			return nil, nil
		}
		return d.hnsw.search(queryVector, limit)
	case MethodHybrid, MethodAuto, "":
		return d.hybridSearch(ctx, query, queryVector, limit, method == MethodAuto)
	default:
		return nil, fmt.Errorf("unknown search method %q", method)
	}
}

// hybridSearch fuses up to three ranked lists with reciprocal rank fusion.
// In "auto" mode a single strong signal (a query vector and nothing else
// meaningful to fuse) degrades gracefully to plain semantic search rather
// than diluting it with an empty-query text pass.
func (d *DualStore) hybridSearch(ctx context.Context, query string, queryVector []float32, limit int, auto bool) ([]SearchResult, error) {
	fetchLimit := limit * 4
	if fetchLimit < 50 {
		fetchLimit = 50
	}

	var lists [][]SearchResult
	if len(queryVector) > 0 {
		sem, err := d.hnsw.search(queryVector, fetchLimit)
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
		if sem != nil {
			lists = append(lists, sem)
		}
	}
	if query != "" {
		text, err := d.fts.search(ctx, query, fetchLimit)
		if err != nil {
			return nil, fmt.Errorf("text search: %w", err)
		}
		if text != nil {
			lists = append(lists, text)
		}
		pat, err := d.pattern.search(ctx, query, fetchLimit)
		if err != nil {
			return nil, fmt.Errorf("pattern search: %w", err)
		}
		if pat != nil {
			lists = append(lists, pat)
		}
	}

	if auto && len(lists) == 1 {
		return truncate(lists[0], limit), nil
	}
	if len(lists) == 0 {
		return nil, nil
	}
	return truncate(fuseRRF(lists, d.rrfConstant), limit), nil
}

// fuseRRF combines ranked lists via reciprocal rank fusion: score(d) =
// sum over lists containing d of 1/(k+rank), rank 1-based.
func fuseRRF(lists [][]SearchResult, k int) []SearchResult {
	scores := make(map[string]float64)
	best := make(map[string]SearchResult)
	for _, list := range lists {
		for rank, r := range list {
			scores[r.ID] += 1.0 / float64(k+rank+1)
			if cur, ok := best[r.ID]; !ok || r.Score > cur.Score {
				best[r.ID] = r
			}
		}
	}
	out := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		r := best[id]
		r.Score = score
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func truncate(results []SearchResult, limit int) []SearchResult {
	if len(results) <= limit {
		return results
	}
	return results[:limit]
}

func (d *DualStore) ClearWorkspace(ctx context.Context, workspaceID string) error {
	d.mu.Lock()
	var toDelete []string
	for id, r := range d.rows {
		if r.WorkspaceID == workspaceID {
			toDelete = append(toDelete, id)
		}
	}
	d.mu.Unlock()
	if len(toDelete) == 0 {
		return nil
	}
	d.hnsw.delete(toDelete)
	if err := d.fts.delete(ctx, toDelete); err != nil {
		return err
	}
	if err := d.pattern.delete(toDelete); err != nil {
		return err
	}
	d.mu.Lock()
	for _, id := range toDelete {
		delete(d.rows, id)
	}
	d.mu.Unlock()
	return nil
}

func (d *DualStore) RebuildFTSIndex(ctx context.Context) error {
	return d.fts.rebuild(ctx)
}

func (d *DualStore) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows)
}

func (d *DualStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.hnsw.close()
	if err := d.fts.close(); err != nil {
		return err
	}
	return d.pattern.close()
}

// VectorStorePaths returns the on-disk paths a DualStore rooted at dataDir
// occupies, for diagnostics (doctor CLI, disk-usage reporting).
func VectorStorePaths(dataDir string) (fts, pattern string) {
	base := filepath.Join(dataDir, "vectors")
	return base + ".fts.db", base + ".pattern.bleve"
}

var _ VectorStore = (*DualStore)(nil)
