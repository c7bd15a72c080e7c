package mcp

import (
	"context"
	"time"

	"github.com/kodewright/miller/internal/scan"
	"github.com/kodewright/miller/internal/store"
)

// fakeRelationalStore is a minimal in-memory store.RelationalStore good
// enough to exercise the MCP layer without a real SQLite file.
type fakeRelationalStore struct {
	symbolsByID   map[string]*store.Symbol
	symbolsByName map[string][]*store.Symbol
}

func newFakeRelationalStore() *fakeRelationalStore {
	return &fakeRelationalStore{
		symbolsByID:   map[string]*store.Symbol{},
		symbolsByName: map[string][]*store.Symbol{},
	}
}

func (f *fakeRelationalStore) addSymbol(s *store.Symbol) {
	f.symbolsByID[s.ID] = s
	f.symbolsByName[s.Name] = append(f.symbolsByName[s.Name], s)
}

func (f *fakeRelationalStore) AddFile(ctx context.Context, workspaceID string, fd store.FileDataTuple) error {
	return nil
}
func (f *fakeRelationalStore) DeleteFile(ctx context.Context, qualifiedPath string) error { return nil }
func (f *fakeRelationalStore) DeleteFilesBatch(ctx context.Context, qualifiedPaths []string) (int, error) {
	return 0, nil
}
func (f *fakeRelationalStore) AddSymbolsBatch(ctx context.Context, symbols []*store.Symbol, codeContext map[string]string) (int, error) {
	for _, s := range symbols {
		f.addSymbol(s)
	}
	return len(symbols), nil
}
func (f *fakeRelationalStore) AddIdentifiersBatch(ctx context.Context, identifiers []*store.Identifier) (int, error) {
	return len(identifiers), nil
}
func (f *fakeRelationalStore) AddRelationshipsBatch(ctx context.Context, relationships []*store.Relationship) (int, error) {
	return len(relationships), nil
}
func (f *fakeRelationalStore) GetSymbolByID(ctx context.Context, id string) (*store.Symbol, error) {
	return f.symbolsByID[id], nil
}
func (f *fakeRelationalStore) GetSymbolsByIDs(ctx context.Context, ids []string) ([]*store.Symbol, error) {
	out := make([]*store.Symbol, 0, len(ids))
	for _, id := range ids {
		if s, ok := f.symbolsByID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeRelationalStore) GetSymbolByName(ctx context.Context, workspaceID, name string) ([]*store.Symbol, error) {
	return f.symbolsByName[name], nil
}
func (f *fakeRelationalStore) GetSymbolByNameFold(ctx context.Context, workspaceID, name string) ([]*store.Symbol, error) {
	return f.symbolsByName[name], nil
}
func (f *fakeRelationalStore) GetSymbolsByNames(ctx context.Context, workspaceID string, names []string) ([]*store.Symbol, error) {
	var out []*store.Symbol
	for _, n := range names {
		out = append(out, f.symbolsByName[n]...)
	}
	return out, nil
}
func (f *fakeRelationalStore) GetSymbolsByFile(ctx context.Context, qualifiedPath string) ([]*store.Symbol, error) {
	return nil, nil
}
func (f *fakeRelationalStore) GetIdentifiersByTarget(ctx context.Context, targetSymbolID string) ([]*store.Identifier, error) {
	return nil, nil
}
func (f *fakeRelationalStore) GetIdentifiersByName(ctx context.Context, workspaceID, name string) ([]*store.Identifier, error) {
	return nil, nil
}
func (f *fakeRelationalStore) GetRelationshipsFrom(ctx context.Context, symbolID string) ([]*store.Relationship, error) {
	return nil, nil
}
func (f *fakeRelationalStore) GetRelationshipsTo(ctx context.Context, symbolID string) ([]*store.Relationship, error) {
	return nil, nil
}
func (f *fakeRelationalStore) GetRelationshipsByKind(ctx context.Context, workspaceID string, kind store.RelationshipKind) ([]*store.Relationship, error) {
	return nil, nil
}
func (f *fakeRelationalStore) AddReachabilityBatch(ctx context.Context, rows []*store.ReachabilityRow) error {
	return nil
}
func (f *fakeRelationalStore) ClearReachability(ctx context.Context) error { return nil }
func (f *fakeRelationalStore) GetReachabilityFromSource(ctx context.Context, sourceID string, maxDistance int) ([]*store.ReachabilityRow, error) {
	return nil, nil
}
func (f *fakeRelationalStore) GetReachabilityForTarget(ctx context.Context, targetID string, maxDistance int) ([]*store.ReachabilityRow, error) {
	return nil, nil
}
func (f *fakeRelationalStore) ReachabilityStats(ctx context.Context) (int, time.Time, error) {
	return 0, time.Time{}, nil
}
func (f *fakeRelationalStore) MaxReachabilityTimestamp(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}
func (f *fakeRelationalStore) IncrementalUpdateAtomic(ctx context.Context, filesToClean []string, files []store.FileDataTuple, workspaceID string,
	symbols []*store.Symbol, identifiers []*store.Identifier, relationships []*store.Relationship,
	codeContext map[string]string) (*store.IncrementalUpdateCounts, error) {
	for _, s := range symbols {
		f.addSymbol(s)
	}
	return &store.IncrementalUpdateCounts{SymbolsAdded: len(symbols)}, nil
}
func (f *fakeRelationalStore) UpdateReferenceCounts(ctx context.Context, workspaceID string) error {
	return nil
}
func (f *fakeRelationalStore) GetState(ctx context.Context, key string) (string, error) {
	return "", nil
}
func (f *fakeRelationalStore) SetState(ctx context.Context, key, value string) error { return nil }
func (f *fakeRelationalStore) ClearWorkspace(ctx context.Context, workspaceID string) error {
	return nil
}
func (f *fakeRelationalStore) CountFiles(ctx context.Context, workspaceID string) (int, error) {
	return 0, nil
}
func (f *fakeRelationalStore) CountSymbols(ctx context.Context, workspaceID string) (int, error) {
	return len(f.symbolsByID), nil
}
func (f *fakeRelationalStore) GetFileHashes(ctx context.Context, workspaceID string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeRelationalStore) GetFileLastIndexed(ctx context.Context, workspaceID string) (map[string]time.Time, error) {
	return nil, nil
}
func (f *fakeRelationalStore) Optimize(ctx context.Context) error { return nil }
func (f *fakeRelationalStore) Close() error                       { return nil }

var _ store.RelationalStore = (*fakeRelationalStore)(nil)

// fakeVectorStore is a minimal in-memory store.VectorStore.
type fakeVectorStore struct {
	results []store.SearchResult
	searchErr error
}

func (f *fakeVectorStore) AddSymbols(ctx context.Context, rows []store.VectorRow) error { return nil }
func (f *fakeVectorStore) DeleteFilesBatch(ctx context.Context, qualifiedPaths []string) error {
	return nil
}
func (f *fakeVectorStore) UpdateFileSymbols(ctx context.Context, qualifiedPath string, rows []store.VectorRow) error {
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, query string, queryVector []float32, method store.SearchMethod, limit int) ([]store.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit > 0 && limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}
func (f *fakeVectorStore) ClearWorkspace(ctx context.Context, workspaceID string) error { return nil }
func (f *fakeVectorStore) RebuildFTSIndex(ctx context.Context) error                    { return nil }
func (f *fakeVectorStore) Count() int                                                   { return len(f.results) }
func (f *fakeVectorStore) Close() error                                                 { return nil }

var _ store.VectorStore = (*fakeVectorStore)(nil)

// fakeEmbedder satisfies Embedder without a real model.
type fakeEmbedder struct {
	available bool
	dims      int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.Dimensions())
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int { if f.dims == 0 { return 384 }; return f.dims }
func (f *fakeEmbedder) ModelName() string               { return "fake-embedder" }
func (f *fakeEmbedder) Available(ctx context.Context) bool { return f.available }

var _ Embedder = (*fakeEmbedder)(nil)

// fakeWorkspaceManager implements WorkspaceManager for tests.
type fakeWorkspaceManager struct {
	workspaces map[string]*store.Workspace
	indexResult  *scan.Result
	indexErr     error
	healthReport HealthReport
	removeErr    error
	cleanErr     error
	reindexed    []string
}

func newFakeWorkspaceManager(primary *store.Workspace) *fakeWorkspaceManager {
	return &fakeWorkspaceManager{
		workspaces: map[string]*store.Workspace{primary.ID: primary},
	}
}

func (f *fakeWorkspaceManager) ListWorkspaces() []*store.Workspace {
	out := make([]*store.Workspace, 0, len(f.workspaces))
	for _, ws := range f.workspaces {
		out = append(out, ws)
	}
	return out
}
func (f *fakeWorkspaceManager) GetWorkspace(workspaceID string) (*store.Workspace, bool) {
	ws, ok := f.workspaces[workspaceID]
	return ws, ok
}
func (f *fakeWorkspaceManager) WorkspaceStats(ctx context.Context, workspaceID string) (int, int, error) {
	return 10, 100, nil
}
func (f *fakeWorkspaceManager) AddWorkspace(ctx context.Context, rootPath, name string, wtype store.WorkspaceType) (*store.Workspace, error) {
	ws := &store.Workspace{ID: "ws_" + name, Name: name, RootPath: rootPath, Type: wtype}
	f.workspaces[ws.ID] = ws
	return ws, nil
}
func (f *fakeWorkspaceManager) RemoveWorkspace(ctx context.Context, workspaceID string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.workspaces, workspaceID)
	return nil
}
func (f *fakeWorkspaceManager) IndexWorkspace(ctx context.Context, workspaceID string) (*scan.Result, error) {
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	if f.indexResult != nil {
		return f.indexResult, nil
	}
	return &scan.Result{FilesIndexed: 5}, nil
}
func (f *fakeWorkspaceManager) RefreshWorkspace(ctx context.Context, workspaceID string) (*scan.Result, error) {
	return f.IndexWorkspace(ctx, workspaceID)
}
func (f *fakeWorkspaceManager) CleanWorkspace(ctx context.Context, workspaceID string) error {
	return f.cleanErr
}
func (f *fakeWorkspaceManager) ReindexFile(ctx context.Context, workspaceID, absPath string) error {
	f.reindexed = append(f.reindexed, absPath)
	return nil
}
func (f *fakeWorkspaceManager) Health(ctx context.Context) HealthReport {
	return f.healthReport
}

var _ WorkspaceManager = (*fakeWorkspaceManager)(nil)
