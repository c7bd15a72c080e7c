// Package search implements the Search Pipeline: a fixed
// sequence of stages over the Vector Store, Relational Store and
// Reachability Engine. Context expansion issues two reachability queries
// per hit (callers and callees) and one batched hydration query, so its
// query count grows with the number of hits.
package search

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/kodewright/miller/internal/reachability"
	"github.com/kodewright/miller/internal/store"
)

// patternChars triggers method auto-detection toward MethodPattern: any of
// these substrings in a query reads as a code pattern rather than prose.
var patternChars = []string{":", "<", ">", "[", "]", "(", ")", "{", "}", "?.", "=>", "&&", "||"}

// defaultSemanticFallbackThreshold is the max-score floor below which a
// text search is considered too weak and re-run as semantic, used when
// Config.SemanticFallbackThreshold is unset.
const defaultSemanticFallbackThreshold = 0.3

// defaultTabularAutoThreshold is the result count at which auto formatting
// switches from text to tabular, used when Config.TabularAutoThreshold is
// unset.
const defaultTabularAutoThreshold = 20

// defaultLimit is the result cap applied when Options.Limit and
// Config.DefaultLimit are both unset.
const defaultLimit = 20

// Config tunes pipeline-wide thresholds. The zero value is legal: every
// field falls back to a sensible default.
type Config struct {
	SemanticFallbackThreshold float64
	TabularAutoThreshold      int
	DefaultLimit              int
	MaxLimit                  int
}

func (c Config) withDefaults() Config {
	if c.SemanticFallbackThreshold <= 0 {
		c.SemanticFallbackThreshold = defaultSemanticFallbackThreshold
	}
	if c.TabularAutoThreshold <= 0 {
		c.TabularAutoThreshold = defaultTabularAutoThreshold
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = defaultLimit
	}
	return c
}

// Embedder turns query text into a vector for semantic/hybrid search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Stores bundles the three collaborators a Pipeline needs for one
// workspace. A StoreResolver hands these out per workspace id.
type Stores struct {
	Relational store.RelationalStore
	Vector     store.VectorStore
	Reach      *reachability.Engine
}

// StoreResolver opens (or looks up already-open) stores for a workspace
// other than the pipeline's primary one. Workspace
// lifecycle (opening/closing on-disk stores) belongs to the orchestrator
// that implements this, not to the pipeline itself.
type StoreResolver interface {
	Resolve(ctx context.Context, workspaceID string) (Stores, error)
}

// Pipeline executes a 9-stage search over one primary workspace,
// routing to others via resolver when asked.
type Pipeline struct {
	primaryID string
	primary   Stores
	embedder  Embedder
	resolver  StoreResolver
	reranker  Reranker
	cfg       Config
}

// New builds a Pipeline rooted at the primary workspace's stores. embedder
// and reranker may be nil (degraded but legal: no semantic search, rerank
// becomes a no-op pass-through). resolver may be nil if only the primary
// workspace will ever be queried.
func New(primaryID string, primary Stores, embedder Embedder, reranker Reranker, resolver StoreResolver) *Pipeline {
	return NewWithConfig(primaryID, primary, embedder, reranker, resolver, Config{})
}

// NewWithConfig is New with explicit threshold tuning.
func NewWithConfig(primaryID string, primary Stores, embedder Embedder, reranker Reranker, resolver StoreResolver, cfg Config) *Pipeline {
	if reranker == nil {
		reranker = &NoOpReranker{}
	}
	return &Pipeline{primaryID: primaryID, primary: primary, embedder: embedder, reranker: reranker, resolver: resolver, cfg: cfg.withDefaults()}
}

// Options controls one Search call.
type Options struct {
	Query       string
	Method      store.SearchMethod // "" = auto
	Limit       int
	Workspace   string // "" = primary
	Rerank      bool
	Expand      bool
	ExpandLimit int
	Language    string
	FilePattern string
	Format      string // "", "text", "structured", "tabular"
}

func (o Options) withDefaults(cfg Config) Options {
	if o.Limit <= 0 {
		o.Limit = cfg.DefaultLimit
	}
	if cfg.MaxLimit > 0 && o.Limit > cfg.MaxLimit {
		o.Limit = cfg.MaxLimit
	}
	if o.ExpandLimit <= 0 {
		o.ExpandLimit = 10
	}
	return o
}

// CallRef is a lean hydrated symbol attached as expansion context.
type CallRef struct {
	ID        string
	Name      string
	Kind      string
	FilePath  string
	StartLine int
}

// ExpansionContext carries one hop of caller/callee context.
type ExpansionContext struct {
	Callers      []CallRef
	Callees      []CallRef
	CallerCount  int
	CalleeCount  int
}

// Hit is one formatted search result.
type Hit struct {
	ID          string
	Name        string
	Kind        string
	Language    string
	FilePath    string
	Signature   string
	DocComment  string
	StartLine   int
	Score       float64
	CodeContext string
	Context     *ExpansionContext
}

// Result is the outcome of one Search call.
type Result struct {
	Hits    []Hit
	Method  store.SearchMethod // method actually executed, after auto-detect/fallback
	Notices []string           // user-visible annotations (e.g. semantic fallback)
	Text    string             // populated when Format resolves to "text" or "tabular"
}

// Search runs the full pipeline.
func (p *Pipeline) Search(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults(p.cfg)

	method := opts.Method
	if method == "" || method == store.MethodAuto {
		method = detectMethod(opts.Query)
	}

	stores := p.primary
	if opts.Workspace != "" && opts.Workspace != p.primaryID {
		if p.resolver == nil {
			return nil, fmt.Errorf("search: no resolver configured for workspace %q", opts.Workspace)
		}
		var err error
		stores, err = p.resolver.Resolve(ctx, opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("search: open workspace %q: %w", opts.Workspace, err)
		}
	}

	raw, notices, err := p.execute(ctx, stores, opts.Query, method, opts.Limit)
	if err != nil {
		return nil, err
	}

	hits, err := hydrate(ctx, stores.Relational, raw)
	if err != nil {
		return nil, fmt.Errorf("hydrate: %w", err)
	}

	if opts.Rerank && method != store.MethodPattern && len(hits) > 0 {
		hits, err = p.rerank(ctx, opts.Query, hits)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}

	hits = applyFilters(hits, opts.Language, opts.FilePattern)

	if method == store.MethodText && (len(hits) == 0 || maxScore(hits) < p.cfg.SemanticFallbackThreshold) {
		rawSem, _, err := p.execute(ctx, stores, opts.Query, store.MethodSemantic, opts.Limit)
		if err != nil {
			return nil, err
		}
		semHits, err := hydrate(ctx, stores.Relational, rawSem)
		if err != nil {
			return nil, fmt.Errorf("hydrate (semantic fallback): %w", err)
		}
		semHits = applyFilters(semHits, opts.Language, opts.FilePattern)
		hits = semHits
		method = store.MethodSemantic
		notices = append(notices, "text search returned weak results; fell back to semantic search")
	}

	if opts.Expand && len(hits) > 0 && stores.Reach != nil {
		if err := expand(ctx, stores, hits, opts.ExpandLimit); err != nil {
			return nil, fmt.Errorf("expand: %w", err)
		}
	}

	result := &Result{Hits: hits, Method: method, Notices: notices}
	format := opts.Format
	if format == "" {
		if len(hits) >= p.cfg.TabularAutoThreshold {
			format = "tabular"
		} else {
			format = "text"
		}
	}
	result.Text = Format(format, opts.Query, hits)
	return result, nil
}

// detectMethod picks a search method from the query's shape.
func detectMethod(query string) store.SearchMethod {
	if query == "" {
		return store.MethodHybrid
	}
	for _, c := range patternChars {
		if strings.Contains(query, c) {
			return store.MethodPattern
		}
	}
	return store.MethodHybrid
}

func (p *Pipeline) execute(ctx context.Context, stores Stores, query string, method store.SearchMethod, limit int) ([]store.SearchResult, []string, error) {
	var vector []float32
	if method == store.MethodSemantic || method == store.MethodHybrid {
		if p.embedder != nil && query != "" {
			vecs, err := p.embedder.Embed(ctx, []string{query})
			if err != nil {
				return nil, nil, fmt.Errorf("embed query: %w", err)
			}
			if len(vecs) == 1 {
				vector = vecs[0]
			}
		}
	}
	raw, err := stores.Vector.Search(ctx, query, vector, method, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("execute %s search: %w", method, err)
	}
	return raw, nil, nil
}

// hydrate loads full symbol rows in one batched WHERE id IN (...)
// query, preserving the search score rather than overwriting it.
func hydrate(ctx context.Context, rel store.RelationalStore, raw []store.SearchResult) ([]Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]string, len(raw))
	for i, r := range raw {
		ids[i] = r.ID
	}
	symbols, err := rel.GetSymbolsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Symbol, len(symbols))
	for _, s := range symbols {
		byID[s.ID] = s
	}

	hits := make([]Hit, len(raw))
	for i, r := range raw {
		h := Hit{ID: r.ID, Name: r.Name, Kind: r.Kind, Score: r.Score}
		if s, ok := byID[r.ID]; ok {
			h.Name = s.Name
			h.Kind = string(s.Kind)
			h.Language = s.Language
			h.FilePath = s.FilePath
			h.Signature = s.Signature
			h.DocComment = s.DocComment
			h.StartLine = s.StartLine
			h.CodeContext = s.CodeContext
		}
		hits[i] = h
	}
	return hits, nil
}

func (p *Pipeline) rerank(ctx context.Context, query string, hits []Hit) ([]Hit, error) {
	docs := make([]string, len(hits))
	for i, h := range hits {
		doc := h.Signature
		if doc == "" {
			doc = h.Name
		}
		if h.DocComment != "" {
			doc = h.DocComment + "\n" + doc
		}
		docs[i] = doc
	}
	ranked, err := p.reranker.Rerank(ctx, query, docs, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Hit, len(ranked))
	for i, r := range ranked {
		h := hits[r.Index]
		h.Score = r.Score
		out[i] = h
	}
	return out, nil
}

// applyFilters applies language equality
// (case-insensitive) and file_pattern glob match against the full path,
// falling back to a plain substring test for patterns with no glob chars.
func applyFilters(hits []Hit, language, filePattern string) []Hit {
	if language == "" && filePattern == "" {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		if language != "" && !strings.EqualFold(h.Language, language) {
			continue
		}
		if filePattern != "" && !matchFilePattern(filePattern, h.FilePath) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func matchFilePattern(pattern, filePath string) bool {
	if ok, err := path.Match(pattern, filePath); err == nil && ok {
		return true
	}
	return strings.Contains(filePath, pattern)
}

func maxScore(hits []Hit) float64 {
	max := 0.0
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	return max
}

// expand attaches one hop of context (callers and callees at
// min_distance=1). It issues one Upstream and one Downstream reachability
// query per hit, then one batched hydration of the unique caller/callee
// ids; the reachability lookups are not batched across hits.
func expand(ctx context.Context, stores Stores, hits []Hit, expandLimit int) error {
	callerIDs := make(map[string][]string) // hit id -> caller symbol ids
	calleeIDs := make(map[string][]string)
	uniqueIDs := make(map[string]bool)

	for i := range hits {
		id := hits[i].ID
		upstream, err := stores.Reach.Upstream(ctx, id, 1)
		if err != nil {
			return fmt.Errorf("upstream for %s: %w", id, err)
		}
		downstream, err := stores.Reach.Downstream(ctx, id, 1)
		if err != nil {
			return fmt.Errorf("downstream for %s: %w", id, err)
		}
		for _, r := range upstream {
			if r.MinDistance != 1 {
				continue
			}
			callerIDs[id] = append(callerIDs[id], r.SourceID)
			uniqueIDs[r.SourceID] = true
		}
		for _, r := range downstream {
			if r.MinDistance != 1 {
				continue
			}
			calleeIDs[id] = append(calleeIDs[id], r.TargetID)
			uniqueIDs[r.TargetID] = true
		}
	}

	if len(uniqueIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(uniqueIDs))
	for id := range uniqueIDs {
		ids = append(ids, id)
	}
	symbols, err := stores.Relational.GetSymbolsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("hydrate expansion symbols: %w", err)
	}
	byID := make(map[string]*store.Symbol, len(symbols))
	for _, s := range symbols {
		byID[s.ID] = s
	}

	toRefs := func(ids []string) []CallRef {
		if len(ids) > expandLimit {
			ids = ids[:expandLimit]
		}
		refs := make([]CallRef, 0, len(ids))
		for _, id := range ids {
			s, ok := byID[id]
			if !ok {
				continue
			}
			refs = append(refs, CallRef{ID: s.ID, Name: s.Name, Kind: string(s.Kind), FilePath: s.FilePath, StartLine: s.StartLine})
		}
		return refs
	}

	for i := range hits {
		callers := toRefs(callerIDs[hits[i].ID])
		callees := toRefs(calleeIDs[hits[i].ID])
		hits[i].Context = &ExpansionContext{
			Callers:     callers,
			Callees:     callees,
			CallerCount: len(callerIDs[hits[i].ID]),
			CalleeCount: len(calleeIDs[hits[i].ID]),
		}
	}
	return nil
}
