// Package trace implements the Trace Engine: a cross-language
// call-path tree built by bounded BFS/DFS over relationships, falling
// back to unresolved identifiers and vector-assisted discovery when the
// relational graph alone comes up short.
package trace

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kodewright/miller/internal/naming"
	"github.com/kodewright/miller/internal/store"
)

// Direction selects which edges a trace follows.
type Direction string

const (
	Upstream   Direction = "upstream"
	Downstream Direction = "downstream"
	Both       Direction = "both"
)

// MatchType records why a related symbol was considered connected to its
// parent in the trace.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchVariant  MatchType = "variant"
	MatchSemantic MatchType = "semantic"
)

// semanticMatchThreshold is the cosine floor for a semantic match_type and
// for vector-assisted cross-language discovery.
const semanticMatchThreshold = 0.7

// minMatchesBeforeVectorAssist triggers vector-assisted discovery when a
// node's exact/variant matches fall below this count.
const minMatchesBeforeVectorAssist = 5

// Embedder turns text into a vector, used both for live cosine comparison
// between two symbols' searchable text and to drive vector-assisted
// cross-language discovery.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options controls one Trace call.
type Options struct {
	SymbolName     string
	Direction      Direction
	MaxDepth       int
	ContextFile    string
	EnableSemantic bool
	Format         string // "json" or "tree"
}

func (o Options) withDefaults() Options {
	if o.Direction == "" {
		o.Direction = Both
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 10
	}
	if o.MaxDepth > 10 {
		o.MaxDepth = 10
	}
	return o
}

// Node is one entry in the trace tree.
type Node struct {
	SymbolID          string
	Name              string
	Kind              string
	Language          string
	FilePath          string
	StartLine         int
	RelationshipKind  string // "" at the root
	MatchType         MatchType
	Confidence        float64
	Children          []*Node
}

// TracePath is the full result of one Trace call.
type TracePath struct {
	Root              *Node
	TotalMatches      int // candidates for the starting symbol name
	TotalNodes        int
	MaxDepthReached   int
	Truncated         bool
	LanguagesFound    []string
	MatchTypeCounts   map[string]int
	RelationshipKinds map[string]int
	NodesVisited      int
	CyclesDetected    int
	ExecutionTime     time.Duration
}

// Engine builds trace trees over one workspace's relational/vector stores.
type Engine struct {
	rel      store.RelationalStore
	vec      store.VectorStore
	embedder Embedder
}

func New(rel store.RelationalStore, vec store.VectorStore, embedder Embedder) *Engine {
	return &Engine{rel: rel, vec: vec, embedder: embedder}
}

// Trace builds the call-path tree rooted at the first symbol matching
// opts.SymbolName.
func (e *Engine) Trace(ctx context.Context, workspaceID string, opts Options) (*TracePath, error) {
	started := time.Now()
	opts = opts.withDefaults()

	candidates, err := e.rel.GetSymbolByName(ctx, workspaceID, opts.SymbolName)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", opts.SymbolName, err)
	}
	if opts.ContextFile != "" {
		var narrowed []*store.Symbol
		for _, c := range candidates {
			if strings.HasSuffix(c.FilePath, opts.ContextFile) {
				narrowed = append(narrowed, c)
			}
		}
		if len(narrowed) > 0 {
			candidates = narrowed
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no symbol named %q found", opts.SymbolName)
	}
	root := candidates[0]

	tp := &TracePath{
		TotalMatches:      len(candidates),
		MatchTypeCounts:   make(map[string]int),
		RelationshipKinds: make(map[string]int),
	}
	languages := make(map[string]bool)

	rootNode := &Node{
		SymbolID: root.ID, Name: root.Name, Kind: string(root.Kind),
		Language: root.Language, FilePath: root.FilePath, StartLine: root.StartLine,
		MatchType: MatchExact, Confidence: 1.0,
	}
	tp.TotalNodes = 1
	tp.NodesVisited = 1
	languages[root.Language] = true

	visited := map[string]bool{root.ID: true}
	e.buildNode(ctx, workspaceID, rootNode, root, opts, 0, visited, tp, languages)

	tp.LanguagesFound = sortedKeys(languages)
	tp.ExecutionTime = time.Since(started)
	tp.Root = rootNode
	return tp, nil
}

// buildNode recurses depth-first: a copy of visited is carried
// per path so diamond patterns (two branches reconverging on one symbol)
// aren't falsely truncated as cycles.
func (e *Engine) buildNode(ctx context.Context, workspaceID string, node *Node, sym *store.Symbol, opts Options, depth int, visited map[string]bool, tp *TracePath, languages map[string]bool) {
	if depth >= opts.MaxDepth {
		tp.Truncated = true
		if depth > tp.MaxDepthReached {
			tp.MaxDepthReached = depth
		}
		return
	}

	related := e.findRelated(ctx, workspaceID, sym, opts)
	for _, r := range related {
		if visited[r.symbol.ID] {
			tp.CyclesDetected++
			continue
		}
		childVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			childVisited[k] = true
		}
		childVisited[r.symbol.ID] = true

		child := &Node{
			SymbolID: r.symbol.ID, Name: r.symbol.Name, Kind: string(r.symbol.Kind),
			Language: r.symbol.Language, FilePath: r.symbol.FilePath, StartLine: r.symbol.StartLine,
			RelationshipKind: normalizeKind(r.kind), MatchType: r.matchType, Confidence: r.confidence,
		}
		node.Children = append(node.Children, child)
		tp.TotalNodes++
		tp.NodesVisited++
		tp.MatchTypeCounts[string(r.matchType)]++
		tp.RelationshipKinds[child.RelationshipKind]++
		languages[r.symbol.Language] = true
		if depth+1 > tp.MaxDepthReached {
			tp.MaxDepthReached = depth + 1
		}

		e.buildNode(ctx, workspaceID, child, r.symbol, opts, depth+1, childVisited, tp, languages)
	}
}

type related struct {
	symbol     *store.Symbol
	kind       store.RelationshipKind
	matchType  MatchType
	confidence float64
}

// findRelated gathers all related edges: relationship edges,
// name-comparison classification, the upstream identifier fallback, and
// vector-assisted cross-language discovery.
func (e *Engine) findRelated(ctx context.Context, workspaceID string, sym *store.Symbol, opts Options) []related {
	var out []related

	if opts.Direction == Downstream || opts.Direction == Both {
		rels, err := e.rel.GetRelationshipsFrom(ctx, sym.ID)
		if err == nil {
			for _, r := range rels {
				target, err := e.rel.GetSymbolByID(ctx, r.ToSymbolID)
				if err != nil || target == nil {
					continue
				}
				out = append(out, e.classify(ctx, sym, target, r.Kind))
			}
		}
	}

	if opts.Direction == Upstream || opts.Direction == Both {
		rels, err := e.rel.GetRelationshipsTo(ctx, sym.ID)
		upstreamFound := 0
		if err == nil {
			for _, r := range rels {
				source, err := e.rel.GetSymbolByID(ctx, r.FromSymbolID)
				if err != nil || source == nil {
					continue
				}
				out = append(out, e.classify(ctx, sym, source, r.Kind))
				upstreamFound++
			}
		}
		if upstreamFound == 0 {
			out = append(out, e.upstreamIdentifierFallback(ctx, workspaceID, sym)...)
		}
	}

	if opts.EnableSemantic {
		exactVariant := 0
		for _, r := range out {
			if r.matchType == MatchExact || r.matchType == MatchVariant {
				exactVariant++
			}
		}
		if exactVariant < minMatchesBeforeVectorAssist {
			out = append(out, e.vectorAssistedDiscovery(ctx, sym)...)
		}
	}

	return out
}

// classify implements the name-comparison rule:
// exact name match, else a naming-variant match, else (when semantic is
// viable) cosine similarity over freshly-embedded searchable text, else
// exact by default.
func (e *Engine) classify(ctx context.Context, from, to *store.Symbol, kind store.RelationshipKind) related {
	if from.Name == to.Name {
		return related{symbol: to, kind: kind, matchType: MatchExact, confidence: 1.0}
	}
	if _, ok := naming.Match(from.Name, to.Name); ok {
		return related{symbol: to, kind: kind, matchType: MatchVariant, confidence: 0.9}
	}
	if e.embedder != nil {
		if sim, ok := e.cosineBetween(ctx, searchableText(from), searchableText(to)); ok && sim >= semanticMatchThreshold {
			return related{symbol: to, kind: kind, matchType: MatchSemantic, confidence: sim}
		}
	}
	return related{symbol: to, kind: kind, matchType: MatchExact, confidence: 0.5}
}

// upstreamIdentifierFallback recovers calls the extractor couldn't resolve
// at index time: identifiers whose name or target matches sym, grouped by
// containing symbol.
func (e *Engine) upstreamIdentifierFallback(ctx context.Context, workspaceID string, sym *store.Symbol) []related {
	byContaining := make(map[string]bool)

	byTarget, err := e.rel.GetIdentifiersByTarget(ctx, sym.ID)
	if err == nil {
		for _, id := range byTarget {
			if id.ContainingSymbolID != "" {
				byContaining[id.ContainingSymbolID] = true
			}
		}
	}
	byName, err := e.rel.GetIdentifiersByName(ctx, workspaceID, sym.Name)
	if err == nil {
		for _, id := range byName {
			if id.ContainingSymbolID != "" {
				byContaining[id.ContainingSymbolID] = true
			}
		}
	}

	var out []related
	for containingID := range byContaining {
		containing, err := e.rel.GetSymbolByID(ctx, containingID)
		if err != nil || containing == nil || containing.ID == sym.ID {
			continue
		}
		out = append(out, related{symbol: containing, kind: store.RelCall, matchType: MatchExact, confidence: 1.0})
	}
	return out
}

// vectorAssistedDiscovery runs a semantic search against the vector store
// with sym's searchable text, restricted to other languages, and returns
// high-confidence matches as synthetic Call edges.
func (e *Engine) vectorAssistedDiscovery(ctx context.Context, sym *store.Symbol) []related {
	if e.embedder == nil || e.vec == nil {
		return nil
	}
	vecs, err := e.embedder.Embed(ctx, []string{searchableText(sym)})
	if err != nil || len(vecs) != 1 {
		return nil
	}
	results, err := e.vec.Search(ctx, "", vecs[0], store.MethodSemantic, 25)
	if err != nil {
		return nil
	}
	var out []related
	for _, r := range results {
		if r.Score < semanticMatchThreshold || r.ID == sym.ID {
			continue
		}
		candidate, err := e.rel.GetSymbolByID(ctx, r.ID)
		if err != nil || candidate == nil || candidate.Language == sym.Language {
			continue
		}
		out = append(out, related{symbol: candidate, kind: store.RelCall, matchType: MatchSemantic, confidence: r.Score})
	}
	return out
}

func (e *Engine) cosineBetween(ctx context.Context, a, b string) (float64, bool) {
	vecs, err := e.embedder.Embed(ctx, []string{a, b})
	if err != nil || len(vecs) != 2 {
		return 0, false
	}
	return cosine(vecs[0], vecs[1]), true
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func searchableText(s *store.Symbol) string {
	return strings.Join([]string{s.Name, s.Signature, s.DocComment}, " ")
}

// normalizeKind title-cases a relationship kind, singular.
func normalizeKind(k store.RelationshipKind) string {
	s := string(k)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
