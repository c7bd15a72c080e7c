package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kodewright/miller/internal/extract"
	"github.com/kodewright/miller/internal/naming"
	"github.com/kodewright/miller/internal/scanner"
	"github.com/kodewright/miller/internal/store"
)

// BodyMode controls how much of a symbol's body get_symbols attaches.
type BodyMode string

const (
	BodyNone     BodyMode = "minimal"
	BodyTopLevel BodyMode = "structure"
	BodyAll      BodyMode = "full"
)

// Usage-frequency and doc-quality tier thresholds.
const (
	usageLowFloor       = 5
	usageMediumFloor    = 20
	usageHighFloor      = 50
	docGoodFloor        = 50
	docExcellentFloor   = 200
	relatedSymbolsTopN  = 5
	pagerankDamping     = 0.85
	pagerankMaxIters    = 100
	entryPointInDegree  = 5
	entryPointOutDegree = 1

	importanceMediumFloor   = 0.25
	importanceHighFloor     = 0.5
	importanceCriticalFloor = 0.75
)

// SymbolInfo is one enriched entry in get_symbols' output.
type SymbolInfo struct {
	Symbol            *store.Symbol
	Body              string
	ReferenceCount    int
	UsageFrequency    string // none/low/medium/high/very_high
	DocQuality        string // poor/good/excellent
	RelatedSymbols    []*store.Symbol
	CrossLanguageHints []*store.Symbol
	ImportanceScore   float64
	ImportanceTier    string // low/medium/high/critical
	EntryPoint        bool
}

// GetSymbols parses filePath live (not from the index, so it always
// reflects current disk contents) and returns its symbols depth-filtered
// and enriched.
func (t *Tools) GetSymbols(ctx context.Context, workspaceID, filePath string, mode BodyMode, maxDepth int, target string, limit int) ([]SymbolInfo, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}
	language := scanner.DetectLanguage(filePath)

	adapter := extract.New()
	defer adapter.Close()
	result := adapter.Extract(ctx, filePath, language, content)

	symbols := filterByDepth(result.Symbols, maxDepth)
	if target != "" {
		symbols = filterByTarget(symbols, target)
	}
	if limit > 0 && len(symbols) > limit {
		symbols = symbols[:limit]
	}

	var graph *callGraph
	if workspaceID != "" {
		graph = t.buildCallGraph(ctx, workspaceID)
	}

	out := make([]SymbolInfo, 0, len(symbols))
	for _, sym := range symbols {
		info := SymbolInfo{Symbol: sym, Body: bodyFor(sym, content, mode)}
		t.enrich(ctx, workspaceID, sym, &info, graph)
		out = append(out, info)
	}
	return out, nil
}

func filterByDepth(symbols []*store.Symbol, maxDepth int) []*store.Symbol {
	if maxDepth <= 0 {
		var out []*store.Symbol
		for _, s := range symbols {
			if s.ParentID == "" {
				out = append(out, s)
			}
		}
		return out
	}
	depthOf := make(map[string]int)
	byID := make(map[string]*store.Symbol, len(symbols))
	for _, s := range symbols {
		byID[s.ID] = s
	}
	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := depthOf[id]; ok {
			return d
		}
		s, ok := byID[id]
		if !ok || s.ParentID == "" {
			depthOf[id] = 0
			return 0
		}
		d := depth(s.ParentID) + 1
		depthOf[id] = d
		return d
	}
	var out []*store.Symbol
	for _, s := range symbols {
		if depth(s.ID) <= maxDepth {
			out = append(out, s)
		}
	}
	return out
}

func filterByTarget(symbols []*store.Symbol, target string) []*store.Symbol {
	lower := strings.ToLower(target)
	keep := make(map[string]bool)
	byID := make(map[string]*store.Symbol, len(symbols))
	for _, s := range symbols {
		byID[s.ID] = s
		if strings.Contains(strings.ToLower(s.Name), lower) {
			keep[s.ID] = true
		}
	}
	// include children of kept symbols
	changed := true
	for changed {
		changed = false
		for _, s := range symbols {
			if keep[s.ID] || s.ParentID == "" {
				continue
			}
			if keep[s.ParentID] {
				keep[s.ID] = true
				changed = true
			}
		}
	}
	var out []*store.Symbol
	for _, s := range symbols {
		if keep[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

func bodyFor(sym *store.Symbol, content []byte, mode BodyMode) string {
	switch mode {
	case BodyAll:
		return extractBody(sym, content)
	case BodyTopLevel:
		if sym.ParentID == "" {
			return extractBody(sym, content)
		}
		return ""
	default:
		return ""
	}
}

func extractBody(sym *store.Symbol, content []byte) string {
	if sym.StartByte < 0 || sym.EndByte > len(content) || sym.StartByte >= sym.EndByte {
		return ""
	}
	return string(content[sym.StartByte:sym.EndByte])
}

func (t *Tools) enrich(ctx context.Context, workspaceID string, sym *store.Symbol, info *SymbolInfo, graph *callGraph) {
	info.ReferenceCount = sym.ReferenceCount
	info.UsageFrequency = usageTier(sym.ReferenceCount)
	info.DocQuality = docTier(len(sym.DocComment))

	if t.Embedder != nil && t.Vec != nil {
		info.RelatedSymbols = t.relatedSymbols(ctx, sym)
	}

	if workspaceID != "" {
		info.CrossLanguageHints = t.crossLanguageHints(ctx, workspaceID, sym)
	}

	info.ImportanceScore = 0.5 // medium, matching no-graph/not-in-graph default
	if graph != nil {
		if score, ok := graph.scores[sym.ID]; ok {
			info.ImportanceScore = score
		}
		inDeg, outDeg := graph.inDegree[sym.ID], graph.outDegree[sym.ID]
		info.EntryPoint = inDeg >= entryPointInDegree && outDeg <= entryPointOutDegree
	}
	info.ImportanceTier = importanceTier(info.ImportanceScore)
}

func usageTier(refCount int) string {
	switch {
	case refCount == 0:
		return "none"
	case refCount < usageLowFloor:
		return "low"
	case refCount < usageMediumFloor:
		return "medium"
	case refCount < usageHighFloor:
		return "high"
	default:
		return "very_high"
	}
}

func docTier(docLen int) string {
	switch {
	case docLen < docGoodFloor:
		return "poor"
	case docLen < docExcellentFloor:
		return "good"
	default:
		return "excellent"
	}
}

func importanceTier(score float64) string {
	switch {
	case score <= importanceMediumFloor:
		return "low"
	case score <= importanceHighFloor:
		return "medium"
	case score <= importanceCriticalFloor:
		return "high"
	default:
		return "critical"
	}
}

func (t *Tools) relatedSymbols(ctx context.Context, sym *store.Symbol) []*store.Symbol {
	vecs, err := t.Embedder.Embed(ctx, []string{searchableSymbolText(sym)})
	if err != nil || len(vecs) != 1 {
		return nil
	}
	results, err := t.Vec.Search(ctx, "", vecs[0], store.MethodSemantic, relatedSymbolsTopN+1)
	if err != nil {
		return nil
	}
	var ids []string
	for _, r := range results {
		if r.ID != sym.ID {
			ids = append(ids, r.ID)
		}
		if len(ids) == relatedSymbolsTopN {
			break
		}
	}
	related, err := t.Rel.GetSymbolsByIDs(ctx, ids)
	if err != nil {
		return nil
	}
	return related
}

func (t *Tools) crossLanguageHints(ctx context.Context, workspaceID string, sym *store.Symbol) []*store.Symbol {
	variants := naming.Generate(sym.Name)
	candidates, err := t.Rel.GetSymbolsByNames(ctx, workspaceID, variants.Forms)
	if err != nil {
		return nil
	}
	var out []*store.Symbol
	for _, c := range candidates {
		if c.Language != sym.Language && c.ID != sym.ID {
			out = append(out, c)
		}
	}
	return out
}

func searchableSymbolText(s *store.Symbol) string {
	return strings.Join([]string{s.Name, s.Signature, s.DocComment}, " ")
}

// callGraph is an in-memory adjacency built from Call relationships,
// scored with PageRank for get_symbols' importance_score enrichment.
type callGraph struct {
	scores    map[string]float64
	inDegree  map[string]int
	outDegree map[string]int
}

func (t *Tools) buildCallGraph(ctx context.Context, workspaceID string) *callGraph {
	rels, err := t.Rel.GetRelationshipsByKind(ctx, workspaceID, store.RelCall)
	if err != nil || len(rels) == 0 {
		return nil
	}

	out := make(map[string][]string)
	nodes := make(map[string]bool)
	inDegree := make(map[string]int)
	outDegree := make(map[string]int)
	for _, r := range rels {
		out[r.FromSymbolID] = append(out[r.FromSymbolID], r.ToSymbolID)
		nodes[r.FromSymbolID] = true
		nodes[r.ToSymbolID] = true
		outDegree[r.FromSymbolID]++
		inDegree[r.ToSymbolID]++
	}

	n := len(nodes)
	if n == 0 {
		return nil
	}
	scores := make(map[string]float64, n)
	for id := range nodes {
		scores[id] = 1.0 / float64(n)
	}

	for iter := 0; iter < pagerankMaxIters; iter++ {
		next := make(map[string]float64, n)
		for id := range nodes {
			next[id] = (1 - pagerankDamping) / float64(n)
		}
		var delta float64
		for id := range nodes {
			outs := out[id]
			if len(outs) == 0 {
				share := pagerankDamping * scores[id] / float64(n)
				for dest := range nodes {
					next[dest] += share
				}
				continue
			}
			share := pagerankDamping * scores[id] / float64(len(outs))
			for _, dest := range outs {
				next[dest] += share
			}
		}
		for id := range nodes {
			delta += abs(next[id] - scores[id])
		}
		scores = next
		if delta < 1e-6 {
			break
		}
	}

	return &callGraph{scores: scores, inDegree: inDegree, outDegree: outDegree}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
