// Package tools implements the thin Query Tools: batch
// symbol lookup, reference finding, live-file symbol listing, type/
// similarity exploration and word-boundary-safe rename, each a small
// veneer over the Relational Store, Vector Store and Naming-Variant
// Engine rather than a system of its own.
package tools

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/kodewright/miller/internal/naming"
	"github.com/kodewright/miller/internal/store"
	"github.com/kodewright/miller/internal/workspace"
)

// semanticLookupThreshold is fast_lookup's last-resort cosine floor.
const semanticLookupThreshold = 0.80

// fuzzyMinLength is the shortest name fast_lookup will run Levenshtein
// against; shorter names make edit distance meaningless ("go" vs "go").
const fuzzyMinLength = 4

// fuzzySimilarityFloor is the minimum 1-(distance/maxlen) similarity for
// a Levenshtein candidate to count as a match.
const fuzzySimilarityFloor = 0.75

// MatchType classifies how fast_lookup resolved one requested name.
type MatchType string

const (
	LookupExact    MatchType = "exact"
	LookupSemantic MatchType = "semantic"
	LookupNotFound MatchType = "not_found"
)

// Embedder turns text into a vector for the semantic lookup/related-symbol
// stages of the Query Tools.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// LookupResult is one resolved (or unresolved) name from fast_lookup.
type LookupResult struct {
	Query        string
	MatchType    MatchType
	Symbol       *store.Symbol
	Structure    []*store.Symbol // methods/properties/bases, present at depth >= 1
	ImportStmt   string
}

// Tools bundles the collaborators every Query Tool needs.
type Tools struct {
	Rel      store.RelationalStore
	Vec      store.VectorStore
	Embedder Embedder
}

// FastLookup batch-resolves names: exact match (with an
// optional "Parent.child" split), then a fuzzy cascade, then vector-store
// semantic search as a last resort.
func (t *Tools) FastLookup(ctx context.Context, workspaceID string, names []string, contextFile string, includeBody bool, maxDepth int) ([]LookupResult, error) {
	out := make([]LookupResult, 0, len(names))
	for _, name := range names {
		out = append(out, t.lookupOne(ctx, workspaceID, name, contextFile, maxDepth))
	}
	return out, nil
}

func (t *Tools) lookupOne(ctx context.Context, workspaceID, name, contextFile string, maxDepth int) LookupResult {
	lookupName := name
	var parent string
	if idx := strings.LastIndex(name, "."); idx > 0 {
		parent, lookupName = name[:idx], name[idx+1:]
	}

	if sym := t.exactMatch(ctx, workspaceID, lookupName, parent, contextFile); sym != nil {
		return t.finish(ctx, name, LookupExact, sym, maxDepth)
	}

	if sym := t.fuzzyCascade(ctx, workspaceID, lookupName, contextFile); sym != nil {
		return t.finish(ctx, name, LookupExact, sym, maxDepth)
	}

	if sym := t.semanticMatch(ctx, workspaceID, name); sym != nil {
		return t.finish(ctx, name, LookupSemantic, sym, maxDepth)
	}

	return LookupResult{Query: name, MatchType: LookupNotFound}
}

func (t *Tools) exactMatch(ctx context.Context, workspaceID, name, parent, contextFile string) *store.Symbol {
	candidates, err := t.Rel.GetSymbolByName(ctx, workspaceID, name)
	if err != nil {
		return nil
	}
	return pickCandidate(t.Rel, ctx, candidates, parent, contextFile)
}

// fuzzyCascade tries case-insensitive exact, then contextFile-scoped
// substring/Levenshtein/word-part matching. The latter two stages are
// scoped to one file because the store has no name-enumeration query to
// scan the whole workspace against.
func (t *Tools) fuzzyCascade(ctx context.Context, workspaceID, name, contextFile string) *store.Symbol {
	if syms, err := t.Rel.GetSymbolByNameFold(ctx, workspaceID, name); err == nil && len(syms) > 0 {
		return pickCandidate(t.Rel, ctx, syms, "", contextFile)
	}

	if contextFile == "" {
		return nil
	}
	candidates, err := t.Rel.GetSymbolsByFile(ctx, workspace.QualifiedPath(workspaceID, contextFile))
	if err != nil || len(candidates) == 0 {
		return nil
	}

	lowerName := strings.ToLower(name)
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Name), lowerName) {
			return c
		}
	}

	if len(name) >= fuzzyMinLength {
		var best *store.Symbol
		bestSim := fuzzySimilarityFloor
		for _, c := range candidates {
			if sim := fuzzySimilarity(name, c.Name); sim >= bestSim {
				best, bestSim = c, sim
			}
		}
		if best != nil {
			return best
		}
	}

	queryWords := naming.SplitWords(name)
	for _, c := range candidates {
		if sameWordSet(queryWords, naming.SplitWords(c.Name)) {
			return c
		}
	}

	return nil
}

func sameWordSet(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, w := range a {
		counts[strings.ToLower(w)]++
	}
	for _, w := range b {
		counts[strings.ToLower(w)]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

func pickCandidate(rel store.RelationalStore, ctx context.Context, candidates []*store.Symbol, parent, contextFile string) *store.Symbol {
	if len(candidates) == 0 {
		return nil
	}
	if parent != "" {
		for _, c := range candidates {
			if c.ParentID == "" {
				continue
			}
			if p, err := rel.GetSymbolByID(ctx, c.ParentID); err == nil && p != nil && p.Name == parent {
				return c
			}
		}
	}
	if contextFile != "" {
		for _, c := range candidates {
			if strings.HasSuffix(c.FilePath, contextFile) {
				return c
			}
		}
	}
	return candidates[0]
}

func (t *Tools) semanticMatch(ctx context.Context, workspaceID, name string) *store.Symbol {
	if t.Embedder == nil || t.Vec == nil {
		return nil
	}
	vecs, err := t.Embedder.Embed(ctx, []string{name})
	if err != nil || len(vecs) != 1 {
		return nil
	}
	results, err := t.Vec.Search(ctx, "", vecs[0], store.MethodSemantic, 5)
	if err != nil || len(results) == 0 {
		return nil
	}
	if results[0].Score < semanticLookupThreshold {
		return nil
	}
	sym, err := t.Rel.GetSymbolByID(ctx, results[0].ID)
	if err != nil {
		return nil
	}
	return sym
}

// fuzzySimilarity computes 1-(distance/maxlen), the normalized similarity
// fast_lookup's Levenshtein stage filters on.
func fuzzySimilarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

func (t *Tools) finish(ctx context.Context, query string, mt MatchType, sym *store.Symbol, maxDepth int) LookupResult {
	res := LookupResult{Query: query, MatchType: mt, Symbol: sym, ImportStmt: importStatement(sym.FilePath)}
	if maxDepth >= 1 {
		if children, err := t.Rel.GetSymbolsByFile(ctx, sym.FilePath); err == nil {
			for _, c := range children {
				if c.ParentID == sym.ID {
					res.Structure = append(res.Structure, c)
				}
			}
		}
	}
	return res
}

// importStatement converts a qualified file path into a dotted module
// path, stripping a workspace-id prefix, src/lib roots and the extension.
func importStatement(qualifiedPath string) string {
	path := qualifiedPath
	if idx := strings.Index(path, ":"); idx >= 0 {
		path = path[idx+1:]
	}
	path = strings.TrimPrefix(path, "src/")
	path = strings.TrimPrefix(path, "lib/")
	if idx := strings.LastIndex(path, "."); idx > 0 {
		path = path[:idx]
	}
	return strings.ReplaceAll(path, "/", ".")
}
