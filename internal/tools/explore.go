package tools

import (
	"context"
	"fmt"

	"github.com/kodewright/miller/internal/store"
)

// ExploreMode selects fast_explore's behavior.
type ExploreMode string

const (
	ExploreTypes   ExploreMode = "types"
	ExploreSimilar ExploreMode = "similar"
)

// similarNeighborLimit bounds fast_explore's similar-mode result size.
const similarNeighborLimit = 15

// TypeRelations is fast_explore's "types" mode output: the symbol's
// relationship-kind-driven neighbors, grouped by relation.
type TypeRelations struct {
	Implementations []*store.Symbol
	Parents         []*store.Symbol
	Children        []*store.Symbol
	Returns         []*store.Symbol
	Parameters      []*store.Symbol
}

// FastExplore implements the types/similar modes.
func (t *Tools) FastExplore(ctx context.Context, workspaceID string, mode ExploreMode, typeName, symbolName string) (*TypeRelations, []*store.Symbol, error) {
	switch mode {
	case ExploreTypes:
		rel, err := t.exploreTypes(ctx, workspaceID, typeName)
		return rel, nil, err
	case ExploreSimilar:
		neighbors, err := t.exploreSimilar(ctx, workspaceID, symbolName)
		return nil, neighbors, err
	default:
		return nil, nil, fmt.Errorf("unknown explore mode %q", mode)
	}
}

func (t *Tools) exploreTypes(ctx context.Context, workspaceID, typeName string) (*TypeRelations, error) {
	candidates, err := t.Rel.GetSymbolByName(ctx, workspaceID, typeName)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", typeName, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("type %q not found", typeName)
	}
	target := candidates[0]

	out := &TypeRelations{}
	implementsRels, err := t.Rel.GetRelationshipsTo(ctx, target.ID)
	if err == nil {
		for _, r := range implementsRels {
			sym, err := t.Rel.GetSymbolByID(ctx, r.FromSymbolID)
			if err != nil || sym == nil {
				continue
			}
			switch r.Kind {
			case store.RelImplements:
				out.Implementations = append(out.Implementations, sym)
			case store.RelExtends:
				out.Children = append(out.Children, sym)
			}
		}
	}
	fromRels, err := t.Rel.GetRelationshipsFrom(ctx, target.ID)
	if err == nil {
		for _, r := range fromRels {
			sym, err := t.Rel.GetSymbolByID(ctx, r.ToSymbolID)
			if err != nil || sym == nil {
				continue
			}
			switch r.Kind {
			case store.RelExtends:
				out.Parents = append(out.Parents, sym)
			case store.RelReturns:
				out.Returns = append(out.Returns, sym)
			case store.RelParameter:
				out.Parameters = append(out.Parameters, sym)
			}
		}
	}
	return out, nil
}

func (t *Tools) exploreSimilar(ctx context.Context, workspaceID, symbolName string) ([]*store.Symbol, error) {
	candidates, err := t.Rel.GetSymbolByName(ctx, workspaceID, symbolName)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", symbolName, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("symbol %q not found", symbolName)
	}
	sym := candidates[0]
	if t.Embedder == nil || t.Vec == nil {
		return nil, fmt.Errorf("similar mode requires an embedder")
	}

	vecs, err := t.Embedder.Embed(ctx, []string{searchableSymbolText(sym)})
	if err != nil || len(vecs) != 1 {
		return nil, fmt.Errorf("embed %q: %w", symbolName, err)
	}
	results, err := t.Vec.Search(ctx, "", vecs[0], store.MethodSemantic, similarNeighborLimit+1)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range results {
		if r.ID != sym.ID {
			ids = append(ids, r.ID)
		}
	}
	neighbors, err := t.Rel.GetSymbolsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var crossLanguage []*store.Symbol
	for _, n := range neighbors {
		if n.Language != sym.Language {
			crossLanguage = append(crossLanguage, n)
		}
	}
	if len(crossLanguage) > 0 {
		return crossLanguage, nil
	}
	return neighbors, nil
}
