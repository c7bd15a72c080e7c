package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kodewright/miller/internal/store"
)

// Reference is one use-site of a symbol.
type Reference struct {
	FilePath    string
	Line        int
	Kind        string
	CodeContext string
}

// FileReferences groups a symbol's references by containing file.
type FileReferences struct {
	Path       string
	References []Reference
}

// RefsResult is fast_refs' output.
type RefsResult struct {
	Symbol          *store.Symbol
	TotalReferences int
	Truncated       bool
	Files           []FileReferences
}

// FastRefs finds every reference to symbolName: relationship edges
// pointing at its id, plus identifiers naming it or targeting its id
// within scope.
func (t *Tools) FastRefs(ctx context.Context, workspaceID, symbolName, kindFilter string, includeContext bool, contextFile string, limit int) (*RefsResult, error) {
	candidates, err := t.Rel.GetSymbolByName(ctx, workspaceID, symbolName)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", symbolName, err)
	}
	if kindFilter != "" {
		candidates = filterByKind(candidates, kindFilter)
	}
	sym := pickCandidate(t.Rel, ctx, candidates, "", contextFile)
	if sym == nil {
		return nil, fmt.Errorf("symbol %q not found", symbolName)
	}

	byFile := make(map[string][]Reference)

	rels, err := t.Rel.GetRelationshipsTo(ctx, sym.ID)
	if err == nil {
		for _, r := range rels {
			ref := Reference{FilePath: r.FilePath, Line: r.Line, Kind: string(r.Kind)}
			byFile[r.FilePath] = append(byFile[r.FilePath], ref)
		}
	}

	ids, err := t.Rel.GetIdentifiersByTarget(ctx, sym.ID)
	if err == nil {
		appendIdentifierRefs(byFile, ids, includeContext)
	}
	if names, err := t.Rel.GetIdentifiersByName(ctx, workspaceID, sym.Name); err == nil {
		appendIdentifierRefs(byFile, names, includeContext)
	}

	total := 0
	for _, refs := range byFile {
		total += len(refs)
	}

	truncated := false
	if limit > 0 && total > limit {
		byFile = truncateRefs(byFile, limit)
		truncated = true
	}

	result := &RefsResult{Symbol: sym, TotalReferences: total, Truncated: truncated}
	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		result.Files = append(result.Files, FileReferences{Path: p, References: byFile[p]})
	}
	return result, nil
}

func appendIdentifierRefs(byFile map[string][]Reference, ids []*store.Identifier, includeContext bool) {
	for _, id := range ids {
		ref := Reference{FilePath: id.FilePath, Line: id.StartLine, Kind: string(id.Kind)}
		if includeContext {
			ref.CodeContext = id.CodeContext
		}
		byFile[id.FilePath] = append(byFile[id.FilePath], ref)
	}
}

func truncateRefs(byFile map[string][]Reference, limit int) map[string][]Reference {
	out := make(map[string][]Reference)
	remaining := limit
	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if remaining <= 0 {
			break
		}
		refs := byFile[p]
		if len(refs) > remaining {
			refs = refs[:remaining]
		}
		out[p] = refs
		remaining -= len(refs)
	}
	return out
}

func filterByKind(symbols []*store.Symbol, kind string) []*store.Symbol {
	var out []*store.Symbol
	for _, s := range symbols {
		if strings.EqualFold(string(s.Kind), kind) {
			out = append(out, s)
		}
	}
	return out
}

// FormatRefsText renders a RefsResult using the standard text header
// convention.
func FormatRefsText(r *RefsResult) string {
	var b strings.Builder
	header := fmt.Sprintf("%d references to %q:", r.TotalReferences, r.Symbol.Name)
	if r.Truncated {
		shown := 0
		for _, f := range r.Files {
			shown += len(f.References)
		}
		header += fmt.Sprintf(" (truncated — showing %d of %d)", shown, r.TotalReferences)
	}
	b.WriteString(header + "\n")
	for _, f := range r.Files {
		fmt.Fprintf(&b, "%s:\n", f.Path)
		for _, ref := range f.References {
			fmt.Fprintf(&b, "  line %d (%s)\n", ref.Line, ref.Kind)
		}
	}
	return b.String()
}
