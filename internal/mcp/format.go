package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kodewright/miller/internal/search"
	"github.com/kodewright/miller/internal/store"
	"github.com/kodewright/miller/internal/tools"
	"github.com/kodewright/miller/internal/trace"
)

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// resolveFormat maps a tool's output_format input to a search-package
// format string, defaulting to "auto".
func resolveFormat(raw string) OutputFormat {
	switch OutputFormat(raw) {
	case FormatText, FormatJSON, FormatTabular, FormatAuto:
		return OutputFormat(raw)
	default:
		return FormatAuto
	}
}

func toSymbolOutput(s *store.Symbol) SymbolOutput {
	if s == nil {
		return SymbolOutput{}
	}
	return SymbolOutput{
		ID:         s.ID,
		Name:       s.Name,
		Kind:       string(s.Kind),
		Language:   s.Language,
		FilePath:   s.FilePath,
		Signature:  s.Signature,
		DocComment: s.DocComment,
		StartLine:  s.StartLine,
		EndLine:    s.EndLine,
	}
}

func toSymbolOutputs(symbols []*store.Symbol) []SymbolOutput {
	out := make([]SymbolOutput, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, toSymbolOutput(s))
	}
	return out
}

// ---- fast_search ----

func toFastSearchOutput(result *search.Result, format OutputFormat) FastSearchOutput {
	out := FastSearchOutput{
		Method:  string(result.Method),
		Notices: result.Notices,
	}
	for _, h := range result.Hits {
		hit := SearchHitOutput{
			SymbolOutput: SymbolOutput{
				ID: h.ID, Name: h.Name, Kind: h.Kind, Language: h.Language,
				FilePath: h.FilePath, Signature: h.Signature, DocComment: h.DocComment,
				StartLine: h.StartLine,
			},
			Score:       h.Score,
			CodeContext: h.CodeContext,
		}
		if h.Context != nil {
			for _, c := range h.Context.Callers {
				hit.Callers = append(hit.Callers, c.Name)
			}
			for _, c := range h.Context.Callees {
				hit.Callees = append(hit.Callees, c.Name)
			}
		}
		out.Hits = append(out.Hits, hit)
	}
	if format != FormatJSON {
		out.Text = result.Text
	}
	return out
}

// ---- fast_lookup ----

func toFastLookupOutput(results []tools.LookupResult, format OutputFormat) FastLookupOutput {
	out := FastLookupOutput{}
	for _, r := range results {
		lr := LookupResultOutput{Query: r.Query, MatchType: string(r.MatchType), ImportStmt: r.ImportStmt}
		if r.Symbol != nil {
			sym := toSymbolOutput(r.Symbol)
			lr.Symbol = &sym
		}
		if len(r.Structure) > 0 {
			lr.Structure = toSymbolOutputs(r.Structure)
		}
		out.Results = append(out.Results, lr)
	}
	if format != FormatJSON {
		out.Text = formatLookupText(out.Results)
	}
	return out
}

func formatLookupText(results []LookupResultOutput) string {
	var b strings.Builder
	for _, r := range results {
		if r.Symbol == nil {
			fmt.Fprintf(&b, "%s: not found\n", r.Query)
			continue
		}
		fmt.Fprintf(&b, "%s -> %s:%d (%s, %s)\n", r.Query, r.Symbol.FilePath, r.Symbol.StartLine, r.Symbol.Kind, r.MatchType)
		for _, child := range r.Structure {
			fmt.Fprintf(&b, "  %s (%s) %s:%d\n", child.Name, child.Kind, child.FilePath, child.StartLine)
		}
	}
	return b.String()
}

// ---- fast_refs ----

func toFastRefsOutput(r *tools.RefsResult, format OutputFormat) FastRefsOutput {
	out := FastRefsOutput{TotalReferences: r.TotalReferences, Truncated: r.Truncated}
	if r.Symbol != nil {
		sym := toSymbolOutput(r.Symbol)
		out.Symbol = &sym
	}
	for _, f := range r.Files {
		fr := FileReferencesOutput{Path: f.Path}
		for _, ref := range f.References {
			fr.References = append(fr.References, ReferenceOutput{Line: ref.Line, Kind: ref.Kind, CodeContext: ref.CodeContext})
		}
		out.Files = append(out.Files, fr)
	}
	if format != FormatJSON {
		out.Text = tools.FormatRefsText(r)
	}
	return out
}

// ---- get_symbols ----

func toGetSymbolsOutput(infos []tools.SymbolInfo, format OutputFormat) GetSymbolsOutput {
	out := GetSymbolsOutput{}
	for _, info := range infos {
		sio := SymbolInfoOutput{
			SymbolOutput:    toSymbolOutput(info.Symbol),
			Body:            info.Body,
			ReferenceCount:  info.ReferenceCount,
			UsageFrequency:  info.UsageFrequency,
			DocQuality:      info.DocQuality,
			ImportanceScore: info.ImportanceScore,
			Importance:      info.ImportanceTier,
			EntryPoint:      info.EntryPoint,
		}
		for _, r := range info.RelatedSymbols {
			sio.RelatedSymbols = append(sio.RelatedSymbols, r.Name)
		}
		for _, h := range info.CrossLanguageHints {
			sio.CrossLanguageHints = append(sio.CrossLanguageHints, fmt.Sprintf("%s (%s)", h.Name, h.Language))
		}
		out.Symbols = append(out.Symbols, sio)
	}
	if format != FormatJSON {
		out.Text = formatSymbolsText(out.Symbols)
	}
	return out
}

func formatSymbolsText(symbols []SymbolInfoOutput) string {
	var b strings.Builder
	for _, s := range symbols {
		fmt.Fprintf(&b, "%s (%s) %s:%d-%d [refs=%d usage=%s doc=%s]\n",
			s.Name, s.Kind, s.FilePath, s.StartLine, s.EndLine, s.ReferenceCount, s.UsageFrequency, s.DocQuality)
		if s.EntryPoint {
			b.WriteString("  entry point\n")
		}
		if s.Body != "" {
			b.WriteString("  " + strings.ReplaceAll(s.Body, "\n", "\n  ") + "\n")
		}
	}
	return b.String()
}

// ---- fast_explore ----

func toFastExploreOutput(rel *tools.TypeRelations, similar []*store.Symbol, format OutputFormat) FastExploreOutput {
	out := FastExploreOutput{}
	if rel != nil {
		out.Implementations = toSymbolOutputs(rel.Implementations)
		out.Parents = toSymbolOutputs(rel.Parents)
		out.Children = toSymbolOutputs(rel.Children)
		out.Returns = toSymbolOutputs(rel.Returns)
		out.Parameters = toSymbolOutputs(rel.Parameters)
	}
	if similar != nil {
		out.Similar = toSymbolOutputs(similar)
	}
	if format != FormatJSON {
		out.Text = formatExploreText(out)
	}
	return out
}

func formatExploreText(out FastExploreOutput) string {
	var b strings.Builder
	writeGroup := func(label string, symbols []SymbolOutput) {
		if len(symbols) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", label)
		for _, s := range symbols {
			fmt.Fprintf(&b, "  %s (%s) %s:%d\n", s.Name, s.Kind, s.FilePath, s.StartLine)
		}
	}
	writeGroup("implementations", out.Implementations)
	writeGroup("parents", out.Parents)
	writeGroup("children", out.Children)
	writeGroup("returns", out.Returns)
	writeGroup("parameters", out.Parameters)
	writeGroup("similar", out.Similar)
	return b.String()
}

// ---- trace_call_path ----

func toTraceNodeOutput(n *trace.Node) *TraceNodeOutput {
	if n == nil {
		return nil
	}
	out := &TraceNodeOutput{
		SymbolOutput: SymbolOutput{
			ID: n.SymbolID, Name: n.Name, Kind: n.Kind, Language: n.Language,
			FilePath: n.FilePath, StartLine: n.StartLine,
		},
		RelationshipKind: n.RelationshipKind,
		MatchType:        string(n.MatchType),
		Confidence:       n.Confidence,
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, *toTraceNodeOutput(c))
	}
	return out
}

func toTraceCallPathOutput(tp *trace.TracePath, format OutputFormat) TraceCallPathOutput {
	out := TraceCallPathOutput{
		Root:              toTraceNodeOutput(tp.Root),
		TotalMatches:      tp.TotalMatches,
		TotalNodes:        tp.TotalNodes,
		MaxDepthReached:   tp.MaxDepthReached,
		Truncated:         tp.Truncated,
		LanguagesFound:    tp.LanguagesFound,
		MatchTypeCounts:   tp.MatchTypeCounts,
		RelationshipKinds: tp.RelationshipKinds,
		CyclesDetected:    tp.CyclesDetected,
	}
	if format != FormatJSON {
		out.Text = trace.FormatTree(tp)
	}
	return out
}

// ---- rename_symbol ----

func toRenameSymbolOutput(r *tools.RenameResult, format OutputFormat) RenameSymbolOutput {
	out := RenameSymbolOutput{DryRun: r.DryRun}
	for _, c := range r.Changes {
		out.Changes = append(out.Changes, RenameChangeOutput{Path: c.Path, Replacements: c.Replacements})
	}
	if format != FormatJSON {
		out.Text = formatRenameText(out)
	}
	return out
}

func formatRenameText(out RenameSymbolOutput) string {
	var b strings.Builder
	if out.DryRun {
		b.WriteString("dry run, no files written:\n")
	} else {
		b.WriteString("renamed:\n")
	}
	for _, c := range out.Changes {
		fmt.Fprintf(&b, "  %s (%d replacements)\n", c.Path, c.Replacements)
	}
	return b.String()
}

// toJSONText renders any output value as indented JSON, used when a
// caller explicitly requests output_format "json" on a tool whose
// output struct otherwise fills Text with a human-readable rendering.
func toJSONText(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
