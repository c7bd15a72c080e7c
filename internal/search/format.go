package search

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders hits for display. mode is "text", "structured"
// or "tabular"; anything else falls back to "text".
func Format(mode, query string, hits []Hit) string {
	switch mode {
	case "structured":
		return formatStructured(hits)
	case "tabular":
		return formatTabular(hits)
	default:
		return formatText(query, hits)
	}
}

// formatText is the grep-style rendering: a header, then file:line per
// hit with an indented code_context window, falling back to signature
// then to "name (kind)" when no context is available.
func formatText(query string, hits []Hit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d matches for %q:\n", len(hits), query)
	for _, h := range hits {
		fmt.Fprintf(&b, "%s:%d\n", h.FilePath, h.StartLine)
		switch {
		case h.CodeContext != "":
			for _, line := range strings.Split(h.CodeContext, "\n") {
				b.WriteString("  " + line + "\n")
			}
		case h.Signature != "":
			b.WriteString("  → " + h.Signature + "\n")
		default:
			b.WriteString("  → " + h.Name + " (" + h.Kind + ")\n")
		}
		if h.Context != nil {
			fmt.Fprintf(&b, "  callers: %d, callees: %d\n", h.Context.CallerCount, h.Context.CalleeCount)
		}
	}
	return b.String()
}

// formatStructured renders one line per field per hit, in the id, name,
// kind, language, file_path, signature, doc_comment, start_line, score,
// code_context order the spec names, with an optional context block.
func formatStructured(hits []Hit) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("---\n")
		}
		fmt.Fprintf(&b, "id: %s\n", h.ID)
		fmt.Fprintf(&b, "name: %s\n", h.Name)
		fmt.Fprintf(&b, "kind: %s\n", h.Kind)
		fmt.Fprintf(&b, "language: %s\n", h.Language)
		fmt.Fprintf(&b, "file_path: %s\n", h.FilePath)
		fmt.Fprintf(&b, "signature: %s\n", h.Signature)
		fmt.Fprintf(&b, "doc_comment: %s\n", h.DocComment)
		fmt.Fprintf(&b, "start_line: %d\n", h.StartLine)
		fmt.Fprintf(&b, "score: %.4f\n", h.Score)
		fmt.Fprintf(&b, "code_context: %s\n", h.CodeContext)
		if h.Context != nil {
			fmt.Fprintf(&b, "callers: %s\n", refNames(h.Context.Callers))
			fmt.Fprintf(&b, "callees: %s\n", refNames(h.Context.Callees))
			fmt.Fprintf(&b, "caller_count: %d\n", h.Context.CallerCount)
			fmt.Fprintf(&b, "callee_count: %d\n", h.Context.CalleeCount)
		}
	}
	return b.String()
}

// formatTabular is a compact row-oriented rendering chosen automatically
// at >= Config.TabularAutoThreshold results.
func formatTabular(hits []Hit) string {
	var b strings.Builder
	b.WriteString("score\tkind\tname\tfile_path:line\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "%.3f\t%s\t%s\t%s:%s\n", h.Score, h.Kind, h.Name, h.FilePath, strconv.Itoa(h.StartLine))
	}
	return b.String()
}

func refNames(refs []CallRef) string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	return strings.Join(names, ", ")
}
