package extract

import (
	"strings"

	"github.com/kodewright/miller/internal/chunk"
	"github.com/kodewright/miller/internal/store"
)

// extractSymbol reports a store.Symbol if n is a symbol-defining node for
// the file's language, else nil. The classification rules are the same
// node-type tables internal/chunk's extractor uses, generalized to the
// engine's own kind vocabulary and to emit ids/parent links instead of a
// flat list.
func (w *walker) extractSymbol(n *chunk.Node, parentID string) *store.Symbol {
	kind, ok := classify(n.Type, w.config)
	var name string

	if !ok {
		// JS/TS: const foo = () => {} / const foo = function() {}
		if w.language == "typescript" || w.language == "tsx" || w.language == "javascript" || w.language == "jsx" {
			if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
				if declName, isFunc := jsFunctionVariable(n, w.source); isFunc {
					kind, name = store.KindFunction, declName
				}
			}
		}
		if name == "" {
			return nil
		}
	} else {
		name = extractName(n, w.source, w.language)
		if name == "" {
			return nil
		}
		if w.language == "go" && n.Type == "type_declaration" {
			kind = refineGoTypeKind(n)
		}
	}

	doc := extractDocComment(n, w.source, w.language)
	signature := extractSignature(n, w.source, kind, w.language)
	id := symbolID(w.filePath, string(kind), name, int(n.StartByte))

	visibility := "private"
	if isExported(w.language, name) {
		visibility = "public"
	}

	return &store.Symbol{
		ID:          id,
		Name:        name,
		Kind:        kind,
		Language:    w.language,
		FilePath:    w.filePath,
		Signature:   signature,
		StartByte:   int(n.StartByte),
		EndByte:     int(n.EndByte),
		StartLine:   int(n.StartPoint.Row) + 1,
		EndLine:     int(n.EndPoint.Row) + 1,
		StartColumn: int(n.StartPoint.Column),
		EndColumn:   int(n.EndPoint.Column),
		DocComment:  doc,
		Visibility:  visibility,
		ParentID:    parentID,
		Confidence:  1.0,
		WorkspaceID: workspaceIDOf(w.filePath),
	}
}

// classify maps a tree-sitter node type to a store.SymbolKind using the
// language's LanguageConfig node-type tables.
func classify(nodeType string, config *chunk.LanguageConfig) (store.SymbolKind, bool) {
	switch {
	case contains(config.FunctionTypes, nodeType):
		return store.KindFunction, true
	case contains(config.MethodTypes, nodeType):
		return store.KindMethod, true
	case contains(config.ClassTypes, nodeType):
		return store.KindClass, true
	case contains(config.InterfaceTypes, nodeType):
		return store.KindInterface, true
	case contains(config.TypeDefTypes, nodeType):
		return store.KindType, true
	case contains(config.ConstantTypes, nodeType):
		return store.KindConstant, true
	case contains(config.VariableTypes, nodeType):
		return store.KindVariable, true
	default:
		return "", false
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// refineGoTypeKind distinguishes struct/interface/alias within Go's single
// type_declaration node type, which chunk.LanguageConfig can't express
// since it only classifies by the outer node type.
func refineGoTypeKind(n *chunk.Node) store.SymbolKind {
	for _, spec := range n.FindChildrenByType("type_spec") {
		for _, child := range spec.Children {
			switch child.Type {
			case "struct_type":
				return store.KindStruct
			case "interface_type":
				return store.KindInterface
			}
		}
	}
	return store.KindType
}

// extractName locates the name token of a symbol-defining node.
func extractName(n *chunk.Node, source []byte, language string) string {
	switch language {
	case "go":
		return extractGoName(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return extractJSName(n, source)
	case "python":
		for _, child := range n.Children {
			if child.Type == "identifier" {
				return child.GetContent(source)
			}
		}
	default:
		for _, child := range n.Children {
			if child.Type == "identifier" {
				return child.GetContent(source)
			}
		}
	}
	return ""
}

func extractGoName(n *chunk.Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		for _, child := range n.Children {
			if child.Type == "identifier" {
				return child.GetContent(source)
			}
		}
	case "method_declaration":
		for _, child := range n.Children {
			if child.Type == "field_identifier" {
				return child.GetContent(source)
			}
		}
	case "type_declaration":
		for _, spec := range n.FindChildrenByType("type_spec") {
			if id := spec.FindChildByType("type_identifier"); id != nil {
				return id.GetContent(source)
			}
		}
	case "const_declaration":
		for _, spec := range n.FindChildrenByType("const_spec") {
			if id := spec.FindChildByType("identifier"); id != nil {
				return id.GetContent(source)
			}
		}
	case "var_declaration":
		for _, spec := range n.FindChildrenByType("var_spec") {
			if id := spec.FindChildByType("identifier"); id != nil {
				return id.GetContent(source)
			}
		}
	}
	return ""
}

func extractJSName(n *chunk.Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		for _, decl := range n.FindChildrenByType("variable_declarator") {
			if id := decl.FindChildByType("identifier"); id != nil {
				return id.GetContent(source)
			}
		}
		return ""
	}
	for _, child := range n.Children {
		if child.Type == "identifier" || child.Type == "type_identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

// jsFunctionVariable reports whether a lexical/var declaration's initializer
// is a function expression, returning its bound name when so.
func jsFunctionVariable(n *chunk.Node, source []byte) (string, bool) {
	for _, decl := range n.FindChildrenByType("variable_declarator") {
		var name string
		var hasFunc bool
		for _, child := range decl.Children {
			switch child.Type {
			case "identifier":
				name = child.GetContent(source)
			case "arrow_function", "function", "function_expression":
				hasFunc = true
			}
		}
		if name != "" && hasFunc {
			return name, true
		}
	}
	return "", false
}

// extractDocComment looks one line above n for a line comment, the shape
// documentation takes in every language this adapter supports except
// Python (docstrings live inside the body, not above it).
func extractDocComment(n *chunk.Node, source []byte, language string) string {
	if language == "python" || n.StartPoint.Row == 0 {
		return ""
	}

	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}

	prevLineEnd := lineStart - 1
	prevLineStart := prevLineEnd - 1
	for prevLineStart > 0 && source[prevLineStart-1] != '\n' {
		prevLineStart--
	}
	prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))
	if strings.HasPrefix(prevLine, "//") {
		return strings.TrimSpace(strings.TrimPrefix(prevLine, "//"))
	}
	return ""
}

// extractSignature returns the declaration's first line, truncated before
// its body, so an embedding or search result can show a symbol's interface
// without its implementation.
func extractSignature(n *chunk.Node, source []byte, kind store.SymbolKind, language string) string {
	content := n.GetContent(source)
	if content == "" {
		return ""
	}
	firstLine := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])

	switch language {
	case "python":
		return firstLine
	default:
		if idx := strings.Index(firstLine, "{"); idx != -1 {
			return strings.TrimSpace(firstLine[:idx])
		}
		return firstLine
	}
}
