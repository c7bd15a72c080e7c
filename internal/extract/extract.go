// Package extract wraps the tree-sitter parser library (internal/chunk) to
// produce the (symbols, identifiers, relationships) triple the rest of the
// engine operates on. Parsing itself, and
// the tree-sitter grammar bindings, are treated as an external library;
// this package is the adapter layer that turns an AST into the
// engine's own symbol graph shape.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode"

	"github.com/kodewright/miller/internal/chunk"
	"github.com/kodewright/miller/internal/store"
)

// Adapter extracts symbols/identifiers/relationships from source text.
type Adapter struct {
	parser   *chunk.Parser
	registry *chunk.LanguageRegistry
}

// New builds an Adapter around the default tree-sitter language registry
// (Go, TypeScript, TSX, JavaScript, JSX, Python).
func New() *Adapter {
	return &Adapter{parser: chunk.NewParser(), registry: chunk.DefaultRegistry()}
}

// Close releases the underlying tree-sitter parser.
func (a *Adapter) Close() {
	a.parser.Close()
}

// SupportsLanguage reports whether language has a registered grammar.
func (a *Adapter) SupportsLanguage(language string) bool {
	_, ok := a.registry.GetByName(language)
	return ok
}

// Extract parses content and returns its symbol graph. Files in an
// unsupported language, or that fail to parse, degrade to file-level
// indexing rather than failing the whole scan — a single
// malformed or exotic file must never abort a workspace index.
func (a *Adapter) Extract(ctx context.Context, qualifiedPath, language string, content []byte) store.ExtractionResult {
	if !a.SupportsLanguage(language) {
		return FileLevelResult(qualifiedPath, language, content)
	}

	tree, err := a.parser.Parse(ctx, content, language)
	if err != nil || tree == nil || tree.Root == nil {
		return FileLevelResult(qualifiedPath, language, content)
	}

	config, ok := a.registry.GetByName(language)
	if !ok {
		return FileLevelResult(qualifiedPath, language, content)
	}

	w := &walker{
		filePath: qualifiedPath,
		language: language,
		source:   content,
		config:   config,
		byName:   make(map[string]*store.Symbol),
	}
	w.walk(tree.Root, "")
	w.resolveCalls()

	return store.ExtractionResult{
		Symbols:       w.symbols,
		Identifiers:   w.identifiers,
		Relationships: w.relationships,
	}
}

// symbolID derives a stable, globally unique id from the symbol's location:
// two symbols with the same name in different files, or at different
// offsets in the same file, never collide.
func symbolID(filePath, kind, name string, startByte int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", filePath, kind, name, startByte)))
	return hex.EncodeToString(sum[:])[:20]
}

// isExported applies a per-language visibility heuristic: Go capitalization,
// otherwise a leading underscore marks non-public.
func isExported(language, name string) bool {
	if name == "" {
		return false
	}
	if language == "go" {
		return unicode.IsUpper([]rune(name)[0])
	}
	return name[0] != '_'
}
