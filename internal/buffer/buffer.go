// Package buffer accumulates extraction results across many files before
// a single flush to the stores, amortizing transaction and embedding-batch
// overhead.
package buffer

import (
	"strings"

	"github.com/kodewright/miller/internal/store"
)

// Defaults tuned for GPU embedding throughput: a batch big enough to keep
// one embedding pass busy without holding an unbounded amount of extracted
// state in memory between flushes.
const (
	DefaultMaxSymbols = 512
	DefaultMaxFiles   = 50
)

// identifierStopWords excludes language keywords and punctuation-only
// tokens that tree-sitter occasionally reports as identifiers, keeping
// the identifiers table free of noise that would never be a useful
// fast_lookup/fast_refs target.
var identifierStopWords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "return": true,
	"true": true, "false": true, "nil": true, "null": true, "none": true,
	"self": true, "this": true, "super": true, "break": true, "continue": true,
	"const": true, "let": true, "var": true,
}

// Config tunes flush thresholds.
type Config struct {
	MaxSymbols int
	MaxFiles   int
}

func (c Config) withDefaults() Config {
	if c.MaxSymbols <= 0 {
		c.MaxSymbols = DefaultMaxSymbols
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	return c
}

// Buffer accumulates one batch's worth of extraction output plus the file
// rows it belongs to, ready for RelationalStore.IncrementalUpdateAtomic.
type Buffer struct {
	config Config

	Files         []store.FileDataTuple
	FilesToClean  []string
	Symbols       []*store.Symbol
	Identifiers   []*store.Identifier
	Relationships []*store.Relationship
	CodeContext   map[string]string
}

func New(cfg Config) *Buffer {
	return &Buffer{config: cfg.withDefaults(), CodeContext: make(map[string]string)}
}

// AddFile stages a file row plus its extraction result. Identifiers that
// are pure noise (stop words, length<2, purely numeric) are dropped
// before staging.
func (b *Buffer) AddFile(file store.FileDataTuple, result store.ExtractionResult, cleanupPrior bool, qualifiedPath string) {
	if cleanupPrior {
		b.FilesToClean = append(b.FilesToClean, qualifiedPath)
	}
	b.Files = append(b.Files, file)
	b.Symbols = append(b.Symbols, result.Symbols...)
	for _, ident := range result.Identifiers {
		if isNoise(ident.Name) {
			continue
		}
		b.Identifiers = append(b.Identifiers, ident)
	}
	b.Relationships = append(b.Relationships, result.Relationships...)
	for _, sym := range result.Symbols {
		if sym.CodeContext != "" {
			b.CodeContext[sym.ID] = sym.CodeContext
		}
	}
}

func isNoise(name string) bool {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 2 {
		return true
	}
	if identifierStopWords[strings.ToLower(trimmed)] {
		return true
	}
	isDigits := true
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			isDigits = false
			break
		}
	}
	return isDigits
}

// ShouldFlush reports whether accumulated work has crossed a threshold.
func (b *Buffer) ShouldFlush() bool {
	return len(b.Symbols) >= b.config.MaxSymbols || len(b.Files) >= b.config.MaxFiles
}

// Empty reports whether there is nothing staged.
func (b *Buffer) Empty() bool {
	return len(b.Files) == 0 && len(b.FilesToClean) == 0
}

// Clear resets the buffer to its zero state, ready for the next batch.
func (b *Buffer) Clear() {
	b.Files = nil
	b.FilesToClean = nil
	b.Symbols = nil
	b.Identifiers = nil
	b.Relationships = nil
	b.CodeContext = make(map[string]string)
}
