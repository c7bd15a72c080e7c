package extract

import (
	"bytes"
	"path/filepath"

	"github.com/kodewright/miller/internal/store"
)

// fileLevelMaxBytes truncates content kept on the synthetic symbol so a huge
// unparseable file doesn't blow up the embedding batch.
const fileLevelMaxBytes = 10 * 1024

// FileLevelResult builds the single synthetic "file" symbol used for
// content with no tree-sitter grammar: one symbol per file,
// truncated content carried in CodeContext so FTS/embedding still index it.
func FileLevelResult(qualifiedPath, language string, content []byte) store.ExtractionResult {
	if language == "" {
		language = "text"
	}
	truncated := content
	if len(truncated) > fileLevelMaxBytes {
		truncated = truncated[:fileLevelMaxBytes]
	}
	lineCount := bytes.Count(content, []byte("\n")) + 1

	sym := &store.Symbol{
		ID:          symbolID(qualifiedPath, "file", qualifiedPath, 0),
		Name:        filepath.Base(qualifiedPath),
		Kind:        store.KindFile,
		Language:    language,
		FilePath:    qualifiedPath,
		StartByte:   0,
		EndByte:     len(content),
		StartLine:   1,
		EndLine:     lineCount,
		CodeContext: string(truncated),
		Confidence:  1.0,
		ContentType: "file",
		WorkspaceID: workspaceIDOf(qualifiedPath),
	}
	return store.ExtractionResult{Symbols: []*store.Symbol{sym}}
}
