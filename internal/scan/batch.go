package scan

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/kodewright/miller/internal/buffer"
	"github.com/kodewright/miller/internal/store"
	"github.com/kodewright/miller/internal/workspace"
)

// extracted pairs one file's staged data with its extraction result, ready
// to feed the buffer in discovery order.
type extracted struct {
	file          discoveredFile
	action        string
	qualifiedPath string
	content       []byte
	language      string
	hash          string
	result        store.ExtractionResult
}

// processBatch reads, extracts (in parallel, bounded), buffers, embeds once,
// and commits up to config.BatchSize files.
func (s *Scanner) processBatch(ctx context.Context, files []changedFile) (*store.IncrementalUpdateCounts, error) {
	results, err := s.extractBatch(ctx, files)
	if err != nil {
		return nil, err
	}

	buf := buffer.New(buffer.Config{MaxSymbols: s.config.BatchSize * 10})
	for _, r := range results {
		buf.AddFile(
			store.FileDataTuple{
				RelativePath: r.file.relPath,
				Language:     r.language,
				Content:      string(r.content),
				ContentHash:  r.hash,
				Size:         r.file.size,
				ModTime:      r.file.modTime,
			},
			r.result,
			r.action == "updated",
			r.qualifiedPath,
		)
	}

	return s.flush(ctx, buf)
}

// extractBatch parses every file in the batch concurrently; a worker pool
// bounded by config.Concurrency caps CPU-bound parser load the way the
// Reachability Engine bounds its BFS fan-out.
func (s *Scanner) extractBatch(ctx context.Context, files []changedFile) ([]extracted, error) {
	out := make([]extracted, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for i, cf := range files {
		i, cf := i, cf
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			content, err := os.ReadFile(cf.file.absPath)
			if err != nil {
				return nil // file vanished mid-scan; skip rather than fail the batch
			}
			qp := workspace.QualifiedPath(s.ws.ID, cf.file.relPath)
			language := detectLanguage(cf.file.relPath)
			result := s.extractor.Extract(gctx, qp, language, content)
			out[i] = extracted{
				file:          cf.file,
				action:        cf.action,
				qualifiedPath: qp,
				content:       content,
				language:      language,
				hash:          hashContent(content),
				result:        result,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract batch: %w", err)
	}

	filtered := out[:0]
	for _, e := range out {
		if e.qualifiedPath != "" {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// flush computes one embedding pass over everything buffered, then commits
// the atomic relational update and the matching vector-store delta in the
// same logical step.
func (s *Scanner) flush(ctx context.Context, buf *buffer.Buffer) (*store.IncrementalUpdateCounts, error) {
	if buf.Empty() {
		return &store.IncrementalUpdateCounts{}, nil
	}

	vectorRows, err := s.embedSymbols(ctx, buf.Symbols, buf.CodeContext)
	if err != nil {
		return nil, fmt.Errorf("embed symbols: %w", err)
	}

	counts, err := s.relStore.IncrementalUpdateAtomic(ctx, buf.FilesToClean, buf.Files, s.ws.ID,
		buf.Symbols, buf.Identifiers, buf.Relationships, buf.CodeContext)
	if err != nil {
		return nil, fmt.Errorf("incremental update: %w", err)
	}

	if len(buf.FilesToClean) > 0 {
		if err := s.vecStore.DeleteFilesBatch(ctx, buf.FilesToClean); err != nil {
			return nil, fmt.Errorf("delete stale vectors: %w", err)
		}
	}
	if len(vectorRows) > 0 {
		if err := s.vecStore.AddSymbols(ctx, vectorRows); err != nil {
			return nil, fmt.Errorf("append vectors: %w", err)
		}
	}

	return counts, nil
}

// embedSymbols batches symbol text through the Embedder once per flush. A
// nil Embedder (none wired yet) degrades to zero vectors rather than
// failing indexing — the relational index stays fully usable for text and
// pattern search either way.
func (s *Scanner) embedSymbols(ctx context.Context, symbols []*store.Symbol, codeContext map[string]string) ([]store.VectorRow, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	texts := make([]string, len(symbols))
	for i, sym := range symbols {
		texts[i] = embeddingText(sym, codeContext[sym.ID])
	}

	var vectors [][]float32
	if s.embedder != nil {
		var err error
		vectors, err = s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
	}

	rows := make([]store.VectorRow, len(symbols))
	for i, sym := range symbols {
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		rows[i] = store.VectorRow{
			ID:          sym.ID,
			WorkspaceID: sym.WorkspaceID,
			Name:        sym.Name,
			Kind:        string(sym.Kind),
			Language:    sym.Language,
			FilePath:    sym.FilePath,
			Signature:   sym.Signature,
			DocComment:  sym.DocComment,
			CodeContext: codeContext[sym.ID],
			CodePattern: fmt.Sprintf("%s %s %s", sym.Kind, sym.Name, sym.Signature),
			StartLine:   sym.StartLine,
			EndLine:     sym.EndLine,
			Vector:      vec,
		}
	}
	return rows, nil
}

func embeddingText(sym *store.Symbol, context string) string {
	parts := []string{sym.Name, sym.Signature, sym.DocComment}
	if context != "" {
		parts = append(parts, context)
	}
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p
	}
	return out
}
