package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	codeTokenizerName = "miller_code_tokenizer"
	codeStopFilterName = "miller_code_stop"
	codeAnalyzerName   = "miller_code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(codeStopFilterName, codeStopFilterConstructor)
}

// patternDocument is the document shape indexed by Bleve: the literal
// "{kind} {name} {signature}" pattern, punctuation preserved, so a query
// like "func NewEngine(" can phrase-match a definition.
type patternDocument struct {
	Pattern string `json:"pattern"`
}

// patternIndex is the pattern-search component of the Vector Store, a
// Bleve BM25 backend and the concrete consumer of the code-aware
// tokenizer/analyzer it registers.
type patternIndex struct {
	mu     sync.RWMutex
	idx    bleve.Index
	path   string
	closed bool
}

func newPatternIndex(path string) (*patternIndex, error) {
	indexMapping, err := createPatternMapping()
	if err != nil {
		return nil, fmt.Errorf("create pattern mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create pattern index dir: %w", mkErr)
		}
		if validErr := validatePatternIntegrity(path); validErr != nil {
			slog.Warn("pattern_index_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("pattern index corrupted at %s and cannot remove: %w (original: %v)", path, rmErr, validErr)
			}
			slog.Info("pattern_index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isPatternCorruption(err) {
			slog.Warn("pattern_index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("pattern index corrupted, cannot clear: %w (original: %v)", rmErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create/open pattern index: %w", err)
	}
	return &patternIndex{idx: idx, path: path}, nil
}

func validatePatternIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isPatternCorruption(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

func createPatternMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			codeStopFilterName,
		},
	})
	if err != nil {
		return nil, err
	}
	indexMapping.DefaultAnalyzer = codeAnalyzerName
	return indexMapping, nil
}

func (p *patternIndex) index(ctx context.Context, rows []VectorRow) error {
	if len(rows) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("pattern index is closed")
	}
	batch := p.idx.NewBatch()
	for _, r := range rows {
		if err := batch.Index(r.ID, patternDocument{Pattern: r.CodePattern}); err != nil {
			return fmt.Errorf("index pattern doc %s: %w", r.ID, err)
		}
	}
	return p.idx.Batch(batch)
}

func (p *patternIndex) search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, fmt.Errorf("pattern index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("pattern")
	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	result, err := p.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("pattern search: %w", err)
	}
	out := make([]SearchResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, SearchResult{ID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

func (p *patternIndex) delete(docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("pattern index is closed")
	}
	batch := p.idx.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	return p.idx.Batch(batch)
}

func (p *patternIndex) count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, _ := p.idx.DocCount()
	return int(n)
}

func (p *patternIndex) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.idx.Close()
}

// codeTokenizerConstructor adapts TokenizeCode for Bleve's analyzer pipeline.
func codeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &codeTokenizer{}, nil
}

type codeTokenizer struct{}

func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizeCode(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), strings.ToLower(token))
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

func codeStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &codeStopFilter{stopWords: BuildStopWordMap(defaultCodeStopWords)}, nil
}

type codeStopFilter struct {
	stopWords map[string]struct{}
}

func (f *codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// defaultCodeStopWords are near-universal code-identifier filler words that
// add noise to pattern and text search without narrowing results.
var defaultCodeStopWords = []string{
	"the", "a", "an", "is", "at", "of", "to", "in", "for", "on", "with",
	"get", "set", "new", "this", "self",
}
