package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Remote API constants.
const (
	// RemoteConnectTimeout bounds the initial dimension-detection probe.
	RemoteConnectTimeout = 5 * time.Second

	// RemotePoolSize is the default HTTP connection pool size.
	RemotePoolSize = 4
)

// RemoteConfig configures the HTTP-based remote embedder.
type RemoteConfig struct {
	// Endpoint is the base URL of the embedding service. Requests are
	// POSTed to Endpoint+"/api/embed" with a {model, input} JSON body and
	// expect a {model, embeddings} JSON response — the same shape Ollama
	// and Ollama-compatible local embedding servers use.
	Endpoint string

	Model      string
	Dimensions int // 0 triggers auto-detection from the first embedding
	BatchSize  int
	Timeout    time.Duration

	ConnectTimeout time.Duration
	MaxRetries     int
	PoolSize       int

	SkipHealthCheck bool
}

// DefaultRemoteConfig returns sensible defaults.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BatchSize:      DefaultBatchSize,
		Timeout:        DefaultTimeout,
		ConnectTimeout: RemoteConnectTimeout,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       RemotePoolSize,
	}
}

type remoteEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string for batch
}

type remoteEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// RemoteEmbedder generates embeddings by calling an HTTP embedding service.
type RemoteEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    RemoteConfig
	modelName string
	dims      int

	mu       sync.RWMutex
	closed   bool
	lastUsed time.Time

	stopIdle chan struct{}
	idleDone chan struct{}
}

var _ Embedder = (*RemoteEmbedder)(nil)

// NewRemoteEmbedder creates a new remote embedder against cfg.Endpoint.
func NewRemoteEmbedder(ctx context.Context, cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote embedder: endpoint must be set")
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = RemoteConnectTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = RemotePoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level Timeout: per-request context timeouts are used
	// instead so callers can bound individual calls independently.
	client := &http.Client{Transport: transport}

	e := &RemoteEmbedder{
		client:    client,
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
		lastUsed:  time.Now(),
		stopIdle:  make(chan struct{}),
		idleDone:  make(chan struct{}),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()

		if e.dims == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("remote embedder: detect dimensions: %w", err)
			}
			e.dims = dims
		} else if _, err := e.doEmbed(checkCtx, []string{"health check"}); err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("remote embedder: health check: %w", err)
		}
	}

	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	go e.runIdleReclaim()

	return e, nil
}

// runIdleReclaim checks every IdleCheckInterval whether the embedder has
// gone ModelUnloadThreshold without an Embed/EmbedBatch call and, if so,
// releases pooled idle connections: the closest equivalent to a GPU unload
// this HTTP-backed embedder can do on its own behalf. A subsequent call
// reconnects transparently.
func (e *RemoteEmbedder) runIdleReclaim() {
	defer close(e.idleDone)
	ticker := time.NewTicker(IdleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopIdle:
			return
		case <-ticker.C:
			e.mu.RLock()
			idleFor := time.Since(e.lastUsed)
			closed := e.closed
			e.mu.RUnlock()
			if !closed && idleFor >= ModelUnloadThreshold {
				e.transport.CloseIdleConnections()
			}
		}
	}
}

// touch records embedder use for idle-reclamation bookkeeping.
func (e *RemoteEmbedder) touch() {
	e.mu.Lock()
	e.lastUsed = time.Now()
	e.mu.Unlock()
}

func (e *RemoteEmbedder) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(embeddings[0]), nil
}

// Embed generates an embedding for a single text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	embeddings, err := e.doEmbedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, batching requests at
// config.BatchSize and passing zero vectors through for blank inputs.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}
	if len(nonEmpty) == 0 {
		return results, nil
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}
		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		embeddings, err := e.doEmbedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// doEmbedWithRetry retries transient failures with exponential backoff.
func (e *RemoteEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = e.config.MaxRetries

	err := DownloadWithRetry(ctx, cfg, func() error {
		timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		emb, err := e.doEmbed(timeoutCtx, texts)
		if err != nil {
			return err
		}
		embeddings = emb
		return nil
	})
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

// doEmbed performs a single request, watching ctx so Ctrl+C can interrupt a
// slow or hung remote service rather than waiting for an HTTP timeout.
func (e *RemoteEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.touch()
	url := e.config.Endpoint + "/api/embed"

	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(remoteEmbedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	type result struct {
		embeddings [][]float32
		err        error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := e.client.Do(req)
		if err != nil {
			resultCh <- result{nil, err}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			resultCh <- result{nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))}
			return
		}

		var apiResult remoteEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
			resultCh <- result{nil, fmt.Errorf("decode response: %w", err)}
			return
		}

		embeddings := make([][]float32, len(apiResult.Embeddings))
		for i, emb := range apiResult.Embeddings {
			embedding := make([]float32, len(emb))
			for j, v := range emb {
				embedding[j] = float32(v)
			}
			embeddings[i] = normalizeVector(embedding)
		}
		resultCh <- result{embeddings, nil}
	}()

	select {
	case <-ctx.Done():
		e.transport.CloseIdleConnections()
		select {
		case <-resultCh:
		case <-time.After(100 * time.Millisecond):
		}
		return nil, ctx.Err()
	case r := <-resultCh:
		return r.embeddings, r.err
	}
}

// Dimensions returns the embedding dimension.
func (e *RemoteEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *RemoteEmbedder) ModelName() string { return e.modelName }

// Available probes the remote service with a tiny embed call.
func (e *RemoteEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, e.config.ConnectTimeout)
	defer cancel()
	_, err := e.doEmbed(checkCtx, []string{"ping"})
	return err == nil
}

// Close releases pooled connections.
func (e *RemoteEmbedder) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopIdle)
	<-e.idleDone

	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
	return nil
}
