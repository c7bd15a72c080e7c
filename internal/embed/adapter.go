package embed

import (
	"context"
	"fmt"

	"github.com/kodewright/miller/internal/config"
)

// Adapter bridges the richer, single-text embed.Embedder (Embed/EmbedBatch/
// Close, used by the caching and retry layers in this package) to the
// narrower batch-only shape consumers such as the Scanner, Pipeline and
// Trace Engine depend on: Embed(ctx, []string), Dimensions, ModelName,
// Available.
type Adapter struct {
	inner Embedder
}

// NewAdapter selects an embedder implementation from cfg.Provider ("static"
// or "remote", enforced by config.Validate), wraps it with an LRU cache sized
// by cfg.CacheSize, and returns the mcp.Embedder-shaped Adapter.
//
// OfflineOnly forces the static provider regardless of cfg.Provider, since a
// remote provider implies network access.
func NewAdapter(ctx context.Context, cfg config.EmbeddingsConfig) (*Adapter, error) {
	provider := cfg.Provider
	if cfg.OfflineOnly {
		provider = "static"
	}

	var inner Embedder
	switch provider {
	case "static":
		inner = NewStaticEmbedderWithDimensions(cfg.Dimensions)
	case "remote":
		remoteCfg := DefaultRemoteConfig()
		remoteCfg.Endpoint = cfg.RemoteEndpoint
		remoteCfg.Model = cfg.Model
		remoteCfg.Dimensions = cfg.Dimensions
		if cfg.BatchSize > 0 {
			remoteCfg.BatchSize = cfg.BatchSize
		}
		if cfg.RequestTimeout > 0 {
			remoteCfg.Timeout = cfg.RequestTimeout
		}
		e, err := NewRemoteEmbedder(ctx, remoteCfg)
		if err != nil {
			return nil, fmt.Errorf("embeddings: build remote provider: %w", err)
		}
		inner = e
	default:
		return nil, fmt.Errorf("embeddings: unknown provider %q", provider)
	}

	inner = NewCachedEmbedder(inner, cfg.CacheSize)
	return &Adapter{inner: inner}, nil
}

// Embed generates embeddings for a batch of texts.
func (a *Adapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return a.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the embedding dimension.
func (a *Adapter) Dimensions() int { return a.inner.Dimensions() }

// ModelName returns the model identifier.
func (a *Adapter) ModelName() string { return a.inner.ModelName() }

// Available reports whether the underlying provider can currently serve
// embedding requests.
func (a *Adapter) Available(ctx context.Context) bool { return a.inner.Available(ctx) }

// Close releases the underlying provider's resources.
func (a *Adapter) Close() error { return a.inner.Close() }
