package store

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// hnswIndex is the semantic (ANN) component of the Vector Store: a
// pure-Go HNSW graph over symbol embedding vectors, keyed by symbol ID.
// IDs are mapped to the uint64 keys coder/hnsw requires.
type hnswIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

func newHNSWIndex(cfg VectorStoreConfig) *hnswIndex {
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &hnswIndex{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		nextKey: 0,
	}
}

// add inserts or replaces vectors by symbol ID. Replacement uses lazy
// deletion: the stale node stays in the graph but is orphaned from the
// id maps, since coder/hnsw cannot safely delete the last live node.
func (h *hnswIndex) add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("vector index is closed")
	}
	for _, v := range vectors {
		if len(v) != h.config.Dimensions {
			return ErrDimensionMismatch{Expected: h.config.Dimensions, Got: len(v)}
		}
	}
	for i, id := range ids {
		if existingKey, exists := h.idMap[id]; exists {
			delete(h.keyMap, existingKey)
			delete(h.idMap, id)
		}
		key := h.nextKey
		h.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if h.config.Metric != "l2" {
			normalizeVectorInPlace(vec)
		}

		h.graph.Add(hnsw.MakeNode(key, vec))
		h.idMap[id] = key
		h.keyMap[key] = id
	}
	return nil
}

func (h *hnswIndex) delete(ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if key, exists := h.idMap[id]; exists {
			delete(h.keyMap, key)
			delete(h.idMap, id)
		}
	}
}

func (h *hnswIndex) search(query []float32, k int) ([]SearchResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != h.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: h.config.Dimensions, Got: len(query)}
	}
	if h.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if h.config.Metric != "l2" {
		normalizeVectorInPlace(q)
	}

	nodes := h.graph.Search(q, k)
	out := make([]SearchResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := h.keyMap[node.Key]
		if !ok {
			continue // orphaned (lazily deleted) node
		}
		dist := h.graph.Distance(q, node.Value)
		out = append(out, SearchResult{
			ID:       id,
			Score:    distanceToScore(dist, h.config.Metric),
			Distance: float64(dist),
		})
	}
	return out, nil
}

func (h *hnswIndex) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idMap)
}

func (h *hnswIndex) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.graph = nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore normalizes a raw distance into a [0,1] similarity score.
func distanceToScore(distance float32, metric string) float64 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + float64(distance))
	default: // cosine: ranges 0 (identical) to 2 (opposite)
		return 1.0 - float64(distance)/2.0
	}
}
