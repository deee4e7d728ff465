package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryVectorStore is an in-memory implementation of VectorStore.
// It uses a map guarded by an RWMutex and does not persist vectors
// across restarts.
type MemoryVectorStore struct {
	vectors  map[string][]float32
	metadata map[string]map[string]interface{}
	mu       sync.RWMutex
}

// NewMemoryVectorStore creates a new in-memory vector store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		vectors:  make(map[string][]float32),
		metadata: make(map[string]map[string]interface{}),
	}
}

// Upsert stores or replaces the vector and metadata for an ID.
func (m *MemoryVectorStore) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy to avoid external mutations
	embeddingCopy := make([]float32, len(embedding))
	copy(embeddingCopy, embedding)
	m.vectors[id] = embeddingCopy

	if metadata != nil {
		metaCopy := make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			metaCopy[k] = v
		}
		m.metadata[id] = metaCopy
	} else {
		delete(m.metadata, id)
	}

	return nil
}

// Search finds the most similar vectors to the query.
// Returns up to topK filtered hits sorted by similarity score (descending).
func (m *MemoryVectorStore) Search(ctx context.Context, query []float32, topK int, filter *SearchFilter) ([]VectorHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.vectors) == 0 {
		return []VectorHit{}, nil
	}

	var hits []VectorHit
	for id, embedding := range m.vectors {
		meta := m.metadata[id]
		if !filter.matches(meta) {
			continue
		}
		hits = append(hits, VectorHit{
			ID:       id,
			Score:    CosineSimilarity(query, embedding),
			Metadata: meta,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if topK > 0 && topK < len(hits) {
		hits = hits[:topK]
	}

	return hits, nil
}

// Delete removes a vector from the store.
func (m *MemoryVectorStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.vectors, id)
	delete(m.metadata, id)
	return nil
}
