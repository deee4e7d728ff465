// Package embeddings provides clients for generating text embeddings.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// Dim is the embedding dimension shared with the vector store schema.
// It matches all-MiniLM-class sentence embedding models.
const Dim = 384

// ErrEmbeddingUnavailable indicates that no embedding model is configured
// or reachable. Search callers degrade to empty results.
var ErrEmbeddingUnavailable = errors.New("embedding model unavailable")

// DimensionMismatchError indicates that the model returned a vector whose
// dimension does not match the store schema.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}

// EmbeddingClient defines the interface for generating text embeddings.
type EmbeddingClient interface {
	// Embed generates embeddings for multiple texts
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedOne generates an embedding for a single text
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}
