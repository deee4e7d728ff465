package store

import (
	"context"
	"math"
	"time"
)

// VectorHit is a single similarity search result. Metadata carries
// whatever the store kept alongside the vector so callers can fall back
// to an inline payload when the entry store cannot hydrate the ID.
type VectorHit struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchFilter narrows a similarity search. Zero values mean no
// constraint on that axis.
type SearchFilter struct {
	EntryTypes     []EntryType
	ConversationID string
	Start          time.Time
	End            time.Time
}

// Empty reports whether the filter constrains nothing.
func (f *SearchFilter) Empty() bool {
	return f == nil || (len(f.EntryTypes) == 0 && f.ConversationID == "" && f.Start.IsZero() && f.End.IsZero())
}

// matches applies the filter to a hit's metadata. Hits missing a field
// the filter constrains are excluded.
func (f *SearchFilter) matches(metadata map[string]interface{}) bool {
	if f.Empty() {
		return true
	}

	if len(f.EntryTypes) > 0 {
		entryType, _ := metadata["entry_type"].(string)
		found := false
		for _, t := range f.EntryTypes {
			if string(t) == entryType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.ConversationID != "" {
		convID, _ := metadata["conversation_id"].(string)
		if convID != f.ConversationID {
			return false
		}
	}

	if !f.Start.IsZero() || !f.End.IsZero() {
		createdAt, ok := parseMetadataTime(metadata["created_at"])
		if !ok {
			return false
		}
		if !f.Start.IsZero() && createdAt.Before(f.Start) {
			return false
		}
		if !f.End.IsZero() && createdAt.After(f.End) {
			return false
		}
	}

	return true
}

func parseMetadataTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

// VectorStore defines the embedding index boundary.
type VectorStore interface {
	// Upsert stores or replaces the vector and metadata for an ID.
	Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]interface{}) error

	// Search returns up to topK hits most similar to the query, best
	// first, restricted by the filter.
	Search(ctx context.Context, query []float32, topK int, filter *SearchFilter) ([]VectorHit, error)

	// Delete removes a vector. Deleting an absent ID is not an error.
	Delete(ctx context.Context, id string) error
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched lengths or zero-magnitude vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
