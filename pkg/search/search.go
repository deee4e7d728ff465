// Package search provides semantic retrieval over archived entries with
// hydration fallback and graceful degradation when the embedding model
// is unavailable.
package search

import (
	"time"

	"github.com/scrollmem/scrollmem/pkg/store"
)

const (
	// DefaultLimit is the result cap for general searches.
	DefaultLimit = 5

	// DefaultConversationLimit is the result cap for conversation-scoped
	// context searches.
	DefaultConversationLimit = 3
)

// Source identifies how a result was produced.
type Source string

const (
	// SourceVector marks results from embedding similarity search.
	SourceVector Source = "vector"

	// SourceRecency marks results from the recency fallback used when no
	// semantic search is possible.
	SourceRecency Source = "recency"
)

// Result is a single search hit: the hydrated entry plus its similarity
// score. Entries that could not be fully hydrated carry a minimal record
// rebuilt from the vector store's inline payload.
type Result struct {
	Entry   *store.Entry `json:"entry"`
	Score   float64      `json:"score"`
	Source  Source       `json:"source"`
	Partial bool         `json:"partial,omitempty"`
}

// Options narrows a search. The zero value means: all entry types, no
// time window, DefaultLimit results.
type Options struct {
	EntryTypes []store.EntryType
	Start      time.Time
	End        time.Time
	Limit      int
}

func (o *Options) limit() int {
	if o == nil || o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}

func (o *Options) filter() *store.SearchFilter {
	if o == nil {
		return nil
	}
	f := &store.SearchFilter{
		EntryTypes: o.EntryTypes,
		Start:      o.Start,
		End:        o.End,
	}
	if f.Empty() {
		return nil
	}
	return f
}
