package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrollmem/scrollmem/pkg/embeddings"
	"github.com/scrollmem/scrollmem/pkg/metrics"
	"github.com/scrollmem/scrollmem/pkg/store"
)

// Engine runs semantic searches: embed the query, rank vectors, hydrate
// the hits from the entry store. Every external dependency may be
// absent or failing; the engine degrades rather than erroring where the
// caller can still be served.
type Engine struct {
	embedder    embeddings.EmbeddingClient
	vectorStore store.VectorStore
	entryStore  store.EntryStore
	logger      *zap.Logger
	metrics     metrics.Collector
}

// NewEngine creates a search engine. The embedder and vector store may
// be nil, in which case searches fall back to recency listing. A nil
// logger defaults to zap.NewNop and a nil collector to the no-op
// collector.
func NewEngine(embedder embeddings.EmbeddingClient, vectorStore store.VectorStore, entryStore store.EntryStore, logger *zap.Logger, collector metrics.Collector) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	return &Engine{
		embedder:    embedder,
		vectorStore: vectorStore,
		entryStore:  entryStore,
		logger:      logger,
		metrics:     collector,
	}
}

// Search returns up to opts.Limit entries relevant to the query, best
// first. A failed query embedding yields empty results, never an error;
// a missing vector backend falls back to recent entries.
func (e *Engine) Search(ctx context.Context, query string, opts *Options) ([]Result, error) {
	start := time.Now()
	limit := opts.limit()

	if e.vectorStore == nil || e.embedder == nil {
		return e.recentFallback(ctx, opts, limit)
	}

	queryVec, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		e.embedDegraded(ctx, "search", err)
		return []Result{}, nil
	}

	results, err := e.vectorSearch(ctx, queryVec, limit, opts.filter())
	if err != nil {
		return nil, err
	}

	e.metrics.RecordOperation(ctx, "search", "success", time.Since(start).Milliseconds())
	return results, nil
}

// SearchConversation retrieves context for an ongoing conversation:
// archived conversations relevant to the query, across all threads so
// past discussions can surface. An optional time window bounds the
// first pass; when the bounded pass yields nothing the search retries
// exactly once with the window dropped.
func (e *Engine) SearchConversation(ctx context.Context, conversationID, query string, limit int, start, end time.Time) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultConversationLimit
	}

	if e.vectorStore == nil || e.embedder == nil {
		return []Result{}, nil
	}

	queryVec, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		e.embedDegraded(ctx, "conversation_search", err)
		return []Result{}, nil
	}

	bounded := &store.SearchFilter{
		EntryTypes: []store.EntryType{store.EntryTypeConversation},
		Start:      start,
		End:        end,
	}
	results, err := e.vectorSearch(ctx, queryVec, limit, bounded)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 && (!start.IsZero() || !end.IsZero()) {
		e.logger.Debug("bounded context search empty, retrying without time window",
			zap.String("conversation_id", conversationID))
		relaxed := &store.SearchFilter{
			EntryTypes: []store.EntryType{store.EntryTypeConversation},
		}
		results, err = e.vectorSearch(ctx, queryVec, limit, relaxed)
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}

// embedDegraded logs and counts a failed query embedding. Every embed
// failure, including dimension mismatches and API errors, degrades the
// search to empty results rather than an error.
func (e *Engine) embedDegraded(ctx context.Context, operation string, err error) {
	if errors.Is(err, embeddings.ErrEmbeddingUnavailable) {
		e.logger.Warn("embedding model unavailable, returning empty results", zap.Error(err))
	} else {
		e.logger.Warn("query embedding failed, returning empty results", zap.Error(err))
	}
	e.metrics.RecordError(ctx, operation, "model")
}

func (e *Engine) vectorSearch(ctx context.Context, queryVec []float32, limit int, filter *store.SearchFilter) ([]Result, error) {
	hits, err := e.vectorStore.Search(ctx, queryVec, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		entry, partial := e.hydrate(ctx, hit)
		if entry == nil {
			continue
		}
		results = append(results, Result{
			Entry:   entry,
			Score:   hit.Score,
			Source:  SourceVector,
			Partial: partial,
		})
	}

	return results, nil
}

// hydrate resolves a vector hit to its entry. When the entry store
// cannot serve the ID, a minimal record is rebuilt from the hit's inline
// payload; hits with no usable payload are dropped.
func (e *Engine) hydrate(ctx context.Context, hit store.VectorHit) (*store.Entry, bool) {
	if e.entryStore != nil && hit.ID != "" {
		entry, err := e.entryStore.GetEntry(ctx, hit.ID)
		if err == nil {
			return entry, false
		}
		if !errors.Is(err, store.ErrEntryNotFound) {
			e.logger.Warn("entry hydration failed",
				zap.String("entry_id", hit.ID),
				zap.Error(err))
		}
	}

	return minimalEntry(hit), true
}

// minimalEntry rebuilds an entry from the vector store's inline
// metadata. Returns nil when the payload lacks both content and an
// entry type, in which case the hit carries nothing worth returning.
func minimalEntry(hit store.VectorHit) *store.Entry {
	content, _ := hit.Metadata["content"].(string)
	entryType, _ := hit.Metadata["entry_type"].(string)
	if content == "" && entryType == "" {
		return nil
	}

	id := hit.ID
	if id == "" {
		hash := sha256.Sum256([]byte(content))
		id = hex.EncodeToString(hash[:8])
	}

	entry := &store.Entry{
		ID:      id,
		Type:    store.EntryType(entryType),
		Content: content,
	}
	if convID, ok := hit.Metadata["conversation_id"].(string); ok {
		entry.ConversationID = convID
	}
	if createdAt, ok := hit.Metadata["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			entry.CreatedAt = t
		}
	}

	return entry
}

// recentFallback serves a search with no semantic backend by listing
// recent entries instead. The options' time window applies here too.
func (e *Engine) recentFallback(ctx context.Context, opts *Options, limit int) ([]Result, error) {
	if e.entryStore == nil {
		return []Result{}, nil
	}

	var types []store.EntryType
	if opts != nil {
		types = opts.EntryTypes
	}

	e.logger.Debug("no semantic backend, falling back to recency listing")

	entries, err := e.entryStore.RecentEntries(ctx, 0, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent entries: %w", err)
	}

	results := make([]Result, 0, len(entries))
	for _, entry := range entries {
		if opts != nil {
			if !opts.Start.IsZero() && entry.CreatedAt.Before(opts.Start) {
				continue
			}
			if !opts.End.IsZero() && entry.CreatedAt.After(opts.End) {
				continue
			}
		}
		results = append(results, Result{Entry: entry, Source: SourceRecency})
	}
	return results, nil
}
