// Package scrollmem provides a persistent memory layer over archived
// conversations: entity extraction into a typed knowledge graph plus
// embedding-based semantic retrieval.
package scrollmem

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrollmem/scrollmem/pkg/chunker"
	"github.com/scrollmem/scrollmem/pkg/embeddings"
	"github.com/scrollmem/scrollmem/pkg/extraction"
	"github.com/scrollmem/scrollmem/pkg/graph"
	"github.com/scrollmem/scrollmem/pkg/metrics"
	"github.com/scrollmem/scrollmem/pkg/search"
	"github.com/scrollmem/scrollmem/pkg/store"
	"github.com/scrollmem/scrollmem/pkg/trace"
)

// Config holds configuration for the memory system
type Config struct {
	// DBPath is the SQLite database file (default: "scrollmem.db",
	// ":memory:" for ephemeral storage)
	DBPath string

	// NERServerURL is the GLiNER-style inference endpoint. Empty means
	// extraction is unavailable and archiving stores zero entities.
	NERServerURL string

	// OpenAIKey authorizes the embedding API. Empty means embeddings are
	// unavailable and semantic search returns empty results.
	OpenAIKey string

	// EmbeddingModel overrides the default embedding model
	EmbeddingModel string

	// EmbeddingBaseURL overrides the embedding API endpoint, e.g. for a
	// local OpenAI-compatible server
	EmbeddingBaseURL string

	// ChunkSize in tokens for embedding long transcripts (default: 512)
	ChunkSize int

	// ChunkOverlap in tokens between chunks (default: 50)
	ChunkOverlap int

	// MaxConcurrentArchives bounds parallel archive pipelines (default: 2)
	MaxConcurrentArchives int

	// TracePath enables JSONL operation traces when built with -tags tracing
	TracePath string

	// Logger defaults to zap.NewNop
	Logger *zap.Logger

	// Metrics defaults to the no-op collector
	Metrics metrics.Collector
}

// Scroll is the main entry point for the memory system.
type Scroll struct {
	config  Config
	logger  *zap.Logger
	metrics metrics.Collector
	tracer  trace.Exporter

	entryStore  *store.SQLiteEntryStore
	graphStore  *store.SQLiteGraphStore
	vectorStore store.VectorStore

	extractor extraction.Extractor
	embedder  embeddings.EmbeddingClient
	chunker   *chunker.Chunker

	graphEngine  *graph.Engine
	searchEngine *search.Engine

	slots chan struct{}
}

// New creates a memory system from the given configuration. All stores
// share a single SQLite database file.
func New(cfg Config) (*Scroll, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = "scrollmem.db"
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 512
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 50
	}
	if cfg.MaxConcurrentArchives <= 0 {
		cfg.MaxConcurrentArchives = 2
	}
	if cfg.TracePath == "" {
		cfg.TracePath = "scrollmem-trace.jsonl"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	tracer, err := trace.NewFileExporter(cfg.TracePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	entryStore, err := store.NewSQLiteEntryStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open entry store: %w", err)
	}

	graphStore, err := store.NewSQLiteGraphStoreWithDB(entryStore.DB())
	if err != nil {
		entryStore.Close()
		return nil, fmt.Errorf("failed to open graph store: %w", err)
	}

	vectorStore, err := store.NewSQLiteVectorStoreWithDB(entryStore.DB())
	if err != nil {
		entryStore.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	extractor := extraction.NewGLiNERClient(cfg.NERServerURL)

	embedder := embeddings.NewOpenAIClient(cfg.OpenAIKey)
	if cfg.EmbeddingModel != "" {
		embedder.Model = cfg.EmbeddingModel
	}
	if cfg.EmbeddingBaseURL != "" {
		embedder.BaseURL = cfg.EmbeddingBaseURL
	}

	c := &chunker.Chunker{
		MaxTokens: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
	}

	s := &Scroll{
		config:       cfg,
		logger:       logger,
		metrics:      collector,
		tracer:       tracer,
		entryStore:   entryStore,
		graphStore:   graphStore,
		vectorStore:  vectorStore,
		extractor:    extractor,
		embedder:     embedder,
		chunker:      c,
		graphEngine:  graph.NewEngine(graphStore, logger, collector),
		searchEngine: search.NewEngine(embedder, vectorStore, entryStore, logger, collector),
		slots:        make(chan struct{}, cfg.MaxConcurrentArchives),
	}

	return s, nil
}

// Search returns entries relevant to the query. See search.Engine.Search
// for degradation behavior.
func (s *Scroll) Search(ctx context.Context, query string, opts *search.Options) ([]search.Result, error) {
	return s.searchEngine.Search(ctx, query, opts)
}

// SearchConversation retrieves archived conversation context for an
// ongoing thread, optionally bounded to a time window. Zero start/end
// times leave the window open.
func (s *Scroll) SearchConversation(ctx context.Context, conversationID, query string, limit int, start, end time.Time) ([]search.Result, error) {
	return s.searchEngine.SearchConversation(ctx, conversationID, query, limit, start, end)
}

// GetEntry retrieves an archived entry by ID.
func (s *Scroll) GetEntry(ctx context.Context, id string) (*store.Entry, error) {
	return s.entryStore.GetEntry(ctx, id)
}

// RecentEntries lists recently archived entries, newest first.
func (s *Scroll) RecentEntries(ctx context.Context, hours int, types []store.EntryType, limit int) ([]*store.Entry, error) {
	return s.entryStore.RecentEntries(ctx, hours, types, limit)
}

// EntitiesForEntry lists graph entities linked to an entry.
func (s *Scroll) EntitiesForEntry(ctx context.Context, entryID string) ([]*store.EntityNode, error) {
	return s.graphStore.EntitiesForEntry(ctx, entryID)
}

// LinksForEntry lists the graph edges pointing at an entry, including
// per-edge confidence and mention counts.
func (s *Scroll) LinksForEntry(ctx context.Context, entryID string) ([]*store.EntityLink, error) {
	return s.graphStore.LinksForEntry(ctx, entryID)
}

// GraphStats summarizes the stored graph and archive.
type GraphStats struct {
	Entries  int64                      `json:"entries"`
	Entities map[store.EntityKind]int64 `json:"entities"`
	Links    map[string]int64           `json:"links"`
}

// Stats returns entry, entity and link counts.
func (s *Scroll) Stats(ctx context.Context) (*GraphStats, error) {
	entries, err := s.entryStore.CountEntries(ctx)
	if err != nil {
		return nil, err
	}

	entityCounts, linkCounts, err := s.graphEngine.Stats(ctx)
	if err != nil {
		return nil, err
	}

	s.metrics.SetStorageCount(ctx, "entries", entries)

	return &GraphStats{
		Entries:  entries,
		Entities: entityCounts,
		Links:    linkCounts,
	}, nil
}

// Close flushes traces and releases database resources.
func (s *Scroll) Close() error {
	if err := s.tracer.Close(); err != nil {
		s.logger.Warn("failed to close trace exporter", zap.Error(err))
	}
	return s.entryStore.Close()
}
