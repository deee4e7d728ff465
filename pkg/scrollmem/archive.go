package scrollmem

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrollmem/scrollmem/pkg/embeddings"
	"github.com/scrollmem/scrollmem/pkg/extraction"
	"github.com/scrollmem/scrollmem/pkg/store"
	"github.com/scrollmem/scrollmem/pkg/trace"
)

// Turn is a single utterance in a conversation to archive.
type Turn struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// ConversationInput is a finished conversation ready for archiving.
type ConversationInput struct {
	// ConversationID ties the entry back to a live conversation thread.
	// Optional; generated when empty.
	ConversationID string

	// Title describes the conversation, used for entity context attrs.
	Title string

	// Turns are the conversation's messages in order.
	Turns []Turn

	// OccurredAt is when the conversation happened (default: now).
	OccurredAt time.Time

	// Metadata is merged into the entry's metadata as-is.
	Metadata map[string]interface{}
}

// ArchiveResult reports what one archive operation produced.
type ArchiveResult struct {
	EntryID        string
	ConversationID string
	EntityCount    int
	EntitySummary  string
	Embedded       bool
	GraphStored    map[store.EntityKind]int
}

// ArchiveConversation runs the full ingestion pipeline for one
// conversation: extract entities, persist the entry with enriched
// metadata, index its embedding, and merge entities into the graph.
//
// The entry write is the only hard dependency. Extraction, embedding
// and graph failures degrade: the conversation is still archived and
// the degradation is logged and counted.
func (s *Scroll) ArchiveConversation(ctx context.Context, input *ConversationInput) (*ArchiveResult, error) {
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	var spans []trace.SpanRecord

	transcript := formatTranscript(input.Turns)
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("conversation is empty")
	}

	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	// Extraction. Unavailable or failing extraction degrades to zero
	// entities; the conversation is archived regardless.
	extractStart := time.Now()
	entities, extractErr := extraction.ExtractForConversation(ctx, s.extractor, transcript)
	if extractErr != nil {
		if !errors.Is(extractErr, extraction.ErrExtractionUnavailable) {
			s.logger.Warn("entity extraction failed", zap.Error(extractErr))
		}
		s.metrics.RecordError(ctx, "archive", ClassifyError(extractErr))
		entities = &extraction.ConversationEntities{}
	}
	spans = append(spans, trace.SpanRecord{
		Name:       "extract",
		DurationMs: time.Since(extractStart).Milliseconds(),
		OK:         extractErr == nil,
		ErrorType:  ClassifyError(extractErr),
		Counters:   map[string]int64{"entityCount": int64(entities.Count)},
	})

	// Entry write. This is the durability point; failure aborts.
	entry := &store.Entry{
		ConversationID: conversationID,
		Type:           store.EntryTypeConversation,
		Content:        transcript,
		CreatedAt:      occurredAt,
		Metadata:       buildMetadata(input, entities),
	}

	saveStart := time.Now()
	if err := s.entryStore.SaveEntry(ctx, entry); err != nil {
		s.metrics.RecordError(ctx, "archive", ClassifyError(err))
		s.exportTrace(ctx, "archive", start, "error", ClassifyError(err), spans, nil)
		return nil, fmt.Errorf("failed to archive conversation: %w", err)
	}
	spans = append(spans, trace.SpanRecord{
		Name:       "save-entry",
		DurationMs: time.Since(saveStart).Milliseconds(),
		OK:         true,
	})

	// Embedding. Long transcripts are chunked and the chunk vectors
	// averaged so one vector represents the whole entry.
	embedded := s.indexEmbedding(ctx, entry, &spans)

	// Graph merge. Failures here never fail the archive.
	graphStart := time.Now()
	report := s.graphEngine.ProcessBatch(ctx, entry.ID, input.Title, entities.Entities, occurredAt)
	var nodeUpserts int64
	for _, n := range report.Stored {
		nodeUpserts += int64(n)
	}
	spans = append(spans, trace.SpanRecord{
		Name:       "write-graph",
		DurationMs: time.Since(graphStart).Milliseconds(),
		OK:         len(report.Errors) == 0,
		Counters:   map[string]int64{"nodeUpserts": nodeUpserts},
	})

	s.metrics.RecordOperation(ctx, "archive", "success", time.Since(start).Milliseconds())
	s.exportTrace(ctx, "archive", start, "success", "", spans, map[string]interface{}{
		"entryId":        entry.ID,
		"conversationId": conversationID,
	})

	s.logger.Info("conversation archived",
		zap.String("entry_id", entry.ID),
		zap.String("conversation_id", conversationID),
		zap.Int("entities", entities.Count),
		zap.Bool("embedded", embedded))

	return &ArchiveResult{
		EntryID:        entry.ID,
		ConversationID: conversationID,
		EntityCount:    entities.Count,
		EntitySummary:  entities.Summary(),
		Embedded:       embedded,
		GraphStored:    report.Stored,
	}, nil
}

// indexEmbedding embeds the entry content and upserts it into the
// vector store. Returns false when the embedding path degraded.
func (s *Scroll) indexEmbedding(ctx context.Context, entry *store.Entry, spans *[]trace.SpanRecord) bool {
	embedStart := time.Now()

	chunks := s.chunker.Chunk(entry.Content)
	if len(chunks) == 0 {
		return false
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, embeddings.ErrEmbeddingUnavailable) {
			s.logger.Debug("embedding unavailable, entry archived without vector",
				zap.String("entry_id", entry.ID))
		} else {
			s.logger.Warn("embedding failed", zap.String("entry_id", entry.ID), zap.Error(err))
		}
		s.metrics.RecordError(ctx, "archive", ClassifyError(err))
		*spans = append(*spans, trace.SpanRecord{
			Name:       "embed",
			DurationMs: time.Since(embedStart).Milliseconds(),
			OK:         false,
			ErrorType:  ClassifyError(err),
		})
		return false
	}

	vector := averageVectors(vectors)
	if vector == nil {
		return false
	}

	*spans = append(*spans, trace.SpanRecord{
		Name:       "embed",
		DurationMs: time.Since(embedStart).Milliseconds(),
		OK:         true,
		Counters:   map[string]int64{"chunkCount": int64(len(chunks))},
	})

	writeStart := time.Now()
	err = s.vectorStore.Upsert(ctx, entry.ID, vector, map[string]interface{}{
		"entry_type":      string(entry.Type),
		"conversation_id": entry.ConversationID,
		"created_at":      entry.CreatedAt.Format(time.RFC3339),
		"content":         entry.Content,
	})
	if err != nil {
		s.logger.Warn("vector upsert failed", zap.String("entry_id", entry.ID), zap.Error(err))
		s.metrics.RecordError(ctx, "archive", ClassifyError(err))
		*spans = append(*spans, trace.SpanRecord{
			Name:       "write-vector",
			DurationMs: time.Since(writeStart).Milliseconds(),
			OK:         false,
			ErrorType:  ClassifyError(err),
		})
		return false
	}

	*spans = append(*spans, trace.SpanRecord{
		Name:       "write-vector",
		DurationMs: time.Since(writeStart).Milliseconds(),
		OK:         true,
	})
	return true
}

func (s *Scroll) exportTrace(ctx context.Context, operation string, start time.Time, status, errorType string, spans []trace.SpanRecord, ids map[string]interface{}) {
	record := &trace.TraceRecord{
		Timestamp:   start,
		OperationID: uuid.New().String(),
		Operation:   operation,
		DurationMs:  time.Since(start).Milliseconds(),
		Status:      status,
		ErrorType:   errorType,
		Spans:       spans,
		IDs:         ids,
	}
	if err := s.tracer.Export(ctx, record); err != nil {
		s.logger.Warn("trace export failed", zap.Error(err))
	}
}

// formatTranscript renders turns as "sender: content" blocks, one per
// line, skipping empty contents.
func formatTranscript(turns []Turn) string {
	var lines []string
	for _, turn := range turns {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		sender := strings.TrimSpace(turn.Sender)
		if sender == "" {
			sender = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", sender, content))
	}
	return strings.Join(lines, "\n")
}

// buildMetadata assembles entry metadata: caller-provided fields plus
// participant and entity enrichment.
func buildMetadata(input *ConversationInput, entities *extraction.ConversationEntities) map[string]interface{} {
	metadata := make(map[string]interface{})
	for k, v := range input.Metadata {
		metadata[k] = v
	}

	if input.Title != "" {
		metadata["title"] = input.Title
	}

	speakers := make(map[string]bool)
	var participants []string
	for _, turn := range input.Turns {
		sender := strings.TrimSpace(turn.Sender)
		if sender == "" || speakers[sender] {
			continue
		}
		speakers[sender] = true
		participants = append(participants, sender)
	}
	sort.Strings(participants)
	metadata["participants"] = participants
	metadata["speaker_count"] = len(participants)
	metadata["message_count"] = len(input.Turns)

	metadata["entity_count"] = entities.Count
	if entities.Count > 0 {
		metadata["entity_summary"] = entities.Summary()
		metadata["entity_mean_confidence"] = entities.MeanConfidence
		metadata["entities_by_type"] = entities.ByLabel
	}

	return metadata
}

// averageVectors computes the element-wise mean of equal-length vectors.
func averageVectors(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	if len(vectors) == 1 {
		return vectors[0]
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, vec := range vectors {
		if len(vec) != dim {
			return nil
		}
		for i, v := range vec {
			sum[i] += float64(v)
		}
	}

	avg := make([]float32, dim)
	for i, v := range sum {
		avg[i] = float32(v / float64(len(vectors)))
	}
	return avg
}
