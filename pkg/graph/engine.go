// Package graph turns extracted entity spans into typed knowledge-graph
// writes: merge-by-normalized-key node upserts and entity-to-entry edges.
package graph

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrollmem/scrollmem/pkg/extraction"
	"github.com/scrollmem/scrollmem/pkg/metrics"
	"github.com/scrollmem/scrollmem/pkg/store"
)

const lockStripes = 64

// Engine routes extracted entities into the graph store. Writes for the
// same entity key are serialized through striped mutexes so concurrent
// batches never race a node's read-modify-write merge.
type Engine struct {
	store   store.EntityGraphStore
	logger  *zap.Logger
	metrics metrics.Collector
	locks   [lockStripes]sync.Mutex
}

// NewEngine creates a graph engine. A nil logger defaults to zap.NewNop
// and a nil collector to the no-op collector.
func NewEngine(graphStore store.EntityGraphStore, logger *zap.Logger, collector metrics.Collector) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	return &Engine{
		store:   graphStore,
		logger:  logger,
		metrics: collector,
	}
}

// BatchReport summarizes one batch of entity writes for a single entry.
type BatchReport struct {
	Stored  map[store.EntityKind]int
	Skipped int
	Errors  []error
}

// KindForLabel maps an extraction label to its graph node kind. Person
// and organization labels map directly; every other label routes by
// vocabulary membership: technology terms become Technology nodes and
// the rest become Topic nodes.
func KindForLabel(label, text string) store.EntityKind {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "person":
		return store.KindPerson
	case "organization":
		return store.KindOrganization
	}
	if extraction.IsTechnologyTerm(text) {
		return store.KindTechnology
	}
	return store.KindTopic
}

// MergeEntity upserts one entity node under its stripe lock and returns
// the node as stored.
func (e *Engine) MergeEntity(ctx context.Context, ent extraction.ExtractedEntity, observedAt time.Time) (*store.EntityNode, error) {
	if strings.TrimSpace(ent.Text) == "" {
		return nil, fmt.Errorf("entity text is empty")
	}

	kind := KindForLabel(ent.Label, ent.Text)
	key := extraction.NormalizeKey(ent.Text)

	node := &store.EntityNode{
		Kind:          kind,
		Name:          strings.TrimSpace(ent.Text),
		NormalizedKey: key,
		Confidence:    ent.Confidence,
	}

	switch kind {
	case store.KindTechnology:
		node.Category = extraction.CategorizeTechnology(ent.Text)
	case store.KindTopic:
		node.Category = extraction.CategorizeTopic(ent.Text)
	}

	lock := e.lockFor(kind, key)
	lock.Lock()
	defer lock.Unlock()

	merged, err := e.store.MergeEntity(ctx, node, observedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to merge entity %q: %w", key, err)
	}

	return merged, nil
}

// LinkEntityToEntry connects a merged entity to the entry it appeared
// in. The edge carries this sighting's confidence and descriptive
// attributes built from the entry title; the store keeps the attributes
// from the first link and raises confidence to the maximum observed.
func (e *Engine) LinkEntityToEntry(ctx context.Context, node *store.EntityNode, entryID, entryTitle string, confidence float64) error {
	lock := e.lockFor(node.Kind, node.NormalizedKey)
	lock.Lock()
	defer lock.Unlock()

	err := e.store.LinkEntityToEntry(ctx, &store.EntityLink{
		Kind:          node.Kind,
		NormalizedKey: node.NormalizedKey,
		EntryID:       entryID,
		Relation:      node.Kind.Relation(),
		Confidence:    confidence,
		Attrs:         createAttrs(node.Kind, entryTitle),
	})
	if err != nil {
		return fmt.Errorf("failed to link entity %q to entry %s: %w", node.NormalizedKey, entryID, err)
	}
	return nil
}

// ProcessBatch merges every extracted entity for an entry and links it
// back to that entry. Blank spans are skipped silently; a failed entity
// is logged and counted but does not abort the rest of the batch.
func (e *Engine) ProcessBatch(ctx context.Context, entryID, entryTitle string, entities []extraction.ExtractedEntity, observedAt time.Time) *BatchReport {
	report := &BatchReport{Stored: make(map[store.EntityKind]int)}

	for _, ent := range entities {
		if strings.TrimSpace(ent.Text) == "" {
			report.Skipped++
			continue
		}

		node, err := e.MergeEntity(ctx, ent, observedAt)
		if err != nil {
			e.logger.Warn("entity merge failed",
				zap.String("entry_id", entryID),
				zap.String("label", ent.Label),
				zap.Error(err))
			report.Errors = append(report.Errors, err)
			continue
		}

		if err := e.LinkEntityToEntry(ctx, node, entryID, entryTitle, ent.Confidence); err != nil {
			e.logger.Warn("entity link failed",
				zap.String("entry_id", entryID),
				zap.String("key", node.NormalizedKey),
				zap.Error(err))
			report.Errors = append(report.Errors, err)
			continue
		}

		report.Stored[node.Kind]++
	}

	for kind, count := range report.Stored {
		e.metrics.RecordEntities(ctx, string(kind), int64(count))
	}

	e.logger.Debug("entity batch processed",
		zap.String("entry_id", entryID),
		zap.Int("stored", totalStored(report.Stored)),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)))

	return report
}

// Stats returns node counts per kind and edge counts per relation.
func (e *Engine) Stats(ctx context.Context) (map[store.EntityKind]int64, map[string]int64, error) {
	entityCounts, err := e.store.EntityCounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count entities: %w", err)
	}
	linkCounts, err := e.store.LinkCounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count links: %w", err)
	}
	return entityCounts, linkCounts, nil
}

func (e *Engine) lockFor(kind store.EntityKind, key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(string(kind)))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return &e.locks[h.Sum32()%lockStripes]
}

// createAttrs builds the creation-time attributes for an edge. These are
// set once and never overwritten by later links.
func createAttrs(kind store.EntityKind, entryTitle string) map[string]interface{} {
	if entryTitle == "" {
		return nil
	}
	switch kind {
	case store.KindPerson, store.KindOrganization:
		return map[string]interface{}{"context": entryTitle}
	case store.KindTechnology:
		return map[string]interface{}{"usage_context": entryTitle}
	case store.KindTopic:
		return map[string]interface{}{"first_context": entryTitle}
	}
	return nil
}

func totalStored(stored map[store.EntityKind]int) int {
	total := 0
	for _, n := range stored {
		total += n
	}
	return total
}
