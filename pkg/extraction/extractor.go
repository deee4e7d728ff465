// Package extraction provides named-entity extraction and normalization
// for archived conversation text.
package extraction

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ExtractedEntity represents a typed entity span returned by the NER model.
type ExtractedEntity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"score"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// DefaultEntityTypes are the labels requested from the NER model for
// conversation processing.
var DefaultEntityTypes = []string{
	"person",
	"organization",
	"project_name",
	"technology",
	"protocol",
	"programming_language",
	"conversation_topic",
	"temporal_reference",
	"tool",
	"framework",
}

// DefaultConfidenceThreshold is the minimum score for a span to be kept.
const DefaultConfidenceThreshold = 0.3

// ErrExtractionUnavailable indicates that no NER model is configured or
// reachable. Callers degrade to "zero entities extracted".
var ErrExtractionUnavailable = errors.New("entity extraction unavailable")

// Extractor defines the entity extraction adapter boundary.
type Extractor interface {
	// Extract returns typed entity spans found in text. An empty or
	// whitespace-only text yields no entities and no error. A nil
	// entityTypes falls back to DefaultEntityTypes.
	Extract(ctx context.Context, text string, entityTypes []string) ([]ExtractedEntity, error)
}

// ConversationEntities groups extraction output for a single conversation,
// ready for metadata enrichment.
type ConversationEntities struct {
	Entities []ExtractedEntity
	// ByLabel maps each label to its deduplicated spans. Spans whose
	// lowercased, trimmed text is identical are collapsed, keeping the
	// highest-confidence span.
	ByLabel        map[string][]ExtractedEntity
	Count          int
	MeanConfidence float64
}

// ExtractForConversation runs extraction over a full conversation and
// groups the result by label with per-label text deduplication.
func ExtractForConversation(ctx context.Context, ex Extractor, text string) (*ConversationEntities, error) {
	entities, err := ex.Extract(ctx, text, nil)
	if err != nil {
		return nil, err
	}

	byLabel := make(map[string][]ExtractedEntity)
	for _, ent := range entities {
		key := strings.ToLower(strings.TrimSpace(ent.Text))
		list := byLabel[ent.Label]

		replaced := false
		for i, seen := range list {
			if strings.ToLower(strings.TrimSpace(seen.Text)) == key {
				if ent.Confidence > seen.Confidence {
					list[i] = ent
				}
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, ent)
		}
		byLabel[ent.Label] = list
	}

	var total float64
	for _, ent := range entities {
		total += ent.Confidence
	}
	mean := 0.0
	if len(entities) > 0 {
		mean = total / float64(len(entities))
	}

	return &ConversationEntities{
		Entities:       entities,
		ByLabel:        byLabel,
		Count:          len(entities),
		MeanConfidence: mean,
	}, nil
}

// Summary renders a human-readable one-line overview of the grouped
// entities, e.g. "person: Jane Doe; technology: Python, Redis".
func (c *ConversationEntities) Summary() string {
	if c == nil || len(c.ByLabel) == 0 {
		return "No entities extracted"
	}

	labels := make([]string, 0, len(c.ByLabel))
	for label := range c.ByLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var parts []string
	for _, label := range labels {
		spans := c.ByLabel[label]
		if len(spans) == 0 {
			continue
		}
		texts := make([]string, len(spans))
		for i, span := range spans {
			texts[i] = span.Text
		}
		parts = append(parts, label+": "+strings.Join(texts, ", "))
	}

	if len(parts) == 0 {
		return "No entities extracted"
	}
	return strings.Join(parts, "; ")
}
