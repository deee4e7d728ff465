package extraction

import (
	"context"
	"strings"
	"testing"
)

// mockExtractor returns canned entity spans.
type mockExtractor struct {
	entities []ExtractedEntity
	err      error
}

func (m *mockExtractor) Extract(ctx context.Context, text string, entityTypes []string) ([]ExtractedEntity, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.entities, nil
}

func TestExtractForConversationDedupesPerLabel(t *testing.T) {
	ex := &mockExtractor{entities: []ExtractedEntity{
		{Text: "Jane Doe", Label: "person", Confidence: 0.6},
		{Text: "jane doe", Label: "person", Confidence: 0.9},
		{Text: "Python", Label: "programming_language", Confidence: 0.8},
	}}

	got, err := ExtractForConversation(context.Background(), ex, "some transcript")
	if err != nil {
		t.Fatalf("ExtractForConversation failed: %v", err)
	}

	people := got.ByLabel["person"]
	if len(people) != 1 {
		t.Fatalf("expected 1 deduplicated person, got %d", len(people))
	}
	// Dedup keeps the highest-confidence span.
	if people[0].Confidence != 0.9 {
		t.Errorf("confidence = %f, want 0.9", people[0].Confidence)
	}

	if got.Count != 3 {
		t.Errorf("count = %d, want 3 raw spans", got.Count)
	}
}

func TestExtractForConversationMeanConfidence(t *testing.T) {
	ex := &mockExtractor{entities: []ExtractedEntity{
		{Text: "a", Label: "person", Confidence: 0.4},
		{Text: "b", Label: "person", Confidence: 0.8},
	}}

	got, err := ExtractForConversation(context.Background(), ex, "text")
	if err != nil {
		t.Fatalf("ExtractForConversation failed: %v", err)
	}
	if got.MeanConfidence != 0.6 {
		t.Errorf("mean = %f, want 0.6", got.MeanConfidence)
	}
}

func TestSummary(t *testing.T) {
	ex := &mockExtractor{entities: []ExtractedEntity{
		{Text: "Jane Doe", Label: "person", Confidence: 0.9},
		{Text: "Python", Label: "technology", Confidence: 0.8},
		{Text: "Redis", Label: "technology", Confidence: 0.7},
	}}

	got, err := ExtractForConversation(context.Background(), ex, "text")
	if err != nil {
		t.Fatalf("ExtractForConversation failed: %v", err)
	}

	summary := got.Summary()
	if !strings.Contains(summary, "person: Jane Doe") {
		t.Errorf("summary = %q", summary)
	}
	if !strings.Contains(summary, "technology: Python, Redis") {
		t.Errorf("summary = %q", summary)
	}
}

func TestSummaryEmpty(t *testing.T) {
	ex := &mockExtractor{}
	got, err := ExtractForConversation(context.Background(), ex, "text")
	if err != nil {
		t.Fatalf("ExtractForConversation failed: %v", err)
	}
	if got.Summary() != "No entities extracted" {
		t.Errorf("summary = %q", got.Summary())
	}

	var nilEntities *ConversationEntities
	if nilEntities.Summary() != "No entities extracted" {
		t.Error("nil summary should be the empty message")
	}
}
