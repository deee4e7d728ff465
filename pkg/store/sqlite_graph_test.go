package store

import (
	"context"
	"testing"
	"time"
)

func newTestGraphStore(t *testing.T) *SQLiteGraphStore {
	t.Helper()
	store, err := NewSQLiteGraphStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create graph store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMergeEntityCreate(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()
	observed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	node, err := store.MergeEntity(ctx, &EntityNode{
		Kind:          KindPerson,
		Name:          "Jane Doe",
		NormalizedKey: "jane doe",
		Confidence:    0.85,
		Attrs:         map[string]interface{}{"context": "standup notes"},
	}, observed)
	if err != nil {
		t.Fatalf("MergeEntity failed: %v", err)
	}

	if node.MentionCount != 1 {
		t.Errorf("mention_count = %d, want 1", node.MentionCount)
	}
	if !node.FirstSeen.Equal(observed) || !node.LastSeen.Equal(observed) {
		t.Errorf("first_seen/last_seen = %v/%v, want %v", node.FirstSeen, node.LastSeen, observed)
	}

	got, err := store.GetEntity(ctx, KindPerson, "jane doe")
	if err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored entity")
	}
	if got.Name != "Jane Doe" {
		t.Errorf("name = %q, want Jane Doe", got.Name)
	}
	if got.Attrs["context"] != "standup notes" {
		t.Errorf("attrs = %v", got.Attrs)
	}
}

func TestMergeEntityRepeatedSightings(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	confidences := []float64{0.5, 0.9, 0.7}
	var got *EntityNode
	var err error
	for i, conf := range confidences {
		got, err = store.MergeEntity(ctx, &EntityNode{
			Kind:          KindTechnology,
			Name:          "Python",
			NormalizedKey: "python",
			Category:      "programming_language",
			Confidence:    conf,
		}, first.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("MergeEntity failed: %v", err)
		}
	}

	if got.MentionCount != 3 {
		t.Errorf("mention_count = %d, want 3", got.MentionCount)
	}
	// Confidence keeps the running max, not the latest value.
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %f, want 0.9", got.Confidence)
	}
	if !got.FirstSeen.Equal(first) {
		t.Errorf("first_seen = %v, want %v", got.FirstSeen, first)
	}
	if !got.LastSeen.Equal(first.Add(2 * time.Hour)) {
		t.Errorf("last_seen = %v, want %v", got.LastSeen, first.Add(2*time.Hour))
	}
	if got.Category != "programming_language" {
		t.Errorf("category = %q", got.Category)
	}
}

func TestMergeEntityKeepsFirstSurfaceForm(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()

	_, err := store.MergeEntity(ctx, &EntityNode{
		Kind: KindPerson, Name: "Jane Doe", NormalizedKey: "jane doe", Confidence: 0.6,
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("MergeEntity failed: %v", err)
	}

	_, err = store.MergeEntity(ctx, &EntityNode{
		Kind: KindPerson, Name: "JANE DOE", NormalizedKey: "jane doe", Confidence: 0.6,
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("MergeEntity failed: %v", err)
	}

	got, err := store.GetEntity(ctx, KindPerson, "jane doe")
	if err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	if got.Name != "Jane Doe" {
		t.Errorf("name = %q, first sighting's surface form should win", got.Name)
	}
	if got.MentionCount != 2 {
		t.Errorf("mention_count = %d, want 2", got.MentionCount)
	}
}

func TestKindNamespacesAreSeparate(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Same normalized key under two kinds stays two nodes.
	if _, err := store.MergeEntity(ctx, &EntityNode{Kind: KindTopic, Name: "apple", NormalizedKey: "apple", Confidence: 0.5}, now); err != nil {
		t.Fatalf("MergeEntity failed: %v", err)
	}
	if _, err := store.MergeEntity(ctx, &EntityNode{Kind: KindOrganization, Name: "Apple", NormalizedKey: "apple", Confidence: 0.8}, now); err != nil {
		t.Fatalf("MergeEntity failed: %v", err)
	}

	counts, err := store.EntityCounts(ctx)
	if err != nil {
		t.Fatalf("EntityCounts failed: %v", err)
	}
	if counts[KindTopic] != 1 || counts[KindOrganization] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestLinkEntityToEntryPersonMentionCounting(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.MergeEntity(ctx, &EntityNode{Kind: KindPerson, Name: "Jane", NormalizedKey: "jane", Confidence: 0.7}, now); err != nil {
		t.Fatalf("MergeEntity failed: %v", err)
	}

	confidences := []float64{0.5, 0.9, 0.7}
	for _, conf := range confidences {
		link := &EntityLink{
			Kind:          KindPerson,
			NormalizedKey: "jane",
			EntryID:       "entry-1",
			Confidence:    conf,
			Attrs:         map[string]interface{}{"context": "standup"},
		}
		if err := store.LinkEntityToEntry(ctx, link); err != nil {
			t.Fatalf("LinkEntityToEntry failed: %v", err)
		}
	}

	counts, err := store.LinkCounts(ctx)
	if err != nil {
		t.Fatalf("LinkCounts failed: %v", err)
	}
	if counts["DISCUSSED_IN"] != 1 {
		t.Errorf("expected exactly one DISCUSSED_IN edge, got %v", counts)
	}

	links, err := store.LinksForEntry(ctx, "entry-1")
	if err != nil {
		t.Fatalf("LinksForEntry failed: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected one link, got %d", len(links))
	}
	if links[0].MentionedCount != 3 {
		t.Errorf("mentioned_count = %d, want 3", links[0].MentionedCount)
	}
	// Edge confidence keeps the running max, not the latest value.
	if links[0].Confidence != 0.9 {
		t.Errorf("confidence = %f, want 0.9", links[0].Confidence)
	}
	if links[0].Attrs["context"] != "standup" {
		t.Errorf("attrs = %v", links[0].Attrs)
	}
}

func TestLinkEntityToEntryNonPersonIsIdempotent(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.MergeEntity(ctx, &EntityNode{Kind: KindTechnology, Name: "Go", NormalizedKey: "go", Confidence: 0.9}, now); err != nil {
		t.Fatalf("MergeEntity failed: %v", err)
	}

	attrs := []map[string]interface{}{
		{"usage_context": "first entry"},
		{"usage_context": "second entry"},
	}
	for i := 0; i < 2; i++ {
		link := &EntityLink{Kind: KindTechnology, NormalizedKey: "go", EntryID: "entry-1", Confidence: 0.6, Attrs: attrs[i]}
		if err := store.LinkEntityToEntry(ctx, link); err != nil {
			t.Fatalf("LinkEntityToEntry failed: %v", err)
		}
	}

	links, err := store.LinksForEntry(ctx, "entry-1")
	if err != nil {
		t.Fatalf("LinksForEntry failed: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected one link, got %d", len(links))
	}
	if links[0].MentionedCount != 0 {
		t.Errorf("mentioned_count = %d, non-person edges should not count mentions", links[0].MentionedCount)
	}
	if links[0].Attrs["usage_context"] != "first entry" {
		t.Errorf("attrs = %v, first link's attrs should win", links[0].Attrs)
	}

	counts, err := store.LinkCounts(ctx)
	if err != nil {
		t.Fatalf("LinkCounts failed: %v", err)
	}
	if counts["TECH_IN"] != 1 {
		t.Errorf("expected one TECH_IN edge, got %v", counts)
	}
}

func TestEntitiesForEntry(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	nodes := []*EntityNode{
		{Kind: KindPerson, Name: "Jane", NormalizedKey: "jane", Confidence: 0.7},
		{Kind: KindTechnology, Name: "Python", NormalizedKey: "python", Category: "programming_language", Confidence: 0.8},
		{Kind: KindTopic, Name: "roadmap", NormalizedKey: "roadmap", Category: "business", Confidence: 0.6},
	}
	for _, n := range nodes {
		if _, err := store.MergeEntity(ctx, n, now); err != nil {
			t.Fatalf("MergeEntity failed: %v", err)
		}
		if err := store.LinkEntityToEntry(ctx, &EntityLink{Kind: n.Kind, NormalizedKey: n.NormalizedKey, EntryID: "entry-1"}); err != nil {
			t.Fatalf("LinkEntityToEntry failed: %v", err)
		}
	}

	got, err := store.EntitiesForEntry(ctx, "entry-1")
	if err != nil {
		t.Fatalf("EntitiesForEntry failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(got))
	}

	none, err := store.EntitiesForEntry(ctx, "entry-2")
	if err != nil {
		t.Fatalf("EntitiesForEntry failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no entities for unlinked entry, got %d", len(none))
	}
}

func TestGetEntityMissing(t *testing.T) {
	store := newTestGraphStore(t)

	got, err := store.GetEntity(context.Background(), KindPerson, "nobody")
	if err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing entity, got %+v", got)
	}
}

func TestMergeEntityValidation(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()

	if _, err := store.MergeEntity(ctx, &EntityNode{Kind: "Planet", Name: "Mars", NormalizedKey: "mars"}, time.Now()); err == nil {
		t.Error("expected error for invalid kind")
	}
	if _, err := store.MergeEntity(ctx, &EntityNode{Kind: KindPerson, Name: "Jane"}, time.Now()); err == nil {
		t.Error("expected error for empty normalized key")
	}
}
