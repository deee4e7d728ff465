package store

import (
	"context"
	"time"
)

// EntityKind enumerates the typed node tables of the entity graph.
type EntityKind string

const (
	KindPerson       EntityKind = "Person"
	KindOrganization EntityKind = "Organization"
	KindTechnology   EntityKind = "Technology"
	KindTopic        EntityKind = "Topic"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindPerson, KindOrganization, KindTechnology, KindTopic:
		return true
	}
	return false
}

// Relation returns the edge label connecting this kind to entries.
func (k EntityKind) Relation() string {
	switch k {
	case KindPerson:
		return "DISCUSSED_IN"
	case KindOrganization:
		return "ORG_IN"
	case KindTechnology:
		return "TECH_IN"
	case KindTopic:
		return "TOPIC_IN"
	}
	return ""
}

// TracksLinkMentions reports whether edges for this kind carry a
// per-edge mention counter. Only person edges do; the other kinds count
// mentions on the node alone.
func (k EntityKind) TracksLinkMentions() bool {
	return k == KindPerson
}

// EntityNode is a typed node in the entity graph, keyed by
// (Kind, NormalizedKey). Name preserves the surface form from the first
// sighting; Confidence is the running maximum across sightings and
// MentionCount the number of times the entity was merged.
type EntityNode struct {
	Kind          EntityKind             `json:"kind"`
	Name          string                 `json:"name"`
	NormalizedKey string                 `json:"normalized_key"`
	Category      string                 `json:"category,omitempty"`
	Confidence    float64                `json:"confidence"`
	FirstSeen     time.Time              `json:"first_seen"`
	LastSeen      time.Time              `json:"last_seen"`
	MentionCount  int64                  `json:"mention_count"`
	Attrs         map[string]interface{} `json:"attrs,omitempty"`
}

// EntityLink is an edge from an entity node to an entry. Confidence is
// the running maximum across repeat links. Attrs are descriptive
// attributes set once at creation and never strengthened. MentionedCount
// is maintained only for kinds where TracksLinkMentions is true; it is
// zero otherwise.
type EntityLink struct {
	Kind           EntityKind             `json:"kind"`
	NormalizedKey  string                 `json:"normalized_key"`
	EntryID        string                 `json:"entry_id"`
	Relation       string                 `json:"relation"`
	Confidence     float64                `json:"confidence"`
	MentionedCount int64                  `json:"mentioned_count,omitempty"`
	Attrs          map[string]interface{} `json:"attrs,omitempty"`
}

// EntityGraphStore defines the entity graph boundary: typed node upserts
// with merge semantics, entity-to-entry edges, and read paths for
// inspection and stats.
type EntityGraphStore interface {
	// MergeEntity upserts an entity node. On first sighting the node is
	// created with MentionCount 1 and FirstSeen = LastSeen = observedAt.
	// On later sightings MentionCount increments, Confidence takes the
	// maximum of stored and incoming, LastSeen advances, and FirstSeen,
	// Name, Category and Attrs stay untouched. Returns the node as stored
	// after the merge.
	MergeEntity(ctx context.Context, node *EntityNode, observedAt time.Time) (*EntityNode, error)

	// LinkEntityToEntry upserts an edge from an entity to an entry. A
	// repeat link raises the edge confidence to the maximum observed and
	// leaves Attrs untouched; kinds with per-edge mention tracking also
	// increment the edge counter.
	LinkEntityToEntry(ctx context.Context, link *EntityLink) error

	// GetEntity retrieves a node by kind and normalized key.
	// Returns (nil, nil) when no such node exists.
	GetEntity(ctx context.Context, kind EntityKind, normalizedKey string) (*EntityNode, error)

	// EntitiesForEntry lists all entities linked to an entry.
	EntitiesForEntry(ctx context.Context, entryID string) ([]*EntityNode, error)

	// LinksForEntry lists all edges pointing at an entry.
	LinksForEntry(ctx context.Context, entryID string) ([]*EntityLink, error)

	// EntityCounts returns the number of nodes per kind.
	EntityCounts(ctx context.Context) (map[EntityKind]int64, error)

	// LinkCounts returns the number of edges per relation label.
	LinkCounts(ctx context.Context) (map[string]int64, error)
}
