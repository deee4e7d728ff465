package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteGraphStore implements EntityGraphStore using SQLite. The node
// table is keyed by (kind, normalized_key) so each entity kind gets its
// own namespace, and the edge table by (kind, normalized_key, entry_id,
// relation) so re-linking the same pair never duplicates an edge.
type SQLiteGraphStore struct {
	db *sql.DB
}

// NewSQLiteGraphStore creates a new SQLite-backed entity graph store.
func NewSQLiteGraphStore(dbPath string) (*SQLiteGraphStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteGraphStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLiteGraphStoreWithDB wraps an existing database connection so the
// graph can share a file with the entry store. The connection lifecycle
// is owned by the caller.
func NewSQLiteGraphStoreWithDB(db *sql.DB) (*SQLiteGraphStore, error) {
	store := &SQLiteGraphStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteGraphStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		normalized_key TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT,
		confidence REAL NOT NULL,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		mention_count INTEGER NOT NULL,
		attrs TEXT,
		PRIMARY KEY (kind, normalized_key)
	);

	CREATE TABLE IF NOT EXISTS entity_links (
		kind TEXT NOT NULL,
		normalized_key TEXT NOT NULL,
		entry_id TEXT NOT NULL,
		relation TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		mentioned_count INTEGER NOT NULL DEFAULT 0,
		attrs TEXT,
		PRIMARY KEY (kind, normalized_key, entry_id, relation)
	);

	CREATE INDEX IF NOT EXISTS idx_entity_links_entry ON entity_links(entry_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// MergeEntity upserts an entity node with merge semantics: confidence
// keeps the running maximum, mention_count increments on every sighting,
// first_seen never changes after creation.
func (s *SQLiteGraphStore) MergeEntity(ctx context.Context, node *EntityNode, observedAt time.Time) (*EntityNode, error) {
	if !node.Kind.Valid() {
		return nil, fmt.Errorf("invalid entity kind: %q", node.Kind)
	}
	if node.NormalizedKey == "" {
		return nil, fmt.Errorf("normalized key is required")
	}
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.getEntityTx(ctx, tx, node.Kind, node.NormalizedKey)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		var attrsJSON []byte
		if node.Attrs != nil {
			attrsJSON, err = json.Marshal(node.Attrs)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal attrs: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entities (kind, normalized_key, name, category, confidence, first_seen, last_seen, mention_count, attrs)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		`, string(node.Kind), node.NormalizedKey, node.Name, node.Category, node.Confidence, observedAt, observedAt, attrsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to create entity: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		created := *node
		created.FirstSeen = observedAt
		created.LastSeen = observedAt
		created.MentionCount = 1
		return &created, nil
	}

	confidence := existing.Confidence
	if node.Confidence > confidence {
		confidence = node.Confidence
	}
	lastSeen := existing.LastSeen
	if observedAt.After(lastSeen) {
		lastSeen = observedAt
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE entities
		SET confidence = ?, last_seen = ?, mention_count = mention_count + 1
		WHERE kind = ? AND normalized_key = ?
	`, confidence, lastSeen, string(node.Kind), node.NormalizedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to merge entity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	merged := *existing
	merged.Confidence = confidence
	merged.LastSeen = lastSeen
	merged.MentionCount = existing.MentionCount + 1
	return &merged, nil
}

// LinkEntityToEntry upserts an entity-to-entry edge. Repeat links raise
// confidence to the maximum observed and leave attrs as created; Person
// edges additionally count repeat mentions.
func (s *SQLiteGraphStore) LinkEntityToEntry(ctx context.Context, link *EntityLink) error {
	if !link.Kind.Valid() {
		return fmt.Errorf("invalid entity kind: %q", link.Kind)
	}
	if link.NormalizedKey == "" || link.EntryID == "" {
		return fmt.Errorf("normalized key and entry ID are required")
	}

	relation := link.Relation
	if relation == "" {
		relation = link.Kind.Relation()
	}

	var attrsJSON []byte
	var err error
	if link.Attrs != nil {
		attrsJSON, err = json.Marshal(link.Attrs)
		if err != nil {
			return fmt.Errorf("failed to marshal attrs: %w", err)
		}
	}

	initial := int64(0)
	if link.Kind.TracksLinkMentions() {
		initial = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO entity_links (kind, normalized_key, entry_id, relation, confidence, mentioned_count, attrs)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(link.Kind), link.NormalizedKey, link.EntryID, relation, link.Confidence, initial, attrsJSON)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check link insert: %w", err)
	}

	if inserted == 0 {
		mentionBump := 0
		if link.Kind.TracksLinkMentions() {
			mentionBump = 1
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE entity_links
			SET confidence = MAX(confidence, ?), mentioned_count = mentioned_count + ?
			WHERE kind = ? AND normalized_key = ? AND entry_id = ? AND relation = ?
		`, link.Confidence, mentionBump, string(link.Kind), link.NormalizedKey, link.EntryID, relation)
		if err != nil {
			return fmt.Errorf("failed to update link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LinksForEntry lists all edges pointing at an entry.
func (s *SQLiteGraphStore) LinksForEntry(ctx context.Context, entryID string) ([]*EntityLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, normalized_key, entry_id, relation, confidence, mentioned_count, attrs
		FROM entity_links
		WHERE entry_id = ?
		ORDER BY relation, normalized_key
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links for entry: %w", err)
	}
	defer rows.Close()

	var links []*EntityLink
	for rows.Next() {
		var link EntityLink
		var kind string
		var attrsJSON []byte

		err := rows.Scan(&kind, &link.NormalizedKey, &link.EntryID, &link.Relation, &link.Confidence, &link.MentionedCount, &attrsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		link.Kind = EntityKind(kind)
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &link.Attrs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attrs: %w", err)
			}
		}
		links = append(links, &link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

// GetEntity retrieves a node by kind and normalized key.
// Returns (nil, nil) when no such node exists.
func (s *SQLiteGraphStore) GetEntity(ctx context.Context, kind EntityKind, normalizedKey string) (*EntityNode, error) {
	return s.getEntityTx(ctx, nil, kind, normalizedKey)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLiteGraphStore) getEntityTx(ctx context.Context, tx *sql.Tx, kind EntityKind, normalizedKey string) (*EntityNode, error) {
	var q queryRower = s.db
	if tx != nil {
		q = tx
	}

	row := q.QueryRowContext(ctx, `
		SELECT kind, normalized_key, name, category, confidence, first_seen, last_seen, mention_count, attrs
		FROM entities
		WHERE kind = ? AND normalized_key = ?
	`, string(kind), normalizedKey)

	node, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return node, nil
}

func scanEntity(row rowScanner) (*EntityNode, error) {
	var node EntityNode
	var kind string
	var category sql.NullString
	var attrsJSON []byte

	err := row.Scan(
		&kind,
		&node.NormalizedKey,
		&node.Name,
		&category,
		&node.Confidence,
		&node.FirstSeen,
		&node.LastSeen,
		&node.MentionCount,
		&attrsJSON,
	)
	if err != nil {
		return nil, err
	}

	node.Kind = EntityKind(kind)
	if category.Valid {
		node.Category = category.String
	}
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &node.Attrs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attrs: %w", err)
		}
	}

	return &node, nil
}

// EntitiesForEntry lists all entities linked to an entry, most mentioned
// first.
func (s *SQLiteGraphStore) EntitiesForEntry(ctx context.Context, entryID string) ([]*EntityNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.kind, e.normalized_key, e.name, e.category, e.confidence, e.first_seen, e.last_seen, e.mention_count, e.attrs
		FROM entities e
		JOIN entity_links l ON l.kind = e.kind AND l.normalized_key = e.normalized_key
		WHERE l.entry_id = ?
		ORDER BY e.mention_count DESC, e.name
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities for entry: %w", err)
	}
	defer rows.Close()

	var nodes []*EntityNode
	for rows.Next() {
		node, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return nodes, nil
}

// EntityCounts returns the number of nodes per kind.
func (s *SQLiteGraphStore) EntityCounts(ctx context.Context) (map[EntityKind]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM entities GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}
	defer rows.Close()

	counts := make(map[EntityKind]int64)
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[EntityKind(kind)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	return counts, nil
}

// LinkCounts returns the number of edges per relation label.
func (s *SQLiteGraphStore) LinkCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT relation, COUNT(*) FROM entity_links GROUP BY relation")
	if err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var relation string
		var count int64
		if err := rows.Scan(&relation, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[relation] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	return counts, nil
}

// Close releases database resources.
func (s *SQLiteGraphStore) Close() error {
	return s.db.Close()
}
