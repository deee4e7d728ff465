package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// SQLiteVectorStore implements VectorStore using a plain SQLite table.
// Embeddings are stored as little-endian float32 blobs alongside a JSON
// metadata column; search is a linear cosine scan over the filtered
// candidate set. That keeps the store to a single file with no native
// extensions, at the cost of O(n) search, which is acceptable at
// personal-archive scale.
type SQLiteVectorStore struct {
	db *sql.DB
}

// NewSQLiteVectorStore creates a new SQLite-backed vector store.
func NewSQLiteVectorStore(dbPath string) (*SQLiteVectorStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteVectorStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLiteVectorStoreWithDB wraps an existing database connection. The
// connection lifecycle is owned by the caller.
func NewSQLiteVectorStoreWithDB(db *sql.DB) (*SQLiteVectorStore, error) {
	store := &SQLiteVectorStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteVectorStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entry_vectors (
		id TEXT PRIMARY KEY,
		embedding BLOB NOT NULL,
		entry_type TEXT,
		conversation_id TEXT,
		created_at DATETIME,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entry_vectors_type ON entry_vectors(entry_type);
	CREATE INDEX IF NOT EXISTS idx_entry_vectors_created ON entry_vectors(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Upsert stores or replaces the vector and metadata for an ID. The
// entry_type, conversation_id and created_at metadata fields are lifted
// into columns so Search can filter in SQL before scoring.
func (s *SQLiteVectorStore) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]interface{}) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding cannot be empty")
	}

	blob := serializeEmbedding(embedding)

	var entryType, conversationID, createdAt interface{}
	var metadataJSON []byte
	if metadata != nil {
		if v, ok := metadata["entry_type"].(string); ok {
			entryType = v
		}
		if v, ok := metadata["conversation_id"].(string); ok {
			conversationID = v
		}
		if t, ok := parseMetadataTime(metadata["created_at"]); ok {
			createdAt = t
		}

		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entry_vectors (id, embedding, entry_type, conversation_id, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			embedding = excluded.embedding,
			entry_type = excluded.entry_type,
			conversation_id = excluded.conversation_id,
			created_at = excluded.created_at,
			metadata = excluded.metadata
	`, id, blob, entryType, conversationID, createdAt, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}

	return nil
}

// Search scores the filtered candidate set by cosine similarity and
// returns up to topK hits, best first.
func (s *SQLiteVectorStore) Search(ctx context.Context, query []float32, topK int, filter *SearchFilter) ([]VectorHit, error) {
	if len(query) == 0 {
		return []VectorHit{}, nil
	}

	sqlQuery := "SELECT id, embedding, metadata FROM entry_vectors WHERE 1=1"
	args := make([]interface{}, 0)

	if filter != nil {
		if len(filter.EntryTypes) > 0 {
			sqlQuery += " AND entry_type IN ("
			for i, t := range filter.EntryTypes {
				if i > 0 {
					sqlQuery += ","
				}
				sqlQuery += "?"
				args = append(args, string(t))
			}
			sqlQuery += ")"
		}
		if filter.ConversationID != "" {
			sqlQuery += " AND conversation_id = ?"
			args = append(args, filter.ConversationID)
		}
		if !filter.Start.IsZero() {
			sqlQuery += " AND created_at >= ?"
			args = append(args, filter.Start)
		}
		if !filter.End.IsZero() {
			sqlQuery += " AND created_at <= ?"
			args = append(args, filter.End)
		}
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var id string
		var blob []byte
		var metadataJSON []byte

		if err := rows.Scan(&id, &blob, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}

		embedding := deserializeEmbedding(blob)
		if embedding == nil {
			continue
		}

		var metadata map[string]interface{}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		hits = append(hits, VectorHit{
			ID:       id,
			Score:    CosineSimilarity(query, embedding),
			Metadata: metadata,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vectors: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if topK > 0 && topK < len(hits) {
		hits = hits[:topK]
	}

	return hits, nil
}

// Delete removes a vector. Deleting an absent ID is not an error.
func (s *SQLiteVectorStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM entry_vectors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete vector: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

// serializeEmbedding converts a float32 slice to a binary BLOB for storage.
// Uses little-endian encoding for consistency across platforms.
func serializeEmbedding(embedding []float32) []byte {
	blob := make([]byte, len(embedding)*4)
	for i, val := range embedding {
		bits := math.Float32bits(val)
		binary.LittleEndian.PutUint32(blob[i*4:(i+1)*4], bits)
	}
	return blob
}

// deserializeEmbedding converts a binary BLOB back to a float32 slice.
// Returns nil if the data is malformed (not a multiple of 4 bytes).
func deserializeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}

	embedding := make([]float32, len(data)/4)
	for i := 0; i < len(embedding); i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : (i+1)*4])
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}
