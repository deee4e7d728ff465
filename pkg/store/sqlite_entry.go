package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteEntryStore implements EntryStore using SQLite, and additionally
// carries live-conversation threading (conversations and messages).
type SQLiteEntryStore struct {
	db *sql.DB
}

// NewSQLiteEntryStore creates a new SQLite-backed entry store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteEntryStore(dbPath string) (*SQLiteEntryStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteEntryStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLiteEntryStoreWithDB wraps an existing database connection.
// The connection lifecycle is owned by the caller.
func NewSQLiteEntryStoreWithDB(db *sql.DB) (*SQLiteEntryStore, error) {
	store := &SQLiteEntryStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// DB returns the underlying database connection so sibling stores can
// share it.
func (s *SQLiteEntryStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteEntryStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		conversation_id TEXT,
		entry_type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(entry_type);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT,
		created_at DATETIME NOT NULL,
		ended_at DATETIME,
		metadata TEXT
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender TEXT,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveEntry persists a new entry. Entries are immutable; inserting an
// existing ID fails with a constraint error.
func (s *SQLiteEntryStore) SaveEntry(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if !entry.Type.Valid() {
		return fmt.Errorf("invalid entry type: %q", entry.Type)
	}

	var metadataJSON []byte
	var err error
	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO entries (id, conversation_id, entry_type, content, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.ConversationID,
		string(entry.Type),
		entry.Content,
		entry.CreatedAt,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}

	return nil
}

// GetEntry retrieves an entry by ID.
func (s *SQLiteEntryStore) GetEntry(ctx context.Context, id string) (*Entry, error) {
	query := `
		SELECT id, conversation_id, entry_type, content, created_at, metadata
		FROM entries
		WHERE id = ?
	`

	entry, err := s.scanEntry(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	return entry, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteEntryStore) scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var entryType string
	var conversationID sql.NullString
	var metadataJSON []byte

	err := row.Scan(
		&entry.ID,
		&conversationID,
		&entryType,
		&entry.Content,
		&entry.CreatedAt,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	entry.Type = EntryType(entryType)
	if conversationID.Valid {
		entry.ConversationID = conversationID.String
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &entry, nil
}

// AppendMetadata merges fields into an entry's metadata map.
func (s *SQLiteEntryStore) AppendMetadata(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var metadataJSON []byte
	err = tx.QueryRowContext(ctx, "SELECT metadata FROM entries WHERE id = ?", id).Scan(&metadataJSON)
	if err == sql.ErrNoRows {
		return ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	metadata := make(map[string]interface{})
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	for k, v := range fields {
		metadata[k] = v
	}

	merged, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE entries SET metadata = ? WHERE id = ?", merged, id); err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RecentEntries lists the most recent entries, newest first.
func (s *SQLiteEntryStore) RecentEntries(ctx context.Context, hours int, types []EntryType, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, conversation_id, entry_type, content, created_at, metadata
		FROM entries
		WHERE 1=1
	`
	args := make([]interface{}, 0)

	if hours > 0 {
		query += " AND created_at >= ?"
		args = append(args, time.Now().UTC().Add(-time.Duration(hours)*time.Hour))
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += fmt.Sprintf(" AND entry_type IN (%s)", strings.Join(placeholders, ","))
	}

	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := s.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

// CountEntries returns the total number of entries.
func (s *SQLiteEntryStore) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// CreateConversation starts a new live conversation and returns its ID.
func (s *SQLiteEntryStore) CreateConversation(ctx context.Context, title string, metadata map[string]interface{}) (string, error) {
	id := uuid.New().String()

	var metadataJSON []byte
	var err error
	if metadata != nil {
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, title, created_at, metadata) VALUES (?, ?, ?, ?)",
		id, title, time.Now().UTC(), metadataJSON,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}

	return id, nil
}

// SaveMessage appends a message to a live conversation.
func (s *SQLiteEntryStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, sender, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.Sender, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// ConversationMessages returns a conversation's messages in order.
func (s *SQLiteEntryStore) ConversationMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// ConversationInfo returns threading metadata for a conversation.
// Returns (nil, nil) if the conversation does not exist.
func (s *SQLiteEntryStore) ConversationInfo(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	var title sql.NullString
	var endedAt sql.NullTime
	var metadataJSON []byte

	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, ended_at, metadata FROM conversations WHERE id = ?",
		conversationID,
	).Scan(&conv.ID, &title, &conv.CreatedAt, &endedAt, &metadataJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if title.Valid {
		conv.Title = title.String
	}
	if endedAt.Valid {
		conv.EndedAt = &endedAt.Time
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &conv.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &conv, nil
}

// EndConversation marks a live conversation as ended.
func (s *SQLiteEntryStore) EndConversation(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET ended_at = ? WHERE id = ?",
		time.Now().UTC(), conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to end conversation: %w", err)
	}
	return nil
}

// RecentConversations lists the most recently started conversations.
func (s *SQLiteEntryStore) RecentConversations(ctx context.Context, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at, ended_at, metadata
		FROM conversations
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var conv Conversation
		var title sql.NullString
		var endedAt sql.NullTime
		var metadataJSON []byte

		if err := rows.Scan(&conv.ID, &title, &conv.CreatedAt, &endedAt, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if title.Valid {
			conv.Title = title.String
		}
		if endedAt.Valid {
			conv.EndedAt = &endedAt.Time
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &conv.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		conversations = append(conversations, &conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

// Close releases database resources.
func (s *SQLiteEntryStore) Close() error {
	return s.db.Close()
}
