// Package store provides SQLite-backed storage for conversation entries,
// the entity graph, and entry embeddings.
package store

import (
	"context"
	"errors"
	"time"
)

// EntryType enumerates the kinds of entries the memory layer can hold.
// Only conversation entries have a construction path today; the other
// types are reserved.
type EntryType string

const (
	EntryTypeConversation EntryType = "conversation"
	EntryTypeDocument     EntryType = "document"
	EntryTypeImage        EntryType = "image"
	EntryTypeCode         EntryType = "code"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeConversation, EntryTypeDocument, EntryTypeImage, EntryTypeCode:
		return true
	}
	return false
}

// Entry is the persisted unit of conversational memory. Entries are
// created once when a conversation is archived and are immutable
// afterwards, except for metadata enrichment via AppendMetadata.
type Entry struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Type           EntryType              `json:"entry_type"`
	Content        string                 `json:"content"`
	CreatedAt      time.Time              `json:"created_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// ErrEntryNotFound indicates that no entry exists for the given ID.
var ErrEntryNotFound = errors.New("entry not found")

// EntryStore defines the conversation record store boundary.
type EntryStore interface {
	// SaveEntry persists a new entry. The entry ID is generated if empty.
	// Saving an ID that already exists is an error; entries are immutable.
	SaveEntry(ctx context.Context, entry *Entry) error

	// GetEntry retrieves an entry by ID.
	// Returns ErrEntryNotFound if no entry exists.
	GetEntry(ctx context.Context, id string) (*Entry, error)

	// AppendMetadata merges fields into an entry's metadata map. This is
	// the only mutation allowed after creation, used for entity
	// enrichment during extraction.
	AppendMetadata(ctx context.Context, id string, fields map[string]interface{}) error

	// RecentEntries lists the most recent entries, newest first.
	// hours <= 0 means no time window; types nil means all types.
	RecentEntries(ctx context.Context, hours int, types []EntryType, limit int) ([]*Entry, error)

	// CountEntries returns the total number of entries.
	CountEntries(ctx context.Context) (int64, error)
}

// Conversation is live-conversation threading metadata kept alongside
// entries. Messages accumulate under a conversation until it ends and
// gets archived as a single entry.
type Conversation struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	CreatedAt time.Time              `json:"created_at"`
	EndedAt   *time.Time             `json:"ended_at,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Message is a single utterance within a live conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
