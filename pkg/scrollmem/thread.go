package scrollmem

import (
	"context"
	"fmt"

	"github.com/scrollmem/scrollmem/pkg/store"
)

// StartConversation opens a live conversation thread and returns its ID.
// Messages accumulate under the thread until ArchiveThread turns them
// into a single archived entry.
func (s *Scroll) StartConversation(ctx context.Context, title string, metadata map[string]interface{}) (string, error) {
	return s.entryStore.CreateConversation(ctx, title, metadata)
}

// AddMessage appends one utterance to a live conversation.
func (s *Scroll) AddMessage(ctx context.Context, conversationID, sender, content string) error {
	return s.entryStore.SaveMessage(ctx, &store.Message{
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
	})
}

// ArchiveThread ends a live conversation and archives its accumulated
// messages through the full ingestion pipeline.
func (s *Scroll) ArchiveThread(ctx context.Context, conversationID string) (*ArchiveResult, error) {
	info, err := s.entryStore.ConversationInfo(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}

	messages, err := s.entryStore.ConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("conversation %s has no messages", conversationID)
	}

	turns := make([]Turn, len(messages))
	for i, msg := range messages {
		turns[i] = Turn{Sender: msg.Sender, Content: msg.Content}
	}

	result, err := s.ArchiveConversation(ctx, &ConversationInput{
		ConversationID: conversationID,
		Title:          info.Title,
		Turns:          turns,
		Metadata:       info.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if err := s.entryStore.EndConversation(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("archived but failed to end conversation: %w", err)
	}

	return result, nil
}
