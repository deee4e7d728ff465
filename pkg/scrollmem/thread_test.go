package scrollmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadLifecycle(t *testing.T) {
	s := newTestScroll(t, Config{})
	ctx := context.Background()

	convID, err := s.StartConversation(ctx, "standup", map[string]interface{}{"channel": "team"})
	require.NoError(t, err)

	require.NoError(t, s.AddMessage(ctx, convID, "jane", "yesterday I fixed the migration"))
	require.NoError(t, s.AddMessage(ctx, convID, "bob", "today reviewing the schema change"))

	result, err := s.ArchiveThread(ctx, convID)
	require.NoError(t, err)

	assert.Equal(t, convID, result.ConversationID)

	entry, err := s.GetEntry(ctx, result.EntryID)
	require.NoError(t, err)
	assert.Contains(t, entry.Content, "jane: yesterday I fixed the migration")
	assert.Contains(t, entry.Content, "bob: today reviewing the schema change")
	assert.Equal(t, "standup", entry.Metadata["title"])
	assert.Equal(t, "team", entry.Metadata["channel"])
	assert.Equal(t, convID, entry.ConversationID)
}

func TestArchiveThreadMissingConversation(t *testing.T) {
	s := newTestScroll(t, Config{})

	_, err := s.ArchiveThread(context.Background(), "no-such-thread")
	require.Error(t, err)
}

func TestArchiveThreadEmptyConversation(t *testing.T) {
	s := newTestScroll(t, Config{})
	ctx := context.Background()

	convID, err := s.StartConversation(ctx, "empty", nil)
	require.NoError(t, err)

	_, err = s.ArchiveThread(ctx, convID)
	require.Error(t, err)
}
