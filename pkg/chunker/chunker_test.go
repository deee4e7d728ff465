package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func TestChunkEmpty(t *testing.T) {
	c := &Chunker{}
	if got := c.Chunk(""); len(got) != 0 {
		t.Errorf("expected no chunks, got %d", len(got))
	}
	if got := c.Chunk("   \n  "); len(got) != 0 {
		t.Errorf("expected no chunks for whitespace, got %d", len(got))
	}
}

func TestChunkShortTranscript(t *testing.T) {
	c := &Chunker{}
	text := "alice: hello\nbob: hi there"

	chunks := c.Chunk(text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "alice: hello") {
		t.Errorf("chunk text = %q", chunks[0].Text)
	}
	if chunks[0].Index != 0 {
		t.Errorf("index = %d, want 0", chunks[0].Index)
	}
	if chunks[0].TokenCount == 0 {
		t.Error("expected nonzero token count")
	}
}

func TestChunkSplitsLongTranscriptOnMessageBoundaries(t *testing.T) {
	c := &Chunker{MaxTokens: 20, Overlap: 5}

	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprintf("speaker%d: this message has exactly eight tokens total", i))
	}
	text := strings.Join(lines, "\n")

	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d has index %d", i, chunk.Index)
		}
		// Message lines must never be split mid-line.
		for _, line := range strings.Split(chunk.Text, "\n") {
			if !strings.Contains(line, ":") {
				t.Errorf("chunk line broke a message boundary: %q", line)
			}
		}
	}
}

func TestChunkSingleLongLineFallsBackToSentences(t *testing.T) {
	c := &Chunker{MaxTokens: 10, Overlap: 0}

	text := "First sentence here with words. Second sentence also has words. Third sentence rounds it out. Fourth sentence finishes things."

	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
}

func TestChunkIDsAreDeterministic(t *testing.T) {
	c := &Chunker{}
	text := "alice: reproducible input"

	a := c.Chunk(text)
	b := c.Chunk(text)
	if a[0].ID != b[0].ID {
		t.Errorf("IDs differ for identical input: %s vs %s", a[0].ID, b[0].ID)
	}
}
