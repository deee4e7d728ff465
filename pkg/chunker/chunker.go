// Package chunker splits conversation transcripts into bounded pieces
// so long entries can be embedded as the average of their chunk vectors.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Chunk represents a single chunk of text with metadata
type Chunk struct {
	ID         string
	Text       string
	Index      int
	TokenCount int
}

// Chunker splits transcripts into overlapping chunks. Splitting prefers
// message boundaries (one "sender: content" block per line) and falls
// back to sentence boundaries for free-form text.
type Chunker struct {
	MaxTokens int // Maximum tokens per chunk (default: 512)
	Overlap   int // Token overlap between chunks (default: 50)
}

// Chunk splits the input text into chunks
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}
	}

	maxTokens := c.MaxTokens
	if maxTokens == 0 {
		maxTokens = 512
	}
	overlap := c.Overlap
	if overlap == 0 {
		overlap = 50
	}

	units := splitUnits(text)
	if len(units) == 0 {
		return []Chunk{}
	}

	var chunks []Chunk
	var current []string
	var currentTokens int

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunkText := strings.Join(current, "\n")
		chunks = append(chunks, Chunk{
			ID:         chunkID(chunkText, len(chunks)),
			Text:       chunkText,
			Index:      len(chunks),
			TokenCount: currentTokens,
		})
	}

	for _, unit := range units {
		unitTokens := countTokens(unit)

		if currentTokens+unitTokens > maxTokens && len(current) > 0 {
			flush()
			current = overlapUnits(current, overlap)
			currentTokens = 0
			for _, u := range current {
				currentTokens += countTokens(u)
			}
		}

		current = append(current, unit)
		currentTokens += unitTokens
	}

	flush()
	return chunks
}

// splitUnits breaks a transcript into chunkable units. Multi-line text
// splits per line so message blocks stay intact; a single long line
// splits into sentences.
func splitUnits(text string) []string {
	lines := strings.Split(text, "\n")

	var nonEmpty []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			nonEmpty = append(nonEmpty, trimmed)
		}
	}

	if len(nonEmpty) > 1 {
		return nonEmpty
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	return splitSentences(nonEmpty[0])
}

// splitSentences splits text into sentences based on common terminators
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])

		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				sentence := strings.TrimSpace(current.String())
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}

	if current.Len() > 0 {
		sentence := strings.TrimSpace(current.String())
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
	}

	if len(sentences) == 0 && strings.TrimSpace(text) != "" {
		sentences = append(sentences, strings.TrimSpace(text))
	}

	return sentences
}

// countTokens estimates token count using a word-based heuristic.
// Note: This is an approximation. For accurate token counting, use a proper tokenizer.
func countTokens(text string) int {
	return len(strings.Fields(text))
}

// overlapUnits returns the last ~overlapTokens worth of units for chunk overlap
func overlapUnits(units []string, overlapTokens int) []string {
	if overlapTokens == 0 || len(units) == 0 {
		return []string{}
	}

	totalTokens := 0
	startIdx := len(units)

	for i := len(units) - 1; i >= 0; i-- {
		tokens := countTokens(units[i])
		if totalTokens+tokens > overlapTokens && startIdx != len(units) {
			break
		}
		totalTokens += tokens
		startIdx = i
	}

	return units[startIdx:]
}

// chunkID creates a deterministic ID from content hash and index
func chunkID(text string, index int) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s-%d", hex.EncodeToString(hash[:8]), index)
}
