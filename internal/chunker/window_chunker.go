package chunker

import (
	"strings"
	"unicode"

	"movierag/internal/domain"
)

const (
	// DefaultSize is the default window length in characters.
	DefaultSize = 1000
	// DefaultOverlap is the default number of characters shared by neighbouring windows.
	DefaultOverlap = 200
)

// WindowChunker splits text into overlapping character windows. A window
// prefers to end on whitespace when one falls in its last fifth.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker creates a chunker. Non-positive size falls back to
// DefaultSize; an overlap that is negative or not smaller than size is
// reduced to size/4.
func NewWindowChunker(size, overlap int) *WindowChunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}
	return &WindowChunker{size: size, overlap: overlap}
}

// Size returns the window length.
func (c *WindowChunker) Size() int { return c.size }

// Overlap returns the window overlap.
func (c *WindowChunker) Overlap() int { return c.overlap }

// Chunk splits the document text. Text no longer than one window yields a
// single chunk; blank text yields none.
func (c *WindowChunker) Chunk(doc domain.CorpusDocument) []domain.Chunk {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []domain.Chunk{{DocumentID: doc.ID, Index: 0, Text: text}}
	}

	var chunks []domain.Chunk
	start := 0
	idx := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.softEnd(runes, start, end)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, domain.Chunk{DocumentID: doc.ID, Index: idx, Text: piece})
			idx++
		}
		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// softEnd moves end back to just after the last whitespace in the final fifth
// of the window, if any.
func (c *WindowChunker) softEnd(runes []rune, start, end int) int {
	limit := end - c.size/5
	if limit <= start {
		return end
	}
	for i := end - 1; i >= limit; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}
