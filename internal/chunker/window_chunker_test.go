package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movierag/internal/domain"
)

func TestNewWindowChunkerDefaults(t *testing.T) {
	c := NewWindowChunker(0, -1)
	assert.Equal(t, DefaultSize, c.Size())
	assert.Equal(t, DefaultSize/4, c.Overlap())

	c = NewWindowChunker(100, 100)
	assert.Equal(t, 25, c.Overlap())

	c = NewWindowChunker(100, 20)
	assert.Equal(t, 20, c.Overlap())
}

func TestChunkShortDocumentIsSingleChunk(t *testing.T) {
	c := NewWindowChunker(1000, 200)
	chunks := c.Chunk(domain.CorpusDocument{ID: 7, Text: "  title: alien genre: horror  "})
	require.Len(t, chunks, 1)
	assert.Equal(t, 7, chunks[0].DocumentID)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "title: alien genre: horror", chunks[0].Text)
}

func TestChunkBlankDocument(t *testing.T) {
	c := NewWindowChunker(10, 2)
	assert.Empty(t, c.Chunk(domain.CorpusDocument{ID: 1, Text: "   "}))
}

func TestChunkLongDocumentOverlaps(t *testing.T) {
	words := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		words = append(words, "word")
	}
	text := strings.Join(words, " ")

	c := NewWindowChunker(50, 10)
	chunks := c.Chunk(domain.CorpusDocument{ID: 3, Text: text})
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, 3, ch.DocumentID)
		assert.LessOrEqual(t, len([]rune(ch.Text)), 50)
		assert.NotEmpty(t, ch.Text)
	}
	// every word of the source text is covered by some window
	joined := strings.Join(func() []string {
		out := make([]string, len(chunks))
		for i, ch := range chunks {
			out[i] = ch.Text
		}
		return out
	}(), " ")
	assert.Equal(t, 100, strings.Count(text, "word"))
	assert.GreaterOrEqual(t, strings.Count(joined, "word"), 100)
}

func TestChunkIsDeterministic(t *testing.T) {
	text := strings.Repeat("a space adventure across the galaxy ", 80)
	c := NewWindowChunker(120, 24)
	a := c.Chunk(domain.CorpusDocument{ID: 1, Text: text})
	b := c.Chunk(domain.CorpusDocument{ID: 1, Text: text})
	assert.Equal(t, a, b)
}
