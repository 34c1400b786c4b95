package knowledge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(1000, 100)
	chunks := c.Split("  Hello\t\tworld  \n\n second line ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello world\nsecond line", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunker_EmptyText(t *testing.T) {
	assert.Nil(t, NewChunker(1000, 100).Split(" \n\t "))
}

func TestChunker_WindowsOverlap(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 120) // ~3240 chars
	c := NewChunker(1000, 100)
	chunks := c.Split(text)

	require.GreaterOrEqual(t, len(chunks), 4)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), 1000)
	}
	for i := 1; i < len(chunks); i++ {
		head := chunks[i].Text[:20]
		assert.Contains(t, chunks[i-1].Text, head, "chunk %d should start inside the previous window", i)
	}
}

func TestChunker_NoWhitespaceStillProgresses(t *testing.T) {
	text := strings.Repeat("x", 2500)
	chunks := NewChunker(1000, 100).Split(text)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Text, 1000)
	assert.Len(t, chunks[1].Text, 1000)
	assert.Len(t, chunks[2].Text, 700)
}

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(0, -5)
	assert.Equal(t, DefaultChunkSize, c.chunkSize)
	assert.Equal(t, 0, c.chunkOverlap)

	c = NewChunker(100, 200)
	assert.Equal(t, 25, c.chunkOverlap)
}
