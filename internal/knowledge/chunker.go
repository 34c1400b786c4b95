package knowledge

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Chunk 表示分块后的文本结构
type Chunk struct {
	Index int
	Text  string
}

// Chunker 按固定窗口（字符数）切分文本，相邻窗口重叠 chunkOverlap 个字符
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker 创建分块器
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}
}

// Split 将文本切分为多个chunk
func (c *Chunker) Split(text string) []Chunk {
	clean := normalizeWhitespace(text)
	if clean == "" {
		return nil
	}

	runes := []rune(clean)
	var chunks []Chunk

	for start := 0; start < len(runes); {
		end := start + c.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.softBoundary(runes, start, end)
		}

		chunkText := strings.TrimSpace(string(runes[start:end]))
		if chunkText != "" {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  chunkText,
			})
		}

		if end == len(runes) {
			break
		}
		next := end - c.chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// softBoundary 在窗口后半段寻找最近的空白处截断，避免切断单词
func (c *Chunker) softBoundary(runes []rune, start, end int) int {
	floor := start + c.chunkSize/2
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

// normalizeWhitespace 折叠连续空白；换行保留为单个换行
func normalizeWhitespace(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	var pending rune
	for _, r := range s {
		if unicode.IsSpace(r) {
			if r == '\n' || pending == 0 {
				pending = r
				if r != '\n' {
					pending = ' '
				}
			}
			continue
		}
		if pending != 0 && builder.Len() > 0 {
			builder.WriteRune(pending)
		}
		pending = 0
		builder.WriteRune(r)
	}

	return builder.String()
}
