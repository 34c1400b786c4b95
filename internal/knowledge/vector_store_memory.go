package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex 进程内余弦相似度索引，用于测试与单机调试
type MemoryIndex struct {
	dimension int

	mu      sync.RWMutex
	created bool
	order   []string
	records map[string]VectorRecord
}

func NewMemoryIndex(dimension int) *MemoryIndex {
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimensions
	}
	return &MemoryIndex{
		dimension: dimension,
		records:   make(map[string]VectorRecord),
	}
}

func (m *MemoryIndex) EnsureIndex(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		return false, nil
	}
	m.created = true
	return true, nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	for _, record := range records {
		if len(record.Vector) != m.dimension {
			return fmt.Errorf("record %s: vector dimension %d, expected %d", record.ID, len(record.Vector), m.dimension)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range records {
		if _, exists := m.records[record.ID]; !exists {
			m.order = append(m.order, record.ID)
		}
		m.records[record.ID] = record
	}
	return nil
}

func (m *MemoryIndex) Flush(ctx context.Context) error {
	return nil
}

// Query 按余弦相似度降序返回前 topK 条
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int) ([]RetrievalMatch, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	normQ := vectorNorm(vector)
	matches := make([]RetrievalMatch, 0, len(m.records))
	for _, id := range m.order {
		record := m.records[id]
		matches = append(matches, RetrievalMatch{
			ID:       record.ID,
			Metadata: record.Metadata,
			Score:    cosineSimilarity(vector, record.Vector, normQ),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) Close() error {
	return nil
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32, normA float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) != len(b) {
		minLen := len(a)
		if len(b) < minLen {
			minLen = len(b)
		}
		a = a[:minLen]
		b = b[:minLen]
	}

	var dot float64
	var normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normB += float64(b[i] * b[i])
	}

	// 零向量（向量化失败的占位）相似度为0
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * math.Sqrt(normB))
}
