package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// VectorIndex 向量索引抽象（单集合）
type VectorIndex interface {
	// EnsureIndex 集合不存在时创建，返回是否新建
	EnsureIndex(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int64, error)
	Upsert(ctx context.Context, records []VectorRecord) error
	Flush(ctx context.Context) error
	Query(ctx context.Context, vector []float32, topK int) ([]RetrievalMatch, error)
	Close() error
}

// IndexOptions 向量索引配置
type IndexOptions struct {
	Provider   string // milvus | memory
	Address    string
	Username   string
	Password   string
	APIKey     string
	Database   string
	Collection string
	Dimension  int
	Distance   string
	UseTLS     bool
}

// IndexConnector 建立向量索引连接
type IndexConnector func(ctx context.Context) (VectorIndex, error)

// NewIndexConnector 根据 Provider 选择实现
func NewIndexConnector(opts IndexOptions) IndexConnector {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "memory":
		index := NewMemoryIndex(opts.Dimension)
		return func(ctx context.Context) (VectorIndex, error) {
			return index, nil
		}
	case "", "milvus":
		return func(ctx context.Context) (VectorIndex, error) {
			return NewMilvusIndex(ctx, opts)
		}
	default:
		return func(ctx context.Context) (VectorIndex, error) {
			return nil, fmt.Errorf("unsupported vector store provider: %s", opts.Provider)
		}
	}
}

// SharedIndex 摄取与问答共用的索引连接，首次成功后复用
type SharedIndex struct {
	connect IndexConnector

	mu    sync.Mutex
	index VectorIndex
}

func NewSharedIndex(connect IndexConnector) *SharedIndex {
	return &SharedIndex{connect: connect}
}

// Get 返回已建立的连接；连接失败时下次调用会重试
func (s *SharedIndex) Get(ctx context.Context) (VectorIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		return s.index, nil
	}
	index, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.index = index
	return index, nil
}

// Close 关闭底层连接
func (s *SharedIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	return err
}
