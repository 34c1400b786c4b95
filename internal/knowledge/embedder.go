package knowledge

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/aihub/docqa-go/internal/errors"
	"github.com/aihub/docqa-go/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultEmbeddingDimensions = 768
	DefaultEmbedBatchSize      = 10
	DefaultEmbedBatchDelay     = 500 * time.Millisecond
)

// EmbedMode 向量化用途：入库文档或检索问题
type EmbedMode string

const (
	EmbedModeDocument EmbedMode = "document"
	EmbedModeQuery    EmbedMode = "query"
)

// Embedder 定义文本向量化接口，一次调用处理一批文本
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)
}

// BatchEmbedderConfig 分批向量化配置
type BatchEmbedderConfig struct {
	Dimensions int
	BatchSize  int
	BatchDelay time.Duration
}

// BatchEmbedder 按批调用 Embedder，保证输出与输入一一对应
type BatchEmbedder struct {
	embedder Embedder
	cfg      BatchEmbedderConfig
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewBatchEmbedder 创建分批向量化器
func NewBatchEmbedder(embedder Embedder, cfg BatchEmbedderConfig, logger *zap.Logger) *BatchEmbedder {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultEmbeddingDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchEmbedder{embedder: embedder, cfg: cfg, logger: logger, sleep: sleepContext}
}

// Dimensions 输出向量维度
func (b *BatchEmbedder) Dimensions() int {
	return b.cfg.Dimensions
}

// EmbedAll 返回与 texts 等长的向量列表。某批失败（报错或返回数量不符）时，
// 该批每一项以零向量占位并记录降级问题；维度不符的向量补零或截断。
func (b *BatchEmbedder) EmbedAll(ctx context.Context, texts []string, mode EmbedMode) (Result[[][]float32], error) {
	result := Result[[][]float32]{Value: make([][]float32, 0, len(texts))}

	for start := 0; start < len(texts); start += b.cfg.BatchSize {
		if start > 0 {
			if err := b.sleep(ctx, b.cfg.BatchDelay); err != nil {
				return result, apperrors.Fatal("embed", err)
			}
		}

		end := start + b.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := b.embedder.EmbedTexts(ctx, batch, mode)
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors))
		}
		if err != nil {
			b.logger.Warn("embedding batch failed, using zero vectors",
				zap.Int("batch", start/b.cfg.BatchSize), zap.Int("count", len(batch)), zap.Error(err))
			metrics.EmbeddingBatches.WithLabelValues("failed").Inc()
			metrics.StageIssues.WithLabelValues("embed").Inc()
			result.Issues = append(result.Issues, apperrors.Degraded("embed", fmt.Errorf("batch %d-%d: %w", start, end, err)))
			for range batch {
				result.Value = append(result.Value, make([]float32, b.cfg.Dimensions))
			}
			continue
		}

		metrics.EmbeddingBatches.WithLabelValues("success").Inc()
		for _, vec := range vectors {
			result.Value = append(result.Value, fitDimensions(vec, b.cfg.Dimensions))
		}
	}
	return result, nil
}

// EmbedOne 单条文本向量化，用于检索问题
func (b *BatchEmbedder) EmbedOne(ctx context.Context, text string, mode EmbedMode) ([]float32, error) {
	vectors, err := b.embedder.EmbedTexts(ctx, []string{text}, mode)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return fitDimensions(vectors[0], b.cfg.Dimensions), nil
}

func fitDimensions(vec []float32, dims int) []float32 {
	if len(vec) == dims {
		return vec
	}
	out := make([]float32, dims)
	copy(out, vec)
	return out
}
