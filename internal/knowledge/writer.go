package knowledge

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/aihub/docqa-go/internal/errors"
	"github.com/aihub/docqa-go/internal/metrics"
	"go.uber.org/zap"
)

const DefaultUpsertBatchSize = 50

// WriteReport 写入结果统计
type WriteReport struct {
	Written  int
	Batches  int
	Failed   []error
	FlushErr error
}

// AllFailed 所有批次都失败
func (r WriteReport) AllFailed() bool {
	return r.Batches > 0 && len(r.Failed) == r.Batches
}

// Writer 将片段与向量组装为记录并分批写入索引
type Writer struct {
	index     VectorIndex
	batchSize int
	logger    *zap.Logger
}

// NewWriter 创建写入器
func NewWriter(index VectorIndex, batchSize int, logger *zap.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{index: index, batchSize: batchSize, logger: logger}
}

// RecordID 记录ID：{类型}_{序号}_{摄取时间戳}
func RecordID(kind SegmentKind, ordinal int, ingestedAt time.Time) string {
	return fmt.Sprintf("%s_%d_%d", kind, ordinal, ingestedAt.Unix())
}

// BuildRecords 片段与向量按位置配对
func BuildRecords(segments []Segment, vectors [][]float32, ingestedAt time.Time) ([]VectorRecord, error) {
	if len(segments) != len(vectors) {
		return nil, fmt.Errorf("segments (%d) and vectors (%d) are misaligned", len(segments), len(vectors))
	}
	records := make([]VectorRecord, len(segments))
	for i, seg := range segments {
		records[i] = VectorRecord{
			ID:       RecordID(seg.Kind(), i, ingestedAt),
			Vector:   vectors[i],
			Metadata: MetadataOf(seg),
		}
	}
	return records, nil
}

// Write 分批写入；失败批次不重试，计入报告
func (w *Writer) Write(ctx context.Context, segments []Segment, vectors [][]float32, ingestedAt time.Time) (WriteReport, error) {
	records, err := BuildRecords(segments, vectors, ingestedAt)
	if err != nil {
		return WriteReport{}, apperrors.Fatal("write", err)
	}

	var report WriteReport
	for start := 0; start < len(records); start += w.batchSize {
		end := start + w.batchSize
		if end > len(records) {
			end = len(records)
		}
		report.Batches++

		if err := w.index.Upsert(ctx, records[start:end]); err != nil {
			w.logger.Warn("upsert batch failed",
				zap.Int("batch", start/w.batchSize), zap.Int("count", end-start), zap.Error(err))
			metrics.StageIssues.WithLabelValues("write").Inc()
			report.Failed = append(report.Failed, apperrors.Degraded("write", fmt.Errorf("batch %d-%d: %w", start, end, err)))
			continue
		}
		report.Written += end - start
		metrics.VectorsWritten.Add(float64(end - start))
		w.logger.Debug("upsert batch written", zap.Int("batch", start/w.batchSize), zap.Int("count", end-start))
	}

	if report.Written > 0 {
		if err := w.index.Flush(ctx); err != nil {
			w.logger.Warn("flush after write failed", zap.Error(err))
			report.FlushErr = apperrors.Degraded("write", err)
		}
	}
	return report, nil
}
