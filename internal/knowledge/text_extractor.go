package knowledge

import (
	"context"
	"fmt"
	"unicode/utf8"

	apperrors "github.com/aihub/docqa-go/internal/errors"
	"github.com/aihub/docqa-go/internal/metrics"
	"go.uber.org/zap"
)

// DefaultMinPageChars 少于该字符数的页面视为空白页（封面、分隔页等）
const DefaultMinPageChars = 50

// TextExtractor 按页抽取正文并分块
type TextExtractor struct {
	source       PageTextSource
	chunker      *Chunker
	minPageChars int
	logger       *zap.Logger
}

// NewTextExtractor 创建正文抽取器
func NewTextExtractor(source PageTextSource, chunker *Chunker, minPageChars int, logger *zap.Logger) *TextExtractor {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	if minPageChars < 0 {
		minPageChars = DefaultMinPageChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextExtractor{
		source:       source,
		chunker:      chunker,
		minPageChars: minPageChars,
		logger:       logger,
	}
}

// Extract 返回按页序排列的正文片段。
// 文档或单页无法读取时降级处理，只有取消才终止。
func (e *TextExtractor) Extract(ctx context.Context, pdf []byte) (Result[[]Segment], error) {
	pages, err := e.source.PageTexts(ctx, pdf)
	if err != nil {
		if ctx.Err() != nil {
			return Result[[]Segment]{}, apperrors.Fatal("extract_text", ctx.Err())
		}
		e.logger.Warn("document text unreadable, continuing without text", zap.Error(err))
		metrics.StageIssues.WithLabelValues("extract_text").Inc()
		return Result[[]Segment]{Issues: []error{apperrors.Degraded("extract_text", err)}}, nil
	}

	var (
		segments    []Segment
		failedPages []int
		firstErr    error
	)
	for _, page := range pages {
		if page.Err != nil {
			failedPages = append(failedPages, page.Number)
			if firstErr == nil {
				firstErr = page.Err
			}
			continue
		}
		if utf8.RuneCountInString(page.Text) < e.minPageChars {
			continue
		}
		for _, chunk := range e.chunker.Split(page.Text) {
			segments = append(segments, TextSegment{SegmentBase{Text: chunk.Text, Page: Page(page.Number)}})
		}
	}

	result := Result[[]Segment]{Value: segments}
	if len(failedPages) > 0 {
		e.logger.Warn("page text extraction failed",
			zap.Ints("pages", failedPages), zap.Int("total", len(pages)), zap.Error(firstErr))
		metrics.StageIssues.WithLabelValues("extract_text").Inc()
		result.Issues = append(result.Issues, apperrors.Degraded("extract_text",
			fmt.Errorf("%d of %d pages unreadable: %w", len(failedPages), len(pages), firstErr)))
	}

	metrics.SegmentsExtracted.WithLabelValues(string(KindText)).Add(float64(len(segments)))
	return result, nil
}
