package knowledge

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"

	apperrors "github.com/aihub/docqa-go/internal/errors"
	"github.com/aihub/docqa-go/internal/metrics"
	"go.uber.org/zap"
)

const tableLabelFormat = "Table %d Data (CSV Format):\n"

// TableExtractor 检测表格并序列化为CSV文本
type TableExtractor struct {
	detector TableDetector
	workDir  string
	logger   *zap.Logger
}

// NewTableExtractor 创建表格抽取器，workDir 为空时使用系统临时目录
func NewTableExtractor(detector TableDetector, workDir string, logger *zap.Logger) *TableExtractor {
	if workDir == "" {
		workDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableExtractor{detector: detector, workDir: workDir, logger: logger}
}

// Extract 表格检测器需要文件路径，先将文档落盘到临时文件，结束后删除。
// 检测失败时降级为空结果。
func (e *TableExtractor) Extract(ctx context.Context, pdf []byte) (Result[[]Segment], error) {
	path, err := e.stage(pdf)
	if err != nil {
		return e.degrade(fmt.Errorf("stage document: %w", err)), nil
	}
	defer os.Remove(path)

	tables, err := e.detector.DetectTables(ctx, path)
	if err != nil {
		return e.degrade(err), nil
	}

	segments := make([]Segment, 0, len(tables))
	for i, table := range tables {
		body, err := tableToCSV(table.Rows)
		if err != nil {
			e.logger.Warn("table serialization failed", zap.Int("table", i+1), zap.Error(err))
			continue
		}
		columns := 0
		for _, row := range table.Rows {
			if len(row) > columns {
				columns = len(row)
			}
		}
		segments = append(segments, TableSegment{
			SegmentBase: SegmentBase{
				Text: fmt.Sprintf(tableLabelFormat, i+1) + body,
				Page: Page(table.Page),
			},
			Rows:    len(table.Rows),
			Columns: columns,
		})
	}

	metrics.SegmentsExtracted.WithLabelValues(string(KindTable)).Add(float64(len(segments)))
	return Result[[]Segment]{Value: segments}, nil
}

func (e *TableExtractor) stage(pdf []byte) (string, error) {
	f, err := os.CreateTemp(e.workDir, "docqa-tables-*.pdf")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(pdf); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (e *TableExtractor) degrade(err error) Result[[]Segment] {
	e.logger.Warn("table extraction degraded, continuing without tables", zap.Error(err))
	metrics.StageIssues.WithLabelValues("extract_tables").Inc()
	return Result[[]Segment]{Issues: []error{apperrors.Degraded("extract_tables", err)}}
}

// tableToCSV 按检测到的网格逐行输出，不额外生成表头
func tableToCSV(rows [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}
