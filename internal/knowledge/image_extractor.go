package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/aihub/docqa-go/internal/errors"
	"github.com/aihub/docqa-go/internal/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultMinImageBytes 小于该大小的图片（图标、装饰线）不做处理
	DefaultMinImageBytes = 5 * 1024
	DefaultCaptionDelay  = 1500 * time.Millisecond

	CaptionInstruction = "Analyze this image from a technical document. Describe the diagram, chart, or architecture in detail for search indexing."
)

var errEmptyCaption = errors.New("empty caption")

// Captioner 为图片生成可检索的文字描述
type Captioner interface {
	Caption(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
}

// ImageExtractorConfig 图片抽取配置
type ImageExtractorConfig struct {
	ImageDir     string
	MinBytes     int
	CaptionDelay time.Duration
}

// ImageExtractor 保存页面内嵌图片并生成描述
type ImageExtractor struct {
	source    ImageSource
	captioner Captioner
	cfg       ImageExtractorConfig
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewImageExtractor 创建图片抽取器
func NewImageExtractor(source ImageSource, captioner Captioner, cfg ImageExtractorConfig, logger *zap.Logger) *ImageExtractor {
	if cfg.ImageDir == "" {
		cfg.ImageDir = "output_images"
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = DefaultMinImageBytes
	}
	if cfg.CaptionDelay < 0 {
		cfg.CaptionDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageExtractor{
		source:    source,
		captioner: captioner,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// Extract 逐张处理图片：过小的跳过；其余落盘后请求描述，
// 描述失败的图片不进入结果（文件保留），并记录为降级问题。
func (e *ImageExtractor) Extract(ctx context.Context, pdf []byte) (Result[[]Segment], error) {
	images, err := e.source.Images(ctx, pdf)
	if err != nil {
		metrics.StageIssues.WithLabelValues("extract_images").Inc()
		return Result[[]Segment]{Issues: []error{apperrors.Degraded("extract_images", err)}}, nil
	}
	if err := os.MkdirAll(e.cfg.ImageDir, 0o755); err != nil {
		return Result[[]Segment]{}, apperrors.Fatal("extract_images", fmt.Errorf("create image dir: %w", err))
	}

	var result Result[[]Segment]
	requested := 0
	for _, img := range images {
		if len(img.Data) < e.cfg.MinBytes {
			continue
		}

		filename := ImageFileName(img.Page, img.Index, img.Ext)
		path := filepath.Join(e.cfg.ImageDir, filename)
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			result.Issues = append(result.Issues, apperrors.Degraded("extract_images", fmt.Errorf("write %s: %w", filename, err)))
			continue
		}

		if requested > 0 {
			if err := e.sleep(ctx, e.cfg.CaptionDelay); err != nil {
				return result, apperrors.Fatal("extract_images", err)
			}
		}
		requested++

		caption, err := e.caption(ctx, img)
		if err != nil {
			e.logger.Warn("image caption failed, skipping image",
				zap.String("file", filename), zap.Int("page", img.Page), zap.Error(err))
			metrics.Captions.WithLabelValues("failed").Inc()
			result.Issues = append(result.Issues, apperrors.Degraded("caption", fmt.Errorf("%s: %w", filename, err)))
			continue
		}
		metrics.Captions.WithLabelValues("success").Inc()

		result.Value = append(result.Value, ImageSegment{
			SegmentBase: SegmentBase{
				Text: fmt.Sprintf("Image Description (Page %d): %s", img.Page, caption),
				Page: Page(img.Page),
			},
			Path: filepath.ToSlash(path),
		})
	}

	if len(result.Issues) > 0 {
		metrics.StageIssues.WithLabelValues("extract_images").Add(float64(len(result.Issues)))
	}
	metrics.SegmentsExtracted.WithLabelValues(string(KindImage)).Add(float64(len(result.Value)))
	return result, nil
}

func (e *ImageExtractor) caption(ctx context.Context, img RawImage) (string, error) {
	if e.captioner == nil {
		return "", errors.New("no captioner configured")
	}
	caption, err := e.captioner.Caption(ctx, img.Data, imageMimeType(img.Ext), CaptionInstruction)
	if err != nil {
		return "", err
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return "", errEmptyCaption
	}
	return caption, nil
}

// ImageFileName 图片文件名：p{页码}_img{页内序号}.{扩展名}
func ImageFileName(page, index int, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("p%d_img%d.%s", page, index, ext)
}

func imageMimeType(ext string) string {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
