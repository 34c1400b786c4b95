package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aihub/docqa-go/internal/config"
	apperrors "github.com/aihub/docqa-go/internal/errors"
	"github.com/aihub/docqa-go/internal/knowledge"
	"github.com/aihub/docqa-go/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 摄取阶段名，用于日志与错误
const (
	StageLock           = "lock"
	StageValidateConfig = "validate_config"
	StageConnectIndex   = "connect_index"
	StageEnsureIndex    = "ensure_index"
	StageCheckPopulated = "check_populated"
	StageFetch          = "fetch"
	StageExtract        = "extract"
	StageMerge          = "merge"
	StageEmbed          = "embed"
	StageWrite          = "write"
)

// SegmentExtractor 单一类型内容的抽取器
type SegmentExtractor interface {
	Extract(ctx context.Context, pdf []byte) (knowledge.Result[[]knowledge.Segment], error)
}

// RunReport 一次摄取运行的结果
type RunReport struct {
	RunID           string
	IndexCreated    bool
	Skipped         bool
	ExistingRecords int64
	Segments        map[knowledge.SegmentKind]int
	Written         int
	Issues          []error
	Duration        time.Duration
}

// TotalSegments 合并后的片段总数
func (r RunReport) TotalSegments() int {
	total := 0
	for _, n := range r.Segments {
		total += n
	}
	return total
}

// IngestionDeps 摄取服务依赖
type IngestionDeps struct {
	Config          *config.Config
	Fetcher         storage.BlobFetcher
	Index           *knowledge.SharedIndex
	Text            SegmentExtractor
	Tables          SegmentExtractor
	Images          SegmentExtractor
	Embedder        *knowledge.BatchEmbedder
	UpsertBatchSize int
	Lock            IngestionLock
	// LockWait 大于0时，锁被其他进程持有会按此间隔等待而不是立即失败
	LockWait time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// IngestionService 文档摄取编排：
// 校验配置 → 连接索引 → 确保集合存在 → 检查是否已有数据 →
// {已有则跳过 | 下载 → 抽取 → 合并 → 向量化 → 写入}
type IngestionService struct {
	deps IngestionDeps
}

// NewIngestionService 创建摄取服务
func NewIngestionService(deps IngestionDeps) *IngestionService {
	if deps.Lock == nil {
		deps.Lock = NewLocalLock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &IngestionService{deps: deps}
}

// Run 执行一次摄取。返回错误时均为终止型阶段错误；降级问题记录在 RunReport.Issues。
func (s *IngestionService) Run(ctx context.Context) (report RunReport, err error) {
	started := s.deps.Now()
	report = RunReport{RunID: uuid.NewString(), Segments: make(map[knowledge.SegmentKind]int)}
	log := s.deps.Logger.With(zap.String("run_id", report.RunID))
	defer func() { report.Duration = s.deps.Now().Sub(started) }()

	release, err := s.acquire(ctx, log)
	if err != nil {
		return report, err
	}
	defer release()

	cfg := s.deps.Config
	if cfg == nil {
		return report, apperrors.Fatalf(StageValidateConfig, "configuration not loaded")
	}
	if err := cfg.Validate(); err != nil {
		log.Error("configuration invalid", zap.Strings("missing", cfg.MissingKeys()))
		return report, apperrors.Fatal(StageValidateConfig, err)
	}

	index, err := s.deps.Index.Get(ctx)
	if err != nil {
		return report, apperrors.Fatal(StageConnectIndex, err)
	}

	report.IndexCreated, err = index.EnsureIndex(ctx)
	if err != nil {
		return report, apperrors.Fatal(StageEnsureIndex, err)
	}
	if report.IndexCreated {
		log.Info("vector index created", zap.String("stage", StageEnsureIndex))
	}

	report.ExistingRecords, err = index.Count(ctx)
	if err != nil {
		return report, apperrors.Fatal(StageCheckPopulated, err)
	}
	if report.ExistingRecords > 0 {
		log.Info("vector index already populated, skipping ingestion",
			zap.String("stage", StageCheckPopulated), zap.Int64("count", report.ExistingRecords))
		report.Skipped = true
		return report, nil
	}

	pdf, err := s.deps.Fetcher.Download(ctx, cfg.Storage.Container, cfg.Storage.BlobName)
	if err != nil {
		return report, apperrors.Fatal(StageFetch, err)
	}
	if len(pdf) == 0 {
		return report, apperrors.Fatalf(StageFetch, "document %s/%s is empty", cfg.Storage.Container, cfg.Storage.BlobName)
	}
	log.Info("document downloaded", zap.String("stage", StageFetch), zap.Int("bytes", len(pdf)))

	images, tables, texts, issues, err := s.extract(ctx, pdf)
	report.Issues = append(report.Issues, issues...)
	if err != nil {
		return report, err
	}

	segments := knowledge.MergeSegments(images, tables, knowledge.ClassifyFormulas(texts))
	for _, seg := range segments {
		report.Segments[seg.Kind()]++
	}
	if len(segments) == 0 {
		log.Warn("no content extracted from document", zap.String("stage", StageMerge))
		return report, apperrors.Fatalf(StageMerge, "no content extracted from document")
	}
	log.Info("segments merged",
		zap.String("stage", StageMerge),
		zap.Int("count", len(segments)),
		zap.Int("images", report.Segments[knowledge.KindImage]),
		zap.Int("tables", report.Segments[knowledge.KindTable]),
		zap.Int("text", report.Segments[knowledge.KindText]),
		zap.Int("formulas", report.Segments[knowledge.KindFormula]))

	contents := make([]string, len(segments))
	for i, seg := range segments {
		contents[i] = seg.Content()
	}
	embedded, err := s.deps.Embedder.EmbedAll(ctx, contents, knowledge.EmbedModeDocument)
	report.Issues = append(report.Issues, embedded.Issues...)
	if err != nil {
		return report, err
	}

	writer := knowledge.NewWriter(index, s.deps.UpsertBatchSize, log)
	written, err := writer.Write(ctx, segments, embedded.Value, s.deps.Now())
	if err != nil {
		return report, err
	}
	report.Written = written.Written
	report.Issues = append(report.Issues, written.Failed...)
	if written.FlushErr != nil {
		report.Issues = append(report.Issues, written.FlushErr)
	}
	if written.AllFailed() {
		return report, apperrors.Fatalf(StageWrite, "all %d upsert batches failed", written.Batches)
	}

	log.Info("ingestion completed",
		zap.Int("count", report.Written),
		zap.Int("issues", len(report.Issues)))
	return report, nil
}

// extract 并行运行三个抽取器，任一终止错误会取消其余抽取
func (s *IngestionService) extract(ctx context.Context, pdf []byte) (images, tables, texts []knowledge.Segment, issues []error, err error) {
	var imageResult, tableResult, textResult knowledge.Result[[]knowledge.Segment]

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		imageResult, err = s.deps.Images.Extract(gctx, pdf)
		return err
	})
	g.Go(func() error {
		var err error
		tableResult, err = s.deps.Tables.Extract(gctx, pdf)
		return err
	})
	g.Go(func() error {
		var err error
		textResult, err = s.deps.Text.Extract(gctx, pdf)
		return err
	})

	err = g.Wait()
	issues = append(issues, imageResult.Issues...)
	issues = append(issues, tableResult.Issues...)
	issues = append(issues, textResult.Issues...)
	if err != nil {
		if !apperrors.IsFatal(err) {
			err = apperrors.Fatal(StageExtract, err)
		}
		return nil, nil, nil, issues, err
	}

	s.deps.Logger.Debug("extraction finished",
		zap.Int("images", len(imageResult.Value)),
		zap.Int("tables", len(tableResult.Value)),
		zap.Int("text", len(textResult.Value)),
		zap.Int("issues", len(issues)))
	return imageResult.Value, tableResult.Value, textResult.Value, issues, nil
}

func (s *IngestionService) acquire(ctx context.Context, log *zap.Logger) (func(), error) {
	for {
		release, ok, err := s.deps.Lock.TryAcquire(ctx)
		if err != nil {
			return nil, apperrors.Fatal(StageLock, err)
		}
		if ok {
			return release, nil
		}
		if s.deps.LockWait <= 0 {
			return nil, apperrors.Fatal(StageLock, ErrIngestionInProgress)
		}

		log.Info("ingestion lock held elsewhere, waiting", zap.Duration("retry_in", s.deps.LockWait))
		timer := time.NewTimer(s.deps.LockWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.Fatal(StageLock, fmt.Errorf("waiting for ingestion lock: %w", ctx.Err()))
		case <-timer.C:
		}
	}
}
