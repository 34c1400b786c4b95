package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// IngestionRunner 执行一次摄取
type IngestionRunner interface {
	Run(ctx context.Context) (RunReport, error)
}

// IngestionTask 启动时运行一次的后台摄取任务，结束后更新系统状态
type IngestionTask struct {
	runner IngestionRunner
	state  *SystemState
	logger *zap.Logger

	once   sync.Once
	done   chan struct{}
	report RunReport
	err    error
}

// NewIngestionTask 创建摄取任务
func NewIngestionTask(runner IngestionRunner, state *SystemState, logger *zap.Logger) *IngestionTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionTask{
		runner: runner,
		state:  state,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start 在独立goroutine中运行；重复调用无效
func (t *IngestionTask) Start(ctx context.Context) {
	t.once.Do(func() {
		go t.run(ctx)
	})
}

// Done 任务结束时关闭
func (t *IngestionTask) Done() <-chan struct{} {
	return t.done
}

// Err 任务错误，Done 关闭后有效
func (t *IngestionTask) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Report 运行报告，Done 关闭后有效
func (t *IngestionTask) Report() RunReport {
	select {
	case <-t.done:
		return t.report
	default:
		return RunReport{}
	}
}

func (t *IngestionTask) run(ctx context.Context) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("ingestion panicked: %v", r)
			t.logger.Error("ingestion panicked", zap.Any("panic", r))
			_ = t.state.MarkError(t.err)
		}
	}()

	t.logger.Info("ingestion started")
	t.report, t.err = t.runner.Run(ctx)
	if t.err != nil {
		t.logger.Error("ingestion failed", zap.String("run_id", t.report.RunID), zap.Error(t.err))
		_ = t.state.MarkError(t.err)
		return
	}

	t.logger.Info("system online",
		zap.String("run_id", t.report.RunID),
		zap.Bool("skipped", t.report.Skipped),
		zap.Int("written", t.report.Written),
		zap.Int("issues", len(t.report.Issues)),
		zap.Duration("duration", t.report.Duration))
	_ = t.state.MarkReady()
}
