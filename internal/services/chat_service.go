package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	apperrors "github.com/aihub/docqa-go/internal/errors"
	"github.com/aihub/docqa-go/internal/knowledge"
	"github.com/aihub/docqa-go/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultChatTimeout = 3 * time.Minute
	DefaultTopK        = 25
	WideTopK           = 80
)

// Generator 文本生成
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// QueryEmbedder 问题向量化
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string, mode knowledge.EmbedMode) ([]float32, error)
}

// ChatResult 问答结果。ImagePaths 为图片的存储路径，不会为 nil
type ChatResult struct {
	Answer     string
	ImagePaths []string
	Ready      bool
	// Code 处理失败时的错误码，成功时为空
	Code apperrors.ErrorCode
}

// ChatDeps 问答服务依赖
type ChatDeps struct {
	State       *SystemState
	Index       *knowledge.SharedIndex
	Embedder    QueryEmbedder
	Generator   Generator
	DefaultTopK int
	WideTopK    int
	Timeout     time.Duration
	Logger      *zap.Logger
}

// ChatService 检索增强问答
type ChatService struct {
	deps ChatDeps
}

// NewChatService 创建问答服务
func NewChatService(deps ChatDeps) *ChatService {
	if deps.DefaultTopK <= 0 {
		deps.DefaultTopK = DefaultTopK
	}
	if deps.WideTopK <= 0 {
		deps.WideTopK = WideTopK
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultChatTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ChatService{deps: deps}
}

// Respond 回答问题。系统未就绪时返回等待提示；任何错误都转换为回答文本，不向调用方返回错误。
// 处理过程不随客户端断开而取消，只受超时限制。
func (s *ChatService) Respond(ctx context.Context, query string) ChatResult {
	if s.deps.State != nil {
		if snapshot := s.deps.State.Snapshot(); !snapshot.Ready() {
			metrics.ChatRequests.WithLabelValues("not_ready").Inc()
			return ChatResult{Answer: "⚠️ **Please wait.** \n\n" + snapshot.Message, ImagePaths: []string{}}
		}
	}

	started := time.Now()
	defer func() { metrics.ChatDuration.Observe(time.Since(started).Seconds()) }()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.Timeout)
	defer cancel()

	answer, images, err := s.respond(ctx, query)
	if err != nil {
		appErr := apperrors.GetAppError(err)
		s.deps.Logger.Error("chat failed", zap.String("code", string(appErr.Code)), zap.Error(err))
		metrics.ChatRequests.WithLabelValues("error").Inc()
		return ChatResult{Answer: "**Error:** " + err.Error(), ImagePaths: []string{}, Ready: true, Code: appErr.Code}
	}

	metrics.ChatRequests.WithLabelValues("success").Inc()
	if images == nil {
		images = []string{}
	}
	return ChatResult{Answer: answer, ImagePaths: images, Ready: true}
}

func (s *ChatService) respond(ctx context.Context, query string) (string, []string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil, apperrors.NewMissingFieldError("query")
	}

	plan := PlanRetrieval(query, s.deps.DefaultTopK, s.deps.WideTopK)
	vector, err := s.deps.Embedder.EmbedOne(ctx, plan.SearchText, knowledge.EmbedModeQuery)
	if err != nil {
		return "", nil, apperrors.NewExternalError("embedding", err)
	}

	index, err := s.deps.Index.Get(ctx)
	if err != nil {
		return "", nil, apperrors.NewExternalError("vector index", err)
	}
	matches, err := index.Query(ctx, vector, plan.TopK)
	if err != nil {
		return "", nil, apperrors.NewExternalError("vector index", err)
	}
	metrics.RetrievedMatches.Observe(float64(len(matches)))
	s.deps.Logger.Debug("retrieved context",
		zap.Int("top_k", plan.TopK), zap.Bool("wide", plan.Wide), zap.Int("count", len(matches)))

	assembled := AssembleContext(matches)
	raw, err := s.generate(ctx, BuildPrompt(assembled.Text, query))
	if err != nil {
		return "", nil, err
	}

	answer, images := ResolveImageTags(raw, assembled.Images)
	return answer, images, nil
}

type generation struct {
	text string
	err  error
}

// generate 在独立goroutine中生成完整回答，调用方等待结果或超时
func (s *ChatService) generate(ctx context.Context, prompt string) (string, error) {
	done := make(chan generation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generation{err: fmt.Errorf("generation panicked: %v", r)}
			}
		}()
		text, err := s.deps.Generator.Generate(ctx, prompt)
		done <- generation{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", apperrors.NewSystemError(apperrors.ErrCodeTimeout, "generation timed out").WithCause(ctx.Err())
	case g := <-done:
		if g.err != nil {
			return "", apperrors.NewExternalError("generation", g.err)
		}
		return g.text, nil
	}
}

// ImageURLs 将图片存储路径转换为静态访问地址
func ImageURLs(baseURL, route string, paths []string) []string {
	baseURL = strings.TrimRight(baseURL, "/")
	route = "/" + strings.Trim(route, "/")
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		urls = append(urls, baseURL+route+"/"+path.Base(p))
	}
	return urls
}
