package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aihub/docqa-go/internal/knowledge"
	openai "github.com/sashabaranov/go-openai"
)

// Options OpenAI兼容接口配置
type Options struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
	VisionModel         string
}

// Client 封装向量化、文本生成与图片描述
type Client struct {
	client         *openai.Client
	embeddingModel string
	dimensions     int
	chatModel      string
	visionModel    string
}

// NewClient 创建客户端。API Key 在摄取开始时统一校验，这里不做检查。
func NewClient(opts Options) *Client {
	apiKey := strings.TrimSpace(opts.APIKey)
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if opts.EmbeddingDimensions <= 0 {
		opts.EmbeddingDimensions = knowledge.DefaultEmbeddingDimensions
	}
	if opts.ChatModel == "" {
		opts.ChatModel = openai.GPT4oMini
	}
	if opts.VisionModel == "" {
		opts.VisionModel = opts.ChatModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		embeddingModel: opts.EmbeddingModel,
		dimensions:     opts.EmbeddingDimensions,
		chatModel:      opts.ChatModel,
		visionModel:    opts.VisionModel,
	}
}

// EmbedTexts 批量向量化。入库与检索使用同一模型，mode 不影响请求。
func (c *Client) EmbedTexts(ctx context.Context, texts []string, mode knowledge.EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.embeddingModel),
		Input:      texts,
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d items, expected %d", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, item := range data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

// Generate 单轮生成，返回完整回答
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Caption 以data URL形式提交图片，返回描述文本
func (c *Client) Caption(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("image is empty")
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: instruction},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
