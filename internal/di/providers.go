package di

import (
	"fmt"
	"time"

	"github.com/aihub/docqa-go/internal/config"
	"github.com/aihub/docqa-go/internal/database"
	"github.com/aihub/docqa-go/internal/knowledge"
	"github.com/aihub/docqa-go/internal/llm"
	"github.com/aihub/docqa-go/internal/logger"
	"github.com/aihub/docqa-go/internal/services"
	"github.com/aihub/docqa-go/internal/storage"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}

	providers := []interface{}{
		// 配置与日志
		func() *config.Config { return cfg },
		func() *zap.Logger { return logger.GetLogger() },

		// 外部服务
		provideLLMClient,
		provideBlobFetcher,
		provideSharedIndex,
		provideIngestionLock,

		// 抽取与向量化
		knowledge.NewUniPDFSource,
		provideTextExtractor,
		provideTableExtractor,
		provideImageExtractor,
		provideBatchEmbedder,

		// 服务
		services.NewSystemState,
		provideIngestionService,
		provideIngestionTask,
		provideChatService,
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return err
		}
	}
	return nil
}

func provideLLMClient(cfg *config.Config) *llm.Client {
	return llm.NewClient(llm.Options{
		APIKey:              cfg.AI.APIKey,
		BaseURL:             cfg.AI.BaseURL,
		EmbeddingModel:      cfg.AI.EmbeddingModel,
		EmbeddingDimensions: cfg.VectorStore.Dimension,
		ChatModel:           cfg.AI.ChatModel,
		VisionModel:         cfg.AI.VisionModel,
	})
}

func provideBlobFetcher(cfg *config.Config) storage.BlobFetcher {
	return storage.NewMinIOFetcher(storage.Options{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Region:    cfg.Storage.Region,
	})
}

func provideSharedIndex(cfg *config.Config) *knowledge.SharedIndex {
	return knowledge.NewSharedIndex(knowledge.NewIndexConnector(knowledge.IndexOptions{
		Provider:   cfg.VectorStore.Provider,
		Address:    cfg.VectorStore.Address,
		Username:   cfg.VectorStore.Username,
		Password:   cfg.VectorStore.Password,
		APIKey:     cfg.VectorStore.APIKey,
		Database:   cfg.VectorStore.Database,
		Collection: cfg.VectorStore.Collection,
		Dimension:  cfg.VectorStore.Dimension,
		Distance:   cfg.VectorStore.Distance,
		UseTLS:     cfg.VectorStore.TLS,
	}))
}

// provideIngestionLock Redis 可用时使用分布式锁，否则退回进程内锁
func provideIngestionLock(cfg *config.Config, log *zap.Logger) services.IngestionLock {
	if !cfg.Redis.Enabled {
		return services.NewLocalLock()
	}
	client, err := database.InitRedis(cfg.Redis)
	if err != nil {
		log.Warn("Failed to initialize Redis, using process-local ingestion lock", zap.Error(err))
		return services.NewLocalLock()
	}
	lock, err := services.NewRedisLock(client, cfg.Redis.LockKey, cfg.Redis.LockTTL)
	if err != nil {
		log.Warn("Failed to create Redis lock, using process-local ingestion lock", zap.Error(err))
		return services.NewLocalLock()
	}
	return lock
}

func provideTextExtractor(cfg *config.Config, source *knowledge.UniPDFSource) *knowledge.TextExtractor {
	chunker := knowledge.NewChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	return knowledge.NewTextExtractor(source, chunker, cfg.Ingestion.MinPageChars, logger.Named("text"))
}

func provideTableExtractor(cfg *config.Config, source *knowledge.UniPDFSource) *knowledge.TableExtractor {
	return knowledge.NewTableExtractor(source, cfg.Ingestion.WorkDir, logger.Named("tables"))
}

func provideImageExtractor(cfg *config.Config, source *knowledge.UniPDFSource, client *llm.Client) *knowledge.ImageExtractor {
	return knowledge.NewImageExtractor(source, client, knowledge.ImageExtractorConfig{
		ImageDir:     cfg.Server.ImageDir,
		MinBytes:     cfg.Ingestion.MinImageBytes,
		CaptionDelay: cfg.Ingestion.CaptionDelay,
	}, logger.Named("images"))
}

func provideBatchEmbedder(cfg *config.Config, client *llm.Client) *knowledge.BatchEmbedder {
	return knowledge.NewBatchEmbedder(client, knowledge.BatchEmbedderConfig{
		Dimensions: cfg.VectorStore.Dimension,
		BatchSize:  cfg.Ingestion.EmbedBatchSize,
		BatchDelay: cfg.Ingestion.EmbedBatchDelay,
	}, logger.Named("embedder"))
}

// ingestionParams 摄取服务依赖
type ingestionParams struct {
	dig.In

	Config   *config.Config
	Fetcher  storage.BlobFetcher
	Index    *knowledge.SharedIndex
	Text     *knowledge.TextExtractor
	Tables   *knowledge.TableExtractor
	Images   *knowledge.ImageExtractor
	Embedder *knowledge.BatchEmbedder
	Lock     services.IngestionLock
}

func provideIngestionService(p ingestionParams) *services.IngestionService {
	var lockWait time.Duration
	if p.Config.Redis.Enabled {
		lockWait = 2 * time.Second
	}
	return services.NewIngestionService(services.IngestionDeps{
		Config:          p.Config,
		Fetcher:         p.Fetcher,
		Index:           p.Index,
		Text:            p.Text,
		Tables:          p.Tables,
		Images:          p.Images,
		Embedder:        p.Embedder,
		UpsertBatchSize: p.Config.Ingestion.UpsertBatchSize,
		Lock:            p.Lock,
		LockWait:        lockWait,
		Logger:          logger.Named("ingestion"),
	})
}

func provideIngestionTask(svc *services.IngestionService, state *services.SystemState) *services.IngestionTask {
	return services.NewIngestionTask(svc, state, logger.Named("ingestion"))
}

func provideChatService(cfg *config.Config, state *services.SystemState, index *knowledge.SharedIndex, embedder *knowledge.BatchEmbedder, client *llm.Client) *services.ChatService {
	return services.NewChatService(services.ChatDeps{
		State:       state,
		Index:       index,
		Embedder:    embedder,
		Generator:   client,
		DefaultTopK: cfg.Retrieval.DefaultTopK,
		WideTopK:    cfg.Retrieval.WideTopK,
		Timeout:     cfg.Server.ChatTimeout,
		Logger:      logger.Named("chat"),
	})
}
