package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Storage     ObjectStorageConfig
	AI          AIConfig
	VectorStore VectorStoreConfig
	Ingestion   IngestionConfig
	Retrieval   RetrievalConfig
	Redis       RedisConfig
	Unidoc      UnidocConfig
}

type ServerConfig struct {
	Port        int
	Env         string
	ImageDir    string
	ImagePath   string
	ChatTimeout time.Duration
}

// ObjectStorageConfig 文档所在的对象存储（MinIO/S3兼容）
type ObjectStorageConfig struct {
	Endpoint  string `validate:"required"`
	AccessKey string `validate:"required"`
	SecretKey string `validate:"required"`
	UseSSL    bool
	Region    string
	Container string `validate:"required"`
	BlobName  string `validate:"required"`
}

// AIConfig 向量化与生成模型配置（OpenAI兼容接口）
type AIConfig struct {
	APIKey         string `validate:"required"`
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	VisionModel    string
}

type VectorStoreConfig struct {
	Provider   string
	Address    string `validate:"required"`
	Username   string
	Password   string
	APIKey     string
	Database   string
	Collection string `validate:"required"`
	// Dimension 向量维度，同时作为嵌入模型的输出维度
	Dimension int
	Distance   string
	TLS        bool
}

type IngestionConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	MinPageChars    int
	MinImageBytes   int
	CaptionDelay    time.Duration
	EmbedBatchSize  int
	EmbedBatchDelay time.Duration
	UpsertBatchSize int
	WorkDir         string
}

// UnidocConfig PDF解析库的计量许可证，未设置时无法抽取文本与表格
type UnidocConfig struct {
	LicenseKey string `validate:"required"`
}

type RetrievalConfig struct {
	DefaultTopK int
	WideTopK    int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockKey  string
	LockTTL  time.Duration
}

// envBindings 保留原有部署中使用的环境变量名
var envBindings = map[string]string{
	"server.port":                 "SERVER_PORT",
	"server.env":                  "ENV",
	"server.image_dir":            "IMAGE_DIR",
	"server.chat_timeout":         "CHAT_TIMEOUT",
	"storage.endpoint":            "STORAGE_ENDPOINT",
	"storage.access_key":          "STORAGE_ACCESS_KEY",
	"storage.secret_key":          "STORAGE_SECRET_KEY",
	"storage.use_ssl":             "STORAGE_USE_SSL",
	"storage.region":              "STORAGE_REGION",
	"storage.container":           "STORAGE_CONTAINER",
	"storage.blob_name":           "STORAGE_BLOB_NAME",
	"ai.api_key":                  "OPENAI_API_KEY",
	"ai.base_url":                 "OPENAI_BASE_URL",
	"ai.embedding_model":          "EMBEDDING_MODEL",
	"vector_store.dimension":      "EMBEDDING_DIMENSIONS",
	"ai.chat_model":               "CHAT_MODEL",
	"ai.vision_model":             "VISION_MODEL",
	"vector_store.provider":       "VECTOR_STORE_PROVIDER",
	"vector_store.address":        "MILVUS_ADDRESS",
	"vector_store.username":       "MILVUS_USERNAME",
	"vector_store.password":       "MILVUS_PASSWORD",
	"vector_store.api_key":        "MILVUS_API_KEY",
	"vector_store.database":       "MILVUS_DATABASE",
	"vector_store.collection":     "MILVUS_COLLECTION",
	"vector_store.tls":            "MILVUS_TLS",
	"ingestion.work_dir":          "INGESTION_WORK_DIR",
	"ingestion.caption_delay":     "CAPTION_DELAY",
	"ingestion.embed_batch_delay": "EMBED_BATCH_DELAY",
	"redis.enabled":               "REDIS_ENABLED",
	"redis.addr":                  "REDIS_ADDR",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
	"unidoc.license_key":          "UNIDOC_LICENSE_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.image_dir", "output_images")
	v.SetDefault("server.image_path", "/images")
	v.SetDefault("server.chat_timeout", 3*time.Minute)

	v.SetDefault("storage.use_ssl", true)

	v.SetDefault("ai.embedding_model", "text-embedding-3-small")
	v.SetDefault("ai.chat_model", "gpt-4o-mini")
	v.SetDefault("ai.vision_model", "gpt-4o-mini")

	v.SetDefault("vector_store.provider", "milvus")
	v.SetDefault("vector_store.database", "default")
	v.SetDefault("vector_store.dimension", 768)
	v.SetDefault("vector_store.distance", "cosine")
	v.SetDefault("vector_store.tls", false)

	v.SetDefault("ingestion.chunk_size", 1000)
	v.SetDefault("ingestion.chunk_overlap", 100)
	v.SetDefault("ingestion.min_page_chars", 50)
	v.SetDefault("ingestion.min_image_bytes", 5120)
	v.SetDefault("ingestion.caption_delay", 1500*time.Millisecond)
	v.SetDefault("ingestion.embed_batch_size", 10)
	v.SetDefault("ingestion.embed_batch_delay", 500*time.Millisecond)
	v.SetDefault("ingestion.upsert_batch_size", 50)
	v.SetDefault("ingestion.work_dir", os.TempDir())

	v.SetDefault("retrieval.default_top_k", 25)
	v.SetDefault("retrieval.wide_top_k", 80)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_key", "docqa:ingestion:lock")
	v.SetDefault("redis.lock_ttl", 30*time.Minute)
}

// Load 从默认值和环境变量构建配置。缺少必填项不会报错，
// 由 Validate 在摄取流程开始时检查。
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DOCQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "DOCQA_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetInt("server.port"),
			Env:         v.GetString("server.env"),
			ImageDir:    v.GetString("server.image_dir"),
			ImagePath:   v.GetString("server.image_path"),
			ChatTimeout: v.GetDuration("server.chat_timeout"),
		},
		Storage: ObjectStorageConfig{
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			UseSSL:    v.GetBool("storage.use_ssl"),
			Region:    v.GetString("storage.region"),
			Container: v.GetString("storage.container"),
			BlobName:  v.GetString("storage.blob_name"),
		},
		AI: AIConfig{
			APIKey:         v.GetString("ai.api_key"),
			BaseURL:        v.GetString("ai.base_url"),
			EmbeddingModel: v.GetString("ai.embedding_model"),
			ChatModel:      v.GetString("ai.chat_model"),
			VisionModel:    v.GetString("ai.vision_model"),
		},
		VectorStore: VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Address:    v.GetString("vector_store.address"),
			Username:   v.GetString("vector_store.username"),
			Password:   v.GetString("vector_store.password"),
			APIKey:     v.GetString("vector_store.api_key"),
			Database:   v.GetString("vector_store.database"),
			Collection: v.GetString("vector_store.collection"),
			Dimension:  v.GetInt("vector_store.dimension"),
			Distance:   v.GetString("vector_store.distance"),
			TLS:        v.GetBool("vector_store.tls"),
		},
		Ingestion: IngestionConfig{
			ChunkSize:       v.GetInt("ingestion.chunk_size"),
			ChunkOverlap:    v.GetInt("ingestion.chunk_overlap"),
			MinPageChars:    v.GetInt("ingestion.min_page_chars"),
			MinImageBytes:   v.GetInt("ingestion.min_image_bytes"),
			CaptionDelay:    v.GetDuration("ingestion.caption_delay"),
			EmbedBatchSize:  v.GetInt("ingestion.embed_batch_size"),
			EmbedBatchDelay: v.GetDuration("ingestion.embed_batch_delay"),
			UpsertBatchSize: v.GetInt("ingestion.upsert_batch_size"),
			WorkDir:         v.GetString("ingestion.work_dir"),
		},
		Retrieval: RetrievalConfig{
			DefaultTopK: v.GetInt("retrieval.default_top_k"),
			WideTopK:    v.GetInt("retrieval.wide_top_k"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockKey:  v.GetString("redis.lock_key"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		Unidoc: UnidocConfig{
			LicenseKey: v.GetString("unidoc.license_key"),
		},
	}

	return cfg, nil
}

var validate = validator.New()

// Validate 检查摄取所需的外部凭证与标识，返回缺失项列表
func (c *Config) Validate() error {
	missing := c.MissingKeys()
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
}

// MissingKeys 返回未配置的必填项（按 "section.Field" 命名）
func (c *Config) MissingKeys() []string {
	var missing []string
	sections := map[string]interface{}{
		"storage":      c.Storage,
		"ai":           c.AI,
		"vector_store": c.VectorStore,
		"unidoc":       c.Unidoc,
	}
	// 内存向量库仅用于本地调试，不需要Milvus地址
	if strings.EqualFold(c.VectorStore.Provider, "memory") {
		delete(sections, "vector_store")
	}
	for name, section := range sections {
		err := validate.Struct(section)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			missing = append(missing, name)
			continue
		}
		for _, fe := range verrs {
			missing = append(missing, name+"."+fe.Field())
		}
	}
	sort.Strings(missing)
	return missing
}
