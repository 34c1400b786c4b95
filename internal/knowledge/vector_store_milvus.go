package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	milvusFieldID        = "id"
	milvusFieldText      = "text"
	milvusFieldType      = "type"
	milvusFieldPage      = "page"
	milvusFieldImagePath = "image_path"
	milvusFieldVector    = "vector"
)

var milvusOutputFields = []string{milvusFieldText, milvusFieldType, milvusFieldPage, milvusFieldImagePath}

// MilvusIndex 基于Milvus单集合的向量索引
type MilvusIndex struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	metric       entity.MetricType
}

// NewMilvusIndex 连接Milvus
func NewMilvusIndex(ctx context.Context, opts IndexOptions) (*MilvusIndex, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("milvus address is required")
	}
	if opts.Collection == "" {
		return nil, fmt.Errorf("milvus collection is required")
	}
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultEmbeddingDimensions
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	milvusClient, err := client.NewClient(connectCtx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		APIKey:        opts.APIKey,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &MilvusIndex{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.Dimension,
		metric:       milvusMetric(opts.Distance),
	}, nil
}

func milvusMetric(value string) entity.MetricType {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return entity.IP
	case "L2", "EUCLIDEAN":
		return entity.L2
	default:
		return entity.COSINE
	}
}

func (s *MilvusIndex) schema() *entity.Schema {
	return &entity.Schema{
		CollectionName: s.collection,
		Description:    "Document segments with embeddings",
		Fields: []*entity.Field{
			{
				Name:       milvusFieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       milvusFieldText,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       milvusFieldType,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "16"},
			},
			{
				Name:       milvusFieldPage,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "16"},
			},
			{
				Name:       milvusFieldImagePath,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
			{
				Name:       milvusFieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(s.vectorSize)},
			},
		},
	}
}

// EnsureIndex 创建集合与HNSW索引并加载到内存
func (s *MilvusIndex) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}

	if !exists {
		if err := s.milvusClient.CreateCollection(ctx, s.schema(), entity.DefaultShardNumber); err != nil {
			return false, fmt.Errorf("failed to create collection: %w", err)
		}
		index, err := entity.NewIndexHNSW(s.metric, 16, 200)
		if err != nil {
			return false, fmt.Errorf("failed to build index params: %w", err)
		}
		if err := s.milvusClient.CreateIndex(ctx, s.collection, milvusFieldVector, index, false); err != nil {
			return false, fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return !exists, fmt.Errorf("failed to load collection: %w", err)
	}
	return !exists, nil
}

// Count 返回集合已持久化的记录数
func (s *MilvusIndex) Count(ctx context.Context) (int64, error) {
	stats, err := s.milvusClient.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	raw, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", raw, err)
	}
	return count, nil
}

func (s *MilvusIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	texts := make([]string, len(records))
	types := make([]string, len(records))
	pages := make([]string, len(records))
	imagePaths := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, record := range records {
		ids[i] = record.ID
		texts[i] = truncateBytes(record.Metadata.Text, 65535)
		types[i] = record.Metadata.Type
		pages[i] = record.Metadata.Page
		imagePaths[i] = record.Metadata.ImagePath
		vectors[i] = fitDimensions(record.Vector, s.vectorSize)
	}

	_, err := s.milvusClient.Upsert(ctx, s.collection, "",
		entity.NewColumnVarChar(milvusFieldID, ids),
		entity.NewColumnVarChar(milvusFieldText, texts),
		entity.NewColumnVarChar(milvusFieldType, types),
		entity.NewColumnVarChar(milvusFieldPage, pages),
		entity.NewColumnVarChar(milvusFieldImagePath, imagePaths),
		entity.NewColumnFloatVector(milvusFieldVector, s.vectorSize, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus upsert failed: %w", err)
	}
	return nil
}

func (s *MilvusIndex) Flush(ctx context.Context) error {
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("milvus flush failed: %w", err)
	}
	return nil
}

func (s *MilvusIndex) Query(ctx context.Context, vector []float32, topK int) ([]RetrievalMatch, error) {
	if len(vector) == 0 || topK <= 0 {
		return nil, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(max(topK, 64))
	if err != nil {
		return nil, err
	}
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		milvusOutputFields,
		[]entity.Vector{entity.FloatVector(fitDimensions(vector, s.vectorSize))},
		milvusFieldVector,
		s.metric,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return nil, nil
	}

	// 只有一个查询向量
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	var ids []string
	if idCol, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = idCol.Data()
	}
	columns := make(map[string][]string, len(milvusOutputFields))
	for _, field := range result.Fields {
		if col, ok := field.(*entity.ColumnVarChar); ok {
			columns[field.Name()] = col.Data()
		}
	}

	matches := make([]RetrievalMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		match := RetrievalMatch{
			ID: valueAt(ids, i),
			Metadata: Metadata{
				Text:      valueAt(columns[milvusFieldText], i),
				Type:      valueAt(columns[milvusFieldType], i),
				Page:      valueAt(columns[milvusFieldPage], i),
				ImagePath: valueAt(columns[milvusFieldImagePath], i),
			},
		}
		if i < len(result.Scores) {
			match.Score = float64(result.Scores[i])
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (s *MilvusIndex) Close() error {
	if s.milvusClient == nil {
		return nil
	}
	return s.milvusClient.Close()
}

func valueAt(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

// truncateBytes 按字节截断并保证不切断UTF-8字符
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
