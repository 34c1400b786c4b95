package services

import (
	"context"
	"errors"
	"sync"

	"github.com/aihub/docqa-go/internal/config"
	"github.com/aihub/docqa-go/internal/knowledge"
)

const testDims = 4

func validConfig() *config.Config {
	return &config.Config{
		Storage: config.ObjectStorageConfig{
			Endpoint:  "localhost:9000",
			AccessKey: "minio",
			SecretKey: "minio123",
			Container: "papers",
			BlobName:  "attention.pdf",
		},
		AI: config.AIConfig{APIKey: "sk-test"},
		VectorStore: config.VectorStoreConfig{
			Provider:   "memory",
			Address:    "localhost:19530",
			Collection: "docqa",
			Dimension:  testDims,
		},
		Unidoc: config.UnidocConfig{LicenseKey: "unidoc-test"},
	}
}

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Download(ctx context.Context, container, blob string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type fakeExtractor struct {
	segments []knowledge.Segment
	issues   []error
	err      error
}

func (f *fakeExtractor) Extract(ctx context.Context, pdf []byte) (knowledge.Result[[]knowledge.Segment], error) {
	return knowledge.Result[[]knowledge.Segment]{Value: f.segments, Issues: f.issues}, f.err
}

// fakeEmbedder 根据文本长度生成确定性向量
type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string, mode knowledge.EmbedMode) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0, 0}
	}
	return out, nil
}

// recordingIndex 记录调用并可注入失败
type recordingIndex struct {
	*knowledge.MemoryIndex
	upsertErr  error
	queryErr   error
	upserts    int
	lastTopK   int
	queryCalls int
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{MemoryIndex: knowledge.NewMemoryIndex(testDims)}
}

func (r *recordingIndex) Upsert(ctx context.Context, records []knowledge.VectorRecord) error {
	r.upserts++
	if r.upsertErr != nil {
		return r.upsertErr
	}
	return r.MemoryIndex.Upsert(ctx, records)
}

func (r *recordingIndex) Query(ctx context.Context, vector []float32, topK int) ([]knowledge.RetrievalMatch, error) {
	r.queryCalls++
	r.lastTopK = topK
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	return r.MemoryIndex.Query(ctx, vector, topK)
}

func sharedIndexOf(index knowledge.VectorIndex) (*knowledge.SharedIndex, *int) {
	connects := 0
	return knowledge.NewSharedIndex(func(ctx context.Context) (knowledge.VectorIndex, error) {
		connects++
		return index, nil
	}), &connects
}

var errUnavailable = errors.New("service unavailable")
