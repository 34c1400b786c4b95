package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "github.com/aihub/docqa-go/internal/errors"
	"github.com/aihub/docqa-go/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestionFixture struct {
	fetcher  *fakeFetcher
	index    *recordingIndex
	connects *int
	text     *fakeExtractor
	tables   *fakeExtractor
	images   *fakeExtractor
	embedder *fakeEmbedder
	lock     *LocalLock
	deps     IngestionDeps
}

func newIngestionFixture() *ingestionFixture {
	f := &ingestionFixture{
		fetcher: &fakeFetcher{data: []byte("%PDF-1.7")},
		index:   newRecordingIndex(),
		text: &fakeExtractor{segments: []knowledge.Segment{
			knowledge.TextSegment{SegmentBase: knowledge.SegmentBase{Text: "The encoder has 6 layers.", Page: 3}},
			knowledge.TextSegment{SegmentBase: knowledge.SegmentBase{Text: "Attention is $softmax(QK^T)V$.", Page: 4}},
		}},
		tables: &fakeExtractor{segments: []knowledge.Segment{
			knowledge.TableSegment{SegmentBase: knowledge.SegmentBase{Text: "Table 1 Data (CSV Format):\na,b\n", Page: 8}},
		}},
		images: &fakeExtractor{segments: []knowledge.Segment{
			knowledge.ImageSegment{SegmentBase: knowledge.SegmentBase{Text: "Image Description (Page 3): encoder stack", Page: 3}, Path: "output_images/p3_img0.png"},
		}},
		embedder: &fakeEmbedder{},
		lock:     NewLocalLock(),
	}
	shared, connects := sharedIndexOf(f.index)
	f.connects = connects
	f.deps = IngestionDeps{
		Config:          validConfig(),
		Fetcher:         f.fetcher,
		Index:           shared,
		Text:            f.text,
		Tables:          f.tables,
		Images:          f.images,
		Embedder:        knowledge.NewBatchEmbedder(f.embedder, knowledge.BatchEmbedderConfig{Dimensions: testDims, BatchSize: 2}, nil),
		UpsertBatchSize: 2,
		Lock:            f.lock,
		Now:             func() time.Time { return time.Unix(1700000000, 0) },
	}
	return f
}

func TestIngestion_FreshIndexWritesEverySegment(t *testing.T) {
	f := newIngestionFixture()
	report, err := NewIngestionService(f.deps).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.True(t, report.IndexCreated)
	assert.False(t, report.Skipped)
	assert.Equal(t, 4, report.TotalSegments())
	assert.Equal(t, 1, report.Segments[knowledge.KindFormula])
	assert.Equal(t, 4, report.Written)
	assert.Empty(t, report.Issues)
	assert.Equal(t, 2, f.index.upserts)

	count, _ := f.index.Count(context.Background())
	assert.EqualValues(t, 4, count)

	// 图片、表格在前，正文与公式在后
	require.Len(t, f.embedder.texts, 4)
	assert.True(t, strings.HasPrefix(f.embedder.texts[0], "Image Description"))
	assert.True(t, strings.HasPrefix(f.embedder.texts[1], "Table 1"))
	assert.True(t, strings.HasPrefix(f.embedder.texts[3], "Mathematical Context/Formula:\n"))

	matches, err := f.index.MemoryIndex.Query(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{"image_0_1700000000", "table_1_1700000000", "text_2_1700000000", "formula_3_1700000000"}, ids)
}

func TestIngestion_PopulatedIndexIsSkipped(t *testing.T) {
	f := newIngestionFixture()
	require.NoError(t, f.index.MemoryIndex.Upsert(context.Background(), []knowledge.VectorRecord{
		{ID: "text_0_1", Vector: []float32{1, 0, 0, 0}},
	}))

	report, err := NewIngestionService(f.deps).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.EqualValues(t, 1, report.ExistingRecords)
	assert.Equal(t, 0, f.fetcher.calls)
	assert.Equal(t, 0, f.index.upserts)
	assert.Empty(t, f.embedder.texts)

	// 再次运行仍然不写入
	_, err = NewIngestionService(f.deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, f.index.upserts)
}

func TestIngestion_MissingConfigAbortsBeforeConnecting(t *testing.T) {
	f := newIngestionFixture()
	f.deps.Config.AI.APIKey = ""
	f.deps.Config.Storage.BlobName = ""
	f.deps.Config.Unidoc.LicenseKey = ""

	_, err := NewIngestionService(f.deps).Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, StageValidateConfig, apperrors.StageOf(err))
	assert.Contains(t, err.Error(), "ai.APIKey")
	assert.Contains(t, err.Error(), "storage.BlobName")
	assert.Contains(t, err.Error(), "unidoc.LicenseKey")
	assert.Equal(t, 0, *f.connects)
	assert.Equal(t, 0, f.fetcher.calls)
}

func TestIngestion_FetchFailures(t *testing.T) {
	f := newIngestionFixture()
	f.fetcher.err = errUnavailable
	_, err := NewIngestionService(f.deps).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageFetch, apperrors.StageOf(err))
	assert.ErrorIs(t, err, errUnavailable)

	f = newIngestionFixture()
	f.fetcher.data = nil
	_, err = NewIngestionService(f.deps).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageFetch, apperrors.StageOf(err))
}

func TestIngestion_NothingExtractedAborts(t *testing.T) {
	f := newIngestionFixture()
	f.text.segments = nil
	f.tables.segments = nil
	f.tables.issues = []error{apperrors.Degraded("extract_tables", errors.New("detector crashed"))}
	f.images.segments = nil

	report, err := NewIngestionService(f.deps).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageMerge, apperrors.StageOf(err))
	assert.Len(t, report.Issues, 1)
	assert.Equal(t, 0, f.index.upserts)
}

func TestIngestion_UnreadableTextContinuesWithOtherContent(t *testing.T) {
	f := newIngestionFixture()
	f.text.segments = nil
	f.text.issues = []error{apperrors.Degraded("extract_text", errors.New("not a pdf"))}

	report, err := NewIngestionService(f.deps).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "extract_text", apperrors.StageOf(report.Issues[0]))
	assert.Zero(t, report.Segments[knowledge.KindText])
	assert.Positive(t, report.Written)
}

func TestIngestion_CancelledExtractionAborts(t *testing.T) {
	f := newIngestionFixture()
	f.text.err = apperrors.Fatal("extract_text", context.Canceled)

	_, err := NewIngestionService(f.deps).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "extract_text", apperrors.StageOf(err))
}

func TestIngestion_EmbeddingFailureIsDegraded(t *testing.T) {
	f := newIngestionFixture()
	f.embedder.err = errUnavailable

	report, err := NewIngestionService(f.deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Written)
	assert.Len(t, report.Issues, 2, "one issue per failed embedding batch")
}

func TestIngestion_AllWriteBatchesFailed(t *testing.T) {
	f := newIngestionFixture()
	f.index.upsertErr = errUnavailable

	report, err := NewIngestionService(f.deps).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageWrite, apperrors.StageOf(err))
	assert.Len(t, report.Issues, 2)
}

func TestIngestion_NotReentrant(t *testing.T) {
	f := newIngestionFixture()
	release, ok, err := f.lock.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	_, err = NewIngestionService(f.deps).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIngestionInProgress)
	assert.Equal(t, 0, f.fetcher.calls)
}

func TestIngestion_WaitsForLockUntilCancelled(t *testing.T) {
	f := newIngestionFixture()
	release, _, _ := f.lock.TryAcquire(context.Background())
	defer release()
	f.deps.LockWait = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewIngestionService(f.deps).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, StageLock, apperrors.StageOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
