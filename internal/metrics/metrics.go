package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 摄取流水线指标
var (
	SegmentsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_segments_extracted_total",
			Help: "Number of segments produced by the extractors",
		},
		[]string{"kind"}, // text, table, image, formula
	)

	StageIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_stage_issues_total",
			Help: "Number of absorbed (degraded) failures per ingestion stage",
		},
		[]string{"stage"},
	)

	Captions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_image_captions_total",
			Help: "Image caption requests by outcome",
		},
		[]string{"status"}, // success, failed
	)

	EmbeddingBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_embedding_batches_total",
			Help: "Embedding batches by outcome",
		},
		[]string{"status"}, // success, failed
	)

	VectorsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_vectors_written_total",
			Help: "Number of vector records upserted into the index",
		},
	)

	IngestionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docqa_ingestion_state",
			Help: "System state: 0 initializing, 1 ready, 2 error",
		},
	)
)

// 问答指标
var (
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_chat_requests_total",
			Help: "Chat requests by outcome",
		},
		[]string{"status"}, // success, error, not_ready
	)

	ChatDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docqa_chat_duration_seconds",
			Help:    "End-to-end duration of chat requests",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 180},
		},
	)

	RetrievedMatches = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docqa_retrieved_matches",
			Help:    "Number of matches returned by the vector index per query",
			Buckets: []float64{0, 5, 10, 25, 50, 80},
		},
	)
)

// Handler 返回Prometheus指标的HTTP处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
