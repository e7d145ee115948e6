// Package metrics 定义 embedrec 的 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmbeddingRequests 按结果统计向量 API 调用：ok / parse_failure / rate_limited / transport_failure
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedrec_embedding_requests_total",
			Help: "Embedding API calls by outcome",
		},
		[]string{"outcome"},
	)

	// EmbeddingRetries 统计重试次数（当前只有 rate_limited 一种原因）
	EmbeddingRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedrec_embedding_retries_total",
			Help: "Embedding API retries by reason",
		},
		[]string{"reason"},
	)

	// BackfillUnits 统计回填处理单元：kind = category / item
	BackfillUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedrec_backfill_units_total",
			Help: "Backfill units processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// RecommendDuration 推荐请求耗时
	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedrec_recommend_duration_seconds",
			Help:    "Duration of recommendation requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RecommendResultSize 推荐结果条数
	RecommendResultSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedrec_recommend_result_size",
			Help:    "Number of items returned per recommendation request",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)

	// RecommendEmpty 按原因统计空结果：no_judgments / no_candidates
	RecommendEmpty = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedrec_recommend_empty_total",
			Help: "Recommendation requests that returned an empty page",
		},
		[]string{"reason"},
	)

	// ItemVectorCache 共享物品向量缓存命中情况：hit / miss
	ItemVectorCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedrec_item_vector_cache_total",
			Help: "Shared item vector cache lookups by result",
		},
		[]string{"result"},
	)

	// BackfillQueueDepth 后台回填队列长度
	BackfillQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedrec_backfill_queue_depth",
			Help: "Jobs waiting in the backfill queue",
		},
	)
)

// ObserveRecommend 记录一次推荐请求。
func ObserveRecommend(start time.Time, size int) {
	RecommendDuration.Observe(time.Since(start).Seconds())
	RecommendResultSize.Observe(float64(size))
}
