// Package metrics 定义推荐链路的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnrichOutcomes 按结果统计富化：accepted / rejected / unavailable / abandoned
	EnrichOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinerank",
		Subsystem: "enrich",
		Name:      "outcomes_total",
		Help:      "Candidate enrichment outcomes by result.",
	}, []string{"result"})

	// BatchDuration 是一次批量富化的耗时
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cinerank",
		Subsystem: "enrich",
		Name:      "batch_duration_seconds",
		Help:      "Duration of a parallel enrichment batch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"policy"})

	// CacheLookups 按缓存名与命中情况统计
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinerank",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Resolver cache lookups by cache and result.",
	}, []string{"cache", "result"})

	// HTTPRetries 是外部调用的重试次数
	HTTPRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinerank",
		Subsystem: "http",
		Name:      "retries_total",
		Help:      "Retried upstream HTTP attempts by upstream.",
	}, []string{"upstream"})

	// BreakerRejections 是熔断器拒绝的请求数
	BreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinerank",
		Subsystem: "http",
		Name:      "breaker_rejections_total",
		Help:      "Requests rejected by an open circuit breaker.",
	}, []string{"upstream"})

	// Requests 按结果统计推荐请求：ok / shortfall / no_candidates / search_unavailable / invalid
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinerank",
		Name:      "requests_total",
		Help:      "Recommendation requests by result.",
	}, []string{"result"})
)
