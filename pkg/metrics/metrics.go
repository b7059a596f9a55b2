// Package metrics 提供 Prometheus 指标采集
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docs_voice"

// HTTP 请求指标
var (
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of in-flight HTTP requests",
		},
	)
)

// 摄取指标
var (
	IngestionRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_runs_total",
			Help:      "Total number of ingestion runs by final status",
		},
		[]string{"collection", "status"},
	)

	IngestionRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_run_duration_seconds",
			Help:      "Ingestion run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"collection"},
	)

	IngestionPassagesIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_passages_indexed_total",
			Help:      "Total number of passages indexed",
		},
		[]string{"collection"},
	)
)

// 检索指标
var (
	RetrievalSearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_searches_total",
			Help:      "Total number of vector searches",
		},
		[]string{"collection", "status"},
	)

	RetrievalSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_search_duration_seconds",
			Help:      "Vector search duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"collection"},
	)
)

// LLM 与语音合成指标
var (
	LLMCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"kind", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	SpeechSynthesisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_synthesis_total",
			Help:      "Total number of speech synthesis calls",
		},
		[]string{"voice", "status"},
	)

	SpeechSynthesisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speech_synthesis_duration_seconds",
			Help:      "Speech synthesis duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"voice"},
	)
)
