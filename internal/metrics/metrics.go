// Package metrics exposes Prometheus instrumentation for the analysis pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysesStarted counts triggered analysis runs.
	AnalysesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracelens_analyses_started_total",
		Help: "Number of analysis runs triggered.",
	})

	// AnalysesCompleted counts analysis runs that finished successfully.
	AnalysesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracelens_analyses_completed_total",
		Help: "Number of analysis runs that completed successfully.",
	})

	// AnalysesFailed counts analysis runs that ended in an error.
	AnalysesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracelens_analyses_failed_total",
		Help: "Number of analysis runs that failed.",
	})

	// LLMCalls counts outbound model invocations across all pipeline stages.
	LLMCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracelens_llm_calls_total",
		Help: "Number of LLM provider invocations.",
	})

	// AnalysisDuration observes end-to-end analysis durations in seconds.
	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracelens_analysis_duration_seconds",
		Help:    "End-to-end duration of analysis runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
