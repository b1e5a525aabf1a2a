// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuestionsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_questions_total",
			Help: "Total number of questions answered, by outcome",
		},
		[]string{"outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_cache_lookups_total",
			Help: "Answer cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	ContextRetrieved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_context_retrievals_total",
			Help: "Context retrievals by source (vector, graph, none)",
		},
		[]string{"source"},
	)

	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_model_calls_total",
			Help: "Generative model invocations by status",
		},
		[]string{"status"},
	)

	ModelReplyFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_model_reply_fallbacks_total",
			Help: "Model replies that required the insight-only fallback parse",
		},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_answer_duration_seconds",
			Help: "End-to-end duration of answering a question",
		},
		[]string{"cached"},
	)

	SQLExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_sql_executions_total",
			Help: "Generated SQL executions by status",
		},
		[]string{"status"},
	)
)
