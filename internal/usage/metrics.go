package usage

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ghost"

var (
	// modelCallsTotal counts model calls by operation and outcome.
	modelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Total number of generative model calls",
		},
		[]string{"operation", "status"}, // status: success, blocked, error
	)

	// modelCallDuration is a histogram of model call duration.
	modelCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Duration of generative model calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	// tokensTotal counts tokens consumed by model calls.
	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total tokens consumed by model calls",
		},
		[]string{"operation", "kind"}, // kind: input, output
	)

	// strategyDecisionsTotal counts classifier outcomes.
	strategyDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_decisions_total",
			Help:      "Total number of strategy classifications by label",
		},
		[]string{"label"},
	)

	// keyRotationsTotal counts credential rotations.
	keyRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rotations_total",
			Help:      "Total number of API key rotations",
		},
	)

	// keyPoolExhaustedTotal counts full cycles without a usable key.
	keyPoolExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_pool_exhausted_total",
			Help:      "Total number of acquisitions that failed after a full key cycle",
		},
	)

	// renderEditsTotal counts transport writes made by the renderer.
	renderEditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_edits_total",
			Help:      "Total number of message writes issued while rendering",
		},
		[]string{"kind"}, // kind: status, interim, final, chunk, photo, error
	)

	// flowsActive is a gauge of in-flight response flows.
	flowsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flows_active",
			Help:      "Number of response flows currently running",
		},
	)

	// flowDuration is a histogram of whole response flows.
	flowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flow_duration_seconds",
			Help:      "Duration of a response flow from placeholder to final render",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind", "status"},
	)

	// toolCallsTotal counts collaborator calls (search, extract, imaging).
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of external tool calls",
		},
		[]string{"tool", "status"},
	)

	allMetrics = []prometheus.Collector{
		modelCallsTotal,
		modelCallDuration,
		tokensTotal,
		strategyDecisionsTotal,
		keyRotationsTotal,
		keyPoolExhaustedTotal,
		renderEditsTotal,
		flowsActive,
		flowDuration,
		toolCallsTotal,
	}

	registerOnce sync.Once
	registry     = prometheus.NewRegistry()
)

// Register adds all metrics to the package registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		registry.MustRegister(allMetrics...)
		registry.MustRegister(prometheus.NewGoCollector())
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordModelCall records one model call.
func RecordModelCall(operation, status string, durationSeconds float64) {
	modelCallsTotal.WithLabelValues(operation, status).Inc()
	modelCallDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordTokens records token consumption.
func RecordTokens(operation string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		tokensTotal.WithLabelValues(operation, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		tokensTotal.WithLabelValues(operation, "output").Add(float64(outputTokens))
	}
}

// RecordStrategy records a classifier decision.
func RecordStrategy(label string) {
	strategyDecisionsTotal.WithLabelValues(label).Inc()
}

// RecordKeyRotation records one credential rotation.
func RecordKeyRotation() {
	keyRotationsTotal.Inc()
}

// RecordKeyPoolExhausted records an acquisition that found no usable key.
func RecordKeyPoolExhausted() {
	keyPoolExhaustedTotal.Inc()
}

// RecordRenderEdit records a transport write by the renderer.
func RecordRenderEdit(kind string) {
	renderEditsTotal.WithLabelValues(kind).Inc()
}

// RecordFlowStart records a response flow start.
func RecordFlowStart() {
	flowsActive.Inc()
}

// RecordFlowEnd records a response flow completion.
func RecordFlowEnd(kind, status string, durationSeconds float64) {
	flowsActive.Dec()
	flowDuration.WithLabelValues(kind, status).Observe(durationSeconds)
}

// RecordToolCall records an external tool call.
func RecordToolCall(tool, status string) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
}
