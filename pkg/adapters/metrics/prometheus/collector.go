package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pipewright"

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	executionsCreated  *prometheus.CounterVec
	executionsFinished *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	activeExecutions   prometheus.Gauge

	nodesExecuted *prometheus.CounterVec
	nodeDuration  *prometheus.HistogramVec

	validations *prometheus.CounterVec

	eventsPublished   *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	eventSubscribers  *prometheus.HistogramVec
	executionsCleaned prometheus.Counter

	llmCalls   *prometheus.CounterVec
	llmTokens  *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec
}

// NewCollector registers the engine metrics on reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		executionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_created_total",
				Help:      "Total number of executions created",
			},
			[]string{"mode"},
		),
		executionsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_finished_total",
				Help:      "Total number of executions that reached a terminal status",
			},
			[]string{"status"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Execution duration from start to terminal status",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"status"},
		),
		activeExecutions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Number of graph walks currently running",
			},
		),
		nodesExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_executed_total",
				Help:      "Total number of nodes executed",
			},
			[]string{"node_type", "status"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_duration_seconds",
				Help:      "Node execution duration by type",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"node_type"},
		),
		validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_validations_total",
				Help:      "Total number of schema validations by overall status",
			},
			[]string{"status"},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of progress events published",
			},
			[]string{"type"},
		),
		eventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Events dropped for subscribers whose buffer was full",
			},
			[]string{"type"},
		),
		eventSubscribers: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_subscribers",
				Help:      "Number of subscribers each event was delivered to",
				Buckets:   []float64{0, 1, 2, 5, 10, 50},
			},
			[]string{"type"},
		),
		executionsCleaned: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_cleaned_total",
				Help:      "Executions removed by cleanup sweeps",
			},
		),
		llmCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "Total number of LLM API calls made by real-mode transforms",
			},
			[]string{"model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Total number of LLM tokens used",
			},
			[]string{"model", "type"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_latency_seconds",
				Help:      "LLM API call latency",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
	}
}

// RecordExecutionCreated records a new execution
func (c *Collector) RecordExecutionCreated(mode string) {
	c.executionsCreated.WithLabelValues(mode).Inc()
}

// RecordExecutionFinished records a terminal execution and its duration
func (c *Collector) RecordExecutionFinished(status string, duration time.Duration) {
	c.executionsFinished.WithLabelValues(status).Inc()
	c.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordNodeExecuted records a node run
func (c *Collector) RecordNodeExecuted(nodeType, status string, duration time.Duration) {
	c.nodesExecuted.WithLabelValues(nodeType, status).Inc()
	c.nodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

// RecordValidation records a schema validation outcome
func (c *Collector) RecordValidation(status string) {
	c.validations.WithLabelValues(status).Inc()
}

// SetActiveExecutions sets the number of running graph walks
func (c *Collector) SetActiveExecutions(count int) {
	c.activeExecutions.Set(float64(count))
}

// RecordEventPublished records a published event and its fan-out
func (c *Collector) RecordEventPublished(eventType string, subscribers int) {
	c.eventsPublished.WithLabelValues(eventType).Inc()
	c.eventSubscribers.WithLabelValues(eventType).Observe(float64(subscribers))
}

// RecordEventDropped records an event lost to a slow subscriber
func (c *Collector) RecordEventDropped(eventType string) {
	c.eventsDropped.WithLabelValues(eventType).Inc()
}

// RecordCleanup records executions removed by a sweep
func (c *Collector) RecordCleanup(removed int) {
	c.executionsCleaned.Add(float64(removed))
}

// RecordLLMCall records one LLM API call
func (c *Collector) RecordLLMCall(model, status string, latency time.Duration, inputTokens, outputTokens int64) {
	c.llmCalls.WithLabelValues(model, status).Inc()
	c.llmLatency.WithLabelValues(model).Observe(latency.Seconds())
	if inputTokens > 0 {
		c.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		c.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}
