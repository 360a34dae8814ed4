// Package metrics provides Prometheus metrics for the field session service.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chakravue/fieldeval/internal/evaluator"
	"github.com/chakravue/fieldeval/internal/field"
	"github.com/chakravue/fieldeval/internal/traversal"
	"github.com/chakravue/fieldeval/pkg/circuitbreaker"
)

// Metrics holds all application metrics
type Metrics struct {
	EvaluationsDispatched *prometheus.CounterVec
	EvaluationsApplied    *prometheus.CounterVec
	EvaluationsDiscarded  *prometheus.CounterVec
	EvaluationsFailed     prometheus.Counter
	EvaluatorDuration     prometheus.Histogram
	Commits               prometheus.Counter
	TraversalSteps        *prometheus.CounterVec
	ActiveForms           prometheus.Gauge
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	KafkaProduceErrors    prometheus.Counter
	KafkaConsumeErrors    prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		EvaluationsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "field_evaluations_dispatched_total",
			Help: "Evaluation requests issued, by trigger",
		}, []string{"trigger"}),
		EvaluationsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "field_evaluations_applied_total",
			Help: "Verdicts applied to a field, by severity",
		}, []string{"severity"}),
		EvaluationsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "field_evaluations_discarded_total",
			Help: "Responses ignored, by reason",
		}, []string{"reason"}),
		EvaluationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "field_evaluations_failed_total",
			Help: "Evaluations that produced no information",
		}),
		EvaluatorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "evaluator_request_duration_seconds",
			Help:    "Reading evaluator call duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "field_commits_total",
			Help: "Commits that changed a value",
		}),
		TraversalSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "field_traversal_steps_total",
			Help: "Keyboard traversal steps, by direction and outcome",
		}, []string{"direction", "outcome"}),
		ActiveForms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forms_active",
			Help: "Currently open forms",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		KafkaProduceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_produce_errors_total",
			Help: "Commit notifications that failed delivery",
		}),
		KafkaConsumeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_consume_errors_total",
			Help: "Fetch, handler and offset commit failures on the readings feed",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.EvaluationsDispatched,
		m.EvaluationsApplied,
		m.EvaluationsDiscarded,
		m.EvaluationsFailed,
		m.EvaluatorDuration,
		m.Commits,
		m.TraversalSteps,
		m.ActiveForms,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.KafkaProduceErrors,
		m.KafkaConsumeErrors,
		m.CircuitBreakerState,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// EvaluationDispatched implements field.Observer
func (m *Metrics) EvaluationDispatched(trigger field.Trigger) {
	m.EvaluationsDispatched.WithLabelValues(string(trigger)).Inc()
}

// EvaluationApplied implements field.Observer
func (m *Metrics) EvaluationApplied(level evaluator.Severity) {
	label := string(level)
	if level == evaluator.SeverityNone {
		label = "none"
	}
	m.EvaluationsApplied.WithLabelValues(label).Inc()
}

// EvaluationDiscarded implements field.Observer
func (m *Metrics) EvaluationDiscarded(reason field.DiscardReason) {
	m.EvaluationsDiscarded.WithLabelValues(string(reason)).Inc()
}

// EvaluationFailed implements field.Observer
func (m *Metrics) EvaluationFailed() {
	m.EvaluationsFailed.Inc()
}

// Committed implements field.Observer
func (m *Metrics) Committed() {
	m.Commits.Inc()
}

// Traversed implements traversal.Observer
func (m *Metrics) Traversed(dir traversal.Direction, moved bool) {
	outcome := "moved"
	if !moved {
		outcome = "boundary"
	}
	m.TraversalSteps.WithLabelValues(dir.String(), outcome).Inc()
}

// BreakerStateChanged matches circuitbreaker.Config.OnStateChange
func (m *Metrics) BreakerStateChanged(name string, _, to circuitbreaker.State) {
	var v float64
	switch to {
	case circuitbreaker.StateOpen:
		v = 1
	case circuitbreaker.StateHalfOpen:
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

// InstrumentEvaluator times every call made through ev
func (m *Metrics) InstrumentEvaluator(ev evaluator.Evaluator) evaluator.Evaluator {
	return evaluator.Func(func(ctx context.Context, req evaluator.Request) (evaluator.Verdict, error) {
		start := time.Now()
		defer func() { m.EvaluatorDuration.Observe(time.Since(start).Seconds()) }()
		return ev.Evaluate(ctx, req)
	})
}

// Handler returns the Prometheus HTTP handler for the registry m uses
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
