// Package metrics wraps Prometheus instrumentation for the Conversation
// Engine and Server Manager. A nil *Registry is always safe to
// call methods on: metrics are observability, never a correctness
// dependency, so recording must never branch behavior.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the counters and histograms recorded at each Conversation
// Engine state-transition boundary and each tool dispatch.
type Registry struct {
	// ModelCalls counts model-client invocations.
	// Labels: provider, model, status (success|error)
	ModelCalls *prometheus.CounterVec

	// ModelCallDuration measures model-client call latency in seconds.
	// Labels: provider, model
	ModelCallDuration *prometheus.HistogramVec

	// ToolDispatches counts tool invocations.
	// Labels: tool_name, server, status (success|error)
	ToolDispatches *prometheus.CounterVec

	// ToolDispatchDuration measures tool call latency in seconds.
	// Labels: tool_name, server
	ToolDispatchDuration *prometheus.HistogramVec

	// VerificationOutcomes counts verification passes/failures/parse-failures.
	// Labels: outcome (pass|fail|parse_failure)
	VerificationOutcomes *prometheus.CounterVec

	// RoundsPerTurn measures how many DISPATCH rounds one turn consumed.
	RoundsPerTurn prometheus.Histogram
}

// NewRegistry constructs and registers a Registry against the given
// Prometheus registerer. Pass prometheus.DefaultRegisterer for the global
// default, or a fresh *prometheus.Registry in tests to avoid collisions.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		ModelCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_model_calls_total",
				Help: "Total number of model-client generate calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		ModelCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_model_call_duration_seconds",
				Help:    "Duration of model-client generate calls",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ToolDispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_dispatches_total",
				Help: "Total number of tool dispatches by tool, server, and status",
			},
			[]string{"tool_name", "server", "status"},
		),
		ToolDispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_dispatch_duration_seconds",
				Help:    "Duration of tool dispatch RPCs",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name", "server"},
		),
		VerificationOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_verification_outcomes_total",
				Help: "Total number of verification outcomes by kind",
			},
			[]string{"outcome"},
		),
		RoundsPerTurn: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentcore_rounds_per_turn",
				Help:    "Number of DISPATCH rounds consumed per conversation turn",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),
	}
}

func (r *Registry) observeModelCall(provider, model, status string, seconds float64) {
	if r == nil {
		return
	}
	r.ModelCalls.WithLabelValues(provider, model, status).Inc()
	r.ModelCallDuration.WithLabelValues(provider, model).Observe(seconds)
}

// RecordModelCall is nil-safe: engines constructed without a registry call
// this freely.
func (r *Registry) RecordModelCall(provider, model string, err error, seconds float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.observeModelCall(provider, model, status, seconds)
}

// RecordToolDispatch is nil-safe.
func (r *Registry) RecordToolDispatch(toolName, server string, err error, seconds float64) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.ToolDispatches.WithLabelValues(toolName, server, status).Inc()
	r.ToolDispatchDuration.WithLabelValues(toolName, server).Observe(seconds)
}

// RecordVerification is nil-safe.
func (r *Registry) RecordVerification(outcome string) {
	if r == nil {
		return
	}
	r.VerificationOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRounds is nil-safe.
func (r *Registry) RecordRounds(rounds int) {
	if r == nil {
		return
	}
	r.RoundsPerTurn.Observe(float64(rounds))
}
