// Package metrics provides Prometheus instrumentation for the verification
// service and the persisted SystemMetrics counters shown on dashboards.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VerificationsTotal counts recorded verifications, labeled by verdict
	// label: "TRUE", "FALSE", "MISLEADING" or "UNVERIFIED".
	VerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_verifications_total",
		Help: "Total number of verifications recorded",
	}, []string{"label"})

	// RoutingDecisions counts routing outcomes: "auto_reply", "escalate" or
	// "skipped" for unsupported content.
	RoutingDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_routing_decisions_total",
		Help: "Routing decisions taken by the pipeline",
	}, []string{"decision"})

	// DetectorFailures counts detectors that errored or panicked and were
	// replaced by a clean result.
	DetectorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_detector_failures_total",
		Help: "Detector invocations that failed and were treated as clean",
	}, []string{"detector"})

	// PipelineLatency records end-to-end Submit latency in seconds.
	PipelineLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "verifier_pipeline_latency_seconds",
		Help:    "End-to-end verification pipeline latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// StorageRetries counts retried storage writes.
	StorageRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verifier_storage_retries_total",
		Help: "Retried verification storage writes",
	})

	// ModerationQueueDepth tracks the number of pending moderation items.
	ModerationQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "verifier_moderation_queue_depth",
		Help: "Current number of verifications awaiting human review",
	})

	// CaseReportsTotal counts filed case reports, labeled by assigned agency.
	CaseReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_case_reports_total",
		Help: "Total number of citizen case reports filed",
	}, []string{"agency"})

	// SubmissionsThrottled counts inbound messages rejected by the rate limiter.
	SubmissionsThrottled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_submissions_throttled_total",
		Help: "Inbound submissions rejected by per-sender rate limiting",
	}, []string{"channel"})

	// SendersBlocked counts applied sender blocks, labeled by reason:
	// "repeated_rate_limit" or "moderator".
	SendersBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_senders_blocked_total",
		Help: "Sender blocks applied by strike escalation or moderators",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		VerificationsTotal,
		RoutingDecisions,
		DetectorFailures,
		PipelineLatency,
		StorageRetries,
		ModerationQueueDepth,
		CaseReportsTotal,
		SubmissionsThrottled,
		SendersBlocked,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
