package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the capture engine. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	FlowsStarted        prometheus.Counter
	FlowsCompleted      prometheus.Counter
	CameraAcquisitions  *prometheus.CounterVec
	StepTransitions     *prometheus.CounterVec
	Submissions         *prometheus.CounterVec
	SubmissionDuration  *prometheus.HistogramVec
	StaleResults        *prometheus.CounterVec
	ActiveCameraStreams prometheus.Gauge
	RateLimited         prometheus.Counter
}

// New creates and registers all metrics on reg. Pass prometheus.DefaultRegisterer
// in production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FlowsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "kycflow_flows_started_total",
			Help: "Total number of verification flows started",
		}),
		FlowsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "kycflow_flows_completed_total",
			Help: "Total number of verification flows that reached the complete step",
		}),
		CameraAcquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_camera_acquisitions_total",
			Help: "Camera acquisitions by requested facing mode and result",
		}, []string{"facing", "result"}),
		StepTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_step_transitions_total",
			Help: "Capture step state transitions",
		}, []string{"step", "state"}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_submissions_total",
			Help: "Verification submissions by step and outcome",
		}, []string{"step", "outcome"}),
		SubmissionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycflow_submission_duration_seconds",
			Help:    "Latency of verification service submissions",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"step"}),
		StaleResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_stale_results_total",
			Help: "Submission results ignored because their step attempt was abandoned",
		}, []string{"step"}),
		ActiveCameraStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kycflow_camera_streams_active",
			Help: "Number of camera streams currently open (0 or 1)",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "kycflow_requests_rate_limited_total",
			Help: "API requests rejected by the per-client rate limit",
		}),
	}
}

func (m *Metrics) IncrementFlowsStarted() {
	if m == nil {
		return
	}
	m.FlowsStarted.Inc()
}

func (m *Metrics) IncrementFlowsCompleted() {
	if m == nil {
		return
	}
	m.FlowsCompleted.Inc()
}

func (m *Metrics) RecordCameraAcquisition(facing, result string) {
	if m == nil {
		return
	}
	m.CameraAcquisitions.WithLabelValues(facing, result).Inc()
}

func (m *Metrics) SetCameraActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.ActiveCameraStreams.Set(1)
		return
	}
	m.ActiveCameraStreams.Set(0)
}

func (m *Metrics) RecordTransition(step, state string) {
	if m == nil {
		return
	}
	m.StepTransitions.WithLabelValues(step, state).Inc()
}

func (m *Metrics) RecordSubmission(step, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(step, outcome).Inc()
	m.SubmissionDuration.WithLabelValues(step).Observe(seconds)
}

func (m *Metrics) RecordStaleResult(step string) {
	if m == nil {
		return
	}
	m.StaleResults.WithLabelValues(step).Inc()
}

func (m *Metrics) IncrementRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
