package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	nodeDuration    *prometheus.HistogramVec
	nodeErrors      *prometheus.CounterVec
	branchSkips     *prometheus.CounterVec
	fallbackTotal   prometheus.Counter
}

// NewPrometheusRecorder creates a recorder registered on the default registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWith(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWith creates a recorder registered on reg. Tests use
// a private registry to avoid duplicate registration.
func NewPrometheusRecorderWith(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_requests_total",
				Help: "Total number of analyze requests by mode and status",
			},
			[]string{"mode", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copilot_request_duration_seconds",
				Help:    "Duration of analyze requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copilot_node_duration_seconds",
				Help:    "Duration of graph node executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		nodeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_node_errors_total",
				Help: "Total number of graph node failures",
			},
			[]string{"node"},
		),
		branchSkips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_branch_skips_total",
				Help: "Total number of branches skipped by intent routing",
			},
			[]string{"branch"},
		),
		fallbackTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "copilot_fallback_total",
				Help: "Total number of low-confidence fallback reruns",
			},
		),
	}
}

// ObserveRequest records one completed analyze request.
func (p *PrometheusRecorder) ObserveRequest(mode string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(mode, status).Inc()
	p.requestDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveNode records one node execution.
func (p *PrometheusRecorder) ObserveNode(node string, duration time.Duration, err error) {
	p.nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
	if err != nil {
		p.nodeErrors.WithLabelValues(node).Inc()
	}
}

// IncBranchSkip counts a skipped branch.
func (p *PrometheusRecorder) IncBranchSkip(branch string) {
	p.branchSkips.WithLabelValues(branch).Inc()
}

// IncFallback counts a fallback rerun.
func (p *PrometheusRecorder) IncFallback() {
	p.fallbackTotal.Inc()
}
